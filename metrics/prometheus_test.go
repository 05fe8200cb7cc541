package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_RecordsAgainstItsOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.PendingQueueDepth("10.0.0.1:11210", 3)
	r.DispatchAttempt("10.0.0.1:11210", true)
	r.DispatchAttempt("10.0.0.1:11210", false)
	r.Reconnect("10.0.0.1:11210")
	r.TransportDead("10.0.0.1:11210")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNop_NeverPanics(t *testing.T) {
	Nop.PendingQueueDepth("x", 1)
	Nop.DispatchAttempt("x", true)
	Nop.Reconnect("x")
	Nop.TransportDead("x")
}
