// Package metrics provides optional instrumentation for the transport
// and node layers. A Recorder is a pure capability interface; a no-op
// implementation is the default so the core never depends on
// Prometheus unless a caller opts in, the same shape as
// etalazz-vsa's churn telemetry package.
package metrics

// Recorder receives point-in-time counts from a Transport/Node pool.
// Every method must be safe to call from the hot send/receive path and
// must never block.
type Recorder interface {
	PendingQueueDepth(endpoint string, depth int)
	DispatchAttempt(endpoint string, ok bool)
	Reconnect(endpoint string)
	TransportDead(endpoint string)
}

// Nop is the default Recorder: every call is a no-op.
var Nop Recorder = nopRecorder{}

type nopRecorder struct{}

func (nopRecorder) PendingQueueDepth(string, int) {}
func (nopRecorder) DispatchAttempt(string, bool)  {}
func (nopRecorder) Reconnect(string)              {}
func (nopRecorder) TransportDead(string)          {}
