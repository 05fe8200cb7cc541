package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusRecorder is a Recorder backed by global Prometheus
// collectors, registered once via NewPrometheusRecorder. endpoint is
// carried as a label, so cardinality is bounded by the number of
// configured server endpoints, not by request volume.
type PrometheusRecorder struct {
	pendingQueueDepth *prometheus.GaugeVec
	dispatchTotal     *prometheus.CounterVec
	reconnectTotal    *prometheus.CounterVec
	transportDead     *prometheus.CounterVec
}

// NewPrometheusRecorder constructs a PrometheusRecorder and registers
// its collectors against reg. Pass prometheus.DefaultRegisterer to use
// the global registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		pendingQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gomemdcore_pending_queue_depth",
			Help: "Number of in-flight requests awaiting a reply on a transport.",
		}, []string{"endpoint"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gomemdcore_dispatch_total",
			Help: "Total try_send attempts, labeled by outcome.",
		}, []string{"endpoint", "outcome"}),
		reconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gomemdcore_reconnect_total",
			Help: "Total successful reconnects per endpoint.",
		}, []string{"endpoint"}),
		transportDead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gomemdcore_transport_dead_total",
			Help: "Total fatal transport teardowns per endpoint.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(r.pendingQueueDepth, r.dispatchTotal, r.reconnectTotal, r.transportDead)

	return r
}

func (r *PrometheusRecorder) PendingQueueDepth(endpoint string, depth int) {
	r.pendingQueueDepth.WithLabelValues(endpoint).Set(float64(depth))
}

func (r *PrometheusRecorder) DispatchAttempt(endpoint string, ok bool) {
	outcome := "refused"
	if ok {
		outcome = "accepted"
	}
	r.dispatchTotal.WithLabelValues(endpoint, outcome).Inc()
}

func (r *PrometheusRecorder) Reconnect(endpoint string) {
	r.reconnectTotal.WithLabelValues(endpoint).Inc()
}

func (r *PrometheusRecorder) TransportDead(endpoint string) {
	r.transportDead.WithLabelValues(endpoint).Inc()
}
