// Package metrics registers the proxy's Prometheus instrumentation,
// following the CounterVec-per-outcome style of boulder's ocsp-responder.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/histogram the handler and refresher record
// into. Construct with New and register with a prometheus.Registerer
// before starting traffic.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	UpstreamFetch *prometheus.HistogramVec
	RefresherRuns *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
}

// lookup result labels recorded against Lookups.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultBypass  = "bypass"
	ResultPurge   = "purge"
	ResultInvalid = "invalid"
)

// New builds an unregistered Metrics. Call Register before use.
func New() *Metrics {
	return &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocsp_proxy_lookups_total",
			Help: "Count of handled OCSP requests by result.",
		}, []string{"result"}),
		UpstreamFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocsp_proxy_upstream_fetch_seconds",
			Help:    "Latency of upstream OCSP responder fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"responder", "outcome"}),
		RefresherRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocsp_proxy_refresher_entries_total",
			Help: "Count of refresher passes over stored entries by outcome.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocsp_proxy_writequeue_depth",
			Help: "Current depth of the write serializer's pending-intent queue.",
		}),
	}
}

// Register adds every metric in m to reg. Call once at startup.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Lookups, m.UpstreamFetch, m.RefresherRuns, m.QueueDepth)
}
