// Package metrics provides Prometheus metrics for the rating engine server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crux"

// Metrics holds every instrument the server records. All instruments live
// on a private registry so the /metrics endpoint exposes only engine
// metrics, not default Go collector noise.
type Metrics struct {
	registry *prometheus.Registry

	// Engine metrics
	CompetitionsProcessed prometheus.Counter
	CompetitionsRejected  prometheus.Counter
	SnapshotsWritten      prometheus.Counter
	Rewinds               prometheus.Counter
	ReplayDuration        prometheus.Histogram
	AthletesTotal         prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// New creates the metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CompetitionsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "competitions_processed_total",
			Help:      "Competitions folded into rating state.",
		}),
		CompetitionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "competitions_rejected_total",
			Help:      "Competitions rejected for data integrity violations.",
		}),
		SnapshotsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Rating snapshots written.",
		}),
		Rewinds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewinds_total",
			Help:      "History truncations caused by out-of-order arrivals.",
		}),
		ReplayDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_duration_seconds",
			Help:      "Wall time of replay batches.",
			Buckets:   prometheus.DefBuckets,
		}),
		AthletesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "athletes_total",
			Help:      "Athletes with at least one rating snapshot.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
