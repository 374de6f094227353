package listview

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reload outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeStale   = "stale"

	// outcomeAdjusted marks a past-the-end page that triggered a step back.
	outcomeAdjusted = "adjusted"
)

// Metrics instruments reload cycles.
type Metrics struct {
	reloads  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers listview collectors on registerer. A nil registerer
// yields unregistered collectors, which is what tests want.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_listview_reloads_total",
			Help: "List reload cycles by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockroom_listview_reload_duration_seconds",
			Help:    "Time spent waiting for the remote list query.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.reloads, m.duration)
	}
	return m
}

func (m *Metrics) observe(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}
