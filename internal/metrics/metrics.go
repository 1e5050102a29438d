// Package metrics exposes Prometheus instruments for the commit workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Commit holds the commit workflow instruments. A nil *Commit records nothing.
type Commit struct {
	outcomes  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	guardHeld prometheus.Gauge
}

// NewCommit creates the instruments and registers them with reg.
func NewCommit(reg prometheus.Registerer) *Commit {
	c := &Commit{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "commits_total",
			Help:      "Commit attempts by final disposition and rejection kind.",
		}, []string{"disposition", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "commit_duration_seconds",
			Help:      "Wall time of commit attempts, including time spent waiting for defect input.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"disposition"}),
		guardHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "guard_keys_held",
			Help:      "Number of commit guard keys currently held.",
		}),
	}
	reg.MustRegister(c.outcomes, c.duration, c.guardHeld)
	return c
}

// ObserveOutcome records one finished commit attempt.
func (c *Commit) ObserveOutcome(disposition, reason string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(disposition, reason).Inc()
	c.duration.WithLabelValues(disposition).Observe(elapsed.Seconds())
}

// SetGuardHeld records the number of held guard keys.
func (c *Commit) SetGuardHeld(n int) {
	if c == nil {
		return
	}
	c.guardHeld.Set(float64(n))
}
