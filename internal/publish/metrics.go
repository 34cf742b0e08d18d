package publish

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts step outcomes. A nil *Metrics records nothing.
type Metrics struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	batches  *prometheus.CounterVec
}

// NewMetrics registers the publish collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promocast_publish_steps_total",
				Help: "Platform publish steps by outcome",
			},
			[]string{"platform", "channel", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promocast_publish_step_duration_seconds",
				Help:    "Platform publish step duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"platform", "channel"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promocast_publish_batches_total",
				Help: "Publish batches by overall result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.steps, m.duration, m.batches)
	return m
}

func (m *Metrics) step(platform string, kind string, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(platform, kind, outcome).Inc()
	m.duration.WithLabelValues(platform, kind).Observe(took.Seconds())
}

func (m *Metrics) batch(ok bool) {
	if m == nil {
		return
	}
	res := "success"
	if !ok {
		res = "partial"
	}
	m.batches.WithLabelValues(res).Inc()
}
