package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates execution telemetry. All updates go through
// prometheus primitives, which are safe for concurrent use; no execution
// state is ever shared between requests.
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	artifactsCaptured prometheus.Counter
}

// NewCollector creates a Collector registered against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pycell",
				Name:      "executions_total",
				Help:      "Total number of governed executions by terminal state",
			},
			[]string{"state"},
		),
		rejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pycell",
				Name:      "rejections_total",
				Help:      "Total number of requests rejected before sandbox allocation",
			},
			[]string{"class"},
		),
		executionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pycell",
				Name:      "execution_duration_seconds",
				Help:      "Governed execution duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		artifactsCaptured: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pycell",
				Name:      "artifacts_captured_total",
				Help:      "Total number of rendered figures captured",
			},
		),
	}
}

// NewDefault creates a Collector registered against the default prometheus
// registry.
func NewDefault() *Collector {
	return NewCollector(prometheus.DefaultRegisterer)
}

// Execution records one finished governed run.
func (c *Collector) Execution(state string, elapsed time.Duration, artifacts int) {
	c.executionsTotal.WithLabelValues(state).Inc()
	c.executionDuration.Observe(elapsed.Seconds())
	if artifacts > 0 {
		c.artifactsCaptured.Add(float64(artifacts))
	}
}

// Rejection records one request refused before sandbox allocation.
func (c *Collector) Rejection(class string) {
	c.rejectionsTotal.WithLabelValues(class).Inc()
}
