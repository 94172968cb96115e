package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Execution("completed", 150*time.Millisecond, 2)
	c.Execution("completed", 80*time.Millisecond, 0)
	c.Execution("faulted", 10*time.Millisecond, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.executionsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.executionsTotal.WithLabelValues("faulted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.artifactsCaptured))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "pycell_execution_duration_seconds"))
}

func TestCollectorRejection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Rejection("security_violation")
	c.Rejection("security_violation")
	c.Rejection("rejected_request")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.rejectionsTotal.WithLabelValues("security_violation")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rejectionsTotal.WithLabelValues("rejected_request")))
}
