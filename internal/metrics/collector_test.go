package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("lexflow", reg)

	c.RecordRun("intake", "completed", 3*time.Second)
	c.RecordRun("intake", "completed", time.Second)
	c.RecordRun("intake", "failed", time.Second)

	c.RecordNode("step", "succeeded")
	c.RecordNode("step", "failed")
	c.RecordNode("parallel_group", "succeeded")

	c.RecordStep("research", 250*time.Millisecond)
	c.RecordRetry()
	c.RecordRetry()

	c.RecordCheckpointRaised()
	c.RecordCheckpointResolved("approve")
	c.RecordCheckpointResolved("reject")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsTotal.WithLabelValues("intake", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("intake", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.nodesTotal.WithLabelValues("step", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.nodesTotal.WithLabelValues("parallel_group", "succeeded")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.stepRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.checkpointsRaised))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.checkpointsResolved.WithLabelValues("approve")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.checkpointsResolved.WithLabelValues("reject")))
}

func TestCollector_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("lexflow", reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	// Histograms and unlabeled counters appear even before observations.
	assert.True(t, names["lexflow_pipeline_run_duration_seconds"])
	assert.True(t, names["lexflow_pipeline_step_retries_total"])
	assert.True(t, names["lexflow_pipeline_checkpoints_raised_total"])
}
