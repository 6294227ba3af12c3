package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Classified("new")
	m.Classified("new")
	m.Classified("known")
	m.Moved("base", 3)
	m.Moved("delta", 0)
	m.Chunk(true)
	m.Chunk(false)
	m.LiveCheckpoints(2)
	m.Swept(1)
	m.Run("completed")
	m.Degraded()
	m.OwnerFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsClassified.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsClassified.WithLabelValues("known")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PartitionMoves.WithLabelValues("base")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadChunks.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckpointsLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckpointsSwept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerDegraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OwnerFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Classified("new")
		m.Degraded()
		m.Moved("base", 1)
		m.Chunk(true)
		m.UploadSeconds(1)
		m.LiveCheckpoints(1)
		m.Swept(1)
		m.Run("failed")
		m.OwnerFailed()
	})
}
