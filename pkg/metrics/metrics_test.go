package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IngestItem("accepted")
	m.IngestItem("accepted")
	m.IngestItem("publish_failed")
	m.Compensation("failed")
	m.Replay("skipped")
	m.QueueMessage("dead_lettered")
	m.CacheHit()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestItemsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestItemsTotal.WithLabelValues("publish_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompensationsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplayTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueMessagesTotal.WithLabelValues("dead_lettered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IngestItem("accepted")
		m.Compensation("deleted")
		m.EventPublished("ok")
		m.Replay("inserted")
		m.QueueMessage("completed")
		m.CacheHit()
		m.CacheMiss()
	})
}
