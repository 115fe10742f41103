package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/health/live", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/health/live", "GET", 200, 30*time.Millisecond)
	m.RecordError("/api/tenants/:tenantId", "GET", "NOT_FOUND")
	m.RecordSync("thread_created", "T1")
	m.RecordSync("thread_created", "T2")
	m.RecordSync("thread_skipped", "T1")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/health/live|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/api/tenants/:tenantId|GET|NOT_FOUND"])
	assert.Equal(t, 20.0, snap.AvgLatencyMillis)
	assert.Equal(t, int64(2), m.SyncCount("thread_created"))
	assert.Equal(t, int64(1), m.SyncCount("thread_skipped"))
	assert.Equal(t, map[string]int64{"thread_created|T1": 1, "thread_created|T2": 1, "thread_skipped|T1": 1}, snap.Sync)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordSync("thread_created", "T1")
	assert.Empty(t, m.Snapshot().Sync)
	assert.Zero(t, m.SyncCount("thread_created"))
}
