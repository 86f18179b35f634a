package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorIndependentRegistries(t *testing.T) {
	// Unlike a global-registry design, constructing a second Collector must
	// not panic: each owns its own registry.
	a := NewCollector()
	b := NewCollector()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotSame(t, a.registry, b.registry)
}

func TestRecordCompletionSplitsSuccessAndFailure(t *testing.T) {
	c := NewCollector()
	c.RecordSubmit()
	c.RecordSubmit()
	c.RecordCompletion(nil, 0.01)
	c.RecordCompletion(errors.New("boom"), 0.02)

	body := scrape(t, c)
	assert.Contains(t, body, "taskengine_tasks_submitted_total 2")
	assert.Contains(t, body, "taskengine_tasks_completed_total 1")
	assert.Contains(t, body, "taskengine_tasks_failed_total 1")
}

func TestRecordWorkUnitIncrements(t *testing.T) {
	c := NewCollector()
	c.RecordWorkUnit()
	c.RecordWorkUnit()
	c.RecordWorkUnit()

	body := scrape(t, c)
	assert.Contains(t, body, "taskengine_work_units_executed_total 3")
}

func TestGaugesReflectLastSetValue(t *testing.T) {
	c := NewCollector()
	c.SetPoolSize(8)
	c.SetIdleWorkers(3)
	c.SetQueueDepth(42)

	body := scrape(t, c)
	assert.Contains(t, body, "taskengine_pool_size 8")
	assert.Contains(t, body, "taskengine_pool_idle_workers 3")
	assert.Contains(t, body, "taskengine_queue_depth 42")
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	c := NewCollector()
	c.RecordSubmit()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "taskengine_tasks_submitted_total"))
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
