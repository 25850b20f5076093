package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")

	a.RecordAPIRequest("/api/regions", "GET", "200")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.APIRequestsTotal.WithLabelValues("/api/regions", "GET", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.APIRequestsTotal.WithLabelValues("/api/regions", "GET", "200")))
}

func TestPipelineCountersIgnoreNonPositive(t *testing.T) {
	c := NewCollector("test")

	c.RecordPipelineRows("crop", "written", 0)
	c.RecordPipelineRows("crop", "written", 5)
	c.RecordCoercionFailures("Rainfall_mm", -1)
	c.RecordCoercionFailures("Rainfall_mm", 2)
	c.RecordJoin(7, 3)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.PipelineRowsTotal.WithLabelValues("crop", "written")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CoercionFailuresTotal.WithLabelValues("Rainfall_mm")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.JoinResultsTotal.WithLabelValues("matched")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.JoinResultsTotal.WithLabelValues("unmatched")))
}

func TestSetDataset(t *testing.T) {
	c := NewCollector("test")

	c.SetDataset(true, 120)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DatasetLoaded))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.DatasetRecords))

	c.SetDataset(false, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.DatasetLoaded))
}

func TestTimerObservesDuration(t *testing.T) {
	c := NewCollector("test")
	timer := c.NewTimer(c.PipelineDuration.WithLabelValues("merge"))
	time.Sleep(time.Millisecond)

	d := timer.ObserveDuration()
	assert.Greater(t, d, time.Duration(0))
	assert.Equal(t, 1, testutil.CollectAndCount(c.PipelineDuration))
}

func TestHandlerExposesNamespace(t *testing.T) {
	c := NewCollector("agri_platform")
	c.RecordQuestion("region_and_crop")
	c.RecordLLMRequest("success", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agri_platform_questions_total{detection="region_and_crop"} 1`)
	assert.Contains(t, string(body), "agri_platform_llm_request_duration_seconds_count 1")
}
