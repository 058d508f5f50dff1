package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveGeneration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGeneration(OutcomeSuccess, 4)
	m.ObserveGeneration(OutcomeSuccess, 2)
	m.ObserveGeneration(OutcomeEmpty, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues(OutcomeEmpty)))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.TestCasesTotal))
}

func TestObserveLLM(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLLM("gemini", 2*time.Second, 100, 50, nil)
	m.ObserveLLM("", time.Second, 0, 0, errors.New("boom"))

	assert.Equal(t, 100.0, testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("gemini", "input")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("gemini", "output")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.LLMRequestDuration))
}

func TestObserveExtractionAndRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveExtraction("json")
	m.ObserveExtraction("json")
	m.ObserveExtraction("markdown")
	m.ObserveRun(RunTimeout, 300*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("markdown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(RunTimeout)))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveHTTP(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `unitforge_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, `route="unmatched",status="404"`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGeneration(OutcomeError, 0)
		m.ObserveLLM("vertex", time.Second, 1, 1, nil)
		m.ObserveExtraction("none")
		m.ObserveRun(RunPassed, time.Second)
		m.ObserveHTTP(http.MethodPost, "/x", 500, time.Second)
	})
	assert.NotNil(t, m.Handler())
}
