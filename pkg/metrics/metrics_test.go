package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncToolCall("run_database_query", OutcomeSuccess)
	m.IncToolCall("run_database_query", OutcomeSuccess)
	m.IncToolCall("web_search", OutcomeError)
	m.IncLLMCall(OutcomeSuccess)
	m.ObserveAgentRequest(OutcomeSuccess, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("run_database_query", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("web_search", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentRequests.WithLabelValues(OutcomeSuccess)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncToolCall("x", OutcomeSuccess)
		m.IncLLMCall(OutcomeError)
		m.ObserveAgentRequest(OutcomeError, time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.IncLLMCall(OutcomeSuccess)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `opsagent_llm_calls_total{outcome="success"} 1`)
}
