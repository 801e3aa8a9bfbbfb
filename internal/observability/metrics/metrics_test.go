package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"AgentDesk/internal/tool"
)

func TestInstrumentRecordsStatus(t *testing.T) {
	h := Instrument("teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("teapot", http.MethodGet, "418")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestEngineObserver(t *testing.T) {
	var obs EngineObserver
	obs.ToolDispatched(tool.NameCRM, "NOT_FOUND", 10*time.Millisecond)
	obs.ToolDispatched("", "UNKNOWN_TOOL", time.Millisecond)
	obs.CompletionFinished("decision", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(toolDispatchTotal.WithLabelValues("manage_crm", "NOT_FOUND")); got != 1 {
		t.Fatalf("unexpected dispatch count: %v", got)
	}
	if got := testutil.ToFloat64(toolDispatchTotal.WithLabelValues("unknown", "UNKNOWN_TOOL")); got != 1 {
		t.Fatalf("unexpected unknown tool count: %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	ObserveWorkflowRun("succeeded")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "agentdesk_workflow_runs_total") {
		t.Fatalf("workflow metric missing from exposition")
	}
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(7)
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Fatalf("unexpected queue depth: %v", got)
	}
}
