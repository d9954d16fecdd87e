package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMiddlewareRecordsStatusAndNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("legal-api")
	handler := m.Middleware("legal-api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for _, path := range []string{"/v1/retrieve", "/random/123"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	body := scrape(t, m.Handler())
	for _, line := range []string{
		`legal_http_requests_total{method="POST",path="/v1/retrieve",service="legal-api",status="503"} 1`,
		`legal_http_requests_total{method="POST",path="other",service="legal-api",status="503"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in exposition:\n%s", line, body)
		}
	}
}

func TestRetrievalMetricsShareRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("legal-api")
	m := NewRetrievalMetrics("legal-api", httpMetrics.Registerer())

	m.ObserveStage("rerank", 20*time.Millisecond)
	m.ObserveResult("results", 5)
	m.ObserveDangling()
	m.ObserveGate("low_confidence")
	m.ObserveReload("ok", 1234, time.Second)
	m.ObserveBreakerTransition("pinecone_query", "closed", "open")

	body := scrape(t, httpMetrics.Handler())
	for _, line := range []string{
		`legal_corpus_chunks{service="legal-api"} 1234`,
		`legal_retrieval_dangling_candidates_total{service="legal-api"} 1`,
		`legal_retrieval_gate_total{outcome="low_confidence",service="legal-api"} 1`,
		`legal_resilience_breaker_transitions_total{operation="pinecone_query",service="legal-api",to="open"} 1`,
		`legal_retrieval_stage_duration_seconds_count{service="legal-api",stage="rerank"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in exposition:\n%s", line, body)
		}
	}
}

func TestWorkerMetricsTracksInFlight(t *testing.T) {
	m := NewWorkerMetrics("legal-worker")
	m.StartRequest()
	if body := scrape(t, m.Handler()); !strings.Contains(body, `legal_worker_retrieve_in_flight{service="legal-worker"} 1`) {
		t.Fatalf("expected one in flight:\n%s", body)
	}
	m.FinishRequest("legal-worker", 10*time.Millisecond, "ok")

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `legal_worker_retrieve_in_flight{service="legal-worker"} 0`) {
		t.Fatalf("expected zero in flight:\n%s", body)
	}
	if !strings.Contains(body, `legal_worker_retrieve_requests_total{service="legal-worker",status="ok"} 1`) {
		t.Fatalf("expected one ok request:\n%s", body)
	}
}
