package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jien0404/zalo-legal-chatbot/internal/config"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/observability/metrics"
)

type answererFake struct {
	answer   domain.Answer
	err      error
	got      domain.RetrieveRequest
	minScore *float64
	calls    int
}

func (f *answererFake) Answer(_ context.Context, req domain.RetrieveRequest, minScore *float64) (domain.Answer, error) {
	f.calls++
	f.got = req
	f.minScore = minScore
	return f.answer, f.err
}

type reloaderFake struct {
	ready   bool
	err     error
	reloads int
}

func (f *reloaderFake) Reload(context.Context) error {
	f.reloads++
	return f.err
}

func (f *reloaderFake) Ready() bool { return f.ready }

func newTestHandler(t *testing.T, cfg config.Config, answerer *answererFake, reloader *reloaderFake) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, answerer, reloader, metrics.NewHTTPServerMetrics("test"))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}
