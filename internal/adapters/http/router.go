package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/config"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
	"github.com/jien0404/zalo-legal-chatbot/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	answerer  ports.Answerer
	reloader  ports.CatalogReloader
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator

	apiKey           string
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	requestTimeout   time.Duration
}

func NewRouter(
	cfg config.Config,
	answerer ports.Answerer,
	reloader ports.CatalogReloader,
	httpMetrics *metrics.HTTPServerMetrics,
) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		answerer:         answerer,
		reloader:         reloader,
		metrics:          httpMetrics,
		validator:        validator,
		apiKey:           cfg.APIKey,
		rateLimitRPS:     cfg.RateLimitRPS,
		rateLimitBurst:   cfg.RateLimitBurst,
		maxInFlight:      cfg.MaxInFlight,
		backpressureWait: cfg.BackpressureWait,
		requestTimeout:   cfg.RequestTimeout,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/retrieve", rt.retrieve)
	api.HandleFunc("POST /v1/admin/reload", rt.reload)

	var guarded http.Handler = authMiddleware(api, rt.apiKey)
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, rt.backpressureWait, rt.rejected)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst, rt.rejected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) rejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	if rt.reloader == nil || !rt.reloader.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "corpus not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

type retrieveRequest struct {
	Query            string   `json:"query"`
	RetrievalBreadth int      `json:"retrieval_breadth"`
	RerankBreadth    int      `json:"rerank_breadth"`
	MinScore         *float64 `json:"min_score"`
}

type gateResponse struct {
	Outcome   domain.GateOutcome   `json:"outcome"`
	Threshold float64              `json:"threshold"`
	Accepted  []domain.ScoredChunk `json:"accepted"`
}

type retrieveResponse struct {
	RequestID string               `json:"request_id,omitempty"`
	Chunks    []domain.ScoredChunk `json:"chunks"`
	Gate      gateResponse         `json:"gate"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if err := rt.validator.validate(r); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "validate request", err))
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json")))
		return
	}

	ctx := r.Context()
	if rt.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.requestTimeout)
		defer cancel()
	}

	answer, err := rt.answerer.Answer(ctx, domain.RetrieveRequest{
		Query:            req.Query,
		RetrievalBreadth: req.RetrievalBreadth,
		RerankBreadth:    req.RerankBreadth,
	}, req.MinScore)
	if err != nil {
		writeError(w, r, err)
		return
	}

	accepted := answer.Gate.Accepted
	if accepted == nil {
		accepted = []domain.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{
		RequestID: requestIDFromContext(r.Context()),
		Chunks:    answer.Chunks,
		Gate: gateResponse{
			Outcome:   answer.Gate.Outcome,
			Threshold: answer.Gate.Threshold,
			Accepted:  accepted,
		},
	})
}

func (rt *Router) reload(w http.ResponseWriter, r *http.Request) {
	if rt.reloader == nil {
		writeError(w, r, domain.WrapError(domain.ErrTemporary, "reload", errors.New("reload is not configured")))
		return
	}
	if err := rt.reloader.Reload(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	kind := domain.KindOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{
		"error": errorMessage(err, status),
		"kind":  kind,
	})
}
