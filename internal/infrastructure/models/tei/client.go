// Package tei talks to Hugging Face text-embeddings-inference servers, which
// serve both the bi-encoder (/embed) and the cross-encoder (/rerank).
package tei

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/httpjson"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/resilience"
)

const defaultRerankBatchSize = 32

func newTransport(baseURL, apiToken string, timeout time.Duration) *httpjson.Client {
	var headers http.Header
	if strings.TrimSpace(apiToken) != "" {
		headers = http.Header{"Authorization": []string{"Bearer " + apiToken}}
	}
	return httpjson.New("tei", baseURL, timeout, headers)
}

func execute(ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) error) error {
	if executor == nil {
		return fn(ctx)
	}
	return executor.Execute(ctx, operation, fn, httpjson.Classify)
}

type EncoderOptions struct {
	BaseURL     string
	APIToken    string
	QueryPrefix string
	Timeout     time.Duration
}

type Encoder struct {
	http        *httpjson.Client
	queryPrefix string
	executor    *resilience.Executor
}

func NewEncoder(opts EncoderOptions, executor *resilience.Executor) *Encoder {
	return &Encoder{
		http:        newTransport(opts.BaseURL, opts.APIToken, opts.Timeout),
		queryPrefix: opts.QueryPrefix,
		executor:    executor,
	}
}

func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"inputs":   []string{e.queryPrefix + text},
		"truncate": true,
	}

	var response [][]float32
	err := execute(ctx, e.executor, "tei_embed", func(ctx context.Context) error {
		return e.http.PostJSON(ctx, "/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "tei embed", err)
	}
	if len(response) != 1 || len(response[0]) == 0 {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "tei embed",
			fmt.Errorf("expected one embedding, got %d", len(response)))
	}
	return response[0], nil
}

func (e *Encoder) Close() {
	e.http.CloseIdleConnections()
}

type RerankerOptions struct {
	BaseURL   string
	APIToken  string
	BatchSize int
	RawScores bool
	Timeout   time.Duration
}

type Reranker struct {
	http      *httpjson.Client
	batchSize int
	rawScores bool
	executor  *resilience.Executor
}

func NewReranker(opts RerankerOptions, executor *resilience.Executor) *Reranker {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRerankBatchSize
	}
	return &Reranker{
		http:      newTransport(opts.BaseURL, opts.APIToken, opts.Timeout),
		batchSize: batchSize,
		rawScores: opts.RawScores,
		executor:  executor,
	}
}

type rankEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one score per passage in input order. The server answers in
// relevance order, so entries are placed back by their index.
func (r *Reranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	for i := range scores {
		scores[i] = math.NaN()
	}

	for start := 0; start < len(passages); start += r.batchSize {
		end := min(start+r.batchSize, len(passages))
		if err := r.scoreBatch(ctx, query, passages[start:end], scores[start:end]); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

func (r *Reranker) scoreBatch(ctx context.Context, query string, batch []string, dst []float64) error {
	request := map[string]any{
		"query":      query,
		"texts":      batch,
		"raw_scores": r.rawScores,
		"truncate":   true,
	}

	var response []rankEntry
	err := execute(ctx, r.executor, "tei_rerank", func(ctx context.Context) error {
		return r.http.PostJSON(ctx, "/rerank", request, &response, "rerank")
	})
	if err != nil {
		return domain.WrapError(domain.ErrModelUnavailable, "tei rerank", err)
	}
	if len(response) != len(batch) {
		return domain.WrapError(domain.ErrModelUnavailable, "tei rerank",
			fmt.Errorf("got %d scores for %d texts", len(response), len(batch)))
	}

	seen := make([]bool, len(batch))
	for _, entry := range response {
		if entry.Index < 0 || entry.Index >= len(batch) || seen[entry.Index] {
			return domain.WrapError(domain.ErrModelUnavailable, "tei rerank",
				errors.New("rerank response has invalid or repeated index"))
		}
		seen[entry.Index] = true
		dst[entry.Index] = entry.Score
	}
	return nil
}

func (r *Reranker) Close() {
	r.http.CloseIdleConnections()
}
