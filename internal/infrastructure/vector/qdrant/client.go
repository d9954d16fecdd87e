package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/httpjson"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/resilience"
)

const chunkIDPayloadKey = "chunk_id"

type Options struct {
	BaseURL    string
	Collection string
	VectorName string
	APIKey     string
	Timeout    time.Duration
}

// Client queries a Qdrant collection whose points carry the corpus chunk id in
// their payload.
type Client struct {
	http       *httpjson.Client
	collection string
	vectorName string
	executor   *resilience.Executor
}

func New(opts Options, executor *resilience.Executor) *Client {
	var headers http.Header
	if strings.TrimSpace(opts.APIKey) != "" {
		headers = http.Header{"Api-Key": []string{opts.APIKey}}
	}
	return &Client{
		http:       httpjson.New("qdrant", opts.BaseURL, opts.Timeout, headers),
		collection: opts.Collection,
		vectorName: opts.VectorName,
		executor:   executor,
	}
}

type searchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	} `json:"result"`
}

func (c *Client) Query(ctx context.Context, vector []float32, k int) ([]domain.RankedCandidate, error) {
	if k <= 0 {
		return []domain.RankedCandidate{}, nil
	}

	reqBody := map[string]any{
		"limit":        k,
		"with_payload": []string{chunkIDPayloadKey},
		"with_vector":  false,
	}
	if c.vectorName != "" {
		reqBody["vector"] = map[string]any{"name": c.vectorName, "vector": vector}
	} else {
		reqBody["vector"] = vector
	}

	var resp searchResponse
	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(c.collection))
	err := c.execute(ctx, "qdrant_search", func(ctx context.Context) error {
		return c.http.PostJSON(ctx, path, reqBody, &resp, "search")
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "qdrant search", err)
	}

	out := make([]domain.RankedCandidate, 0, len(resp.Result))
	for _, point := range resp.Result {
		id := getStringPayload(point.Payload, chunkIDPayloadKey)
		if id == "" {
			id = pointID(point.ID)
		}
		if id == "" {
			continue
		}
		out = append(out, domain.RankedCandidate{ChunkID: id, Rank: len(out), Score: point.Score})
	}
	return out, nil
}

// Dimension reads the configured vector size of the collection.
func (c *Client) Dimension(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s", url.PathEscape(c.collection))
	err := c.execute(ctx, "qdrant_describe", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, path, &resp, "describe collection")
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrIndexUnavailable, "qdrant describe collection", err)
	}

	raw := resp.Result.Config.Params.Vectors
	var single struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Size > 0 {
		return single.Size, nil
	}
	var named map[string]struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &named); err == nil {
		if params, ok := named[c.vectorName]; ok && params.Size > 0 {
			return params.Size, nil
		}
	}
	return 0, domain.WrapError(domain.ErrIndexUnavailable, "qdrant describe collection",
		errors.New("vector size not found in collection config"))
}

func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, httpjson.Classify)
}

func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
