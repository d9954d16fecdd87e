// Package pinecone queries a serverless Pinecone index over its REST data plane.
package pinecone

import (
	"context"
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

const (
	DefaultControlPlaneURL = "https://api.pinecone.io"
	apiVersion             = "2024-07"
)

type Options struct {
	APIKey          string
	IndexName       string
	Host            string
	Namespace       string
	ControlPlaneURL string
	Timeout         time.Duration
}

type Client struct {
	http      *httpjson.Client
	namespace string
	dimension int
	executor  *resilience.Executor
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Host      string `json:"host"`
}

// New resolves the data-plane host when only the index name is configured and
// fails when the index cannot be described.
func New(ctx context.Context, opts Options, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "pinecone init", errors.New("api key is required"))
	}
	headers := http.Header{
		"Api-Key":                []string{opts.APIKey},
		"X-Pinecone-Api-Version": []string{apiVersion},
	}

	host := strings.TrimSpace(opts.Host)
	dimension := 0
	if host == "" || strings.TrimSpace(opts.IndexName) != "" {
		desc, err := describeIndex(ctx, opts, headers)
		if err != nil {
			if host == "" {
				return nil, err
			}
		} else {
			dimension = desc.Dimension
			if host == "" {
				host = desc.Host
			}
		}
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}

	return &Client{
		http:      httpjson.New("pinecone", host, opts.Timeout, headers),
		namespace: opts.Namespace,
		dimension: dimension,
		executor:  executor,
	}, nil
}

func describeIndex(ctx context.Context, opts Options, headers http.Header) (indexDescription, error) {
	if strings.TrimSpace(opts.IndexName) == "" {
		return indexDescription{}, domain.WrapError(domain.ErrIndexUnavailable, "pinecone describe index",
			errors.New("either host or index name is required"))
	}
	base := opts.ControlPlaneURL
	if base == "" {
		base = DefaultControlPlaneURL
	}

	var desc indexDescription
	control := httpjson.New("pinecone", base, opts.Timeout, headers)
	defer control.CloseIdleConnections()
	if err := control.GetJSON(ctx, "/indexes/"+url.PathEscape(opts.IndexName), &desc, "describe index"); err != nil {
		return indexDescription{}, domain.WrapError(domain.ErrIndexUnavailable, "pinecone describe index", err)
	}
	if strings.TrimSpace(desc.Host) == "" {
		return indexDescription{}, domain.WrapError(domain.ErrIndexUnavailable, "pinecone describe index",
			fmt.Errorf("index %s has no host", opts.IndexName))
	}
	return desc, nil
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeValues   bool      `json:"includeValues"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"matches"`
}

func (c *Client) Query(ctx context.Context, vector []float32, k int) ([]domain.RankedCandidate, error) {
	if k <= 0 {
		return []domain.RankedCandidate{}, nil
	}

	req := queryRequest{Vector: vector, TopK: k, Namespace: c.namespace}
	var resp queryResponse
	err := c.execute(ctx, "pinecone_query", func(ctx context.Context) error {
		return c.http.PostJSON(ctx, "/query", req, &resp, "query")
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "pinecone query", err)
	}

	out := make([]domain.RankedCandidate, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.ID == "" {
			continue
		}
		out = append(out, domain.RankedCandidate{ChunkID: match.ID, Rank: len(out), Score: match.Score})
	}
	return out, nil
}

// Dimension is the index dimension reported by the control plane, 0 if unknown.
func (c *Client) Dimension(context.Context) (int, error) {
	return c.dimension, nil
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
