// Package ollama embeds queries through a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/httpjson"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/resilience"
)

type Encoder struct {
	http        *httpjson.Client
	model       string
	queryPrefix string
	executor    *resilience.Executor
}

func NewEncoder(baseURL, model, queryPrefix string, timeout time.Duration, executor *resilience.Executor) *Encoder {
	return &Encoder{
		http:        httpjson.New("ollama", baseURL, timeout, nil),
		model:       model,
		queryPrefix: queryPrefix,
		executor:    executor,
	}
}

func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.model,
		"input": []string{e.queryPrefix + text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	call := func(ctx context.Context) error {
		return e.http.PostJSON(ctx, "/api/embed", request, &response, "embed")
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "ollama_embed", call, httpjson.Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "ollama embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "ollama embed", errors.New("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

func (e *Encoder) Name() string {
	return fmt.Sprintf("ollama/%s", e.model)
}

func (e *Encoder) Close() {
	e.http.CloseIdleConnections()
}
