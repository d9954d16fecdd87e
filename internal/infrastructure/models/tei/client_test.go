package tei

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

func TestEncoderReturnsSingleVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("expected bearer token")
		}
		var body struct {
			Inputs   []string `json:"inputs"`
			Truncate bool     `json:"truncate"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Inputs) != 1 || body.Inputs[0] != "query: lương tối thiểu" || !body.Truncate {
			t.Fatalf("unexpected request: %+v", body)
		}
		_, _ = w.Write([]byte(`[[0.5,0.25]]`))
	}))
	defer server.Close()

	enc := NewEncoder(EncoderOptions{BaseURL: server.URL, APIToken: "tok", QueryPrefix: "query: ", Timeout: time.Second}, nil)
	vec, err := enc.Encode(context.Background(), "lương tối thiểu")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEncoderFailureIsModelUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewEncoder(EncoderOptions{BaseURL: server.URL}, nil).Encode(context.Background(), "x")
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRerankerRestoresInputOrderAcrossBatches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var body struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		// Answer in reverse index order with score = len(text).
		out := make([]rankEntry, 0, len(body.Texts))
		for i := len(body.Texts) - 1; i >= 0; i-- {
			out = append(out, rankEntry{Index: i, Score: float64(len(body.Texts[i]))})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	rr := NewReranker(RerankerOptions{BaseURL: server.URL, BatchSize: 2}, nil)
	scores, err := rr.Score(context.Background(), "q", []string{"a", "bbb", "cc", "dddd", "e"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	want := []float64{1, 3, 2, 4, 1}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, scores)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 batches, got %d", got)
	}
}

func TestRerankerRejectsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"index":0,"score":0.9},{"index":0,"score":0.1}]`))
	}))
	defer server.Close()

	_, err := NewReranker(RerankerOptions{BaseURL: server.URL}, nil).Score(context.Background(), "q", []string{"a", "b"})
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRerankerEmptyPassagesMakesNoCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatalf("no request expected")
	}))
	defer server.Close()

	scores, err := NewReranker(RerankerOptions{BaseURL: server.URL}, nil).Score(context.Background(), "q", nil)
	if err != nil || len(scores) != 0 {
		t.Fatalf("expected empty scores, got %v %v", scores, err)
	}
}
