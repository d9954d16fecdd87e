package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

func TestNewResolvesHostFromControlPlane(t *testing.T) {
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			http.NotFound(w, r)
			return
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode query: %v", err)
		}
		if req.TopK != 2 || req.IncludeValues || req.IncludeMetadata || req.Namespace != "vn" {
			t.Fatalf("unexpected query request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"matches":[{"id":"c5","score":0.88},{"id":"c1","score":0.71}],"namespace":"vn"}`))
	}))
	defer data.Close()

	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/zalo-legal" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Api-Key") != "pk" {
			t.Fatalf("expected api key on control plane")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "zalo-legal", "dimension": 768, "host": data.URL})
	}))
	defer control.Close()

	client, err := New(context.Background(), Options{
		APIKey:          "pk",
		IndexName:       "zalo-legal",
		Namespace:       "vn",
		ControlPlaneURL: control.URL,
		Timeout:         time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	if dim, _ := client.Dimension(context.Background()); dim != 768 {
		t.Fatalf("expected dimension 768, got %d", dim)
	}

	got, err := client.Query(context.Background(), []float32{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ChunkID != "c5" || got[1].ChunkID != "c1" || got[1].Rank != 1 {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestNewFailsWhenIndexCannotBeDescribed(t *testing.T) {
	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer control.Close()

	_, err := New(context.Background(), Options{APIKey: "pk", IndexName: "missing", ControlPlaneURL: control.URL}, nil)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Options{Host: "https://example.invalid"}, nil)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestQueryNon2xxIsIndexUnavailable(t *testing.T) {
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer data.Close()

	client, err := New(context.Background(), Options{APIKey: "pk", Host: data.URL}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.Query(context.Background(), []float32{0.1}, 5)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}
