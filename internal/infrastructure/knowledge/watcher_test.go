package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherReloadsOnceForBurst(t *testing.T) {
	dir := t.TempDir()
	chunks := filepath.Join(dir, "legal_corpus_chunks.jsonl")
	tokens := filepath.Join(dir, "legal_corpus_chunks_tokenized.json")
	for _, path := range []string{chunks, tokens} {
		if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	var reloads atomic.Int32
	w, err := NewWatcher([]string{chunks, tokens}, 100*time.Millisecond, func(context.Context) error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(chunks, []byte("v2"), 0o644); err != nil {
			t.Fatalf("rewrite chunks: %v", err)
		}
		if err := os.WriteFile(tokens, []byte("v2"), 0o644); err != nil {
			t.Fatalf("rewrite tokens: %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("expected exactly one reload, got %d", got)
	}

	cancel()
	<-done
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	chunks := filepath.Join(dir, "legal_corpus_chunks.jsonl")
	if err := os.WriteFile(chunks, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var reloads atomic.Int32
	w, err := NewWatcher([]string{chunks}, 50*time.Millisecond, func(context.Context) error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Fatalf("expected no reload, got %d", got)
	}
}

func TestNewWatcherRequiresPaths(t *testing.T) {
	if _, err := NewWatcher(nil, time.Second, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error without paths")
	}
}
