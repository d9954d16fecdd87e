// Package knowledge owns the in-memory corpus snapshot: chunks, the BM25 index
// built over them and the tokenizer bound to that index's vocabulary.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/lexical/bm25"
)

// Source yields the full corpus in position order with stored tokens.
type Source interface {
	Load(ctx context.Context) ([]domain.Chunk, error)
}

type ReloadObserver interface {
	ObserveReload(outcome string, chunks int, duration time.Duration)
}

type Options struct {
	Lowercase   bool
	MaxCompound int
	BM25        bm25.Params
}

// Snapshot is one immutable, mutually consistent catalog.
type Snapshot struct {
	corpus    *domain.Corpus
	index     *bm25.Index
	tokenizer *bm25.Tokenizer
	loadedAt  time.Time
}

func (s *Snapshot) Tokenize(text string) []string {
	return s.tokenizer.Tokenize(text)
}

func (s *Snapshot) Search(tokens []string, k int) []domain.RankedCandidate {
	return s.index.Search(tokens, k)
}

func (s *Snapshot) Lookup(chunkID string) (domain.Chunk, bool) {
	return s.corpus.Lookup(chunkID)
}

func (s *Snapshot) Len() int {
	return s.corpus.Len()
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// BuildSnapshot normalizes stored tokens, validates the corpus and indexes it.
func BuildSnapshot(chunks []domain.Chunk, opts Options) (*Snapshot, error) {
	normalizer := bm25.NewNormalizer(opts.Lowercase)

	prepared := make([]domain.Chunk, len(chunks))
	ids := make([]string, len(chunks))
	docs := make([][]string, len(chunks))
	for i, chunk := range chunks {
		chunk.Tokens = normalizer.NormalizeAll(chunk.Tokens)
		prepared[i] = chunk
		ids[i] = chunk.ChunkID
		docs[i] = chunk.Tokens
	}

	corpus, err := domain.NewCorpus(prepared)
	if err != nil {
		return nil, err
	}

	params := opts.BM25
	if params == (bm25.Params{}) {
		params = bm25.DefaultParams()
	}
	index, err := bm25.Build(ids, docs, params)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		corpus:    corpus,
		index:     index,
		tokenizer: bm25.NewTokenizer(bm25.TokenizerOptions{Lowercase: opts.Lowercase, MaxCompound: opts.MaxCompound}, index),
		loadedAt:  time.Now().UTC(),
	}, nil
}

// Store publishes the current snapshot. Readers never block; Reload builds a
// new snapshot off to the side and swaps it in only on success.
type Store struct {
	source   Source
	opts     Options
	observer ReloadObserver

	reloadMu sync.Mutex
	current  atomic.Pointer[Snapshot]
}

func NewStore(source Source, opts Options, observer ReloadObserver) *Store {
	return &Store{source: source, opts: opts, observer: observer}
}

func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	started := time.Now()
	snapshot, err := s.build(ctx)
	if err != nil {
		s.observe("error", 0, time.Since(started))
		if prev := s.current.Load(); prev != nil {
			slog.Error("corpus_reload_failed_keeping_previous",
				"error", err,
				"chunks", prev.Len(),
				"loaded_at", prev.LoadedAt(),
			)
		}
		return err
	}

	s.current.Store(snapshot)
	s.observe("ok", snapshot.Len(), time.Since(started))
	slog.Info("corpus_snapshot_loaded",
		"chunks", snapshot.Len(),
		"vocabulary", snapshot.index.VocabularySize(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func (s *Store) build(ctx context.Context) (*Snapshot, error) {
	chunks, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BuildSnapshot(chunks, s.opts)
}

// Current returns the latest snapshot, or nil before the first successful load.
func (s *Store) Current() ports.Catalog {
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil
	}
	return snapshot
}

func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

func (s *Store) observe(outcome string, chunks int, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveReload(outcome, chunks, d)
	}
}
