package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
)

const (
	StageLexical  = "lexical"
	StageEncode   = "encode"
	StageSemantic = "semantic"
	StageFusion   = "fusion"
	StageRerank   = "rerank"
	StageTotal    = "total"
)

type RetrieveOptions struct {
	LexicalBreadth          int
	SemanticBreadth         int
	RRFK                    int
	DefaultRetrievalBreadth int
	DefaultRerankBreadth    int
	MaxBreadth              int
	SemanticTimeout         time.Duration
	Parallel                bool
}

func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{
		LexicalBreadth:          100,
		SemanticBreadth:         100,
		RRFK:                    defaultRRFK,
		DefaultRetrievalBreadth: 20,
		DefaultRerankBreadth:    5,
		MaxBreadth:              200,
		SemanticTimeout:         5 * time.Second,
		Parallel:                true,
	}
}

func (o RetrieveOptions) normalize() RetrieveOptions {
	out := o
	def := DefaultRetrieveOptions()

	if out.LexicalBreadth <= 0 {
		out.LexicalBreadth = def.LexicalBreadth
	}
	if out.SemanticBreadth <= 0 {
		out.SemanticBreadth = def.SemanticBreadth
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	if out.DefaultRetrievalBreadth <= 0 {
		out.DefaultRetrievalBreadth = def.DefaultRetrievalBreadth
	}
	if out.DefaultRerankBreadth <= 0 {
		out.DefaultRerankBreadth = def.DefaultRerankBreadth
	}
	if out.MaxBreadth <= 0 {
		out.MaxBreadth = def.MaxBreadth
	}
	if out.SemanticTimeout < 0 {
		out.SemanticTimeout = 0
	}
	return out
}

// RetrieveUseCase runs lexical and semantic search, fuses both rankings with
// RRF and reranks the fused head. It holds no per-request state.
type RetrieveUseCase struct {
	catalogs ports.CatalogProvider
	encoder  ports.Encoder
	semantic ports.SemanticIndex
	reranker ports.Reranker
	observer ports.RetrievalObserver
	opts     RetrieveOptions
}

func NewRetrieveUseCase(
	catalogs ports.CatalogProvider,
	encoder ports.Encoder,
	semantic ports.SemanticIndex,
	reranker ports.Reranker,
	observer ports.RetrievalObserver,
	opts RetrieveOptions,
) *RetrieveUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &RetrieveUseCase{
		catalogs: catalogs,
		encoder:  encoder,
		semantic: semantic,
		reranker: reranker,
		observer: observer,
		opts:     opts.normalize(),
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req domain.RetrieveRequest) ([]domain.ScoredChunk, error) {
	started := time.Now()
	chunks, err := uc.retrieve(ctx, req)

	outcome := "results"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = domain.KindOf(err)
	case len(chunks) == 0:
		outcome = "empty"
	}
	uc.observer.ObserveStage(StageTotal, time.Since(started))
	uc.observer.ObserveResult(outcome, len(chunks))

	return chunks, err
}

func (uc *RetrieveUseCase) retrieve(ctx context.Context, req domain.RetrieveRequest) ([]domain.ScoredChunk, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	retrievalBreadth, err := uc.breadth("retrieval_breadth", req.RetrievalBreadth, uc.opts.DefaultRetrievalBreadth)
	if err != nil {
		return nil, err
	}
	rerankBreadth, err := uc.breadth("rerank_breadth", req.RerankBreadth, uc.opts.DefaultRerankBreadth)
	if err != nil {
		return nil, err
	}

	catalog := uc.catalogs.Current()
	if catalog == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "retrieve", errors.New("corpus snapshot is not loaded"))
	}

	lexical, semantic, err := uc.search(ctx, catalog, query)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	fusionStarted := time.Now()
	fused := FuseRRF(uc.opts.RRFK, lexical, semantic)
	candidates := uc.resolve(catalog, fused, retrievalBreadth)
	uc.observer.ObserveStage(StageFusion, time.Since(fusionStarted))

	if len(candidates) == 0 {
		return []domain.ScoredChunk{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rerankStarted := time.Now()
	out, err := rerankChunks(ctx, uc.reranker, query, candidates, rerankBreadth)
	uc.observer.ObserveStage(StageRerank, time.Since(rerankStarted))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return out, nil
}

func (uc *RetrieveUseCase) breadth(name string, requested, fallback int) (int, error) {
	switch {
	case requested < 0:
		return 0, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("%s must not be negative", name))
	case requested == 0:
		return fallback, nil
	case requested > uc.opts.MaxBreadth:
		return uc.opts.MaxBreadth, nil
	default:
		return requested, nil
	}
}

// search runs both indexes. Neither reads the other's output, so with Parallel
// the semantic round trip overlaps the in-memory lexical scan.
func (uc *RetrieveUseCase) search(
	ctx context.Context,
	catalog ports.Catalog,
	query string,
) ([]domain.RankedCandidate, []domain.RankedCandidate, error) {
	var lexical, semantic []domain.RankedCandidate

	lexicalSearch := func() {
		started := time.Now()
		lexical = catalog.Search(catalog.Tokenize(query), uc.opts.LexicalBreadth)
		uc.observer.ObserveStage(StageLexical, time.Since(started))
	}

	if !uc.opts.Parallel {
		lexicalSearch()
		var err error
		semantic, err = uc.semanticSearch(ctx, query)
		return lexical, semantic, err
	}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		semantic, err = uc.semanticSearch(ctx, query)
		return err
	})
	lexicalSearch()
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lexical, semantic, nil
}

func (uc *RetrieveUseCase) semanticSearch(ctx context.Context, query string) ([]domain.RankedCandidate, error) {
	started := time.Now()
	vector, err := uc.encoder.Encode(ctx, query)
	uc.observer.ObserveStage(StageEncode, time.Since(started))
	if err != nil {
		return nil, ensureKind(domain.ErrModelUnavailable, "encode query", err)
	}

	queryCtx := ctx
	if uc.opts.SemanticTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, uc.opts.SemanticTimeout)
		defer cancel()
	}

	started = time.Now()
	candidates, err := uc.semantic.Query(queryCtx, vector, uc.opts.SemanticBreadth)
	uc.observer.ObserveStage(StageSemantic, time.Since(started))
	if err != nil {
		return nil, ensureKind(domain.ErrIndexUnavailable, "query semantic index", err)
	}
	return candidates, nil
}

// resolve maps fused ids to corpus chunks, keeping at most limit. Ids the
// corpus does not know are dropped: one bad id must not fail the query.
func (uc *RetrieveUseCase) resolve(corpus ports.CorpusReader, fused []domain.FusedCandidate, limit int) []domain.Chunk {
	size := len(fused)
	if limit < size {
		size = limit
	}

	out := make([]domain.Chunk, 0, size)
	for _, candidate := range fused {
		if len(out) >= limit {
			break
		}
		chunk, ok := corpus.Lookup(candidate.ChunkID)
		if !ok {
			uc.observer.ObserveDangling()
			slog.Warn("retrieve_dangling_candidate",
				"chunk_id", candidate.ChunkID,
				"fused_score", candidate.Score,
			)
			continue
		}
		out = append(out, chunk)
	}
	return out
}

func ensureKind(kind error, operation string, err error) error {
	if domain.IsKind(err, kind) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(kind, operation, err)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration) {}
func (noopObserver) ObserveResult(string, int)          {}
func (noopObserver) ObserveDangling()                   {}
