package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jien0404/zalo-legal-chatbot/internal/config"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/usecase"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/corpus/jsonl"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/knowledge"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/lexical/bm25"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/models/heuristic"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/models/ollama"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/models/tei"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/repository/sqlstore"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/resilience"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/storage/localfs"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/vector/pinecone"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/vector/qdrant"
	"github.com/jien0404/zalo-legal-chatbot/internal/observability/metrics"
)

const warmupText = "Điều 1. Phạm vi điều chỉnh"

type Options struct {
	// Service labels every retrieval metric.
	Service string
	// Registerer receives retrieval metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// SkipWarmup skips the model and index round trips at startup.
	SkipWarmup bool
}

// App owns every long-lived dependency of the retrieval pipeline.
type App struct {
	Config config.Config

	Metrics   *metrics.RetrievalMetrics
	Knowledge *knowledge.Store
	Retriever ports.Retriever
	Answerer  *usecase.AnswerUseCase

	encoder  ports.Encoder
	semantic semanticIndex
	reranker ports.Reranker

	closers     []func()
	stopWatcher context.CancelFunc
}

type semanticIndex interface {
	ports.SemanticIndex
	Dimension(ctx context.Context) (int, error)
	Close()
}

// New builds the pipeline and fails closed: any dependency that cannot be
// initialized, including a model that fails warm-up, aborts startup.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	service := opts.Service
	if service == "" {
		service = "legal-retrieval"
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	app := &App{
		Config:  cfg,
		Metrics: metrics.NewRetrievalMetrics(service, registerer),
	}
	if err := app.init(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	source, watchPaths, err := a.corpusSource(ctx)
	if err != nil {
		return err
	}
	a.Knowledge = knowledge.NewStore(source, knowledge.Options{
		Lowercase:   cfg.LexicalLowercase,
		MaxCompound: cfg.LexicalMaxCompound,
		BM25: bm25.Params{
			K1:      cfg.BM25K1,
			B:       cfg.BM25B,
			Epsilon: cfg.BM25Epsilon,
		},
	}, a.Metrics)
	if err := a.Knowledge.Reload(ctx); err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	a.encoder, err = a.newEncoder()
	if err != nil {
		return err
	}
	a.semantic, err = a.newSemanticIndex(ctx)
	if err != nil {
		return err
	}
	a.reranker = a.newReranker()

	if !opts.SkipWarmup && cfg.WarmupEnabled {
		if err := a.warmup(ctx); err != nil {
			return err
		}
	}

	a.Retriever = usecase.NewRetrieveUseCase(a.Knowledge, a.encoder, a.semantic, a.reranker, a.Metrics, usecase.RetrieveOptions{
		LexicalBreadth:          cfg.LexicalBreadth,
		SemanticBreadth:         cfg.SemanticBreadth,
		RRFK:                    cfg.RRFK,
		DefaultRetrievalBreadth: cfg.RetrievalBreadth,
		DefaultRerankBreadth:    cfg.RerankBreadth,
		MaxBreadth:              cfg.MaxBreadth,
		SemanticTimeout:         cfg.SemanticTimeout,
		Parallel:                cfg.RetrievalParallel,
	})
	a.Answerer = usecase.NewAnswerUseCase(a.Retriever, cfg.RelevanceThreshold, a.Metrics)

	if cfg.CorpusWatch && len(watchPaths) > 0 {
		if err := a.startWatcher(watchPaths); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) corpusSource(ctx context.Context) (knowledge.Source, []string, error) {
	cfg := a.Config
	switch cfg.CorpusSource {
	case "postgres", "sqlite":
		repo, db, err := openChunkRepository(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		return repo, nil, nil
	default:
		storage, err := localfs.New(cfg.CorpusDir)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrCorpusIntegrity, "open corpus dir", err)
		}
		var paths []string
		for _, name := range []string{cfg.CorpusChunksFile, cfg.CorpusTokensFile} {
			path, err := storage.Path(name)
			if err != nil {
				return nil, nil, domain.WrapError(domain.ErrCorpusIntegrity, "resolve corpus file", err)
			}
			paths = append(paths, path)
		}
		return jsonl.NewLoader(storage, cfg.CorpusChunksFile, cfg.CorpusTokensFile), paths, nil
	}
}

func openChunkRepository(ctx context.Context, cfg config.Config) (*sqlstore.ChunkRepository, *sql.DB, error) {
	dialect, dsn := sqlstore.DialectPostgres, cfg.PostgresDSN
	if cfg.CorpusSource == "sqlite" {
		dialect, dsn = sqlstore.DialectSQLite, cfg.SQLitePath
	}
	db, err := sqlstore.OpenDB(dialect, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s corpus store: %w", dialect, err)
	}
	repo := sqlstore.NewChunkRepository(db, dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure corpus schema: %w", err)
	}
	return repo, db, nil
}

func (a *App) executor() *resilience.Executor {
	cfg := a.Config
	return resilience.NewExecutor(resilience.Config{
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerOpenTimeout:  cfg.BreakerOpenTimeout,
		OnStateChange:       a.Metrics.ObserveBreakerTransition,
	})
}

func (a *App) newEncoder() (ports.Encoder, error) {
	cfg := a.Config
	switch cfg.EncoderBackend {
	case "ollama":
		encoder := ollama.NewEncoder(cfg.EncoderURL, cfg.EncoderModel, cfg.EmbedQueryPrefix, cfg.EncoderTimeout, a.executor())
		a.closers = append(a.closers, encoder.Close)
		return encoder, nil
	case "tei":
		encoder := tei.NewEncoder(tei.EncoderOptions{
			BaseURL:     cfg.EncoderURL,
			APIToken:    cfg.EncoderToken,
			QueryPrefix: cfg.EmbedQueryPrefix,
			Timeout:     cfg.EncoderTimeout,
		}, a.executor())
		a.closers = append(a.closers, encoder.Close)
		return encoder, nil
	default:
		return nil, fmt.Errorf("unknown encoder backend %q", cfg.EncoderBackend)
	}
}

func (a *App) newSemanticIndex(ctx context.Context) (semanticIndex, error) {
	cfg := a.Config
	switch cfg.SemanticBackend {
	case "qdrant":
		client := qdrant.New(qdrant.Options{
			BaseURL:    cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			VectorName: cfg.QdrantVectorName,
			APIKey:     cfg.QdrantAPIKey,
			Timeout:    cfg.SemanticTimeout,
		}, a.executor())
		a.closers = append(a.closers, client.Close)
		return client, nil
	case "pinecone":
		client, err := pinecone.New(ctx, pinecone.Options{
			APIKey:          cfg.PineconeAPIKey,
			IndexName:       cfg.PineconeIndex,
			Host:            cfg.PineconeHost,
			Namespace:       cfg.PineconeNamespace,
			ControlPlaneURL: cfg.PineconeControl,
			Timeout:         cfg.SemanticTimeout,
		}, a.executor())
		if err != nil {
			return nil, fmt.Errorf("init pinecone index: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown semantic backend %q", cfg.SemanticBackend)
	}
}

func (a *App) newReranker() ports.Reranker {
	cfg := a.Config
	if cfg.RerankerBackend == "heuristic" {
		return heuristic.NewReranker()
	}
	reranker := tei.NewReranker(tei.RerankerOptions{
		BaseURL:   cfg.RerankerURL,
		APIToken:  cfg.RerankerToken,
		BatchSize: cfg.RerankBatchSize,
		RawScores: cfg.RerankRawScores,
		Timeout:   cfg.RerankerTimeout,
	}, a.executor())
	a.closers = append(a.closers, reranker.Close)
	return reranker
}

// warmup runs one encode, one index describe and one rerank so that a missing
// model or a dimension mismatch fails startup instead of the first request.
func (a *App) warmup(ctx context.Context) error {
	vector, err := a.encoder.Encode(ctx, warmupText)
	if err != nil {
		return fmt.Errorf("warm up encoder: %w", err)
	}
	dimension, err := a.semantic.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("describe semantic index: %w", err)
	}
	if dimension > 0 && dimension != len(vector) {
		return domain.WrapError(domain.ErrModelUnavailable, "warm up",
			fmt.Errorf("encoder produces %d dimensions, index expects %d", len(vector), dimension))
	}
	scores, err := a.reranker.Score(ctx, warmupText, []string{warmupText})
	if err != nil {
		return fmt.Errorf("warm up reranker: %w", err)
	}
	if len(scores) != 1 {
		return domain.WrapError(domain.ErrModelUnavailable, "warm up", errors.New("reranker returned no score"))
	}
	slog.Info("models_warmed_up",
		"encoder", a.Config.EncoderBackend,
		"reranker", a.Config.RerankerBackend,
		"semantic_index", a.Config.SemanticBackend,
		"dimension", len(vector),
	)
	return nil
}

func (a *App) startWatcher(paths []string) error {
	watcher, err := knowledge.NewWatcher(paths, a.Config.CorpusWatchDebounce, a.Knowledge.Reload)
	if err != nil {
		return fmt.Errorf("start corpus watcher: %w", err)
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	a.stopWatcher = cancel
	go watcher.Run(watchCtx)
	a.closers = append(a.closers, func() { _ = watcher.Close() })
	return nil
}

func (a *App) Close() {
	if a.stopWatcher != nil {
		a.stopWatcher()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ImportCorpus copies the JSONL corpus into the configured SQL store. It is
// the only write path for the SQL corpus sources.
func ImportCorpus(ctx context.Context, cfg config.Config) (int, error) {
	if cfg.CorpusSource != "postgres" && cfg.CorpusSource != "sqlite" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "import corpus",
			fmt.Errorf("CORPUS_SOURCE must be postgres or sqlite, got %q", cfg.CorpusSource))
	}
	storage, err := localfs.New(cfg.CorpusDir)
	if err != nil {
		return 0, domain.WrapError(domain.ErrCorpusIntegrity, "open corpus dir", err)
	}
	chunks, err := jsonl.NewLoader(storage, cfg.CorpusChunksFile, cfg.CorpusTokensFile).Load(ctx)
	if err != nil {
		return 0, err
	}

	repo, db, err := openChunkRepository(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := repo.ReplaceAll(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
