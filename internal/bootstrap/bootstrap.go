package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/tanya-lalin/internal/config"
	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
	"github.com/kirillkom/tanya-lalin/internal/core/usecase"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/lexicon"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/queue/nats"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/resilience"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/tanya-lalin/internal/observability/metrics"
	"github.com/kirillkom/tanya-lalin/internal/session"
)

// API holds everything the HTTP process needs.
type API struct {
	Config   config.Config
	Metrics  *metrics.HTTPServerMetrics
	Sessions *session.Store
	Vectors  *qdrant.Client
	Chat     *usecase.ChatUseCase

	closeFn func()
}

func NewAPI(_ context.Context, cfg config.Config, logger *slog.Logger) (*API, error) {
	tables, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	limits := cfg.Retrieval()

	ollamaHTTP := &http.Client{Timeout: cfg.OllamaTimeout}
	llmClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithHTTPClient(ollamaHTTP),
		ollama.WithExecutor(resilience.NewExecutorWithLogger(resilience.DefaultConfig(), logger)),
	)
	oracleClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithHTTPClient(ollamaHTTP),
		ollama.WithExecutor(resilience.NewExecutorWithLogger(resilience.OracleConfig(limits.OracleTimeout), logger)),
	)

	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithExecutor(resilience.NewExecutorWithLogger(resilience.DefaultConfig(), logger)),
	)

	rewriter := newQueryRewriter(tables, limits, ollama.NewQueryExpander(oracleClient))
	executor := usecase.NewMultiQueryExecutor(
		ollama.NewEmbedder(llmClient),
		vectors,
		httpMetrics,
		logger,
		limits.VectorSearchTopK,
		limits.SearchTimeout,
	)
	retriever := usecase.NewRetrievalUseCase(rewriter, executor, httpMetrics, logger, limits)

	store := session.NewStore(cfg.Session(),
		session.WithLogger(logger),
		session.WithObserver(httpMetrics),
	)

	closers := []func(){}
	var publisher ports.TurnPublisher
	if cfg.NATSPublishTurns {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTurnSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutorWithLogger(resilience.DefaultConfig(), logger),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init turn publisher: %w", err)
		}
		publisher = &countingPublisher{next: queue, failures: httpMetrics}
		closers = append(closers, queue.Close)
	}

	chat := usecase.NewChatUseCase(store, retriever, ollama.NewGenerator(llmClient), publisher, logger, cfg.Session())

	return &API{
		Config:   cfg,
		Metrics:  httpMetrics,
		Sessions: store,
		Vectors:  vectors,
		Chat:     chat,
		closeFn: func() {
			for _, c := range closers {
				c()
			}
		},
	}, nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker holds the transcript archiver dependencies.
type Worker struct {
	Config  config.Config
	Metrics *metrics.WorkerMetrics
	Queue   *nats.Queue
	Archive *postgres.TranscriptRepository

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	archive := postgres.NewTranscriptRepository(db,
		postgres.WithExecutor(resilience.NewExecutorWithLogger(resilience.DefaultConfig(), logger)),
	)
	if err := archive.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTurnSubject, nats.Options{Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Metrics: metrics.NewWorkerMetrics("worker"),
		Queue:   queue,
		Archive: archive,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// newQueryRewriter orders the strategies: canned patterns first, then the oracle.
func newQueryRewriter(tables lexicon.Tables, limits domain.RetrievalLimits, oracle ports.QueryExpander) *usecase.QueryRewriter {
	return usecase.NewQueryRewriter(
		usecase.NewTermResolver(tables.Terms),
		limits.Weights,
		usecase.NewPatternStrategy(usecase.NewPatternMatcher(tables.Patterns)),
		usecase.NewOracleStrategy(oracle, limits.OracleTimeout),
	)
}
