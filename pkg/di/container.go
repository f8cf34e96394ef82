package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-risk-analysis/backend/internal/deadletter"
	"chat-risk-analysis/backend/internal/inference"
	"chat-risk-analysis/backend/internal/prompt"
	"chat-risk-analysis/backend/internal/repository"
	"chat-risk-analysis/backend/internal/retrieval"
	"chat-risk-analysis/backend/internal/service"
	"chat-risk-analysis/backend/internal/vectorindex"
	"chat-risk-analysis/backend/internal/worker"
	"chat-risk-analysis/backend/pkg/config"
	"chat-risk-analysis/backend/pkg/health"
	"chat-risk-analysis/backend/pkg/logger"
	"chat-risk-analysis/backend/pkg/resilience"
	"chat-risk-analysis/backend/shared/observability"
	"chat-risk-analysis/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	DB             *gorm.DB
	Logger         *logger.Logger
	Metrics        *observability.PipelineMetrics
	Store          *repository.GormRecordStore
	Redis          *redis.RedisClient
	DeadLetters    deadletter.Sink
	// DeadLetterList is nil when Redis is not configured.
	DeadLetterList *deadletter.List
	Retriever      retrieval.Searcher
	Inference      *inference.Client
	Pool           *worker.Pool
	Worker         *worker.AnalysisWorker
	IngestService  *service.IngestService
	Health         *health.Checker

	// cancel stops background analyses once the pool has drained.
	cancel  context.CancelFunc
	closers []func()
}

// New builds every component from cfg. db must already be migrated.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		DB:     db,
		Logger: log,
		Health: health.NewChecker(log, 30*time.Second),
	}

	metrics, err := observability.NewPipelineMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	c.Metrics = metrics

	c.Store = repository.NewGormRecordStore(db)
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	c.DeadLetters = deadletter.Noop{}
	if cfg.Redis.URL != "" {
		client, err := redis.NewRedisClient(redis.Options{URL: cfg.Redis.URL, Password: cfg.Redis.Password})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		c.Redis = client
		c.DeadLetterList = deadletter.NewList(client, cfg.Redis.DeadLetterKey, cfg.Redis.DeadLetterMax)
		c.DeadLetters = c.DeadLetterList
		c.Health.RegisterRedisCheck(client.Ping)
		c.closers = append(c.closers, func() { _ = client.Close() })
	} else {
		log.Warn("REDIS_URL not set, dead letters are only logged")
	}

	c.Retriever = c.buildRetriever(cfg, log)

	client, err := inference.New(inference.Config{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Model:   cfg.Inference.Model,
		Timeout: cfg.Inference.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}
	c.Inference = client
	c.Health.RegisterCheck("inference", false, func(context.Context) (health.Status, string, error) {
		if client.Breaker().GetState() == resilience.StateOpen {
			return health.StatusDegraded, "Inference circuit is open", nil
		}
		return health.StatusUp, "Inference endpoint accepting requests", nil
	})

	template := prompt.AnalystTemplate
	if path := cfg.Prompt.AnalystPromptPath; path != "" {
		template, err = prompt.LoadTemplate(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load analyst prompt: %w", err)
		}
		log.Info("Loaded analyst prompt override", "path", path)
	}

	c.Worker = worker.NewAnalysisWorker(
		c.Retriever,
		client,
		c.Store,
		c.DeadLetters,
		metrics,
		worker.Config{
			Template: template,
			TopK:     cfg.VectorIndex.TopK,
			Params: inference.Params{
				MaxTokens:   cfg.Inference.MaxTokens,
				Temperature: cfg.Inference.Temperature,
			},
		},
		log,
	)

	c.Pool, err = worker.NewPool(cfg.Worker.PoolSize, cfg.Worker.MaxPending, log)
	if err != nil {
		return nil, err
	}
	c.Health.RegisterPoolCheck(c.Pool)

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.IngestService = service.NewIngestService(baseCtx, c.Store, c.Pool, c.Worker, c.DeadLetters, metrics, log)

	return c, nil
}

// buildRetriever loads the vector index. A missing or unreadable index is not
// fatal: analyses proceed without reference documents and health reports degraded.
func (c *Container) buildRetriever(cfg *config.Config, log *logger.Logger) retrieval.Searcher {
	idx, loadErr := vectorindex.Load(cfg.VectorIndex.Path, log)
	if loadErr == nil {
		var embedder retrieval.Embedder
		embedder, loadErr = retrieval.NewOpenAIEmbedder(retrieval.EmbeddingConfig{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
		})
		if loadErr == nil {
			r := retrieval.NewVectorRetriever(embedder, idx, cfg.VectorIndex.CacheSize, log)
			c.closers = append(c.closers, r.Close)
			c.Health.RegisterIndexCheck(r.IndexSize, nil)
			log.Info("Vector index loaded", "path", cfg.VectorIndex.Path, "fragments", idx.Size(), "dimensions", idx.Dimensions())
			return r
		}
	}

	if errors.Is(loadErr, vectorindex.ErrIndexNotFound) {
		log.Warn("Vector index not found, analyses run without reference documents", "path", cfg.VectorIndex.Path)
	} else {
		log.LogError(loadErr, "Vector index unavailable, analyses run without reference documents", "path", cfg.VectorIndex.Path)
	}
	c.Health.RegisterIndexCheck(func() int { return 0 }, loadErr)
	return retrieval.Unavailable{Err: loadErr}
}

// Close drains the worker pool, cancels whatever is still running and
// releases connections. The database is owned by the caller.
func (c *Container) Close() error {
	var err error
	if c.Pool != nil {
		if shutdownErr := c.Pool.Shutdown(c.Config.Worker.ShutdownTimeout); shutdownErr != nil {
			c.Logger.LogError(shutdownErr, "Worker pool did not drain in time")
			err = shutdownErr
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	return err
}
