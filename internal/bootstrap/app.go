package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"chatpdf/internal/ai"
	"chatpdf/internal/app"
	"chatpdf/internal/cache"
	"chatpdf/internal/config"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/platform/database"
	minioClient "chatpdf/internal/platform/minio"
	rabbitmqClient "chatpdf/internal/platform/rabbitmq"
	redisClient "chatpdf/internal/platform/redis"
	"chatpdf/internal/rag"
	"chatpdf/internal/repository"
	"chatpdf/internal/storage"
	"chatpdf/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
	// Redis is nil when redis.enabled is false.
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Minio   *minio.Client
	Storage *storage.ObjectStorage

	Documents    *app.DocumentService
	Chat         *app.ChatService
	Ingestion    *app.IngestionService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

// OpenDatabase connects to the configured database and migrates the schema.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		closeDB(db)
		return nil, err
	}
	return db, nil
}

// New connects every dependency and wires the services. The ingest worker
// is built but not started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	a.DB = db

	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
	} else {
		a.Logger.Warn("redis disabled, history cache and step journal are off")
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
	if err != nil {
		return err
	}

	a.Minio, err = minioClient.New(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
	if err != nil {
		return err
	}
	a.Storage = storage.NewObjectStorage(a.Minio, cfg.Storage.Bucket)
	return nil
}

func (a *App) wire() error {
	cfg := a.Config

	documentRepo := repository.NewDocumentRepository(a.DB)
	chunkRepo := repository.NewChunkRepository(a.DB)
	messageRepo := repository.NewChatMessageRepository(a.DB)

	var historyCache app.HistoryCache
	var steps app.StepRunner
	if a.Redis != nil {
		historyCache = cache.NewHistoryCache(a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		steps = cache.NewStepJournal(a.Redis, time.Duration(cfg.Redis.StepJournalTTLSeconds)*time.Second)
	}

	client := ai.NewOpenAICompatibleClient(ai.ClientOptions{
		Timeout:    time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.LLM.MaxRetries,
		Logger:     a.Logger,
	})
	embedder := ai.NewEmbedder(client, ai.EmbeddingConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.EmbeddingModel,
		Dimension: cfg.LLM.EmbeddingDimension,
		BatchSize: cfg.LLM.EmbeddingBatchSize,
	})
	generator := ai.NewGenerator(client, ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	splitter, err := rag.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("build splitter failed: %w", err)
	}
	retriever := rag.NewRetriever(embedder, chunkRepo, cfg.RAG.TopK, cfg.RAG.SimilarityThreshold)
	publisher := rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)

	a.Documents = app.NewDocumentService(documentRepo, a.Storage, publisher, historyCache, app.DocumentServiceConfig{
		MaxFileSize: cfg.Upload.MaxFileSize,
		UploadURL:   cfg.Upload.ResumableEndpoint,
	}, a.Logger)
	a.Chat = app.NewChatService(documentRepo, messageRepo, retriever, generator,
		rag.NewPromptBuilder(cfg.RAG.MaxChatHistory), historyCache, a.Logger)
	a.Ingestion = app.NewIngestionService(documentRepo, chunkRepo, a.Storage, pdfextract.Extractor{},
		splitter, embedder, steps, a.Logger)
	a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Ingestion, publisher, worker.Options{
		QueueName:   cfg.RabbitMQ.IngestQueue,
		MaxAttempts: cfg.RabbitMQ.IngestAttempts,
		Prefetch:    cfg.RabbitMQ.WorkerPrefetch,
		RetryDelay:  time.Second,
	}, a.Logger)
	return nil
}

// HealthChecks returns a check per dependency. redis maps to a nil check when disabled.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"rabbitmq": func(context.Context) error {
			return rabbitmqClient.Ping(a.MQConn)
		},
		"storage": func(ctx context.Context) error {
			return a.Storage.Ping(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	} else {
		checks["redis"] = nil
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
