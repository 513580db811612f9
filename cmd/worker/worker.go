package main

import (
	"context"
	"log"

	"pdf-rag-platform/internal/app"
	"pdf-rag-platform/internal/config"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/queue"
	"pdf-rag-platform/internal/telemetry"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.VectorStore == config.VectorStoreMemory {
		log.Fatal("The worker needs a shared vector store; set VECTOR_STORE to mongo or pgvector")
	}

	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracer("pdf-rag-worker", cfg.OTelEndpoint, cfg.GinMode)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdownTracer()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
		metrics = nil
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	components, err := app.Build(context.Background(), cfg, metrics, rdb)
	if err != nil {
		log.Fatal("Failed to build pipeline:", err)
	}
	defer components.Close()

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis config for queue:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Each ingestion already fans out to Gemini in batches.
			Concurrency: 4,
			Queues: map[string]int{
				queue.QueueCritical: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task failed", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(components.Pipeline)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.IngestDocument)

	logger.Info("Starting Asynq worker", "concurrency", 4, "queue", queue.QueueCritical, "redis", redisOpt.Addr)

	// Run blocks until SIGTERM/SIGINT and then drains in-flight tasks
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
