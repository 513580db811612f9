package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdf-rag-platform/internal/app"
	"pdf-rag-platform/internal/auth"
	"pdf-rag-platform/internal/config"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/queue"
	"pdf-rag-platform/internal/telemetry"
	"pdf-rag-platform/middleware"
	"pdf-rag-platform/routes"
	"pdf-rag-platform/services"
	"pdf-rag-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

const serviceName = "pdf-rag-platform"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("Invalid server config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracer(serviceName, cfg.OTelEndpoint, cfg.GinMode)
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

	ctx := context.Background()
	components, err := app.Build(ctx, cfg, metrics, rdb)
	if err != nil {
		log.Fatal("Failed to build pipeline:", err)
	}
	defer components.Close()

	// Sweep staging files left behind by crashed ingestions
	cron := services.NewCronService()
	if err := cron.ScheduleStagingSweep(components.Staging, cfg.StagingSweepInterval, cfg.StagingMaxAge); err != nil {
		log.Fatal("Failed to schedule staging sweep:", err)
	}
	cron.Start()
	defer cron.Stop()

	tokens, err := auth.NewTokenManager(cfg.AccessSecret, rdb)
	if err != nil {
		log.Fatal("Failed to initialize token manager:", err)
	}

	var enqueuer routes.TaskEnqueuer
	var inspector *asynq.Inspector
	if cfg.AsyncIngestEnabled {
		if cfg.VectorStore == config.VectorStoreMemory {
			logger.Warn("Async ingestion needs a shared vector store; disabled for the memory backend")
		} else {
			redisOpt, err := config.AsynqRedisOpt(cfg)
			if err != nil {
				log.Fatal("Invalid Redis config for queue:", err)
			}
			client := asynq.NewClient(redisOpt)
			defer client.Close()
			inspector = asynq.NewInspector(redisOpt)
			defer inspector.Close()
			enqueuer = client
		}
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(serviceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := rdb.Ping(ctx).Err(); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "vector_store": cfg.VectorStore, "timestamp": time.Now()})
	})

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	handler := routes.NewDocumentHandler(cfg, components.Pipeline, enqueuer, inspectorOrNil(inspector))
	routes.SetupDocumentRoutes(router, handler, authMiddleware, middleware.RateLimitMiddleware(rdb, cfg))
	routes.SetupTokenRoutes(router, tokens, authMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "async_ingest", enqueuer != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

// inspectorOrNil keeps a nil *asynq.Inspector from becoming a non-nil
// interface value.
func inspectorOrNil(i *asynq.Inspector) queue.Inspector {
	if i == nil {
		return nil
	}
	return i
}
