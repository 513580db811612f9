// Package app wires the pipeline from configuration. The HTTP server and the
// queue worker share it so both ingest documents the same way.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pdf-rag-platform/internal/ai"
	"pdf-rag-platform/internal/cache"
	"pdf-rag-platform/internal/config"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/telemetry"
	"pdf-rag-platform/internal/vectorstore"
	"pdf-rag-platform/internal/vectorstore/memory"
	"pdf-rag-platform/internal/vectorstore/mongostore"
	"pdf-rag-platform/internal/vectorstore/pgvector"
	"pdf-rag-platform/services"
)

type Components struct {
	Pipeline *services.RagPipeline
	Staging  *services.StagingArea
	Gemini   *ai.GeminiClient

	closers []func()
}

// Close releases clients in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build connects the configured vector store and Gemini and assembles the
// pipeline. rdb may be nil, which disables the query embedding cache.
func Build(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics, rdb *redis.Client) (*Components, error) {
	c := &Components{}

	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeStore)

	gemini, err := ai.NewGeminiClient(ctx, ai.Options{
		APIKey:          cfg.GeminiAPIKey,
		Tier:            cfg.GeminiTier,
		EmbeddingModel:  cfg.EmbeddingModel,
		GenerationModel: cfg.GenerationModel,
		Dimensions:      cfg.EmbeddingDimensions,
		Metrics:         metrics,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Gemini = gemini
	c.closers = append(c.closers, func() { gemini.Close() })

	staging, err := services.NewStagingArea(cfg.StagingDir())
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Staging = staging

	chunker, err := services.NewTokenBudgetChunker(services.ChunkerConfig{
		MaxTokens:      cfg.MaxTokens,
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		TokenizerModel: cfg.TokenizerModel,
	}, gemini, metrics)
	if err != nil {
		c.Close()
		return nil, err
	}

	embedder := services.NewEmbedder(gemini, services.EmbedderConfig{
		BatchSize:  cfg.EmbeddingBatchSize,
		Dimensions: cfg.EmbeddingDimensions,
	}, metrics)
	if rdb != nil {
		embedder.WithCache(cache.NewEmbeddingCache(rdb, cfg.EmbeddingModel, cfg.EmbeddingDimensions, cfg.QueryCacheTTL))
	}

	pipeline, err := services.NewRagPipeline(services.PipelineDeps{
		Extractor:   services.NewPDFExtractor(services.DefaultHeaderFooterThreshold),
		Chunker:     chunker,
		Embedder:    embedder,
		Store:       store,
		Generator:   gemini,
		Staging:     staging,
		Metrics:     metrics,
		DefaultTopK: cfg.DefaultTopK,
		StoreName:   cfg.VectorStore,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Pipeline = pipeline

	return c, nil
}

// OpenStore connects the backend named by VECTOR_STORE. The returned func
// closes its connections.
func OpenStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, func(), error) {
	switch cfg.VectorStore {
	case config.VectorStoreMongo:
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewStore(client, cfg.DBName, cfg.VectorCollection, cfg.VectorIndexName, cfg.EmbeddingDimensions)
		logger.Info("Vector store ready", "backend", cfg.VectorStore, "collection", cfg.VectorCollection)
		return store, func() { client.Disconnect(context.Background()) }, nil

	case config.VectorStorePgvector:
		pool, err := config.NewPostgresPool(cfg)
		if err != nil {
			return nil, nil, err
		}
		store := pgvector.NewStore(pool, cfg.VectorCollection, cfg.EmbeddingDimensions)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		logger.Info("Vector store ready", "backend", cfg.VectorStore, "table", cfg.VectorCollection)
		return store, pool.Close, nil

	default:
		logger.Warn("Using in-memory vector store; documents are lost on restart")
		return memory.NewStore(cfg.EmbeddingDimensions), func() {}, nil
	}
}
