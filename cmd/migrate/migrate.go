package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"pdf-rag-platform/internal/config"
	"pdf-rag-platform/internal/vectorstore/mongostore"
	"pdf-rag-platform/internal/vectorstore/pgvector"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  mongo-indexes    - Create the filter indexes and the Atlas vector search index")
		fmt.Println("  pgvector-schema  - Create the vector extension, chunk table and HNSW index")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "mongo-indexes":
		// ConnectMongoDB creates the indexes as part of connecting
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
		defer client.Disconnect(ctx)
		fmt.Printf("✅ Indexes ready on %s.%s\n", cfg.DBName, cfg.VectorCollection)

		store := mongostore.NewStore(client, cfg.DBName, cfg.VectorCollection, cfg.VectorIndexName, cfg.EmbeddingDimensions)
		if err := store.EnsureVectorIndex(ctx); err != nil {
			log.Fatalf("Failed to create vector search index: %v", err)
		}
		fmt.Printf("✅ Vector search index %q ready (numDimensions=%d, cosine, filters on tenant/document/chunk/page)\n",
			cfg.VectorIndexName, cfg.EmbeddingDimensions)

	case "pgvector-schema":
		pool, err := config.NewPostgresPool(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pool.Close()

		if err := pgvector.NewStore(pool, cfg.VectorCollection, cfg.EmbeddingDimensions).EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create schema: %v", err)
		}
		fmt.Printf("✅ Table %s ready (vector(%d), hnsw cosine)\n", cfg.VectorCollection, cfg.EmbeddingDimensions)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}
