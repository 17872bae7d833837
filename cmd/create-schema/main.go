package main

import (
	"context"
	"log"

	"paperlens-backend/config"
	"paperlens-backend/repository"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	if cfg.EmbeddingDimension <= 0 {
		log.Fatalf("EMBEDDING_DIMENSION must be positive, got %d", cfg.EmbeddingDimension)
	}

	ctx := context.Background()
	pool, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	for _, stmt := range repository.SchemaStatements(cfg.EmbeddingDimension) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("Failed to apply schema: %v\n%s", err, stmt)
		}
	}
	log.Printf("✓ Schema ready (embedding dimension %d)", cfg.EmbeddingDimension)
	log.Println("Tables: documents, sections, chunks, tasks, extraction_results, collections")
}
