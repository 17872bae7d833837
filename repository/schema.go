package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatements returns the idempotent DDL for every table. dimension is
// the embedding dimension of the chunks table.
func SchemaStatements(dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS documents (
    id UUID PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    filename TEXT NOT NULL,
    storage_path TEXT,
    content_hash VARCHAR(64) NOT NULL,
    raw_text TEXT NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL CHECK (status IN ('unprocessed', 'processed', 'rejected')),
    rejection_reason TEXT,
    title TEXT,
    authors JSONB NOT NULL DEFAULT '[]'::jsonb,
    year INTEGER,
    venue TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		"CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, created_at DESC)",
		`CREATE TABLE IF NOT EXISTS sections (
    id UUID PRIMARY KEY,
    document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    name VARCHAR(64) NOT NULL,
    order_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    CONSTRAINT section_order_unique UNIQUE (document_id, order_index)
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
    id UUID PRIMARY KEY,
    document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    section_name VARCHAR(64) NOT NULL,
    order_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    embedding vector(%d) NOT NULL
)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, order_index)",
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_hnsw ON chunks
USING hnsw (embedding vector_cosine_ops)
WITH (m = 16, ef_construction = 64)`,
		`CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY,
    task_type VARCHAR(50) NOT NULL,
    owner_id UUID NOT NULL,
    status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
    current_step TEXT,
    result JSONB,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
)`,
		"CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_owner ON tasks(owner_id, task_type) WHERE status IN ('pending', 'running')",
		`CREATE TABLE IF NOT EXISTS extraction_results (
    owner_id UUID NOT NULL,
    result_type VARCHAR(50) NOT NULL,
    value JSONB,
    none_found BOOLEAN NOT NULL DEFAULT false,
    task_id UUID,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (owner_id, result_type),
    CONSTRAINT sentinel_has_no_value CHECK (NOT (none_found AND value IS NOT NULL))
)`,
		`CREATE TABLE IF NOT EXISTS collections (
    id UUID PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    document_ids UUID[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	}
}

// EnsureSchema applies SchemaStatements in order
func EnsureSchema(ctx context.Context, db *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	for _, stmt := range SchemaStatements(dimension) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
