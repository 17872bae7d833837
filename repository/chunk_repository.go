package repository

import (
	"context"
	"fmt"

	"paperlens-backend/embedding"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository stores chunk embeddings in a pgvector column and ranks them
// by cosine distance
type ChunkRepository struct {
	db *pgxpool.Pool
}

var _ embedding.VectorStore = (*ChunkRepository)(nil)

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Replace swaps the chunk generation of a document. The transaction holds an
// advisory lock on the document so concurrent replaces serialize, and readers
// see either the old or the new generation.
func (r *ChunkRepository) Replace(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, documentID); err != nil {
			return fmt.Errorf("failed to lock document chunks: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"chunks"},
			[]string{"id", "document_id", "section_name", "order_index", "text", "embedding"},
			pgx.CopyFromSlice(len(chunks), func(i int) ([]any, error) {
				c := chunks[i]
				id := c.ID
				if id == uuid.Nil {
					id = uuid.New()
				}
				return []any{id, documentID, c.SectionName, c.OrderIndex, c.Text, pgvector.NewVector(c.Embedding)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
}

const (
	// searchAll walks the HNSW index, so it is approximate across documents.
	searchAll = `
		SELECT
			id,
			document_id,
			section_name,
			order_index,
			text,
			1 - (embedding <=> $1) AS similarity
		FROM chunks
		ORDER BY
			embedding <=> $1,
			order_index
		LIMIT $2`

	// searchDocument ranks one document's chunks exactly. The materialized CTE
	// keeps the planner from filtering an HNSW scan, which returns only
	// hnsw.ef_search candidates before the document filter applies.
	searchDocument = `
		WITH scoped AS MATERIALIZED (
			SELECT id, document_id, section_name, order_index, text, embedding
			FROM chunks
			WHERE document_id = $2
		)
		SELECT
			id,
			document_id,
			section_name,
			order_index,
			text,
			1 - (embedding <=> $1) AS similarity
		FROM scoped
		ORDER BY
			embedding <=> $1,
			order_index
		LIMIT $3`
)

// Search returns the k chunks closest to query. Similarity is 1 minus the
// cosine distance; equal distances are ordered by reading order.
func (r *ChunkRepository) Search(ctx context.Context, query []float32, k int, documentID *uuid.UUID) ([]models.ScoredChunk, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	if documentID != nil {
		rows, err = r.db.Query(ctx, searchDocument, pgvector.NewVector(query), *documentID, k)
	} else {
		rows, err = r.db.Query(ctx, searchAll, pgvector.NewVector(query), k)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ScoredChunk, error) {
		var h models.ScoredChunk
		err := row.Scan(&h.ID, &h.DocumentID, &h.SectionName, &h.OrderIndex, &h.Text, &h.Similarity)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}
	return hits, nil
}

// DeleteDocument removes every chunk of a document
func (r *ChunkRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

// CountDocument returns how many chunks a document has
func (r *ChunkRepository) CountDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}
