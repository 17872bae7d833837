package repository

import (
	"context"
	"fmt"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for documents and their sections
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, session_id, filename, storage_path, content_hash, raw_text, status,
	rejection_reason, title, authors, year, venue, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.SessionID,
		&doc.Filename,
		&doc.StoragePath,
		&doc.ContentHash,
		&doc.RawText,
		&doc.Status,
		&doc.RejectionReason,
		&doc.Title,
		&doc.Authors,
		&doc.Year,
		&doc.Venue,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if doc.Authors == nil {
		doc.Authors = models.StringList{}
	}
	return doc, nil
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	query := `
		INSERT INTO documents (
			id, session_id, filename, storage_path, content_hash, raw_text, status, authors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		doc.ID,
		doc.SessionID,
		doc.Filename,
		doc.StoragePath,
		doc.ContentHash,
		doc.RawText,
		doc.Status,
		doc.Authors,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

// GetByID retrieves a document with its sections in order
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "document "+id.String())
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, name, order_index, text
		FROM sections
		WHERE document_id = $1
		ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	doc.Sections, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Section, error) {
		var s models.Section
		err := row.Scan(&s.ID, &s.DocumentID, &s.Name, &s.OrderIndex, &s.Text)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sections: %w", err)
	}
	return doc, nil
}

// List retrieves a session's documents, newest first. An empty session
// lists every document.
func (r *DocumentRepository) List(ctx context.Context, sessionID string, limit, offset int) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReplaceSections swaps a document's sections in one transaction
func (r *DocumentRepository) ReplaceSections(ctx context.Context, documentID uuid.UUID, sections []models.Section) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("document %s: %w", documentID, apperrors.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sections WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to delete sections: %w", err)
		}
		if len(sections) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, s := range sections {
			id := s.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			batch.Queue(`
				INSERT INTO sections (id, document_id, name, order_index, text)
				VALUES ($1, $2, $3, $4, $5)`,
				id, documentID, s.Name, s.OrderIndex, s.Text)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert sections: %w", err)
		}
		return nil
	})
}

// UpdateStatus sets the processing status and rejection reason
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DocumentStatus, reason *string) error {
	query := `
		UPDATE documents SET
			status = $2,
			rejection_reason = $3,
			updated_at = NOW()
		WHERE id = $1`

	return r.exec(ctx, id, query, id, status, reason)
}

// UpdatePaperInfo stores the extracted bibliographic fields
func (r *DocumentRepository) UpdatePaperInfo(ctx context.Context, id uuid.UUID, info models.PaperInfo) error {
	var title, venue *string
	if info.Title != "" {
		title = &info.Title
	}
	if info.Venue != "" {
		venue = &info.Venue
	}
	query := `
		UPDATE documents SET
			title = COALESCE($2, title),
			authors = $3,
			year = $4,
			venue = $5,
			updated_at = NOW()
		WHERE id = $1`

	return r.exec(ctx, id, query, id, title, models.StringList(info.Authors), info.Year, venue)
}

func (r *DocumentRepository) exec(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
