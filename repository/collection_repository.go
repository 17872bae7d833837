package repository

import (
	"context"

	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CollectionRepository handles database operations for collections
type CollectionRepository struct {
	db *pgxpool.Pool
}

// NewCollectionRepository creates a new collection repository
func NewCollectionRepository(db *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{db: db}
}

// Create creates a new collection
func (r *CollectionRepository) Create(ctx context.Context, c *models.Collection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.DocumentIDs == nil {
		c.DocumentIDs = []uuid.UUID{}
	}
	query := `
		INSERT INTO collections (id, session_id, name, document_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	return r.db.QueryRow(ctx, query, c.ID, c.SessionID, c.Name, c.DocumentIDs).
		Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetByID retrieves a collection by ID
func (r *CollectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	c := &models.Collection{}
	query := `
		SELECT id, session_id, name, document_ids, created_at, updated_at
		FROM collections
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.SessionID,
		&c.Name,
		&c.DocumentIDs,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "collection "+id.String())
	}
	return c, nil
}
