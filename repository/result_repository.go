package repository

import (
	"context"

	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository handles database operations for extraction results,
// keyed by owner and result type
type ResultRepository struct {
	db *pgxpool.Pool
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// Upsert inserts or replaces the result for (owner, type)
func (r *ResultRepository) Upsert(ctx context.Context, result *models.ExtractionResult) error {
	query := `
		INSERT INTO extraction_results (owner_id, result_type, value, none_found, task_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, result_type) DO UPDATE SET
			value = EXCLUDED.value,
			none_found = EXCLUDED.none_found,
			task_id = EXCLUDED.task_id,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	var value any
	if !result.NoneFound {
		value = jsonArg(result.Value)
	}
	return r.db.QueryRow(
		ctx, query,
		result.OwnerID,
		result.Type,
		value,
		result.NoneFound,
		result.TaskID,
	).Scan(&result.CreatedAt, &result.UpdatedAt)
}

// Get retrieves the result for (owner, type)
func (r *ResultRepository) Get(ctx context.Context, ownerID uuid.UUID, resultType models.ResultType) (*models.ExtractionResult, error) {
	result := &models.ExtractionResult{}
	query := `
		SELECT owner_id, result_type, value, none_found, task_id, created_at, updated_at
		FROM extraction_results
		WHERE owner_id = $1 AND result_type = $2`

	err := r.db.QueryRow(ctx, query, ownerID, resultType).Scan(
		&result.OwnerID,
		&result.Type,
		&result.Value,
		&result.NoneFound,
		&result.TaskID,
		&result.CreatedAt,
		&result.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, string(resultType)+" result for "+ownerID.String())
	}
	return result, nil
}

// DeleteByOwner removes every result of an owner
func (r *ResultRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM extraction_results WHERE owner_id = $1`, ownerID)
	return err
}
