package service

import (
	"context"
	"errors"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

// Stores return apperrors.ErrNotFound (possibly wrapped) for missing rows.

// DocumentStore persists documents and their sections.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	// GetByID returns the document with its sections in order.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	// List returns documents newest first. An empty sessionID lists all.
	List(ctx context.Context, sessionID string, limit, offset int) ([]*models.Document, error)
	// ReplaceSections swaps the document's sections in one step.
	ReplaceSections(ctx context.Context, documentID uuid.UUID, sections []models.Section) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DocumentStatus, reason *string) error
	UpdatePaperInfo(ctx context.Context, id uuid.UUID, info models.PaperInfo) error
}

// TaskStore persists tasks. Claim, Complete and Fail enforce
// models.TaskStatus.CanTransition and return apperrors.ErrInvalidTransition
// when the stored status does not allow the change.
type TaskStore interface {
	// Create returns apperrors.ErrActiveTask when the owner already has a
	// pending or running task of the same type.
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// Claim atomically moves a pending task to running. It reports false
	// when another worker already claimed it.
	Claim(ctx context.Context, id uuid.UUID) (*models.Task, bool, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, step string) error
	Complete(ctx context.Context, id uuid.UUID, result models.Payload) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error)
}

// ResultStore persists extraction results keyed by (owner, type).
type ResultStore interface {
	Upsert(ctx context.Context, result *models.ExtractionResult) error
	Get(ctx context.Context, ownerID uuid.UUID, resultType models.ResultType) (*models.ExtractionResult, error)
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error
}

// CollectionStore persists collections of documents.
type CollectionStore interface {
	Create(ctx context.Context, c *models.Collection) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
