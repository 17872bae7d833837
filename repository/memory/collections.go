package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

// CollectionStore keeps collections in memory.
type CollectionStore struct {
	mu          sync.RWMutex
	collections map[uuid.UUID]*models.Collection
}

func NewCollectionStore() *CollectionStore {
	return &CollectionStore{collections: make(map[uuid.UUID]*models.Collection)}
}

func (s *CollectionStore) Create(_ context.Context, c *models.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	stored := *c
	stored.DocumentIDs = slices.Clone(c.DocumentIDs)
	s.collections[c.ID] = &stored
	return nil
}

func (s *CollectionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", id, apperrors.ErrNotFound)
	}
	out := *c
	out.DocumentIDs = slices.Clone(c.DocumentIDs)
	return &out, nil
}
