package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

type resultKey struct {
	owner uuid.UUID
	typ   models.ResultType
}

// ResultStore keeps extraction results in memory.
type ResultStore struct {
	mu      sync.RWMutex
	results map[resultKey]*models.ExtractionResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[resultKey]*models.ExtractionResult)}
}

func (s *ResultStore) Upsert(_ context.Context, r *models.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{r.OwnerID, r.Type}
	now := time.Now()
	r.UpdatedAt = now
	if existing, ok := s.results[key]; ok {
		r.CreatedAt = existing.CreatedAt
	} else {
		r.CreatedAt = now
	}
	s.results[key] = cloneResult(r)
	return nil
}

func (s *ResultStore) Get(_ context.Context, ownerID uuid.UUID, t models.ResultType) (*models.ExtractionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[resultKey{ownerID, t}]
	if !ok {
		return nil, fmt.Errorf("%s result for %s: %w", t, ownerID, apperrors.ErrNotFound)
	}
	return cloneResult(r), nil
}

func (s *ResultStore) DeleteByOwner(_ context.Context, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.results {
		if key.owner == ownerID {
			delete(s.results, key)
		}
	}
	return nil
}

func cloneResult(r *models.ExtractionResult) *models.ExtractionResult {
	c := *r
	if r.Value != nil {
		c.Value = append(models.Payload(nil), r.Value...)
	}
	if r.TaskID != nil {
		id := *r.TaskID
		c.TaskID = &id
	}
	return &c
}
