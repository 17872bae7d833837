// Package memory provides in-process implementations of the service stores.
// They copy values in and out so callers never share mutable state with
// the store.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

// DocumentStore keeps documents and sections in memory.
type DocumentStore struct {
	mu       sync.RWMutex
	docs     map[uuid.UUID]*models.Document
	sections map[uuid.UUID][]models.Section
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:     make(map[uuid.UUID]*models.Document),
		sections: make(map[uuid.UUID][]models.Section),
	}
}

func (s *DocumentStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *DocumentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, apperrors.ErrNotFound)
	}
	out := cloneDocument(doc)
	out.Sections = slices.Clone(s.sections[id])
	return out, nil
}

func (s *DocumentStore) List(_ context.Context, sessionID string, limit, offset int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if sessionID == "" || doc.SessionID == sessionID {
			out = append(out, cloneDocument(doc))
		}
	}
	slices.SortFunc(out, func(a, b *models.Document) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return page(out, limit, offset), nil
}

func (s *DocumentStore) ReplaceSections(_ context.Context, documentID uuid.UUID, sections []models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, apperrors.ErrNotFound)
	}
	if len(sections) == 0 {
		delete(s.sections, documentID)
		return nil
	}
	s.sections[documentID] = slices.Clone(sections)
	return nil
}

func (s *DocumentStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.DocumentStatus, reason *string) error {
	return s.update(id, func(d *models.Document) {
		d.Status = status
		d.RejectionReason = nil
		if reason != nil {
			r := *reason
			d.RejectionReason = &r
		}
	})
}

func (s *DocumentStore) UpdatePaperInfo(_ context.Context, id uuid.UUID, info models.PaperInfo) error {
	return s.update(id, func(d *models.Document) {
		if info.Title != "" {
			title := info.Title
			d.Title = &title
		}
		d.Authors = append(models.StringList{}, info.Authors...)
		d.Year = nil
		if info.Year != nil {
			y := *info.Year
			d.Year = &y
		}
		d.Venue = nil
		if info.Venue != "" {
			venue := info.Venue
			d.Venue = &venue
		}
	})
}

func (s *DocumentStore) update(id uuid.UUID, fn func(*models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, apperrors.ErrNotFound)
	}
	fn(doc)
	doc.UpdatedAt = time.Now()
	return nil
}

func cloneDocument(d *models.Document) *models.Document {
	c := *d
	c.Authors = slices.Clone(d.Authors)
	c.Sections = nil
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
