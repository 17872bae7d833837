package embedding

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"sync"

	"paperlens-backend/models"

	"github.com/google/uuid"
)

// VectorStore persists chunk vectors. Replace must swap a document's chunks
// so that no reader sees a mix of generations.
type VectorStore interface {
	Replace(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) error
	Search(ctx context.Context, query []float32, k int, documentID *uuid.UUID) ([]models.ScoredChunk, error)
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
	CountDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

// MemoryStore is a brute-force in-memory VectorStore.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[uuid.UUID][]models.Chunk
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[uuid.UUID][]models.Chunk)}
}

// Replace swaps the chunk generation of documentID.
func (s *MemoryStore) Replace(_ context.Context, documentID uuid.UUID, chunks []models.Chunk) error {
	next := make([]models.Chunk, len(chunks))
	copy(next, chunks)
	for i := range next {
		next[i].DocumentID = documentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(next) == 0 {
		delete(s.chunks, documentID)
		return nil
	}
	s.chunks[documentID] = next
	return nil
}

// Search returns the k chunks most similar to query. Vectors are unit length,
// so the dot product is the cosine similarity.
func (s *MemoryStore) Search(_ context.Context, query []float32, k int, documentID *uuid.UUID) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	var hits []models.ScoredChunk
	score := func(chunks []models.Chunk) {
		for _, c := range chunks {
			if len(c.Embedding) != len(query) {
				continue
			}
			hits = append(hits, models.ScoredChunk{Chunk: c, Similarity: Dot(query, c.Embedding)})
		}
	}
	if documentID != nil {
		score(s.chunks[*documentID])
	} else {
		for _, chunks := range s.chunks {
			score(chunks)
		}
	}
	s.mu.RUnlock()

	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument drops every chunk of documentID.
func (s *MemoryStore) DeleteDocument(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

// CountDocument returns the number of chunks stored for documentID.
func (s *MemoryStore) CountDocument(_ context.Context, documentID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[documentID]), nil
}

// SortHits orders hits by descending similarity, then ascending chunk order.
func SortHits(hits []models.ScoredChunk) {
	slices.SortFunc(hits, func(a, b models.ScoredChunk) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.OrderIndex, b.OrderIndex); c != 0 {
			return c
		}
		return bytes.Compare(a.DocumentID[:], b.DocumentID[:])
	})
}
