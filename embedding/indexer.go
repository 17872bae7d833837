package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paperlens-backend/models"

	"github.com/google/uuid"
)

// KeyedMutex serializes work per key without a global lock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release function.
func (k *KeyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Indexer embeds chunks and keeps exactly one generation per document in the
// vector store.
type Indexer struct {
	embedder Embedder
	store    VectorStore
	locks    *KeyedMutex
}

// NewIndexer creates an Indexer over store.
func NewIndexer(embedder Embedder, store VectorStore) *Indexer {
	return &Indexer{embedder: embedder, store: store, locks: NewKeyedMutex()}
}

// Embedder returns the embedder used for chunks and queries.
func (ix *Indexer) Embedder() Embedder { return ix.embedder }

// Upsert embeds chunks and replaces every existing entry for documentID.
// Concurrent upserts of the same document are serialized; different
// documents proceed independently.
func (ix *Indexer) Upsert(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) error {
	release := ix.locks.Lock(documentID)
	defer release()

	start := time.Now()
	prepared := make([]models.Chunk, len(chunks))
	copy(prepared, chunks)

	if len(prepared) > 0 {
		texts := make([]string, len(prepared))
		for i, c := range prepared {
			texts[i] = c.Text
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i := range prepared {
			prepared[i].DocumentID = documentID
			prepared[i].Embedding = vectors[i]
		}
	}

	if err := ix.store.Replace(ctx, documentID, prepared); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	slog.Debug("document indexed", "document_id", documentID, "chunks", len(prepared), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Search ranks chunks by cosine similarity to query. k <= 0 returns nothing.
func (ix *Indexer) Search(ctx context.Context, query []float32, k int, documentID *uuid.UUID) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != ix.embedder.Dimension() {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.embedder.Dimension())
	}
	q, err := Normalize(query)
	if err != nil {
		return nil, err
	}
	return ix.store.Search(ctx, q, k, documentID)
}

// Count returns how many chunks the current generation of a document has.
func (ix *Indexer) Count(ctx context.Context, documentID uuid.UUID) (int, error) {
	return ix.store.CountDocument(ctx, documentID)
}

// Delete removes a document from the index.
func (ix *Indexer) Delete(ctx context.Context, documentID uuid.UUID) error {
	release := ix.locks.Lock(documentID)
	defer release()
	return ix.store.DeleteDocument(ctx, documentID)
}
