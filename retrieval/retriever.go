// Package retrieval answers a text query with the most relevant chunks.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"paperlens-backend/embedding"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

const (
	// DefaultK is used when a caller passes k <= 0.
	DefaultK = 5
	// DefaultMinSimilarity is the similarity floor below which chunks are dropped.
	DefaultMinSimilarity = 0.1
)

// Searcher ranks stored chunks against a query vector.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int, documentID *uuid.UUID) ([]models.ScoredChunk, error)
}

// Passage is a retrieved chunk with its score.
type Passage struct {
	ChunkID     uuid.UUID `json:"chunk_id"`
	DocumentID  uuid.UUID `json:"document_id"`
	SectionName string    `json:"section_name"`
	OrderIndex  int       `json:"order_index"`
	Text        string    `json:"text"`
	Score       float64   `json:"score"`
}

// Retriever embeds a query and returns the chunks above the similarity floor.
type Retriever struct {
	embedder      embedding.Embedder
	searcher      Searcher
	defaultK      int
	minSimilarity float64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithDefaultK sets the result count used when k <= 0.
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithMinSimilarity sets the similarity floor.
func WithMinSimilarity(floor float64) Option {
	return func(r *Retriever) {
		r.minSimilarity = floor
	}
}

// New creates a Retriever.
func New(embedder embedding.Embedder, searcher Searcher, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:      embedder,
		searcher:      searcher,
		defaultK:      DefaultK,
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MinSimilarity returns the configured floor.
func (r *Retriever) MinSimilarity() float64 { return r.minSimilarity }

// Retrieve returns up to k passages for query, optionally scoped to one
// document. An empty result means nothing relevant was found.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, documentID *uuid.UUID) ([]Passage, error) {
	if k <= 0 {
		k = r.defaultK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.searcher.Search(ctx, vec, k, documentID)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < r.minSimilarity {
			continue
		}
		passages = append(passages, Passage{
			ChunkID:     h.ID,
			DocumentID:  h.DocumentID,
			SectionName: h.SectionName,
			OrderIndex:  h.OrderIndex,
			Text:        h.Text,
			Score:       h.Similarity,
		})
	}
	return passages, nil
}

// RetrieveAll runs several queries and merges the results, keeping each chunk
// once with its best score, ranked by score then reading order.
func (r *Retriever) RetrieveAll(ctx context.Context, queries []string, k int, documentID *uuid.UUID) ([]Passage, error) {
	best := make(map[uuid.UUID]Passage)
	for _, q := range queries {
		passages, err := r.Retrieve(ctx, q, k, documentID)
		if err != nil {
			return nil, err
		}
		for _, p := range passages {
			if cur, ok := best[p.ChunkID]; !ok || p.Score > cur.Score {
				best[p.ChunkID] = p
			}
		}
	}

	hits := make([]models.ScoredChunk, 0, len(best))
	for _, p := range best {
		hits = append(hits, models.ScoredChunk{
			Chunk:      models.Chunk{ID: p.ChunkID, DocumentID: p.DocumentID, SectionName: p.SectionName, OrderIndex: p.OrderIndex, Text: p.Text},
			Similarity: p.Score,
		})
	}
	embedding.SortHits(hits)

	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = best[h.ID]
	}
	return out, nil
}

// JoinPassages concatenates passage texts in reading order, stopping before
// maxChars is exceeded. maxChars <= 0 means no limit.
func JoinPassages(passages []Passage, maxChars int) string {
	ordered := make([]Passage, len(passages))
	copy(ordered, passages)
	slices.SortStableFunc(ordered, func(a, b Passage) int {
		return cmp.Compare(a.OrderIndex, b.OrderIndex)
	})

	var b strings.Builder
	for _, p := range ordered {
		if maxChars > 0 && b.Len()+len(p.Text) > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
