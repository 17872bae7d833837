package models

import (
	"github.com/google/uuid"
)

// Chunk is a fixed-size window of one section's text, the unit of retrieval.
// Chunks are regenerated whenever their document is processed.
type Chunk struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"document_id"`
	SectionName string    `json:"section_name"`
	OrderIndex  int       `json:"order_index"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"-"`
}

// ScoredChunk is a chunk returned by a similarity search
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
