// Package embedding computes chunk embeddings and maintains the vector index.
package embedding

import (
	"context"
	"fmt"
	"math"

	"paperlens-backend/apperrors"
)

// DefaultDimension is the pipeline-wide embedding dimension.
const DefaultDimension = 384

// Embedder turns text into fixed-dimension vectors. Identical input text must
// produce identical vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, apperrors.NewInvalidInput("vector", "zero vector cannot be normalized")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Dot returns the dot product of two equal-length vectors. On unit vectors it
// equals cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func checkDimension(model string, got, want int) error {
	if got != want {
		return fmt.Errorf("embedding dimension mismatch for %s: got %d, expected %d", model, got, want)
	}
	return nil
}

func checkText(text string) error {
	if text == "" {
		return apperrors.NewInvalidInput("text", "cannot embed empty text")
	}
	return nil
}
