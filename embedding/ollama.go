package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaEmbedder embeds text with a local Ollama model through langchaingo.
type OllamaEmbedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
}

// NewOllamaEmbedder connects to the Ollama server at host.
func NewOllamaEmbedder(host, modelName string, dimension int) (*OllamaEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithModel(modelName),
		ollama.WithServerURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	model, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &OllamaEmbedder{model: model, modelName: modelName, dimension: dimension}, nil
}

// Dimension returns the expected vector size.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed generates a normalized embedding for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	vec, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := checkDimension(e.modelName, len(vec), e.dimension); err != nil {
		return nil, err
	}
	return Normalize(vec)
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if err := checkText(t); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		slog.Warn("ollama embedding failed", "model", e.modelName, "size", len(texts), "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if err := checkDimension(e.modelName, len(v), e.dimension); err != nil {
			return nil, err
		}
		if out[i], err = Normalize(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
