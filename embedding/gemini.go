package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
)

// geminiBatchLimit is the maximum number of contents per batch request.
const geminiBatchLimit = 100

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	model     *genai.EmbeddingModel
	modelName string
	dimension int
}

// NewGeminiEmbedder creates an embedder backed by client.
func NewGeminiEmbedder(client *genai.Client, modelName string, dimension int) *GeminiEmbedder {
	model := client.EmbeddingModel(modelName)
	model.TaskType = genai.TaskTypeSemanticSimilarity
	return &GeminiEmbedder{model: model, modelName: modelName, dimension: dimension}
}

// Dimension returns the expected vector size.
func (e *GeminiEmbedder) Dimension() int { return e.dimension }

// Embed generates a normalized embedding for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	return e.finish(res.Embedding.Values)
}

// EmbedBatch embeds texts in batches of at most 100.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))
		batch := e.model.NewBatch()
		for _, t := range texts[start:end] {
			if err := checkText(t); err != nil {
				return nil, err
			}
			batch.AddContent(genai.Text(t))
		}

		began := time.Now()
		res, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			slog.Warn("gemini batch embedding failed", "model", e.modelName, "size", end-start, "error", err)
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			v, err := e.finish(emb.Values)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		slog.Debug("gemini batch embedded", "model", e.modelName, "size", end-start, "duration_ms", time.Since(began).Milliseconds())
	}
	return out, nil
}

func (e *GeminiEmbedder) finish(values []float32) ([]float32, error) {
	if err := checkDimension(e.modelName, len(values), e.dimension); err != nil {
		return nil, err
	}
	return Normalize(values)
}
