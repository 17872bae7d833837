package app

import (
	"context"
	"testing"

	"paperlens-backend/config"
	"paperlens-backend/models"
	"paperlens-backend/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) config.Config {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STORAGE_PATH", t.TempDir())
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_PROVIDER", "hash")
	cfg := config.Load()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Storage)
	assert.NotNil(t, a.Tasks)
	assert.NotNil(t, a.Documents)
	assert.NotNil(t, a.Extraction)

	res, err := a.Documents.SubmitDocument(context.Background(), service.SubmitDocumentRequest{Filename: "a.txt", RawText: "text"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, res.Task.Status)
}

func TestNew_InvalidChunking(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.ChunkOverlap = cfg.ChunkSize

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.EmbeddingProvider = "word2vec"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "word2vec")
}
