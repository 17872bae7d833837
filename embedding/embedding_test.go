package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(DefaultDimension)
	ctx := context.Background()

	a, err := e.Embed(ctx, "We evaluate on ImageNet and CIFAR-10 with ResNet-50.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "We evaluate on ImageNet and CIFAR-10 with ResNet-50.")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimension)
	assert.InDelta(t, 1.0, Dot(a, a), 1e-5)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	_, err := NewHashEmbedder(DefaultDimension).Embed(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestHashEmbedder_PunctuationOnly(t *testing.T) {
	v, err := NewHashEmbedder(64).Embed(context.Background(), "!!!")
	require.NoError(t, err)
	assert.Len(t, v, 64)
}

func TestHashEmbedder_RelatedTextScoresHigher(t *testing.T) {
	e := NewHashEmbedder(DefaultDimension)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "which datasets were used for training")
	related, _ := e.Embed(ctx, "The datasets used for training were MNIST and SVHN.")
	unrelated, _ := e.Embed(ctx, "Acknowledgments: we thank the anonymous reviewers.")
	assert.Greater(t, Dot(query, related), Dot(query, unrelated))
}

func unitVector(dim int, r *rand.Rand) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	n, _ := Normalize(v)
	return n
}

func TestMemoryStore_TopKMatchesBruteForce(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	store := NewMemoryStore()
	doc := uuid.New()

	var chunks []models.Chunk
	for i := 0; i < 50; i++ {
		chunks = append(chunks, models.Chunk{ID: uuid.New(), OrderIndex: i, Text: fmt.Sprint(i), Embedding: unitVector(16, r)})
	}
	require.NoError(t, store.Replace(ctx, doc, chunks))

	q := unitVector(16, r)
	hits, err := store.Search(ctx, q, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 5)

	scores := make([]float64, len(chunks))
	for i, c := range chunks {
		scores[i] = Dot(q, c.Embedding)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	for i, h := range hits {
		assert.InDelta(t, scores[i], h.Similarity, 1e-9)
		if i > 0 {
			assert.GreaterOrEqual(t, hits[i-1].Similarity, h.Similarity)
		}
	}
}

func TestMemoryStore_TiesBreakByOrderIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doc := uuid.New()
	same := []float32{1, 0}
	require.NoError(t, store.Replace(ctx, doc, []models.Chunk{
		{OrderIndex: 2, Embedding: same},
		{OrderIndex: 0, Embedding: same},
		{OrderIndex: 1, Embedding: same},
	}))

	hits, err := store.Search(ctx, []float32{1, 0}, 3, &doc)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].OrderIndex, hits[1].OrderIndex, hits[2].OrderIndex})
}

func TestMemoryStore_EmptyCases(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doc := uuid.New()

	hits, err := store.Search(ctx, []float32{1, 0}, 3, &doc)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, store.Replace(ctx, doc, []models.Chunk{{Embedding: []float32{1, 0}}}))
	hits, err = store.Search(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexer_UpsertReplacesGeneration(t *testing.T) {
	ctx := context.Background()
	embedder := NewHashEmbedder(DefaultDimension)
	store := NewMemoryStore()
	ix := NewIndexer(embedder, store)
	doc := uuid.New()
	other := uuid.New()

	v1 := []models.Chunk{{ID: uuid.New(), Text: "generation one about transformers"}, {ID: uuid.New(), OrderIndex: 1, Text: "more transformers"}}
	v2 := []models.Chunk{{ID: uuid.New(), Text: "generation two about graph networks"}}
	require.NoError(t, ix.Upsert(ctx, doc, v1))
	require.NoError(t, ix.Upsert(ctx, other, []models.Chunk{{ID: uuid.New(), Text: "unrelated transformers"}}))
	require.NoError(t, ix.Upsert(ctx, doc, v2))

	q, err := embedder.Embed(ctx, "transformers")
	require.NoError(t, err)
	hits, err := ix.Search(ctx, q, 10, &doc)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, v2[0].ID, hits[0].ID)

	n, err := store.CountDocument(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ix.Count(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, len(v2), n)
}

func TestIndexer_ConcurrentUpsertsSameDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ix := NewIndexer(NewHashEmbedder(32), store)
	doc := uuid.New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			var chunks []models.Chunk
			for i := 0; i <= g; i++ {
				chunks = append(chunks, models.Chunk{ID: uuid.New(), OrderIndex: i, Text: fmt.Sprintf("gen %d chunk %d", g, i)})
			}
			assert.NoError(t, ix.Upsert(ctx, doc, chunks))
		}(g)
	}
	wg.Wait()

	q, _ := ix.Embedder().Embed(ctx, "gen chunk")
	hits, err := ix.Search(ctx, q, 100, &doc)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	// Every surviving chunk belongs to one generation.
	n, _ := store.CountDocument(ctx, doc)
	assert.Len(t, hits, n)
	prefix := hits[0].Text[:len("gen 0")]
	for _, h := range hits {
		assert.Equal(t, prefix, h.Text[:len(prefix)])
	}
}

func TestIndexer_SearchDimensionMismatch(t *testing.T) {
	ix := NewIndexer(NewHashEmbedder(8), NewMemoryStore())
	_, err := ix.Search(context.Background(), []float32{1, 0}, 3, nil)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1, math.Sqrt(Dot(v, v)), 1e-6)

	_, err = Normalize([]float32{0, 0})
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
	assert.Len(t, ContentHash(""), 64)
}
