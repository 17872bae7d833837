//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"paperlens-backend/apperrors"
	"paperlens-backend/embedding"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDimension = 8

var testPool *pgxpool.Pool

// TestMain starts a pgvector Postgres container shared by all tests.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "paperlens",
				"POSTGRES_PASSWORD": "paperlens",
				"POSTGRES_DB":       "paperlens",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	url := fmt.Sprintf("postgres://paperlens:paperlens@%s:%s/paperlens?sslmode=disable", host, port.Port())
	testPool, err = Connect(ctx, url)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	if err := EnsureSchema(ctx, testPool, testDimension); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	// A second run must be a no-op
	if err := EnsureSchema(ctx, testPool, testDimension); err != nil {
		log.Fatalf("Schema is not idempotent: %v", err)
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createDocument(t *testing.T) *models.Document {
	t.Helper()
	doc := &models.Document{
		SessionID:   "session",
		Filename:    "paper.pdf",
		ContentHash: embedding.ContentHash("text"),
		RawText:     "text",
		Status:      models.DocumentUnprocessed,
	}
	require.NoError(t, NewDocumentRepository(testPool).Create(context.Background(), doc))
	return doc
}

func unit(i int) []float32 {
	v := make([]float32, testDimension)
	v[i%testDimension] = 1
	return v
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(testPool)
	doc := createDocument(t)

	sections := []models.Section{
		{ID: uuid.New(), Name: "abstract", OrderIndex: 0, Text: "a"},
		{ID: uuid.New(), Name: "methodology", OrderIndex: 1, Text: "m"},
	}
	require.NoError(t, repo.ReplaceSections(ctx, doc.ID, sections))

	year := 2022
	require.NoError(t, repo.UpdatePaperInfo(ctx, doc.ID, models.PaperInfo{Title: "Title", Authors: []string{"A", "B"}, Year: &year}))
	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, models.DocumentProcessed, nil))

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Title", got.DisplayTitle())
	assert.Equal(t, models.StringList{"A", "B"}, got.Authors)
	assert.Equal(t, 2022, *got.Year)
	assert.Nil(t, got.Venue)
	assert.Equal(t, models.DocumentProcessed, got.Status)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "methodology", got.Sections[1].Name)

	require.NoError(t, repo.ReplaceSections(ctx, doc.ID, nil))
	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Sections)

	docs, err := repo.List(ctx, "session", 100, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), models.DocumentProcessed, nil), apperrors.ErrNotFound)
}

func TestChunkRepository_ReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(testPool)
	doc := createDocument(t)
	other := createDocument(t)

	chunks := []models.Chunk{
		{ID: uuid.New(), SectionName: "abstract", OrderIndex: 0, Text: "zero", Embedding: unit(0)},
		{ID: uuid.New(), SectionName: "methodology", OrderIndex: 1, Text: "one", Embedding: unit(1)},
		{ID: uuid.New(), SectionName: "methodology", OrderIndex: 2, Text: "one again", Embedding: unit(1)},
	}
	require.NoError(t, repo.Replace(ctx, doc.ID, chunks))
	require.NoError(t, repo.Replace(ctx, other.ID, []models.Chunk{{ID: uuid.New(), SectionName: "x", Text: "other", Embedding: unit(1)}}))

	hits, err := repo.Search(ctx, unit(1), 2, &doc.ID)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "one", hits[0].Text)
	assert.Equal(t, "one again", hits[1].Text)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, doc.ID, hits[0].DocumentID)

	all, err := repo.Search(ctx, unit(1), 10, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 4)

	// A new generation replaces the old one entirely
	require.NoError(t, repo.Replace(ctx, doc.ID, chunks[:1]))
	n, err := repo.CountDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.DeleteDocument(ctx, doc.ID))
	n, err = repo.CountDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChunkRepository_ConcurrentReplace(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(testPool)
	doc := createDocument(t)

	var wg sync.WaitGroup
	for g := 1; g <= 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var gen []models.Chunk
			for i := 0; i < g; i++ {
				gen = append(gen, models.Chunk{ID: uuid.New(), SectionName: "s", OrderIndex: i, Text: "t", Embedding: unit(i)})
			}
			assert.NoError(t, repo.Replace(ctx, doc.ID, gen))
		}()
	}
	wg.Wait()

	// Exactly one generation survives
	n, err := repo.CountDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2, 3, 4}, n)
	hits, err := repo.Search(ctx, unit(0), 10, &doc.ID)
	require.NoError(t, err)
	assert.Len(t, hits, n)
}

func TestChunkRepository_DocumentSearchIsExact(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(testPool)

	// Enough near neighbours in other documents to fill any index candidate
	// list before the target's chunks are reached.
	for d := 0; d < 100; d++ {
		distractor := createDocument(t)
		chunks := make([]models.Chunk, 20)
		for i := range chunks {
			v := unit(0)
			v[1] = float32(d*20+i+1) / 10000
			chunks[i] = models.Chunk{ID: uuid.New(), SectionName: "body", OrderIndex: i, Text: "distractor", Embedding: v}
		}
		require.NoError(t, repo.Replace(ctx, distractor.ID, chunks))
	}

	target := createDocument(t)
	require.NoError(t, repo.Replace(ctx, target.ID, []models.Chunk{
		{ID: uuid.New(), SectionName: "abstract", OrderIndex: 0, Text: "three", Embedding: unit(3)},
		{ID: uuid.New(), SectionName: "methodology", OrderIndex: 1, Text: "four", Embedding: unit(4)},
		{ID: uuid.New(), SectionName: "conclusion", OrderIndex: 2, Text: "five", Embedding: unit(5)},
	}))

	hits, err := repo.Search(ctx, unit(0), 3, &target.ID)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, target.ID, h.DocumentID)
		assert.Equal(t, i, h.OrderIndex)
		assert.InDelta(t, 0.0, h.Similarity, 1e-6)
	}
}

func TestTaskRepository_OneActivePerOwnerAndType(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(testPool)
	owner := uuid.New()
	first := &models.Task{Type: models.TaskProcessDocument, OwnerID: owner}
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, &models.Task{Type: models.TaskProcessDocument, OwnerID: owner})
	assert.ErrorIs(t, err, apperrors.ErrActiveTask)
	require.NoError(t, repo.Create(ctx, &models.Task{Type: models.TaskExtractDatasets, OwnerID: owner}))

	active, err := repo.ListActiveByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)

	_, ok, err := repo.Claim(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Fail(ctx, first.ID, "boom"))
	require.NoError(t, repo.Create(ctx, &models.Task{Type: models.TaskProcessDocument, OwnerID: owner}))
}

func TestTaskRepository_Transitions(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(testPool)
	task := &models.Task{Type: models.TaskExtractDatasets, OwnerID: uuid.New()}
	require.NoError(t, repo.Create(ctx, task))

	assert.ErrorIs(t, repo.Complete(ctx, task.ID, nil), apperrors.ErrInvalidTransition)

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Claim(ctx, task.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	require.NoError(t, repo.UpdateProgress(ctx, task.ID, "extracting"))
	require.NoError(t, repo.Complete(ctx, task.ID, models.Payload(`{"items":["COCO"]}`)))
	assert.ErrorIs(t, repo.Fail(ctx, task.ID, "late"), apperrors.ErrInvalidTransition)

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.JSONEq(t, `{"items":["COCO"]}`, string(got.Result))
	assert.Equal(t, "extracting", *got.CurrentStep)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	_, _, err = repo.Claim(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTaskRepository_ListPending(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(testPool)
	task := &models.Task{Type: models.TaskGapAnalysis, OwnerID: uuid.New()}
	require.NoError(t, repo.Create(ctx, task))

	pending, err := repo.ListByStatus(ctx, models.TaskPending)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, task.ID)
}

func TestResultRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository(testPool)
	owner := uuid.New()
	taskID := uuid.New()

	require.NoError(t, repo.Upsert(ctx, &models.ExtractionResult{OwnerID: owner, Type: models.ResultLicenses, NoneFound: true, TaskID: &taskID}))
	got, err := repo.Get(ctx, owner, models.ResultLicenses)
	require.NoError(t, err)
	assert.Equal(t, models.ResultNoneFound, got.State())
	assert.Nil(t, got.Value)
	assert.Equal(t, taskID, *got.TaskID)

	require.NoError(t, repo.Upsert(ctx, &models.ExtractionResult{OwnerID: owner, Type: models.ResultLicenses, Value: models.Payload(`{"items":["MIT"]}`)}))
	got, err = repo.Get(ctx, owner, models.ResultLicenses)
	require.NoError(t, err)
	assert.Equal(t, models.ResultPresent, got.State())
	assert.JSONEq(t, `{"items":["MIT"]}`, string(got.Value))
	assert.Nil(t, got.TaskID)

	require.NoError(t, repo.DeleteByOwner(ctx, owner))
	_, err = repo.Get(ctx, owner, models.ResultLicenses)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCollectionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCollectionRepository(testPool)
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	c := &models.Collection{SessionID: "session", Name: "survey", DocumentIDs: ids}
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, got.DocumentIDs)
	assert.Equal(t, "survey", got.Name)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
