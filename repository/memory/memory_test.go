package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := &models.Document{SessionID: "s1", Filename: "paper.pdf", RawText: "text", Status: models.DocumentUnprocessed}
	require.NoError(t, s.Create(ctx, doc))
	require.NotEqual(t, uuid.Nil, doc.ID)

	sections := []models.Section{{ID: uuid.New(), DocumentID: doc.ID, Name: "abstract", Text: "a"}}
	require.NoError(t, s.ReplaceSections(ctx, doc.ID, sections))

	year := 2021
	require.NoError(t, s.UpdatePaperInfo(ctx, doc.ID, models.PaperInfo{Title: "T", Authors: []string{"A"}, Year: &year, Venue: "V"}))
	reason := "not a paper"
	require.NoError(t, s.UpdateStatus(ctx, doc.ID, models.DocumentRejected, &reason))

	got, err := s.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.DisplayTitle())
	assert.Equal(t, models.StringList{"A"}, got.Authors)
	assert.Equal(t, 2021, *got.Year)
	assert.Equal(t, models.DocumentRejected, got.Status)
	assert.Equal(t, "not a paper", *got.RejectionReason)
	assert.Len(t, got.Sections, 1)

	// Returned values are copies.
	got.Sections[0].Name = "changed"
	again, err := s.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "abstract", again.Sections[0].Name)

	require.NoError(t, s.ReplaceSections(ctx, doc.ID, nil))
	again, err = s.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Sections)
}

func TestDocumentStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	_, err := s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.UpdateStatus(ctx, uuid.New(), models.DocumentProcessed, nil), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.ReplaceSections(ctx, uuid.New(), nil), apperrors.ErrNotFound)
}

func TestDocumentStore_ListBySession(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, &models.Document{SessionID: "a", Filename: "f"}))
	}
	require.NoError(t, s.Create(ctx, &models.Document{SessionID: "b", Filename: "f"}))

	docs, err := s.List(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = s.List(ctx, "a", 2, 2)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = s.List(ctx, "a", 2, 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTaskStore_Transitions(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := &models.Task{Type: models.TaskExtractDatasets, OwnerID: uuid.New()}
	require.NoError(t, s.Create(ctx, task))
	assert.Equal(t, models.TaskPending, task.Status)

	// Progress is only recorded on running tasks.
	assert.ErrorIs(t, s.UpdateProgress(ctx, task.ID, "step"), apperrors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Complete(ctx, task.ID, nil), apperrors.ErrInvalidTransition)

	claimed, ok, err := s.Claim(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TaskRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	_, ok, err = s.Claim(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpdateProgress(ctx, task.ID, "extracting"))
	require.NoError(t, s.Complete(ctx, task.ID, models.Payload(`{"items":[]}`)))
	assert.ErrorIs(t, s.Fail(ctx, task.ID, "late"), apperrors.ErrInvalidTransition)

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.Equal(t, "extracting", *got.CurrentStep)
	assert.JSONEq(t, `{"items":[]}`, string(got.Result))
	assert.Nil(t, got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestTaskStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := &models.Task{Type: models.TaskGapAnalysis, OwnerID: uuid.New()}
	require.NoError(t, s.Create(ctx, task))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := s.Claim(ctx, task.ID); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestTaskStore_ListByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	a := &models.Task{Type: models.TaskExtractDatasets, OwnerID: uuid.New()}
	b := &models.Task{Type: models.TaskExtractLicenses, OwnerID: uuid.New()}
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	_, _, err := s.Claim(ctx, b.ID)
	require.NoError(t, err)

	pending, err := s.ListByStatus(ctx, models.TaskPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)
}

func TestTaskStore_OneActivePerOwnerAndType(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	owner := uuid.New()
	first := &models.Task{Type: models.TaskProcessDocument, OwnerID: owner}
	require.NoError(t, s.Create(ctx, first))

	err := s.Create(ctx, &models.Task{Type: models.TaskProcessDocument, OwnerID: owner})
	assert.ErrorIs(t, err, apperrors.ErrActiveTask)
	require.NoError(t, s.Create(ctx, &models.Task{Type: models.TaskExtractDatasets, OwnerID: owner}))
	require.NoError(t, s.Create(ctx, &models.Task{Type: models.TaskProcessDocument, OwnerID: uuid.New()}))

	_, _, err = s.Claim(ctx, first.ID)
	require.NoError(t, err)
	err = s.Create(ctx, &models.Task{Type: models.TaskProcessDocument, OwnerID: owner})
	assert.ErrorIs(t, err, apperrors.ErrActiveTask)

	active, err := s.ListActiveByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, s.Fail(ctx, first.ID, "boom"))
	require.NoError(t, s.Create(ctx, &models.Task{Type: models.TaskProcessDocument, OwnerID: owner}))
}

func TestTaskStore_ConcurrentCreateAdmitsOne(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	owner := uuid.New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Create(ctx, &models.Task{Type: models.TaskGlobalSummary, OwnerID: owner}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestResultStore_UpsertAndSentinel(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore()
	owner := uuid.New()

	_, err := s.Get(ctx, owner, models.ResultDatasets)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, s.Upsert(ctx, &models.ExtractionResult{OwnerID: owner, Type: models.ResultDatasets, NoneFound: true}))
	got, err := s.Get(ctx, owner, models.ResultDatasets)
	require.NoError(t, err)
	assert.Equal(t, models.ResultNoneFound, got.State())

	require.NoError(t, s.Upsert(ctx, &models.ExtractionResult{OwnerID: owner, Type: models.ResultDatasets, Value: models.Payload(`{"items":["COCO"]}`)}))
	got, err = s.Get(ctx, owner, models.ResultDatasets)
	require.NoError(t, err)
	assert.Equal(t, models.ResultPresent, got.State())
	assert.JSONEq(t, `{"items":["COCO"]}`, string(got.Value))

	require.NoError(t, s.Upsert(ctx, &models.ExtractionResult{OwnerID: owner, Type: models.ResultLicenses, NoneFound: true}))
	require.NoError(t, s.DeleteByOwner(ctx, owner))
	_, err = s.Get(ctx, owner, models.ResultLicenses)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCollectionStore(t *testing.T) {
	ctx := context.Background()
	s := NewCollectionStore()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	c := &models.Collection{SessionID: "s", Name: "survey", DocumentIDs: ids}
	require.NoError(t, s.Create(ctx, c))

	ids[0] = uuid.Nil
	got, err := s.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.DocumentIDs[0])
	assert.Equal(t, "survey", got.Name)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
