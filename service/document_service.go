package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"paperlens-backend/apperrors"
	"paperlens-backend/chunker"
	"paperlens-backend/embedding"
	"paperlens-backend/models"
	"paperlens-backend/segmenter"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentNotProcessed = errors.New("document has not been processed")
	ErrDocumentBusy         = errors.New("document has tasks in progress")
)

// ReasonNoText is the rejection reason for documents without extractable text
const ReasonNoText = "no extractable text"

// Pipeline steps reported as task progress
const (
	StepClassify  = "classifying"
	StepSegment   = "segmenting"
	StepChunk     = "chunking"
	StepEmbed     = "embedding"
	StepPaperInfo = "extracting paper info"
)

// DocumentService owns the document pipeline: rejection gate, segmentation,
// chunking, indexing and paper info extraction.
type DocumentService struct {
	documents    DocumentStore
	results      ResultStore
	tasks        *TaskManager
	indexer      *embedding.Indexer
	chunker      *chunker.Chunker
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// DocumentServiceOption is a functional option for DocumentService
type DocumentServiceOption func(*DocumentService)

// DocWithDocumentStore sets the document store
func DocWithDocumentStore(store DocumentStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.documents = store
	}
}

// DocWithResultStore sets the result store
func DocWithResultStore(store ResultStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.results = store
	}
}

// DocWithTaskManager sets the task manager
func DocWithTaskManager(m *TaskManager) DocumentServiceOption {
	return func(s *DocumentService) {
		s.tasks = m
	}
}

// DocWithIndexer sets the embedding indexer
func DocWithIndexer(ix *embedding.Indexer) DocumentServiceOption {
	return func(s *DocumentService) {
		s.indexer = ix
	}
}

// DocWithChunker sets the chunker
func DocWithChunker(c *chunker.Chunker) DocumentServiceOption {
	return func(s *DocumentService) {
		s.chunker = c
	}
}

// DocWithOrchestrator sets the orchestrator
func DocWithOrchestrator(o *Orchestrator) DocumentServiceOption {
	return func(s *DocumentService) {
		s.orchestrator = o
	}
}

// DocWithLogger sets the logger
func DocWithLogger(logger *slog.Logger) DocumentServiceOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDocumentService creates a document service and registers the pipeline
// task with its task manager
func NewDocumentService(opts ...DocumentServiceOption) *DocumentService {
	s := &DocumentService{
		chunker: chunker.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tasks != nil {
		s.tasks.Register(models.TaskProcessDocument, s.ProcessDocument)
	}
	return s
}

func (s *DocumentService) ready() error {
	switch {
	case s.documents == nil:
		return errors.New("document store not set")
	case s.tasks == nil:
		return errors.New("task manager not set")
	case s.indexer == nil:
		return errors.New("indexer not set")
	case s.orchestrator == nil:
		return errors.New("orchestrator not set")
	}
	return nil
}

// SubmitDocumentRequest represents an uploaded document's extracted text
type SubmitDocumentRequest struct {
	// DocumentID is optional; uploads pass the id their file was stored under
	DocumentID  uuid.UUID
	SessionID   string
	Filename    string
	StoragePath *string
	RawText     string
}

// SubmitDocumentResult holds the stored document and its pipeline task
type SubmitDocumentResult struct {
	Document *models.Document
	Task     *models.Task
}

// SubmitDocument stores the document and queues its pipeline task. It does
// not wait for processing; empty text is rejected by the task itself.
func (s *DocumentService) SubmitDocument(ctx context.Context, req SubmitDocumentRequest) (*SubmitDocumentResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "untitled"
	}
	id := req.DocumentID
	if id == uuid.Nil {
		id = uuid.New()
	}
	doc := &models.Document{
		ID:          id,
		SessionID:   req.SessionID,
		Filename:    filename,
		StoragePath: req.StoragePath,
		ContentHash: embedding.ContentHash(req.RawText),
		RawText:     req.RawText,
		Status:      models.DocumentUnprocessed,
		Authors:     models.StringList{},
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	task, err := s.tasks.Submit(ctx, models.TaskProcessDocument, doc.ID)
	if err != nil {
		return nil, err
	}
	return &SubmitDocumentResult{Document: doc, Task: task}, nil
}

// GetDocument returns a document with its sections
func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	if s.documents == nil {
		return nil, errors.New("document store not set")
	}
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// ListDocumentsRequest represents a request to list a session's documents
type ListDocumentsRequest struct {
	SessionID string
	Limit     int
	Offset    int
}

// ListDocuments lists documents newest first
func (s *DocumentService) ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]*models.Document, error) {
	if s.documents == nil {
		return nil, errors.New("document store not set")
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.documents.List(ctx, req.SessionID, limit, max(req.Offset, 0))
}

// Reprocess clears a document's derived results and queues its pipeline
// again. The chunk generation is swapped when the new run indexes. It
// returns ErrDocumentBusy while any task owned by the document is pending or
// running.
func (s *DocumentService) Reprocess(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	active, err := s.tasks.ActiveTasks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: %s %s is %s", ErrDocumentBusy, active[0].Type, active[0].ID, active[0].Status)
	}

	// The pipeline task is created first so that a concurrent Reprocess
	// loses on the store's one-active-task rule before anything is cleared.
	task, err := s.tasks.Create(ctx, models.TaskProcessDocument, id)
	if err != nil {
		if errors.Is(err, ErrTaskInProgress) {
			return nil, fmt.Errorf("%w: %w", ErrDocumentBusy, err)
		}
		return nil, err
	}
	if err := s.documents.UpdateStatus(ctx, id, models.DocumentUnprocessed, nil); err != nil {
		return nil, fmt.Errorf("failed to reset document status: %w", err)
	}
	if s.results != nil {
		if err := s.results.DeleteByOwner(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to clear results: %w", err)
		}
	}
	if !s.tasks.Enqueue(task.ID) {
		s.logger.Warn("task queue full, pipeline left pending for the sweep", "document_id", id, "task_id", task.ID)
	}
	return task, nil
}

// ProcessResult is the stored result of a pipeline task
type ProcessResult struct {
	DocumentID uuid.UUID             `json:"document_id"`
	Status     models.DocumentStatus `json:"status"`
	Title      string                `json:"title"`
	Sections   []string              `json:"sections"`
	Chunks     int                   `json:"chunks"`
}

// ProcessDocument runs the pipeline for the task's document. Each step
// consumes the previous step's output; a rejection stops the pipeline and
// fails the task with the rejection reason.
func (s *DocumentService) ProcessDocument(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error) {
	doc, err := s.GetDocument(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("document_id", doc.ID, "task_id", task.ID)

	if strings.TrimSpace(doc.RawText) == "" {
		return nil, s.reject(ctx, doc, ReasonNoText)
	}

	progress(StepClassify)
	verdict, err := s.orchestrator.Classify(ctx, doc.RawText)
	if err != nil {
		return nil, err
	}
	if !verdict.Research {
		return nil, s.reject(ctx, doc, verdict.Reason)
	}

	progress(StepSegment)
	sections := segmenter.Segment(doc.RawText)
	if len(sections) == 0 {
		return nil, s.reject(ctx, doc, ReasonNoText)
	}
	for i := range sections {
		sections[i].ID = uuid.New()
		sections[i].DocumentID = doc.ID
	}
	if err := s.documents.ReplaceSections(ctx, doc.ID, sections); err != nil {
		return nil, fmt.Errorf("failed to store sections: %w", err)
	}

	progress(StepChunk)
	chunks, err := s.chunker.Chunk(sections)
	if err != nil {
		return nil, err
	}

	progress(StepEmbed)
	if err := s.indexer.Upsert(ctx, doc.ID, chunks); err != nil {
		return nil, err
	}
	indexed, err := s.indexer.Count(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	if indexed != len(chunks) {
		return nil, fmt.Errorf("indexed %d chunks, expected %d", indexed, len(chunks))
	}

	progress(StepPaperInfo)
	info, err := s.orchestrator.ExtractPaperInfo(ctx, doc.RawText)
	switch {
	case err == nil:
		if err := s.documents.UpdatePaperInfo(ctx, doc.ID, info); err != nil {
			return nil, fmt.Errorf("failed to store paper info: %w", err)
		}
		if info.Title != "" {
			doc.Title = &info.Title
		}
	case isParseError(err):
		logger.Warn("paper info not parsed, keeping filename as title", "error", err)
	default:
		return nil, err
	}

	if err := s.documents.UpdateStatus(ctx, doc.ID, models.DocumentProcessed, nil); err != nil {
		return nil, fmt.Errorf("failed to mark document processed: %w", err)
	}

	names := make([]string, len(sections))
	for i, sec := range sections {
		names[i] = sec.Name
	}
	logger.Info("document processed", "sections", len(sections), "chunks", indexed)
	return ProcessResult{
		DocumentID: doc.ID,
		Status:     models.DocumentProcessed,
		Title:      doc.DisplayTitle(),
		Sections:   names,
		Chunks:     indexed,
	}, nil
}

// reject records a rejected document and returns the error that fails its task
func (s *DocumentService) reject(ctx context.Context, doc *models.Document, reason string) error {
	s.logger.Info("document rejected", "document_id", doc.ID, "reason", reason)
	if err := s.indexer.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if err := s.documents.ReplaceSections(ctx, doc.ID, nil); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, models.DocumentRejected, &reason); err != nil {
		return fmt.Errorf("failed to mark document rejected: %w", err)
	}
	return &apperrors.RejectedDocumentError{Reason: reason}
}
