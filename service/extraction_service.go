package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"
	"paperlens-backend/retrieval"

	"github.com/google/uuid"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Section names whose text stands in for a paper's methodology and its
// conclusions in gap analysis.
var (
	methodSections     = []string{"methodology", "system_model", "architecture", "implementation", "experiments", "evaluation"}
	conclusionSections = []string{"conclusion", "future_work", "limitations", "discussion", "summary"}
)

// ExtractionService runs the per-document and cross-document extractions
type ExtractionService struct {
	documents    DocumentStore
	results      ResultStore
	collections  CollectionStore
	tasks        *TaskManager
	orchestrator *Orchestrator
	retriever    *retrieval.Retriever
	logger       *slog.Logger
}

// ExtractionServiceOption is a functional option for ExtractionService
type ExtractionServiceOption func(*ExtractionService)

// ExtractWithDocumentStore sets the document store
func ExtractWithDocumentStore(store DocumentStore) ExtractionServiceOption {
	return func(s *ExtractionService) {
		s.documents = store
	}
}

// ExtractWithResultStore sets the result store
func ExtractWithResultStore(store ResultStore) ExtractionServiceOption {
	return func(s *ExtractionService) {
		s.results = store
	}
}

// ExtractWithCollectionStore sets the collection store
func ExtractWithCollectionStore(store CollectionStore) ExtractionServiceOption {
	return func(s *ExtractionService) {
		s.collections = store
	}
}

// ExtractWithTaskManager sets the task manager
func ExtractWithTaskManager(m *TaskManager) ExtractionServiceOption {
	return func(s *ExtractionService) {
		s.tasks = m
	}
}

// ExtractWithOrchestrator sets the orchestrator
func ExtractWithOrchestrator(o *Orchestrator) ExtractionServiceOption {
	return func(s *ExtractionService) {
		s.orchestrator = o
	}
}

// ExtractWithRetriever sets the retriever used for gap analysis context
func ExtractWithRetriever(r *retrieval.Retriever) ExtractionServiceOption {
	return func(s *ExtractionService) {
		s.retriever = r
	}
}

// ExtractWithLogger sets the logger
func ExtractWithLogger(logger *slog.Logger) ExtractionServiceOption {
	return func(s *ExtractionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewExtractionService creates an extraction service and registers its
// task types with the task manager
func NewExtractionService(opts ...ExtractionServiceOption) *ExtractionService {
	s := &ExtractionService{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.tasks != nil {
		s.tasks.Register(models.TaskExtractDatasets, s.runField(models.ResultDatasets))
		s.tasks.Register(models.TaskExtractLicenses, s.runField(models.ResultLicenses))
		s.tasks.Register(models.TaskExtractMethodology, s.runMethodology)
		s.tasks.Register(models.TaskSectionSummaries, s.runSectionSummaries)
		s.tasks.Register(models.TaskGlobalSummary, s.runGlobalSummary)
		s.tasks.Register(models.TaskGapAnalysis, s.runGapAnalysis)
	}
	return s
}

func (s *ExtractionService) ready() error {
	switch {
	case s.documents == nil:
		return errors.New("document store not set")
	case s.results == nil:
		return errors.New("result store not set")
	case s.tasks == nil:
		return errors.New("task manager not set")
	case s.orchestrator == nil:
		return errors.New("orchestrator not set")
	}
	return nil
}

// processedDocument loads a document and requires it to be processed
func (s *ExtractionService) processedDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if doc.Status != models.DocumentProcessed {
		return nil, fmt.Errorf("%w: status is %s", ErrDocumentNotProcessed, doc.Status)
	}
	return doc, nil
}

// ExtractFieldRequest represents a request to extract one field of a document
type ExtractFieldRequest struct {
	DocumentID uuid.UUID
	Field      string
}

var fieldTasks = map[string]models.TaskType{
	string(models.ResultDatasets):    models.TaskExtractDatasets,
	string(models.ResultLicenses):    models.TaskExtractLicenses,
	string(models.ResultMethodology): models.TaskExtractMethodology,
}

// ExtractField queues the extraction of datasets, licenses or methodology
func (s *ExtractionService) ExtractField(ctx context.Context, req ExtractFieldRequest) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	taskType, ok := fieldTasks[req.Field]
	if !ok {
		return nil, apperrors.NewInvalidInput("field", "must be one of datasets, licenses, methodology")
	}
	if _, err := s.processedDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}
	return s.tasks.Submit(ctx, taskType, req.DocumentID)
}

// ExtractAllSections queues section summarization. When it completes it
// queues the global summary.
func (s *ExtractionService) ExtractAllSections(ctx context.Context, documentID uuid.UUID) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.processedDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.tasks.Submit(ctx, models.TaskSectionSummaries, documentID)
}

// AnalyzeGaps queues a gap analysis over a collection. Collections with
// fewer than two processed documents are refused before any task exists.
func (s *ExtractionService) AnalyzeGaps(ctx context.Context, collectionID uuid.UUID) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	coll, err := s.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(coll.DocumentIDs) < 2 {
		return nil, &apperrors.InsufficientInputError{What: "gap analysis documents", Need: 2, Have: len(coll.DocumentIDs)}
	}
	docs, err := s.processedDocuments(ctx, coll.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) < 2 {
		return nil, &apperrors.InsufficientInputError{What: "gap analysis processed documents", Need: 2, Have: len(docs)}
	}
	return s.tasks.Submit(ctx, models.TaskGapAnalysis, collectionID)
}

// processedDocuments loads the processed documents among ids, skipping the rest
func (s *ExtractionService) processedDocuments(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.processedDocument(ctx, id)
		switch {
		case err == nil:
			docs = append(docs, doc)
		case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrDocumentNotProcessed):
			s.logger.Debug("skipping document", "document_id", id, "reason", err)
		default:
			return nil, err
		}
	}
	return docs, nil
}

// GetResult looks up a stored result. A missing result is reported as
// models.ResultAbsent, not as an error.
func (s *ExtractionService) GetResult(ctx context.Context, ownerID uuid.UUID, resultType string) (*models.ExtractionResult, models.ResultState, error) {
	if s.results == nil {
		return nil, "", errors.New("result store not set")
	}
	if !models.ValidResultType(resultType) {
		return nil, "", apperrors.NewInvalidInput("type", fmt.Sprintf("unknown result type %q", resultType))
	}
	r, err := s.results.Get(ctx, ownerID, models.ResultType(resultType))
	if err != nil {
		if isNotFound(err) {
			return nil, models.ResultAbsent, nil
		}
		return nil, "", err
	}
	return r, r.State(), nil
}

// CreateCollectionRequest represents a request to create a collection
type CreateCollectionRequest struct {
	SessionID   string
	Name        string
	DocumentIDs []uuid.UUID
}

// CreateCollection stores a named set of existing documents
func (s *ExtractionService) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*models.Collection, error) {
	if s.collections == nil || s.documents == nil {
		return nil, errors.New("collection store not set")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewInvalidInput("name", "must not be empty")
	}
	ids := uniqueIDs(req.DocumentIDs)
	for _, id := range ids {
		if _, err := s.documents.GetByID(ctx, id); err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
			}
			return nil, err
		}
	}
	c := &models.Collection{
		ID:          uuid.New(),
		SessionID:   req.SessionID,
		Name:        name,
		DocumentIDs: ids,
	}
	if err := s.collections.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return c, nil
}

// GetCollection returns a collection
func (s *ExtractionService) GetCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	if s.collections == nil {
		return nil, errors.New("collection store not set")
	}
	c, err := s.collections.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrCollectionNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ExtractionService) store(ctx context.Context, task *models.Task, ownerID uuid.UUID, t models.ResultType, value any, noneFound bool) error {
	r := &models.ExtractionResult{OwnerID: ownerID, Type: t, NoneFound: noneFound, TaskID: &task.ID}
	if !noneFound {
		payload, err := models.NewPayload(value)
		if err != nil {
			return fmt.Errorf("encode %s result: %w", t, err)
		}
		r.Value = payload
	}
	if err := s.results.Upsert(ctx, r); err != nil {
		return fmt.Errorf("failed to store %s result: %w", t, err)
	}
	return nil
}

func (s *ExtractionService) runField(field models.ResultType) TaskFunc {
	return func(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error) {
		doc, err := s.processedDocument(ctx, task.OwnerID)
		if err != nil {
			return nil, err
		}
		progress("extracting " + string(field))
		res, err := s.orchestrator.ExtractField(ctx, doc, field)
		if err != nil {
			return nil, err
		}
		if err := s.store(ctx, task, doc.ID, field, models.ItemList{Items: res.Items}, res.NoneFound); err != nil {
			return nil, err
		}
		return res, nil
	}
}

// MethodologyResult is the task result of a methodology extraction
type MethodologyResult struct {
	Methodology *models.Methodology `json:"methodology,omitempty"`
	NoneFound   bool                `json:"none_found"`
}

func (s *ExtractionService) runMethodology(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error) {
	doc, err := s.processedDocument(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	progress("extracting methodology")
	m, err := s.orchestrator.ExtractMethodology(ctx, doc)
	if err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		if err := s.store(ctx, task, doc.ID, models.ResultMethodology, nil, true); err != nil {
			return nil, err
		}
		return MethodologyResult{NoneFound: true}, nil
	}
	if err := s.store(ctx, task, doc.ID, models.ResultMethodology, m, false); err != nil {
		return nil, err
	}
	return MethodologyResult{Methodology: &m}, nil
}

func (s *ExtractionService) runSectionSummaries(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error) {
	doc, err := s.processedDocument(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.orchestrator.SummarizeSections(ctx, doc, progress)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		if err := s.store(ctx, task, doc.ID, models.ResultSectionSummaries, nil, true); err != nil {
			return nil, err
		}
		return models.SectionSummaries{}, nil
	}

	// The global summary task is created before the summaries are stored so
	// its id is part of the payload, and queued only after they are stored.
	// An active global summary task is reused; it reads the summaries when
	// it runs.
	global, err := s.tasks.Create(ctx, models.TaskGlobalSummary, doc.ID)
	if errors.Is(err, ErrTaskInProgress) {
		global, err = s.activeTask(ctx, doc.ID, models.TaskGlobalSummary)
	}
	if err != nil {
		return nil, err
	}
	payload := models.SectionSummaries{Sections: summaries, GlobalSummaryTaskID: &global.ID}
	if err := s.store(ctx, task, doc.ID, models.ResultSectionSummaries, payload, false); err != nil {
		return nil, err
	}
	if global.Status == models.TaskPending && !s.tasks.Enqueue(global.ID) {
		s.logger.Warn("global summary task left pending", "task_id", global.ID)
	}
	return payload, nil
}

func (s *ExtractionService) activeTask(ctx context.Context, ownerID uuid.UUID, t models.TaskType) (*models.Task, error) {
	active, err := s.tasks.ActiveTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, task := range active {
		if task.Type == t {
			return task, nil
		}
	}
	return nil, fmt.Errorf("%w: %s for %s finished meanwhile", ErrTaskInProgress, t, ownerID)
}

func (s *ExtractionService) runGlobalSummary(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error) {
	doc, err := s.processedDocument(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	stored, state, err := s.GetResult(ctx, doc.ID, string(models.ResultSectionSummaries))
	if err != nil {
		return nil, err
	}
	if state != models.ResultPresent {
		return nil, &apperrors.InsufficientInputError{What: "global summary section summaries", Need: 1, Have: 0}
	}
	var sections models.SectionSummaries
	if err := stored.Value.Decode(&sections); err != nil {
		return nil, fmt.Errorf("decode section summaries: %w", err)
	}

	progress("summarizing paper")
	summary, err := s.orchestrator.GlobalSummary(ctx, doc.DisplayTitle(), sections.Sections)
	if err != nil {
		return nil, err
	}
	result := models.GlobalSummary{Summary: summary}
	if err := s.store(ctx, task, doc.ID, models.ResultGlobalSummary, result, false); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ExtractionService) runGapAnalysis(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error) {
	coll, err := s.GetCollection(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	docs, err := s.processedDocuments(ctx, coll.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) < 2 {
		return nil, &apperrors.InsufficientInputError{What: "gap analysis processed documents", Need: 2, Have: len(docs)}
	}

	progress("gathering paper context")
	papers := make([]GapPaper, 0, len(docs))
	var methods []models.Methodology
	for _, doc := range docs {
		paper, m, err := s.gapPaper(ctx, doc)
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
		if m != nil {
			methods = append(methods, *m)
		}
	}

	progress("analyzing gaps")
	report, err := s.orchestrator.AnalyzeGaps(ctx, papers)
	if err != nil {
		return nil, err
	}
	result := models.GapAnalysis{
		Analysis:            report,
		PaperCount:          len(papers),
		MissingCombinations: MissingCombinations(methods, maxMissingCombinations),
		CommonLimitations:   CommonLimitations(methods),
	}
	if err := s.store(ctx, task, coll.ID, models.ResultGapAnalysis, result, false); err != nil {
		return nil, err
	}
	return result, nil
}

// gapPaper builds one paper's gap analysis input from its methodology and
// conclusion sections, retrieving from the paper when a kind of section is
// missing. A stored methodology extraction is returned alongside.
func (s *ExtractionService) gapPaper(ctx context.Context, doc *models.Document) (GapPaper, *models.Methodology, error) {
	paper := GapPaper{
		Title:       doc.DisplayTitle(),
		Methodology: sectionText(doc, methodSections),
		Conclusions: sectionText(doc, conclusionSections),
	}

	var err error
	if paper.Methodology == "" {
		if paper.Methodology, err = s.retrieveText(ctx, doc.ID, "methodology approach model experimental setup"); err != nil {
			return GapPaper{}, nil, err
		}
	}
	if paper.Conclusions == "" {
		if paper.Conclusions, err = s.retrieveText(ctx, doc.ID, "conclusion limitations future work"); err != nil {
			return GapPaper{}, nil, err
		}
	}

	stored, state, err := s.GetResult(ctx, doc.ID, string(models.ResultMethodology))
	if err != nil || state != models.ResultPresent {
		return paper, nil, err
	}
	var m models.Methodology
	if err := stored.Value.Decode(&m); err != nil {
		return GapPaper{}, nil, fmt.Errorf("decode methodology of %s: %w", doc.ID, err)
	}
	if m.Summary != "" {
		paper.Methodology = strings.TrimSpace(m.Summary + "\n" + paper.Methodology)
	}
	return paper, &m, nil
}

func (s *ExtractionService) retrieveText(ctx context.Context, documentID uuid.UUID, query string) (string, error) {
	if s.retriever == nil {
		return "", nil
	}
	passages, err := s.retriever.Retrieve(ctx, query, 0, &documentID)
	if err != nil {
		return "", fmt.Errorf("retrieve gap context: %w", err)
	}
	return retrieval.JoinPassages(passages, gapPaperChars), nil
}

// sectionText joins the text of the document's sections with the given names
func sectionText(doc *models.Document, names []string) string {
	var parts []string
	for _, sec := range doc.Sections {
		for _, n := range names {
			if sec.Name == n {
				parts = append(parts, strings.TrimSpace(sec.Text))
				break
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
