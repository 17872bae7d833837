package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"paperlens-backend/apperrors"
	"paperlens-backend/llm"
	"paperlens-backend/models"
	"paperlens-backend/parser"
	"paperlens-backend/prompts"
	"paperlens-backend/retrieval"

	"golang.org/x/sync/errgroup"
)

const (
	classifyChars      = 4000
	paperInfoChars     = 6000
	fieldContextChars  = 12000
	methodologyChars   = 12000
	sectionChars       = 8000
	gapPaperChars      = 1500
	summaryConcurrency = 2
)

// Context sources reported by extraction
const (
	SourceRetrieval = "retrieval"
	SourceKeywords  = "keywords"
	SourceFullText  = "full_text"
	SourceNone      = "none"
)

type fieldSpec struct {
	queries  []string
	keywords *regexp.Regexp
	window   int
	limit    int
}

var fieldSpecs = map[models.ResultType]fieldSpec{
	models.ResultDatasets: {
		queries: []string{
			"datasets used for training and evaluation",
			"benchmark corpus and data collection",
			"experimental setup and data sources",
		},
		keywords: regexp.MustCompile(`(?i)dataset|benchmark|corpus|evaluation set|imagenet|coco|mnist|cifar|squad|glue|mimic|chestx-ray|common crawl|wikipedia|data availability|we use the|downloaded from|available at|experimental setup|data collection`),
		window:   800,
		limit:    25,
	},
	models.ResultLicenses: {
		queries: []string{
			"software license and copyright terms",
			"code and data availability",
			"released under an open source license",
		},
		keywords: regexp.MustCompile(`(?i)creative commons|creativecommons\.org|cc[- ]?by|cc[- ]?0|mit license|apache[- ]2|gnu|gpl|bsd|public domain|proprietary|all rights reserved|©|copyright|licensed? under|terms of use|code availability|data availability|github\.com|source code|non-commercial|commercial use|redistribution`),
		window:   1500,
		limit:    40,
	},
	models.ResultMethodology: {
		queries: []string{
			"proposed method and model architecture",
			"experimental setup datasets and evaluation metrics",
			"main results accuracy compared to baselines",
		},
		keywords: regexp.MustCompile(`(?i)we propose|our (method|model|approach)|architecture|trained on|we evaluate|accuracy|baseline|metric|experiment`),
		window:   800,
		limit:    20,
	},
}

// Orchestrator renders prompts, calls the language model and parses the
// answers into typed results.
type Orchestrator struct {
	provider  llm.Provider
	prompts   *prompts.Store
	retriever *retrieval.Retriever
	model     string
	topK      int
	logger    *slog.Logger
}

// OrchestratorOption is a functional option for Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithModel sets the model name passed to the provider
func WithModel(model string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.model = model
	}
}

// WithTopK sets how many chunks each retrieval query returns
func WithTopK(k int) OrchestratorOption {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithOrchestratorLogger sets the logger
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(provider llm.Provider, store *prompts.Store, retriever *retrieval.Retriever, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:  provider,
		prompts:   store,
		retriever: retriever,
		topK:      retrieval.DefaultK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) complete(ctx context.Context, name string, data prompts.Data) (string, error) {
	text, p, err := o.prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	resp, err := o.provider.Complete(ctx, text, llm.Config{
		Model:       o.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return resp, nil
}

// Classify runs the research-paper gate on the start of the text
func (o *Orchestrator) Classify(ctx context.Context, text string) (parser.Verdict, error) {
	resp, err := o.complete(ctx, prompts.Classify, prompts.Data{Context: truncate(text, classifyChars)})
	if err != nil {
		return parser.Verdict{}, err
	}
	verdict, err := parser.Classification(resp)
	if err != nil {
		return parser.Verdict{}, &apperrors.ParseError{TaskType: string(models.TaskProcessDocument), Field: "classification", Err: err}
	}
	return verdict, nil
}

// ExtractPaperInfo reads title, authors, year and venue from the first pages
func (o *Orchestrator) ExtractPaperInfo(ctx context.Context, text string) (models.PaperInfo, error) {
	resp, err := o.complete(ctx, prompts.PaperInfo, prompts.Data{Context: truncate(text, paperInfoChars)})
	if err != nil {
		return models.PaperInfo{}, err
	}
	info, err := parser.PaperInfo(resp)
	if err != nil {
		return models.PaperInfo{}, &apperrors.ParseError{TaskType: string(models.TaskProcessDocument), Field: "paper_info", Err: err}
	}
	return info, nil
}

// FieldResult is the outcome of a datasets or licenses extraction
type FieldResult struct {
	Items     []string `json:"items"`
	NoneFound bool     `json:"none_found"`
	Source    string   `json:"source"`
}

// ExtractField lists the datasets or licenses of a document. Context comes
// from retrieval, then keyword snippets of the raw text. With no context at
// all the result is the none-found sentinel and the model is not called.
func (o *Orchestrator) ExtractField(ctx context.Context, doc *models.Document, field models.ResultType) (*FieldResult, error) {
	spec, ok := fieldSpecs[field]
	if !ok || field == models.ResultMethodology {
		return nil, apperrors.NewInvalidInput("field", fmt.Sprintf("unsupported field %q", field))
	}

	text, source, err := o.gatherContext(ctx, doc, spec, 0)
	if err != nil {
		return nil, err
	}
	if source == SourceNone {
		o.logger.Info("no context for field, storing sentinel", "document_id", doc.ID, "field", field)
		return &FieldResult{NoneFound: true, Source: source}, nil
	}

	name := prompts.Datasets
	if field == models.ResultLicenses {
		name = prompts.Licenses
	}
	resp, err := o.complete(ctx, name, prompts.Data{Title: doc.DisplayTitle(), Context: text})
	if err != nil {
		return nil, err
	}
	items, noneFound, err := parser.ItemList(resp)
	if err != nil {
		return nil, &apperrors.ParseError{TaskType: string(field), Err: err}
	}
	return &FieldResult{Items: items, NoneFound: noneFound, Source: source}, nil
}

// ExtractMethodology extracts the structured methodology of a document.
// Context comes from retrieval, then keyword snippets, then the start of
// the raw text.
func (o *Orchestrator) ExtractMethodology(ctx context.Context, doc *models.Document) (models.Methodology, error) {
	text, _, err := o.gatherContext(ctx, doc, fieldSpecs[models.ResultMethodology], methodologyChars)
	if err != nil {
		return models.Methodology{}, err
	}
	resp, err := o.complete(ctx, prompts.Methodology, prompts.Data{Title: doc.DisplayTitle(), Context: text})
	if err != nil {
		return models.Methodology{}, err
	}
	m, err := parser.Methodology(resp)
	if err != nil {
		return models.Methodology{}, &apperrors.ParseError{TaskType: string(models.TaskExtractMethodology), Err: err}
	}
	return m, nil
}

// gatherContext walks the context ladder. fullTextChars > 0 enables the
// raw-text fallback.
func (o *Orchestrator) gatherContext(ctx context.Context, doc *models.Document, spec fieldSpec, fullTextChars int) (string, string, error) {
	if o.retriever != nil {
		passages, err := o.retriever.RetrieveAll(ctx, spec.queries, o.topK, &doc.ID)
		if err != nil {
			return "", "", fmt.Errorf("retrieve context: %w", err)
		}
		if len(passages) > 0 {
			return retrieval.JoinPassages(passages, fieldContextChars), SourceRetrieval, nil
		}
	}

	if snippets := keywordSnippets(doc.RawText, spec.keywords, spec.window, spec.limit); len(snippets) > 0 {
		return truncate(strings.Join(snippets, "\n---\n"), fieldContextChars), SourceKeywords, nil
	}

	if fullTextChars > 0 && strings.TrimSpace(doc.RawText) != "" {
		return truncate(doc.RawText, fullTextChars), SourceFullText, nil
	}
	return "", SourceNone, nil
}

// SummarizeSections produces bullet summaries for every non-empty section,
// in section order.
func (o *Orchestrator) SummarizeSections(ctx context.Context, doc *models.Document, progress ProgressFunc) ([]models.SectionSummary, error) {
	results := make([]*models.SectionSummary, len(doc.Sections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, section := range doc.Sections {
		if strings.TrimSpace(section.Text) == "" {
			continue
		}
		g.Go(func() error {
			if progress != nil {
				progress("summarizing " + section.Name)
			}
			resp, err := o.complete(gctx, prompts.SectionSummary, prompts.Data{
				Title:   doc.DisplayTitle(),
				Section: section.Name,
				Context: truncate(section.Text, sectionChars),
			})
			if err != nil {
				return err
			}
			bullets, err := parser.BulletList(resp)
			if err != nil {
				return &apperrors.ParseError{TaskType: string(models.TaskSectionSummaries), Field: section.Name, Err: err}
			}
			results[i] = &models.SectionSummary{SectionName: section.Name, OrderIndex: section.OrderIndex, Bullets: bullets}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]models.SectionSummary, 0, len(results))
	for _, r := range results {
		if r != nil {
			summaries = append(summaries, *r)
		}
	}
	return summaries, nil
}

// GlobalSummary condenses section summaries into one TL;DR paragraph
func (o *Orchestrator) GlobalSummary(ctx context.Context, title string, summaries []models.SectionSummary) (string, error) {
	if len(summaries) == 0 {
		return "", &apperrors.InsufficientInputError{What: "global summary section summaries", Need: 1, Have: 0}
	}
	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "Section: %s\n", s.SectionName)
		for _, bullet := range s.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
		b.WriteString("\n")
	}
	resp, err := o.complete(ctx, prompts.GlobalSummary, prompts.Data{Title: title, Context: b.String()})
	if err != nil {
		return "", err
	}
	summary, err := parser.Paragraph(resp)
	if err != nil {
		return "", &apperrors.ParseError{TaskType: string(models.TaskGlobalSummary), Err: err}
	}
	return summary, nil
}

// GapPaper is the per-paper input of a gap analysis
type GapPaper struct {
	Title       string
	Methodology string
	Conclusions string
}

// AnalyzeGaps synthesizes cross-paper research gaps as a markdown report
func (o *Orchestrator) AnalyzeGaps(ctx context.Context, papers []GapPaper) (string, error) {
	if len(papers) < 2 {
		return "", &apperrors.InsufficientInputError{What: "gap analysis documents", Need: 2, Have: len(papers)}
	}
	parts := make([]string, len(papers))
	for i, p := range papers {
		var b strings.Builder
		fmt.Fprintf(&b, "### Paper %d: %s\n", i+1, p.Title)
		if p.Methodology != "" {
			fmt.Fprintf(&b, "Methodology: %s\n", truncate(p.Methodology, gapPaperChars))
		}
		if p.Conclusions != "" {
			fmt.Fprintf(&b, "Conclusions: %s\n", truncate(p.Conclusions, gapPaperChars))
		}
		parts[i] = b.String()
	}
	resp, err := o.complete(ctx, prompts.GapAnalysis, prompts.Data{
		Context:    strings.Join(parts, "\n---\n\n"),
		PaperCount: len(papers),
	})
	if err != nil {
		return "", err
	}
	report, err := parser.Markdown(resp)
	if err != nil {
		return "", &apperrors.ParseError{TaskType: string(models.TaskGapAnalysis), Err: err}
	}
	return report, nil
}

// keywordSnippets returns windows of text around keyword matches, merged
// where they overlap.
func keywordSnippets(text string, keywords *regexp.Regexp, window, limit int) []string {
	if text == "" || keywords == nil {
		return nil
	}
	matches := keywords.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	type span struct{ start, end int }
	var merged []span
	for _, m := range matches {
		s := span{runeFloor(text, m[0]-window), runeFloor(text, m[1]+window)}
		if n := len(merged); n > 0 && s.start <= merged[n-1].end {
			merged[n-1].end = max(merged[n-1].end, s.end)
			continue
		}
		merged = append(merged, s)
	}

	snippets := make([]string, 0, min(len(merged), limit))
	for _, s := range merged {
		if len(snippets) == limit {
			break
		}
		snippet := strings.TrimSpace(strings.ReplaceAll(text[s.start:s.end], "\n", " "))
		if snippet != "" {
			snippets = append(snippets, snippet)
		}
	}
	return snippets
}

// runeFloor clamps i to [0, len(s)] and moves it back to a rune boundary.
func runeFloor(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeFloor(s, n)]
}

// isParseError reports whether err wraps an apperrors.ParseError
func isParseError(err error) bool {
	var pe *apperrors.ParseError
	return errors.As(err, &pe)
}
