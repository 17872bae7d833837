package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultType names a kind of stored extraction
type ResultType string

const (
	ResultMethodology      ResultType = "methodology"
	ResultSectionSummaries ResultType = "section_summaries"
	ResultDatasets         ResultType = "datasets"
	ResultLicenses         ResultType = "licenses"
	ResultGlobalSummary    ResultType = "global_summary"
	ResultGapAnalysis      ResultType = "gap_analysis"
	ResultComparison       ResultType = "comparison"
)

// ValidResultType reports whether t is a known result type
func ValidResultType(t string) bool {
	switch ResultType(t) {
	case ResultMethodology, ResultSectionSummaries, ResultDatasets, ResultLicenses,
		ResultGlobalSummary, ResultGapAnalysis, ResultComparison:
		return true
	}
	return false
}

// NoneFoundText is what users see for an attempted extraction that found nothing
const NoneFoundText = "None mentioned"

// ExtractionResult is a stored payload keyed by (owner, type). The owner is a
// document, a collection or a comparison key. NoneFound is the explicit
// "attempted, nothing found" sentinel and is never set together with Value.
type ExtractionResult struct {
	OwnerID   uuid.UUID  `json:"owner_id"`
	Type      ResultType `json:"type"`
	Value     Payload    `json:"value,omitempty"`
	NoneFound bool       `json:"none_found"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ResultState distinguishes absence from the sentinel
type ResultState string

const (
	ResultAbsent    ResultState = "absent"
	ResultNoneFound ResultState = "none_found"
	ResultPresent   ResultState = "present"
)

// State classifies a possibly nil result
func (r *ExtractionResult) State() ResultState {
	switch {
	case r == nil:
		return ResultAbsent
	case r.NoneFound:
		return ResultNoneFound
	default:
		return ResultPresent
	}
}

// Methodology is the structured methodology extraction of one paper
type Methodology struct {
	Datasets []string `json:"datasets"`
	Model    string   `json:"model"`
	Metrics  []string `json:"metrics"`
	Results  string   `json:"results"`
	Summary  string   `json:"summary"`
}

// IsEmpty reports whether the LLM found nothing at all
func (m Methodology) IsEmpty() bool {
	return len(m.Datasets) == 0 && m.Model == "" && len(m.Metrics) == 0 && m.Results == "" && m.Summary == ""
}

// SectionSummary is the bullet summary of one section
type SectionSummary struct {
	SectionName string   `json:"section_name"`
	OrderIndex  int      `json:"order_index"`
	Bullets     []string `json:"bullets"`
}

// SectionSummaries is the stored payload of a section_summaries result
type SectionSummaries struct {
	Sections            []SectionSummary `json:"sections"`
	GlobalSummaryTaskID *uuid.UUID       `json:"global_summary_task_id,omitempty"`
}

// GlobalSummary is the TL;DR synthesized from section summaries
type GlobalSummary struct {
	Summary string `json:"summary"`
}

// ItemList is the payload of datasets and licenses results
type ItemList struct {
	Items []string `json:"items"`
}

// MissingCombination is a dataset/model pair no paper in a collection evaluates
type MissingCombination struct {
	Dataset string `json:"dataset"`
	Model   string `json:"model"`
}

// GapAnalysis is the cross-paper synthesis attached to a collection
type GapAnalysis struct {
	Analysis            string               `json:"analysis"`
	PaperCount          int                  `json:"paper_count"`
	MissingCombinations []MissingCombination `json:"missing_combinations"`
	CommonLimitations   []string             `json:"common_limitations,omitempty"`
}

// ComparisonRow is one paper's line in a comparison table
type ComparisonRow struct {
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Year       *int      `json:"year,omitempty"`
	Model      string    `json:"model"`
	Datasets   string    `json:"datasets"`
	Metrics    string    `json:"metrics"`
	Results    string    `json:"results"`
}

// Comparison is the payload of a comparison result
type Comparison struct {
	Rows     []ComparisonRow `json:"rows"`
	Markdown string          `json:"markdown"`
}
