package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

// NotExtracted marks a comparison cell whose extraction was never run
const NotExtracted = "not extracted"

// ComparisonKey derives the owner id of a comparison from its document set,
// independent of order.
func ComparisonKey(ids []uuid.UUID) uuid.UUID {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	slices.Sort(keys)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("comparison:"+strings.Join(keys, ",")))
}

// ComparisonResult is a stored comparison with its key
type ComparisonResult struct {
	Key        uuid.UUID          `json:"comparison_id"`
	Comparison *models.Comparison `json:"comparison"`
}

// GenerateComparison builds a comparison table from the stored methodology
// extractions of the given documents. It runs synchronously and stores the
// table under ComparisonKey.
func (s *ExtractionService) GenerateComparison(ctx context.Context, documentIDs []uuid.UUID) (*ComparisonResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ids := uniqueIDs(documentIDs)
	if len(ids) < 2 {
		return nil, &apperrors.InsufficientInputError{What: "comparison documents", Need: 2, Have: len(ids)}
	}

	rows := make([]models.ComparisonRow, 0, len(ids))
	for _, id := range ids {
		doc, err := s.documents.GetByID(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
			}
			return nil, err
		}
		stored, state, err := s.GetResult(ctx, id, string(models.ResultMethodology))
		if err != nil {
			return nil, err
		}
		row, err := comparisonRow(doc, stored, state)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	comparison := &models.Comparison{Rows: rows, Markdown: RenderComparison(rows)}
	key := ComparisonKey(ids)
	payload, err := models.NewPayload(comparison)
	if err != nil {
		return nil, err
	}
	if err := s.results.Upsert(ctx, &models.ExtractionResult{OwnerID: key, Type: models.ResultComparison, Value: payload}); err != nil {
		return nil, fmt.Errorf("failed to store comparison: %w", err)
	}
	return &ComparisonResult{Key: key, Comparison: comparison}, nil
}

func comparisonRow(doc *models.Document, stored *models.ExtractionResult, state models.ResultState) (models.ComparisonRow, error) {
	row := models.ComparisonRow{DocumentID: doc.ID, Title: doc.DisplayTitle(), Year: doc.Year}
	switch state {
	case models.ResultAbsent:
		row.Model, row.Datasets, row.Metrics, row.Results = NotExtracted, NotExtracted, NotExtracted, NotExtracted
	case models.ResultNoneFound:
		row.Model, row.Datasets, row.Metrics, row.Results = models.NoneFoundText, models.NoneFoundText, models.NoneFoundText, models.NoneFoundText
	default:
		var m models.Methodology
		if err := stored.Value.Decode(&m); err != nil {
			return row, fmt.Errorf("decode methodology of %s: %w", doc.ID, err)
		}
		row.Model = orNone(m.Model)
		row.Datasets = orNone(strings.Join(m.Datasets, ", "))
		row.Metrics = orNone(strings.Join(m.Metrics, ", "))
		row.Results = orNone(m.Results)
	}
	return row, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.NoneFoundText
	}
	return s
}

// RenderComparison renders rows as a markdown table
func RenderComparison(rows []models.ComparisonRow) string {
	var b strings.Builder
	b.WriteString("| Paper | Year | Model | Datasets | Metrics | Results |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range rows {
		year := ""
		if r.Year != nil {
			year = strconv.Itoa(*r.Year)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			cell(r.Title), year, cell(r.Model), cell(r.Datasets), cell(r.Metrics), cell(r.Results))
	}
	return b.String()
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func cell(s string) string {
	return cellReplacer.Replace(strings.TrimSpace(s))
}
