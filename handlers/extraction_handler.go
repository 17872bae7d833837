package handlers

import (
	"net/http"

	"paperlens-backend/models"
	"paperlens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExtractionHandler handles extraction, collection and comparison requests
type ExtractionHandler struct {
	extraction *service.ExtractionService
}

// NewExtractionHandler creates a new extraction handler
func NewExtractionHandler(extraction *service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extraction: extraction}
}

func taskAccepted(c *gin.Context, task *models.Task) {
	respondOK(c, http.StatusAccepted, gin.H{
		"task_id":   task.ID,
		"task_type": task.Type,
		"owner_id":  task.OwnerID,
		"status":    task.Status,
	})
}

// ExtractField handles POST /api/documents/:id/extract/:field
func (h *ExtractionHandler) ExtractField(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.extraction.ExtractField(c.Request.Context(), service.ExtractFieldRequest{
		DocumentID: id,
		Field:      c.Param("field"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	taskAccepted(c, task)
}

// ExtractAllSections handles POST /api/documents/:id/summaries
func (h *ExtractionHandler) ExtractAllSections(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.extraction.ExtractAllSections(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	taskAccepted(c, task)
}

// GetResult handles GET /api/results/:owner/:type. A result that was never
// produced is reported with state "absent" rather than as a 404.
func (h *ExtractionHandler) GetResult(c *gin.Context) {
	owner, ok := pathID(c, "owner")
	if !ok {
		return
	}
	resultType := c.Param("type")
	result, state, err := h.extraction.GetResult(c.Request.Context(), owner, resultType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	data := gin.H{
		"owner_id": owner,
		"type":     resultType,
		"state":    state,
		"value":    nil,
	}
	switch state {
	case models.ResultNoneFound:
		data["value"] = models.NoneFoundText
	case models.ResultPresent:
		data["value"] = result.Value
	}
	if result != nil {
		data["task_id"] = result.TaskID
		data["updated_at"] = result.UpdatedAt
	}
	respondOK(c, http.StatusOK, data)
}

// CreateCollectionRequest represents the request body for creating a collection
type CreateCollectionRequest struct {
	Name        string      `json:"name" binding:"required"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

// CreateCollection handles POST /api/collections
func (h *ExtractionHandler) CreateCollection(c *gin.Context) {
	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	coll, err := h.extraction.CreateCollection(c.Request.Context(), service.CreateCollectionRequest{
		SessionID:   sessionID(c),
		Name:        req.Name,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, coll)
}

// GetCollection handles GET /api/collections/:id
func (h *ExtractionHandler) GetCollection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	coll, err := h.extraction.GetCollection(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, coll)
}

// AnalyzeGaps handles POST /api/collections/:id/gaps
func (h *ExtractionHandler) AnalyzeGaps(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.extraction.AnalyzeGaps(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	taskAccepted(c, task)
}

// GenerateComparisonRequest represents the request body for a comparison
type GenerateComparisonRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids" binding:"required"`
}

// GenerateComparison handles POST /api/comparisons. It runs synchronously.
func (h *ExtractionHandler) GenerateComparison(c *gin.Context) {
	var req GenerateComparisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	result, err := h.extraction.GenerateComparison(c.Request.Context(), req.DocumentIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
