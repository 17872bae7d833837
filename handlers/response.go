package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"paperlens-backend/apperrors"
	"paperlens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHeader carries the opaque session token that scopes document lists
const SessionHeader = "X-Session-Token"

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps service errors onto HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	switch {
	case apperrors.IsInvalidInput(err):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrCollectionNotFound),
		errors.Is(err, apperrors.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case apperrors.IsInsufficientInput(err):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_INPUT", err.Error())
	case errors.Is(err, service.ErrDocumentNotProcessed):
		respondError(c, http.StatusConflict, "DOCUMENT_NOT_PROCESSED", err.Error())
	case errors.Is(err, service.ErrDocumentBusy):
		respondError(c, http.StatusConflict, "DOCUMENT_BUSY", err.Error())
	case errors.Is(err, service.ErrTaskInProgress):
		respondError(c, http.StatusConflict, "TASK_IN_PROGRESS", err.Error())
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// pathID parses a uuid path parameter, writing a 400 when it is malformed
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

func sessionID(c *gin.Context) string {
	return c.GetHeader(SessionHeader)
}
