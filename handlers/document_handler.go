package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"paperlens-backend/extractor"
	"paperlens-backend/service"
	"paperlens-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles HTTP requests for documents
type DocumentHandler struct {
	documents   *service.DocumentService
	storage     storage.Storage
	extractor   extractor.TextExtractor
	maxFileSize int64
	logger      *slog.Logger
}

// NewDocumentHandler creates a new document handler. store may be nil, in
// which case uploaded files are not kept.
func NewDocumentHandler(documents *service.DocumentService, store storage.Storage, ext extractor.TextExtractor, maxFileSize int64, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFileSize <= 0 {
		maxFileSize = 20 << 20
	}
	return &DocumentHandler{
		documents:   documents,
		storage:     store,
		extractor:   ext,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// SubmitTextRequest represents a document submitted as raw text
type SubmitTextRequest struct {
	Filename string `json:"filename"`
	RawText  string `json:"raw_text"`
}

// SubmitDocument handles POST /api/documents. It accepts either a multipart
// upload in the "file" field or a JSON body with raw text.
func (h *DocumentHandler) SubmitDocument(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.submitUpload(c)
		return
	}

	var req SubmitTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	h.submit(c, service.SubmitDocumentRequest{
		SessionID: sessionID(c),
		Filename:  req.Filename,
		RawText:   req.RawText,
	})
}

func (h *DocumentHandler) submitUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "NO_FILE", "No file provided")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_READ_ERROR", err.Error())
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	ctx := c.Request.Context()
	text, err := h.extractor.ExtractText(ctx, fileHeader.Filename, data)
	if err != nil {
		if errors.Is(err, extractor.ErrUnsupportedFormat) {
			respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "File type not allowed. Allowed types: PDF, TXT")
			return
		}
		respondError(c, http.StatusBadRequest, "EXTRACTION_FAILED", err.Error())
		return
	}

	req := service.SubmitDocumentRequest{
		DocumentID: uuid.New(),
		SessionID:  sessionID(c),
		Filename:   fileHeader.Filename,
		RawText:    text,
	}
	if h.storage != nil {
		path, err := h.storage.Save(ctx, req.DocumentID, fileHeader.Filename, bytes.NewReader(data))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", fmt.Sprintf("Failed to store file: %v", err))
			return
		}
		req.StoragePath = &path
	}

	if !h.submit(c, req) && req.StoragePath != nil {
		if err := h.storage.Delete(ctx, *req.StoragePath); err != nil {
			h.logger.Warn("failed to clean up upload", "path", *req.StoragePath, "error", err)
		}
	}
}

// submit writes the 202 response and reports whether the document was stored
func (h *DocumentHandler) submit(c *gin.Context, req service.SubmitDocumentRequest) bool {
	result, err := h.documents.SubmitDocument(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return false
	}
	respondOK(c, http.StatusAccepted, gin.H{
		"document_id": result.Document.ID,
		"task_id":     result.Task.ID,
		"status":      result.Task.Status,
	})
	return true
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	docs, err := h.documents.ListDocuments(c.Request.Context(), service.ListDocumentsRequest{
		SessionID: sessionID(c),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, docs)
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, doc)
}

// ReprocessDocument handles POST /api/documents/:id/reprocess
func (h *DocumentHandler) ReprocessDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.documents.Reprocess(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{
		"document_id": id,
		"task_id":     task.ID,
		"status":      task.Status,
	})
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
