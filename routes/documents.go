package routes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"pdf-rag-platform/internal/ai"
	"pdf-rag-platform/internal/config"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/queue"
	"pdf-rag-platform/middleware"
	"pdf-rag-platform/models"
	"pdf-rag-platform/services"
	"pdf-rag-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

const maxTopK = 50

// DocumentService is the pipeline surface the HTTP layer drives.
type DocumentService interface {
	ProcessDocument(ctx context.Context, data []byte, filename, tenantID string) (*models.IngestResult, error)
	Answer(ctx context.Context, documentID, tenantID, question string, topK int) (*models.AnswerResult, error)
	DeleteDocument(ctx context.Context, documentID, tenantID string) (int, error)
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type QueryRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Question   string `json:"question" binding:"required"`
	TopK       int    `json:"top_k"`
}

type DocumentHandler struct {
	cfg       *config.Config
	svc       DocumentService
	enqueuer  TaskEnqueuer
	inspector queue.Inspector
}

// NewDocumentHandler builds the handlers. enqueuer and inspector may be nil,
// in which case the async routes are not registered.
func NewDocumentHandler(cfg *config.Config, svc DocumentService, enqueuer TaskEnqueuer, inspector queue.Inspector) *DocumentHandler {
	return &DocumentHandler{cfg: cfg, svc: svc, enqueuer: enqueuer, inspector: inspector}
}

func SetupDocumentRoutes(router *gin.Engine, h *DocumentHandler, authMiddleware *middleware.AuthMiddleware, extra ...gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(authMiddleware.RequireTenant())
	api.Use(extra...)

	upload := middleware.RequestSizeLimit(h.cfg.MaxFileSize + 1<<20)
	api.POST("/documents", upload, h.UploadDocument)
	api.POST("/query", h.Query)
	api.DELETE("/documents/:documentID", h.DeleteDocument)

	if h.enqueuer != nil && h.inspector != nil {
		api.POST("/documents/async", upload, h.UploadDocumentAsync)
		api.GET("/documents/tasks/:taskID", h.TaskStatus)
	}
}

func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	data, filename, ok := h.readUpload(c)
	if !ok {
		return
	}

	ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	result, err := h.svc.ProcessDocument(ctx, data, filename, tenantID)
	if err != nil {
		respondWithPipelineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *DocumentHandler) UploadDocumentAsync(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	data, filename, ok := h.readUpload(c)
	if !ok {
		return
	}

	task, err := queue.NewIngestTask(tenantID, filename, data)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to create processing task", nil)
		return
	}

	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	info, err := h.enqueuer.EnqueueContext(ctx, task)
	if err != nil {
		logger.Error("Failed to enqueue ingestion", "error", err, "tenant_id", tenantID, "request_id", middleware.GetRequestID(c))
		utils.RespondWithUnavailable(c, "queue_error", "Failed to enqueue processing task")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "PDF upload accepted for processing",
		"task_id":  info.ID,
		"status":   models.StatusPending,
		"filename": filename,
		"size":     len(data),
	})
}

func (h *DocumentHandler) TaskStatus(c *gin.Context) {
	status, err := queue.LookupTask(h.inspector, c.Param("taskID"), middleware.GetTenantID(c))
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			utils.RespondWithNotFound(c, "Task not found")
			return
		}
		logger.Error("Task lookup failed", "error", err, "task_id", c.Param("taskID"))
		utils.RespondWithUnavailable(c, "queue_error", "Unable to read task state")
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *DocumentHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		utils.RespondWithBadRequest(c, "top_k must be between 0 and 50", gin.H{"top_k": req.TopK})
		return
	}

	ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	result, err := h.svc.Answer(ctx, req.DocumentID, middleware.GetTenantID(c), req.Question, req.TopK)
	if err != nil {
		respondWithPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	documentID := c.Param("documentID")

	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	n, err := h.svc.DeleteDocument(ctx, documentID, middleware.GetTenantID(c))
	if err != nil {
		respondWithPipelineError(c, err)
		return
	}
	if n == 0 {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}

	c.JSON(http.StatusOK, models.DeleteResult{DocumentID: documentID, Deleted: n})
}

// readUpload validates the multipart "file" field and returns its bytes. On
// failure the response has already been written.
func (h *DocumentHandler) readUpload(c *gin.Context) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondTooLarge(c, h.cfg.MaxFileSize)
			return nil, "", false
		}
		utils.RespondWithError(c, http.StatusBadRequest, "no_file", "No PDF file provided", nil)
		return nil, "", false
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type", "Only PDF files are allowed", nil)
		return nil, "", false
	}
	if header.Size > h.cfg.MaxFileSize {
		respondTooLarge(c, h.cfg.MaxFileSize)
		return nil, "", false
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxFileSize+1))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_file", "Cannot read uploaded file", nil)
		return nil, "", false
	}
	if int64(len(data)) > h.cfg.MaxFileSize {
		respondTooLarge(c, h.cfg.MaxFileSize)
		return nil, "", false
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_pdf", "File does not appear to be a valid PDF", nil)
		return nil, "", false
	}

	return data, filename, true
}

func respondTooLarge(c *gin.Context, maxSize int64) {
	utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
		"File size exceeds maximum limit", gin.H{"max_size": maxSize})
}

// respondWithPipelineError maps pipeline error kinds onto HTTP statuses.
func respondWithPipelineError(c *gin.Context, err error) {
	kind := services.ErrorKind(err)
	switch kind {
	case "invalid_input":
		utils.RespondWithBadRequest(c, err.Error(), nil)
	case "extraction_error", "chunking_error":
		utils.RespondWithUnprocessable(c, kind, err.Error())
	case "not_found":
		utils.RespondWithNotFound(c, "No relevant content for this document")
	case "embedding_error", "generation_error":
		if errors.Is(err, ai.ErrCircuitOpen) {
			utils.RespondWithUnavailable(c, kind, "AI provider temporarily unavailable")
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			utils.RespondWithError(c, http.StatusGatewayTimeout, "timeout", "Request timed out", nil)
			return
		}
		logger.Error("AI provider call failed", "error", err, "request_id", middleware.GetRequestID(c))
		utils.RespondWithError(c, http.StatusBadGateway, kind, "AI provider call failed", nil)
	case "store_error":
		logger.Error("Vector store call failed", "error", err, "request_id", middleware.GetRequestID(c))
		utils.RespondWithUnavailable(c, kind, "Vector store unavailable")
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			utils.RespondWithError(c, http.StatusGatewayTimeout, "timeout", "Request timed out", nil)
			return
		}
		logger.Error("Unhandled pipeline error", "error", err, "request_id", middleware.GetRequestID(c))
		utils.RespondWithInternalError(c, "Internal server error", nil)
	}
}
