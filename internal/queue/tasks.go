package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/models"
	"pdf-rag-platform/services"
)

const (
	TaskIngestDocument = "document:ingest"

	QueueCritical = "critical"
)

type IngestPayload struct {
	TenantID string `json:"tenant_id"`
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// NewIngestTask wraps an uploaded PDF for background ingestion.
func NewIngestTask(tenantID, filename string, data []byte) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		TenantID: tenantID,
		Filename: filename,
		Data:     data,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueCritical),
		asynq.Retention(24*time.Hour),
	), nil
}

// Ingestor is the part of the pipeline the worker drives.
type Ingestor interface {
	ProcessDocument(ctx context.Context, data []byte, filename, tenantID string) (*models.IngestResult, error)
}

type TaskProcessor struct {
	ingestor Ingestor
}

func NewTaskProcessor(ingestor Ingestor) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor}
}

func (p *TaskProcessor) IngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Ingesting document from queue", "tenant_id", payload.TenantID, "filename", payload.Filename)

	result, err := p.ingestor.ProcessDocument(ctx, payload.Data, payload.Filename, payload.TenantID)
	if err != nil {
		// A broken or empty PDF fails the same way on every attempt.
		if errors.Is(err, services.ErrInvalidInput) || errors.Is(err, services.ErrExtraction) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if w := t.ResultWriter(); w != nil {
		body, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if _, err := w.Write(body); err != nil {
			logger.Warn("Failed to record task result", "task_id", w.TaskID(), "error", err)
		}
	}

	logger.Info("Document ingested from queue", "document_id", result.DocumentID, "chunks", result.StoredCount)
	return nil
}

// TaskStatus is what clients see when polling an async ingestion.
type TaskStatus struct {
	TaskID string               `json:"task_id"`
	Status string               `json:"status"`
	Result *models.IngestResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
	Retry  int                  `json:"retried"`
}

// Inspector is the subset of *asynq.Inspector used to read task state.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// ErrTaskNotFound is returned when the task id is unknown or expired.
var ErrTaskNotFound = errors.New("task not found")

// LookupTask reports the state of an ingestion task. Tasks belonging to a
// different tenant are reported as not found.
func LookupTask(inspector Inspector, taskID, tenantID string) (*TaskStatus, error) {
	info, err := inspector.GetTaskInfo(QueueCritical, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return taskStatus(info, tenantID)
}

func taskStatus(info *asynq.TaskInfo, tenantID string) (*TaskStatus, error) {
	var payload IngestPayload
	if err := json.Unmarshal(info.Payload, &payload); err != nil || payload.TenantID != tenantID {
		return nil, ErrTaskNotFound
	}

	status := &TaskStatus{TaskID: info.ID, Retry: info.Retried, Error: info.LastErr}
	switch info.State {
	case asynq.TaskStateCompleted:
		status.Status = models.StatusCompleted
		if len(info.Result) > 0 {
			var result models.IngestResult
			if err := json.Unmarshal(info.Result, &result); err == nil {
				status.Result = &result
			}
		}
	case asynq.TaskStateActive:
		status.Status = models.StatusProcessing
	case asynq.TaskStateArchived:
		status.Status = models.StatusFailed
	default:
		status.Status = models.StatusPending
	}
	return status, nil
}
