package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"askdoc/internal/middleware"
)

// Ingester runs the chunk/embed/index pipeline for one document.
type Ingester interface {
	Ingest(ctx context.Context, jobID, documentID, source, content string) error
}

// StatusUpdater records the document's terminal state in the database.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

type IngestConsumer struct {
	ingester Ingester
	status   StatusUpdater
	timeout  time.Duration
}

func NewIngestConsumer(i Ingester, s StatusUpdater) *IngestConsumer {
	return &IngestConsumer{
		ingester: i,
		status:   s,
		timeout:  10 * time.Minute,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	ingestCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.ingester.Ingest(ingestCtx, payload.JobID, payload.DocumentID, payload.Name, payload.Text); err != nil {
		slog.ErrorContext(ctx, "ingest failed", "error", err,
			"job_id", payload.JobID, "document_id", payload.DocumentID)
		// Ack rather than retry: the pipeline already indexed an
		// unknown number of chunks, so a redelivery would duplicate
		// them. The job tracker and document status carry the failure.
		if serr := h.status.UpdateStatus(ctx, payload.DocumentID, "error"); serr != nil {
			slog.ErrorContext(ctx, "status update failed", "error", serr, "document_id", payload.DocumentID)
		}
		return nil
	}

	if err := h.status.UpdateStatus(ctx, payload.DocumentID, "ready"); err != nil {
		// Same reasoning: the chunks are indexed, redelivery would
		// duplicate them for the sake of a status column.
		slog.ErrorContext(ctx, "status update failed", "error", err, "document_id", payload.DocumentID)
	}

	slog.InfoContext(ctx, "document ingested", "job_id", payload.JobID, "document_id", payload.DocumentID)
	return nil
}
