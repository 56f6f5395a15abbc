package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"askdoc/internal/jobs"
	"askdoc/internal/middleware"
	"askdoc/internal/worker"
)

type Service struct {
	repo     Repository
	ingester Ingester
	purger   ChunkPurger
	jobs     *jobs.Registry
	extract  TextExtractor

	// When pub is set, ingestion goes through NSQ and the worker
	// consumer. Otherwise it runs in a detached goroutine.
	pub EventPublisher
}

func NewService(repo Repository, ingester Ingester, purger ChunkPurger, registry *jobs.Registry, extract TextExtractor) *Service {
	return &Service{
		repo:     repo,
		ingester: ingester,
		purger:   purger,
		jobs:     registry,
		extract:  extract,
	}
}

// WithPublisher switches ingestion to the async NSQ path.
func (s *Service) WithPublisher(pub EventPublisher) *Service {
	s.pub = pub
	return s
}

// IngestText registers a plain-text document and starts ingesting it.
// Returns the tracking job id immediately; progress is observable
// through the job registry.
func (s *Service) IngestText(ctx context.Context, name, text string) (*Document, string, error) {
	return s.create(ctx, name, "txt", text, contentHash(text))
}

// Upload extracts text from an uploaded file and starts ingesting it.
// The dedup hash covers the raw bytes, so re-uploading the same file
// is rejected even if extraction changes between versions.
func (s *Service) Upload(ctx context.Context, name, format string, data []byte) (*Document, string, error) {
	text, err := s.extract.Extract(format, data)
	if err != nil {
		return nil, "", err
	}
	return s.create(ctx, name, format, text, contentHash(string(data)))
}

func (s *Service) create(ctx context.Context, name, format, text, hash string) (*Document, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyDocument
	}

	exists, err := s.repo.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, "", err
	}
	if exists {
		return nil, "", ErrDuplicate
	}

	doc := &Document{
		Name:        name,
		Format:      format,
		Status:      "processing",
		ContentHash: hash,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, "", err
	}

	job := s.jobs.Start(doc.ID)

	if s.pub != nil {
		if err := s.publishIngest(ctx, job.ID, doc, text); err != nil {
			s.jobs.Fail(job.ID, "failed to queue ingestion")
			if serr := s.repo.UpdateStatus(ctx, doc.ID, "error"); serr != nil {
				slog.ErrorContext(ctx, "status update failed", "error", serr, "document_id", doc.ID)
			}
			return nil, "", err
		}
		slog.InfoContext(ctx, "queued ingest task", "job_id", job.ID, "document_id", doc.ID)
		return doc, job.ID, nil
	}

	// Detach from the request context so the pipeline survives the
	// HTTP response.
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.ingester.Ingest(bg, job.ID, doc.ID, doc.Name, text); err != nil {
			slog.ErrorContext(bg, "ingest failed", "error", err, "job_id", job.ID, "document_id", doc.ID)
			if serr := s.repo.UpdateStatus(bg, doc.ID, "error"); serr != nil {
				slog.ErrorContext(bg, "status update failed", "error", serr, "document_id", doc.ID)
			}
			return
		}
		if serr := s.repo.UpdateStatus(bg, doc.ID, "ready"); serr != nil {
			slog.ErrorContext(bg, "status update failed", "error", serr, "document_id", doc.ID)
		}
	}()

	return doc, job.ID, nil
}

func (s *Service) publishIngest(ctx context.Context, jobID string, doc *Document, text string) error {
	payload, err := json.Marshal(worker.IngestTaskPayload{
		JobID:         jobID,
		DocumentID:    doc.ID,
		Name:          doc.Name,
		Text:          text,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(worker.TopicIngestTask, payload); err != nil {
		return fmt.Errorf("publish ingest task: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete purges the document's chunks from the index, then soft
// deletes the row. Order matters: a row without chunks is harmless, a
// deleted row with live chunks would keep answering questions.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.purger.DeleteBySource(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
