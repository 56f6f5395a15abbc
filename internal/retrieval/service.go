package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"askdoc/internal/text"
)

var (
	// ErrEmbeddingUnavailable marks failures of the embedding backend.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	// ErrIndexUnavailable marks failures of the vector index backend.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrUnavailable wraps any backend failure surfaced by Query.
	ErrUnavailable = errors.New("retrieval unavailable")
	// ErrInvalidInput is returned for empty questions or a non-positive topK.
	ErrInvalidInput = errors.New("invalid retrieval input")
)

// Candidate is one passage returned by vector search. Score is a
// normalized similarity in [0, 1], higher is more similar.
type Candidate struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Record is the unit persisted in the vector index: one chunk plus its
// embedding and provenance.
type Record struct {
	ChunkID    string
	DocumentID string
	Source     string
	Text       string
	ChunkIndex int
	Vector     []float32
	CreatedAt  time.Time
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorIndex interface {
	Insert(ctx context.Context, records []Record) (int, error)
	Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	DeleteBySource(ctx context.Context, documentID string) error
}

// JobTracker receives progress updates during ingestion.
type JobTracker interface {
	Update(id string, progress int, message string)
	Complete(id, message string)
	Fail(id, message string)
}

type Service struct {
	embedder  Embedder
	index     VectorIndex
	jobs      JobTracker
	logger    *QueryLogger
	maxChars  int
	overlap   int
	batchSize int
}

func NewService(e Embedder, idx VectorIndex, jobs JobTracker, maxChars, overlap, batchSize int) *Service {
	if batchSize < 1 {
		batchSize = 16
	}
	return &Service{
		embedder:  e,
		index:     idx,
		jobs:      jobs,
		maxChars:  maxChars,
		overlap:   overlap,
		batchSize: batchSize,
	}
}

// WithQueryLogger attaches an append-only query log consulted by Query.
func (s *Service) WithQueryLogger(l *QueryLogger) *Service {
	s.logger = l
	return s
}

// Ingest chunks a document, embeds the chunks in batches and inserts
// them into the vector index, reporting progress to the job tracker.
// Chunks inserted before a mid-stream failure are not rolled back;
// re-ingesting the same document is expected to be preceded by a
// DeleteBySource for its id.
func (s *Service) Ingest(ctx context.Context, jobID, documentID, source, content string) error {
	// 1. Chunk
	chunks := text.Split(documentID, content, s.maxChars, s.overlap)
	if len(chunks) == 0 {
		s.jobs.Complete(jobID, "document contained no indexable text")
		return nil
	}
	s.jobs.Update(jobID, 10, fmt.Sprintf("split into %d chunks", len(chunks)))

	// 2. Embed and insert, batch by batch
	inserted := 0
	now := time.Now().UTC()
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.jobs.Fail(jobID, fmt.Sprintf("embedding failed: %v", err))
			return fmt.Errorf("embed batch at chunk %d: %w", start, err)
		}

		records := make([]Record, len(batch))
		for i, c := range batch {
			records[i] = Record{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Source:     source,
				Text:       c.Text,
				ChunkIndex: c.Index,
				Vector:     vectors[i],
				CreatedAt:  now,
			}
		}

		n, err := s.index.Insert(ctx, records)
		if err != nil {
			s.jobs.Fail(jobID, fmt.Sprintf("index insert failed: %v", err))
			return fmt.Errorf("insert batch at chunk %d: %w", start, err)
		}
		inserted += n

		// 3. Progress: embedding spans 10..95
		progress := 10 + (85*end)/len(chunks)
		s.jobs.Update(jobID, progress, fmt.Sprintf("indexed %d/%d chunks", end, len(chunks)))
	}

	s.jobs.Complete(jobID, fmt.Sprintf("indexed %d chunks", inserted))
	slog.InfoContext(ctx, "document ingested", "document_id", documentID, "chunks", inserted)
	return nil
}

// Query embeds the question and returns the topK most similar passages.
func (s *Service) Query(ctx context.Context, question string, topK int) ([]Candidate, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidInput)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: topK must be at least 1", ErrInvalidInput)
	}

	start := time.Now()

	// 1. Embed question
	vectors, err := s.embedder.EmbedBatch(ctx, []string{question})
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one input", ErrUnavailable, len(vectors))
	}

	// 2. Vector search
	candidates, err := s.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      question,
			TopK:       topK,
			NumResults: len(candidates),
			Duration:   time.Since(start),
		})
	}
	return candidates, nil
}
