package document

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicate     = errors.New("duplicate document")
	ErrEmptyDocument = errors.New("document contains no text")
)

type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Format      string    `json:"format"`
	Status      string    `json:"status"` // processing, ready, error
	ContentHash string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Ingester runs the chunk/embed/index pipeline. Satisfied by the
// retrieval service.
type Ingester interface {
	Ingest(ctx context.Context, jobID, documentID, source, content string) error
}

// ChunkPurger removes a document's chunks from the vector index.
type ChunkPurger interface {
	DeleteBySource(ctx context.Context, documentID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// TextExtractor converts an uploaded file to plain text.
type TextExtractor interface {
	Extract(ext string, data []byte) (string, error)
}
