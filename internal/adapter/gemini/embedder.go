package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/generative-ai-go/genai"

	"askdoc/internal/retrieval"
)

// Embedder embeds text batches with a Gemini embedding model. A batch
// either succeeds as a whole or fails as a whole.
type Embedder struct {
	client *Client
	model  string
	dim    int
}

// NewEmbedder wires an embedder for the given model. dim > 0 enables
// strict dimensionality validation of returned vectors.
func NewEmbedder(client *Client, model string, dim int) *Embedder {
	return &Embedder{client: client, model: model, dim: dim}
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	slog.DebugContext(ctx, "embedding batch", "model", e.model, "size", len(texts))

	cl, err := e.client.get(ctx)
	if err != nil {
		return nil, errors.Join(retrieval.ErrEmbeddingUnavailable, err)
	}

	em := cl.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		slog.ErrorContext(ctx, "batch embedding failed", "error", err)
		return nil, errors.Join(retrieval.ErrEmbeddingUnavailable, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			retrieval.ErrEmbeddingUnavailable, len(res.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", retrieval.ErrEmbeddingUnavailable, i)
		}
		if e.dim > 0 && len(emb.Values) != e.dim {
			return nil, fmt.Errorf("%w: embedding at index %d has dimension %d, want %d",
				retrieval.ErrEmbeddingUnavailable, i, len(emb.Values), e.dim)
		}
		for _, v := range emb.Values {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: non-finite value in embedding at index %d",
					retrieval.ErrEmbeddingUnavailable, i)
			}
		}
		out[i] = emb.Values
	}
	return out, nil
}
