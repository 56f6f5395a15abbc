package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"askdoc/internal/retrieval"
	"askdoc/internal/vector"
)

// Store implements the vector index on Weaviate. Vectors are supplied
// by the embedder (the class vectorizer is "none") and similarity is
// read back as certainty, which Weaviate already normalizes to [0, 1].
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Insert(ctx context.Context, records []retrieval.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, len(records))
	for i, r := range records {
		objects[i] = &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":    r.Text,
				"chunkId":    r.ChunkID,
				"documentId": r.DocumentID,
				"source":     r.Source,
				"chunkIndex": r.ChunkIndex,
				"createdAt":  r.CreatedAt.Format(time.RFC3339),
			},
			Vector: r.Vector,
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, errors.Join(retrieval.ErrIndexUnavailable, err)
	}

	inserted := 0
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			continue
		}
		inserted++
	}
	if inserted < len(records) {
		return inserted, fmt.Errorf("%w: %d of %d objects rejected",
			retrieval.ErrIndexUnavailable, len(records)-inserted, len(records))
	}
	return inserted, nil
}

func (s *Store) Search(ctx context.Context, vec []float32, topK int) ([]retrieval.Candidate, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, errors.Join(retrieval.ErrIndexUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql error: %v", retrieval.ErrIndexUnavailable, res.Errors)
	}

	candidates := []retrieval.Candidate{}
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return candidates, nil
	}
	rows, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return candidates, nil
	}

	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		var c retrieval.Candidate
		if content, ok := props["content"].(string); ok {
			c.Text = content
		}
		if source, ok := props["source"].(string); ok {
			c.Source = source
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			// Depending on version the client hands certainty back as
			// a float or a string.
			switch v := additional["certainty"].(type) {
			case float64:
				c.Score = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					c.Score = f
				}
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Clear drops the chunk class and recreates it empty.
func (s *Store) Clear(ctx context.Context) error {
	if err := vector.Reset(ctx, vector.NewWeaviateClientAdapter(s.client)); err != nil {
		return errors.Join(retrieval.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, errors.Join(retrieval.ErrIndexUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("%w: graphql error: %v", retrieval.ErrIndexUnavailable, res.Errors)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[vector.ClassName].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}

func (s *Store) DeleteBySource(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	if err != nil {
		return errors.Join(retrieval.ErrIndexUnavailable, err)
	}
	return nil
}
