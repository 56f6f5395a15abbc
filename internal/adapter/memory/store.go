// Package memory holds an in-process vector index. It backs local
// development and tests where running Weaviate is overkill; behavior
// mirrors the Weaviate store, including [0, 1] score normalization.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"askdoc/internal/retrieval"
)

type Store struct {
	mu      sync.RWMutex
	records []retrieval.Record
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Insert(ctx context.Context, records []retrieval.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return len(records), nil
}

func (s *Store) Search(ctx context.Context, vec []float32, topK int) ([]retrieval.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := []retrieval.Candidate{}
	for _, r := range s.records {
		sim, ok := cosine(vec, r.Vector)
		if !ok {
			continue
		}
		candidates = append(candidates, retrieval.Candidate{
			Text:   r.Text,
			Source: r.Source,
			// Map [-1, 1] similarity onto the certainty scale
			Score: (sim + 1) / 2,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) DeleteBySource(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
