package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"askdoc/internal/retrieval"
)

// Candidate is a retrieval candidate enriched with an LLM relevance
// judgment. Combined blends the two scores with the configured weight.
type Candidate struct {
	retrieval.Candidate
	LLMScore float64 `json:"llm_score"`
	Combined float64 `json:"combined_score"`
}

// Result carries the reranked candidates. FellBack is set when LLM
// scoring was skipped or discarded wholesale and the candidates keep
// their original vector ordering.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	FellBack   bool        `json:"fell_back"`
}

// Generator is the LLM scoring capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Option func(*Reranker)

// WithMaxFailureFraction sets the fraction of candidates that may fail
// LLM scoring before the whole rerank falls back to vector order.
func WithMaxFailureFraction(f float64) Option {
	return func(r *Reranker) {
		if f >= 0 && f <= 1 {
			r.maxFailFraction = f
		}
	}
}

// WithConcurrency bounds the number of in-flight scoring calls.
func WithConcurrency(n int) Option {
	return func(r *Reranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

type Reranker struct {
	llm             Generator
	maxFailFraction float64
	concurrency     int
}

func New(llm Generator, opts ...Option) *Reranker {
	r := &Reranker{
		llm:             llm,
		maxFailFraction: 0.5,
		concurrency:     4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const scorePrompt = `You judge how relevant a passage is to a question.
Respond with a single number between 0.0 and 1.0 and nothing else.
1.0 means the passage directly answers the question, 0.0 means it is unrelated.

Question: %s

Passage:
%s

Relevance score:`

// Rerank scores each candidate with the LLM and orders the result by
// combined = (1-weight)*vector + weight*llm, descending. The sort is
// stable, so ties keep their vector order. Candidates whose score the
// model fails to produce keep their vector score; if more than the
// configured fraction fail, the whole call falls back to the input
// ordering with FellBack set.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []retrieval.Candidate, weight float64) Result {
	if len(candidates) == 0 {
		return Result{Candidates: []Candidate{}}
	}
	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	if r.llm == nil {
		return fallback(candidates)
	}

	scores := make([]float64, len(candidates))
	oks := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			prompt := fmt.Sprintf(scorePrompt, question, c.Text)
			raw, err := r.llm.Generate(gctx, prompt)
			if err != nil {
				slog.WarnContext(gctx, "llm scoring failed", "candidate", i, "error", err)
				return nil
			}
			if v, ok := ParseScore(raw); ok {
				scores[i] = v
				oks[i] = true
			} else {
				slog.WarnContext(gctx, "unparseable llm score", "candidate", i, "response", raw)
			}
			return nil
		})
	}
	// Goroutines never return errors; failures are per-candidate.
	_ = g.Wait()

	failed := 0
	for _, ok := range oks {
		if !ok {
			failed++
		}
	}
	if float64(failed) > r.maxFailFraction*float64(len(candidates)) {
		slog.WarnContext(ctx, "rerank fell back to vector order",
			"failed", failed, "total", len(candidates))
		return fallback(candidates)
	}

	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		llmScore := scores[i]
		if !oks[i] {
			llmScore = c.Score
		}
		out[i] = Candidate{
			Candidate: c,
			LLMScore:  llmScore,
			Combined:  (1-weight)*c.Score + weight*llmScore,
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Combined > out[b].Combined
	})
	return Result{Candidates: out}
}

// fallback relabels the candidates in place of an LLM judgment: the
// vector score stands in for both scores and the order is unchanged.
func fallback(candidates []retrieval.Candidate) Result {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = Candidate{Candidate: c, LLMScore: c.Score, Combined: c.Score}
	}
	return Result{Candidates: out, FellBack: true}
}
