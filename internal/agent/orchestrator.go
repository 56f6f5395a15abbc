package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"askdoc/internal/rerank"
	"askdoc/internal/retrieval"
	"askdoc/internal/synthesize"
)

type Mode string

const (
	// ModeFast runs retrieval then streams the answer directly.
	ModeFast Mode = "fast"
	// ModeFull adds an analysis pass over the retrieved passages, a
	// drafted answer, and a coordination pass that streams the final
	// synthesis of both.
	ModeFull Mode = "full"
)

type Stage string

const (
	StageRetrieval    Stage = "retrieval"
	StageAnalysis     Stage = "analysis"
	StageAnswer       Stage = "answer"
	StageCoordination Stage = "coordination"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageEvent is emitted at each stage transition. Payload carries
// small stage-specific facts (candidate counts, fallback flags).
type StageEvent struct {
	Stage   Stage          `json:"stage"`
	Status  Status         `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StageError identifies which stage broke the pipeline.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of an Ask: the fragment stream plus the
// passages the answer was grounded on.
type Result struct {
	Stream     *synthesize.Stream
	Candidates []rerank.Candidate
	FellBack   bool
}

// Sources returns the distinct sources backing the answer, in rank
// order.
func (r *Result) Sources() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range r.Candidates {
		if c.Source == "" || seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		out = append(out, c.Source)
	}
	return out
}

type Retriever interface {
	Query(ctx context.Context, question string, topK int) ([]retrieval.Candidate, error)
}

type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []retrieval.Candidate, weight float64) rerank.Result
}

// Generator produces whole responses; used by the analysis and draft
// stages where streaming buys nothing.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Synthesizer interface {
	Stream(ctx context.Context, question string, passages []rerank.Candidate) (*synthesize.Stream, error)
	StreamPrompt(ctx context.Context, prompt string) (*synthesize.Stream, error)
}

type Option func(*Orchestrator)

// WithEventSink registers a callback for stage events. The sink is
// called synchronously and must not block.
func WithEventSink(sink func(StageEvent)) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithReranker enables the hybrid rerank step after retrieval.
func WithReranker(r Reranker) Option {
	return func(o *Orchestrator) { o.reranker = r }
}

type Orchestrator struct {
	retriever Retriever
	reranker  Reranker
	llm       Generator
	synth     Synthesizer
	topK      int
	llmWeight float64
	sink      func(StageEvent)
}

func New(retriever Retriever, llm Generator, synth Synthesizer, topK int, llmWeight float64, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever: retriever,
		llm:       llm,
		synth:     synth,
		topK:      topK,
		llmWeight: llmWeight,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// pipeline is the state threaded through the stages. Each stage reads
// what earlier stages produced and adds its own output.
type pipeline struct {
	question   string
	candidates []rerank.Candidate
	fellBack   bool
	analysis   string
	draft      string
}

// Ask runs the staged pipeline for a question. Zero retrieved
// candidates is not an error: later stages run with no-context
// framing. A failing stage aborts with a StageError naming it.
func (o *Orchestrator) Ask(ctx context.Context, question string, mode Mode) (*Result, error) {
	if mode != ModeFast && mode != ModeFull {
		mode = ModeFast
	}
	p := &pipeline{question: question}

	if err := o.retrieve(ctx, p); err != nil {
		return nil, err
	}

	if mode == ModeFull {
		if err := o.analyze(ctx, p); err != nil {
			return nil, err
		}
		if err := o.draft(ctx, p); err != nil {
			return nil, err
		}
		stream, err := o.coordinate(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Result{Stream: stream, Candidates: p.candidates, FellBack: p.fellBack}, nil
	}

	stream, err := o.answer(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Result{Stream: stream, Candidates: p.candidates, FellBack: p.fellBack}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, p *pipeline) error {
	o.emit(StageEvent{Stage: StageRetrieval, Status: StatusStarted})

	raw, err := o.retriever.Query(ctx, p.question, o.topK)
	if err != nil {
		o.fail(ctx, StageRetrieval, err)
		return &StageError{Stage: StageRetrieval, Err: err}
	}

	if o.reranker != nil && len(raw) > 0 {
		res := o.reranker.Rerank(ctx, p.question, raw, o.llmWeight)
		p.candidates = res.Candidates
		p.fellBack = res.FellBack
	} else {
		p.candidates = make([]rerank.Candidate, len(raw))
		for i, c := range raw {
			p.candidates[i] = rerank.Candidate{Candidate: c, LLMScore: c.Score, Combined: c.Score}
		}
	}

	o.emit(StageEvent{Stage: StageRetrieval, Status: StatusCompleted, Payload: map[string]any{
		"candidates":      len(p.candidates),
		"rerank_fallback": p.fellBack,
	}})
	return nil
}

const analysisPrompt = `Analyze the following context passages with respect to the question.
Summarize the key facts, note contradictions, and state what the context does not cover.

%s

Question: %s

Analysis:`

func (o *Orchestrator) analyze(ctx context.Context, p *pipeline) error {
	o.emit(StageEvent{Stage: StageAnalysis, Status: StatusStarted})

	if len(p.candidates) == 0 {
		p.analysis = ""
		o.emit(StageEvent{Stage: StageAnalysis, Status: StatusCompleted, Payload: map[string]any{
			"skipped": "no candidates",
		}})
		return nil
	}

	analysis, err := o.llm.Generate(ctx, fmt.Sprintf(analysisPrompt, contextBlock(p.candidates), p.question))
	if err != nil {
		o.fail(ctx, StageAnalysis, err)
		return &StageError{Stage: StageAnalysis, Err: err}
	}
	p.analysis = strings.TrimSpace(analysis)

	o.emit(StageEvent{Stage: StageAnalysis, Status: StatusCompleted})
	return nil
}

const draftPrompt = `Draft an answer to the question using the context passages and the analyst's notes.
Be factual and cite which passage supports each claim.

%s

Analyst notes:
%s

Question: %s

Draft answer:`

func (o *Orchestrator) draft(ctx context.Context, p *pipeline) error {
	o.emit(StageEvent{Stage: StageAnswer, Status: StatusStarted})

	notes := p.analysis
	if notes == "" {
		notes = "(no context was retrieved; say so rather than invent facts)"
	}
	draft, err := o.llm.Generate(ctx, fmt.Sprintf(draftPrompt, contextBlock(p.candidates), notes, p.question))
	if err != nil {
		o.fail(ctx, StageAnswer, err)
		return &StageError{Stage: StageAnswer, Err: err}
	}
	p.draft = strings.TrimSpace(draft)

	o.emit(StageEvent{Stage: StageAnswer, Status: StatusCompleted})
	return nil
}

func (o *Orchestrator) answer(ctx context.Context, p *pipeline) (*synthesize.Stream, error) {
	o.emit(StageEvent{Stage: StageAnswer, Status: StatusStarted})

	stream, err := o.synth.Stream(ctx, p.question, p.candidates)
	if err != nil {
		o.fail(ctx, StageAnswer, err)
		return nil, &StageError{Stage: StageAnswer, Err: err}
	}

	// Completion here means the stream opened; delivery runs on.
	o.emit(StageEvent{Stage: StageAnswer, Status: StatusCompleted})
	return stream, nil
}

const coordinationPrompt = `You are finalizing an answer assembled by other assistants.
Reason step by step inside <think> and </think>, then give the polished final answer inside <answer> and </answer>.
Fix unsupported claims and keep the answer grounded in the draft's cited context.

Draft answer:
%s

Question: %s
`

func (o *Orchestrator) coordinate(ctx context.Context, p *pipeline) (*synthesize.Stream, error) {
	o.emit(StageEvent{Stage: StageCoordination, Status: StatusStarted})

	stream, err := o.synth.StreamPrompt(ctx, fmt.Sprintf(coordinationPrompt, p.draft, p.question))
	if err != nil {
		o.fail(ctx, StageCoordination, err)
		return nil, &StageError{Stage: StageCoordination, Err: err}
	}

	o.emit(StageEvent{Stage: StageCoordination, Status: StatusCompleted})
	return stream, nil
}

func contextBlock(candidates []rerank.Candidate) string {
	if len(candidates) == 0 {
		return "No context passages were retrieved."
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, c.Source, c.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) emit(ev StageEvent) {
	if o.sink != nil {
		o.sink(ev)
	}
}

func (o *Orchestrator) fail(ctx context.Context, stage Stage, err error) {
	slog.ErrorContext(ctx, "pipeline stage failed", "stage", string(stage), "error", err)
	o.emit(StageEvent{Stage: stage, Status: StatusFailed, Payload: map[string]any{
		"error": err.Error(),
	}})
}
