package agent_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/internal/agent"
	"askdoc/internal/rerank"
	"askdoc/internal/retrieval"
	"askdoc/internal/synthesize"
)

type fakeRetriever struct {
	candidates []retrieval.Candidate
	err        error
	gotTopK    int
}

func (f *fakeRetriever) Query(_ context.Context, _ string, topK int) ([]retrieval.Candidate, error) {
	f.gotTopK = topK
	return f.candidates, f.err
}

type fakeReranker struct {
	result rerank.Result
	called bool
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, candidates []retrieval.Candidate, _ float64) rerank.Result {
	f.called = true
	if f.result.Candidates != nil {
		return f.result
	}
	out := make([]rerank.Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = rerank.Candidate{Candidate: c, LLMScore: c.Score, Combined: c.Score}
	}
	return rerank.Result{Candidates: out}
}

// fakeLLM answers Generate by prompt shape: analysis prompts get
// analysis text, draft prompts get draft text.
type fakeLLM struct {
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(prompt, "Analysis:") {
		return "the context covers revenue only", nil
	}
	return "drafted: revenue rose 12%", nil
}

// replayStream yields the scripted model output token by token.
type replayStream struct {
	tokens []string
	pos    int
}

func (r *replayStream) Next() (string, error) {
	if r.pos >= len(r.tokens) {
		return "", io.EOF
	}
	tok := r.tokens[r.pos]
	r.pos++
	return tok, nil
}

type replayGenerator struct {
	tokens  []string
	openErr error
	prompts []string
}

func (r *replayGenerator) GenerateStream(_ context.Context, prompt string) (synthesize.TokenStream, error) {
	r.prompts = append(r.prompts, prompt)
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &replayStream{tokens: r.tokens}, nil
}

func someCandidates() []retrieval.Candidate {
	return []retrieval.Candidate{
		{Text: "revenue rose 12%", Source: "q3.md", Score: 0.9},
		{Text: "headcount flat", Source: "hr.md", Score: 0.5},
		{Text: "margins steady", Source: "q3.md", Score: 0.4},
	}
}

func collectEvents() (func(agent.StageEvent), *[]agent.StageEvent) {
	var events []agent.StageEvent
	return func(ev agent.StageEvent) { events = append(events, ev) }, &events
}

func stagePath(events []agent.StageEvent) []string {
	var out []string
	for _, ev := range events {
		out = append(out, string(ev.Stage)+":"+string(ev.Status))
	}
	return out
}

func TestOrchestrator_FastMode(t *testing.T) {
	ret := &fakeRetriever{candidates: someCandidates()}
	rr := &fakeReranker{}
	gen := &replayGenerator{tokens: []string{"<think>ok</think><answer>Revenue rose 12%.</answer>"}}
	sink, events := collectEvents()

	o := agent.New(ret, &fakeLLM{}, synthesize.New(gen), 3, 0.7,
		agent.WithReranker(rr), agent.WithEventSink(sink))

	res, err := o.Ask(context.Background(), "how did revenue do?", agent.ModeFast)
	require.NoError(t, err)
	require.NotNil(t, res.Stream)

	think, answer, serr := synthesize.Collect(res.Stream)
	assert.NoError(t, serr)
	assert.Equal(t, "ok", think)
	assert.Equal(t, "Revenue rose 12%.", answer)

	assert.True(t, rr.called)
	assert.Equal(t, 3, ret.gotTopK)
	assert.Equal(t, []string{"q3.md", "hr.md"}, res.Sources())
	assert.Equal(t, []string{
		"retrieval:started", "retrieval:completed",
		"answer:started", "answer:completed",
	}, stagePath(*events))
}

func TestOrchestrator_FullMode(t *testing.T) {
	ret := &fakeRetriever{candidates: someCandidates()}
	llm := &fakeLLM{}
	gen := &replayGenerator{tokens: []string{"<think>merge</think><answer>final</answer>"}}
	sink, events := collectEvents()

	o := agent.New(ret, llm, synthesize.New(gen), 3, 0.7, agent.WithEventSink(sink))

	res, err := o.Ask(context.Background(), "how did revenue do?", agent.ModeFull)
	require.NoError(t, err)

	_, answer, _ := synthesize.Collect(res.Stream)
	assert.Equal(t, "final", answer)

	require.Len(t, llm.prompts, 2, "analysis and draft passes")
	assert.Contains(t, llm.prompts[0], "Analysis:")
	assert.Contains(t, llm.prompts[1], "Draft answer:")
	assert.Contains(t, llm.prompts[1], "the context covers revenue only")

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "drafted: revenue rose 12%")

	assert.Equal(t, []string{
		"retrieval:started", "retrieval:completed",
		"analysis:started", "analysis:completed",
		"answer:started", "answer:completed",
		"coordination:started", "coordination:completed",
	}, stagePath(*events))
}

func TestOrchestrator_RetrievalFailure(t *testing.T) {
	ret := &fakeRetriever{err: retrieval.ErrUnavailable}
	sink, events := collectEvents()

	o := agent.New(ret, &fakeLLM{}, synthesize.New(&replayGenerator{}), 3, 0.7,
		agent.WithEventSink(sink))

	_, err := o.Ask(context.Background(), "q", agent.ModeFast)
	require.Error(t, err)

	var stageErr *agent.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, agent.StageRetrieval, stageErr.Stage)
	assert.ErrorIs(t, err, retrieval.ErrUnavailable)
	assert.Equal(t, []string{"retrieval:started", "retrieval:failed"}, stagePath(*events))
}

func TestOrchestrator_AnalysisFailureAborts(t *testing.T) {
	ret := &fakeRetriever{candidates: someCandidates()}
	llm := &fakeLLM{err: errors.New("model overloaded")}

	o := agent.New(ret, llm, synthesize.New(&replayGenerator{}), 3, 0.7)

	_, err := o.Ask(context.Background(), "q", agent.ModeFull)
	var stageErr *agent.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, agent.StageAnalysis, stageErr.Stage)
}

func TestOrchestrator_SynthOpenFailure(t *testing.T) {
	ret := &fakeRetriever{candidates: someCandidates()}
	gen := &replayGenerator{openErr: errors.New("connection refused")}

	o := agent.New(ret, &fakeLLM{}, synthesize.New(gen), 3, 0.7)

	_, err := o.Ask(context.Background(), "q", agent.ModeFast)
	var stageErr *agent.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, agent.StageAnswer, stageErr.Stage)
	assert.ErrorIs(t, err, synthesize.ErrLLMUnavailable)
}

func TestOrchestrator_ZeroCandidates(t *testing.T) {
	t.Run("Fast Mode Proceeds With No-Context Framing", func(t *testing.T) {
		ret := &fakeRetriever{candidates: nil}
		gen := &replayGenerator{tokens: []string{"<answer>I cannot answer from the indexed documents.</answer>"}}

		o := agent.New(ret, &fakeLLM{}, synthesize.New(gen), 3, 0.7)

		res, err := o.Ask(context.Background(), "q", agent.ModeFast)
		require.NoError(t, err)
		_, answer, _ := synthesize.Collect(res.Stream)
		assert.Contains(t, answer, "cannot answer")
		assert.Empty(t, res.Sources())
		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0], "No relevant passages were found")
	})

	t.Run("Full Mode Skips LLM Analysis", func(t *testing.T) {
		ret := &fakeRetriever{candidates: nil}
		llm := &fakeLLM{}
		gen := &replayGenerator{tokens: []string{"<answer>nothing indexed</answer>"}}
		sink, events := collectEvents()

		o := agent.New(ret, llm, synthesize.New(gen), 3, 0.7, agent.WithEventSink(sink))

		_, err := o.Ask(context.Background(), "q", agent.ModeFull)
		require.NoError(t, err)

		require.Len(t, llm.prompts, 1, "only the draft pass should hit the model")
		assert.Contains(t, llm.prompts[0], "no context was retrieved")
		assert.Contains(t, stagePath(*events), "analysis:completed")
	})
}

func TestOrchestrator_NoRerankerPassthrough(t *testing.T) {
	ret := &fakeRetriever{candidates: someCandidates()}
	gen := &replayGenerator{tokens: []string{"<answer>ok</answer>"}}

	o := agent.New(ret, &fakeLLM{}, synthesize.New(gen), 3, 0.7)

	res, err := o.Ask(context.Background(), "q", agent.ModeFast)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)
	for i, c := range res.Candidates {
		assert.InDelta(t, someCandidates()[i].Score, c.Combined, 1e-9)
	}
	assert.False(t, res.FellBack)
}

func TestOrchestrator_RerankFallbackSurfaced(t *testing.T) {
	cands := someCandidates()
	out := make([]rerank.Candidate, len(cands))
	for i, c := range cands {
		out[i] = rerank.Candidate{Candidate: c, LLMScore: c.Score, Combined: c.Score}
	}
	ret := &fakeRetriever{candidates: cands}
	rr := &fakeReranker{result: rerank.Result{Candidates: out, FellBack: true}}
	gen := &replayGenerator{tokens: []string{"<answer>ok</answer>"}}

	o := agent.New(ret, &fakeLLM{}, synthesize.New(gen), 3, 0.7, agent.WithReranker(rr))

	res, err := o.Ask(context.Background(), "q", agent.ModeFast)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
}

func TestOrchestrator_UnknownModeDefaultsToFast(t *testing.T) {
	ret := &fakeRetriever{candidates: someCandidates()}
	llm := &fakeLLM{}
	gen := &replayGenerator{tokens: []string{"<answer>ok</answer>"}}

	o := agent.New(ret, llm, synthesize.New(gen), 3, 0.7)

	_, err := o.Ask(context.Background(), "q", agent.Mode("turbo"))
	require.NoError(t, err)
	assert.Empty(t, llm.prompts, "fast mode never calls the plain generator")
}
