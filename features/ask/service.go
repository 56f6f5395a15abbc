package ask

import (
	"context"

	"askdoc/internal/agent"
	"askdoc/internal/synthesize"
)

// Answer is the materialized form of a question/answer round, for
// clients that don't want to consume the stream themselves.
type Answer struct {
	Think    string             `json:"think,omitempty"`
	Answer   string             `json:"answer"`
	Sources  []string           `json:"sources"`
	FellBack bool               `json:"rerank_fallback,omitempty"`
	Events   []agent.StageEvent `json:"events,omitempty"`
}

type Orchestrator interface {
	Ask(ctx context.Context, question string, mode agent.Mode) (*agent.Result, error)
}

// OrchestratorFactory builds an orchestrator wired to a per-request
// event sink. Stage events are request-scoped, so each Ask gets its
// own pipeline instance.
type OrchestratorFactory func(sink func(agent.StageEvent)) Orchestrator

type Service struct {
	orchestrate OrchestratorFactory
}

func NewService(factory OrchestratorFactory) *Service {
	return &Service{orchestrate: factory}
}

// Answer runs the pipeline and drains the stream into a complete
// response. Empty sources with a non-empty answer means nothing
// relevant was indexed; that is a successful round, not an error.
func (s *Service) Answer(ctx context.Context, question string, mode agent.Mode) (*Answer, error) {
	var events []agent.StageEvent
	orch := s.orchestrate(func(ev agent.StageEvent) {
		events = append(events, ev)
	})

	res, err := orch.Ask(ctx, question, mode)
	if err != nil {
		return nil, err
	}

	think, answer, err := synthesize.Collect(res.Stream)
	if err != nil {
		return nil, err
	}

	sources := res.Sources()
	if sources == nil {
		sources = []string{}
	}

	return &Answer{
		Think:    think,
		Answer:   answer,
		Sources:  sources,
		FellBack: res.FellBack,
		Events:   events,
	}, nil
}

// AnswerStream runs the pipeline and hands the live stream back for
// incremental delivery.
func (s *Service) AnswerStream(ctx context.Context, question string, mode agent.Mode) (*synthesize.Stream, error) {
	orch := s.orchestrate(nil)
	res, err := orch.Ask(ctx, question, mode)
	if err != nil {
		return nil, err
	}
	return res.Stream, nil
}
