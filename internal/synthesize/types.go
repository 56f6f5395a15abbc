package synthesize

import (
	"context"
	"errors"
	"strings"
)

// ErrLLMUnavailable marks failures to open a generation stream.
var ErrLLMUnavailable = errors.New("llm backend unavailable")

type Channel string

const (
	ChannelThink  Channel = "think"
	ChannelAnswer Channel = "answer"
)

// Fragment is one demultiplexed piece of model output. The last
// fragment on a stream has Final set; Err is non-nil when generation
// ended abnormally.
type Fragment struct {
	Channel Channel `json:"channel,omitempty"`
	Text    string  `json:"text,omitempty"`
	Final   bool    `json:"final,omitempty"`
	Err     error   `json:"-"`
}

// TokenStream yields raw model output incrementally. Next returns
// io.EOF when generation finishes cleanly.
type TokenStream interface {
	Next() (string, error)
}

// StreamGenerator is the streaming LLM capability.
type StreamGenerator interface {
	GenerateStream(ctx context.Context, prompt string) (TokenStream, error)
}

// Stream delivers demultiplexed fragments. The channel is closed after
// the final fragment.
type Stream struct {
	ch chan Fragment
}

func newStream() *Stream {
	return &Stream{ch: make(chan Fragment, 16)}
}

func (s *Stream) Fragments() <-chan Fragment {
	return s.ch
}

// Collect drains a stream into whole reasoning and answer strings.
func Collect(s *Stream) (think, answer string, err error) {
	var tb, ab strings.Builder
	for f := range s.Fragments() {
		if f.Err != nil {
			err = f.Err
		}
		switch f.Channel {
		case ChannelThink:
			tb.WriteString(f.Text)
		case ChannelAnswer:
			ab.WriteString(f.Text)
		}
	}
	return strings.TrimSpace(tb.String()), strings.TrimSpace(ab.String()), err
}
