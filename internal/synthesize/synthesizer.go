package synthesize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"askdoc/internal/rerank"
)

type Synthesizer struct {
	llm StreamGenerator
}

func New(llm StreamGenerator) *Synthesizer {
	return &Synthesizer{llm: llm}
}

const answerInstructions = `You answer questions using only the provided context passages.
Reason step by step inside <think> and </think>, then give your final answer inside <answer> and </answer>.
If the context does not contain the answer, say so inside the answer markers instead of guessing.`

const noContextNote = `No relevant passages were found in the knowledge base.
State that you cannot answer from the indexed documents, and answer from general knowledge only if you clearly label it as such.`

// BuildPrompt renders the answering prompt. With no passages the model
// is told the knowledge base came up empty rather than being handed an
// empty context block.
func BuildPrompt(question string, passages []rerank.Candidate) string {
	var b strings.Builder
	b.WriteString(answerInstructions)
	b.WriteString("\n\n")

	if len(passages) == 0 {
		b.WriteString(noContextNote)
	} else {
		b.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, p.Source, p.Text)
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}

// Stream generates an answer for the question over the given passages
// and demultiplexes the model output into think and answer fragments.
func (s *Synthesizer) Stream(ctx context.Context, question string, passages []rerank.Candidate) (*Stream, error) {
	return s.StreamPrompt(ctx, BuildPrompt(question, passages))
}

// StreamPrompt runs an already-built prompt through the model. Failing
// to open the stream is reported here; failures mid-generation are
// delivered on the stream itself.
func (s *Synthesizer) StreamPrompt(ctx context.Context, prompt string) (*Stream, error) {
	ts, err := s.llm.GenerateStream(ctx, prompt)
	if err != nil {
		return nil, errors.Join(ErrLLMUnavailable, err)
	}

	out := newStream()
	go s.pump(ctx, ts, out)
	return out, nil
}

func (s *Synthesizer) pump(ctx context.Context, ts TokenStream, out *Stream) {
	defer close(out.ch)

	send := func(f Fragment) {
		select {
		case out.ch <- f:
		case <-ctx.Done():
		}
	}

	d := &demuxer{emit: send}
	for {
		tok, err := ts.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.ErrorContext(ctx, "generation stream failed", "error", err)
			send(Fragment{
				Channel: ChannelAnswer,
				Text:    "\n\nAn error occurred while generating the answer.",
			})
			send(Fragment{Final: true, Err: err})
			return
		}
		d.Feed(tok)
		if ctx.Err() != nil {
			send(Fragment{Final: true, Err: ctx.Err()})
			return
		}
	}
	d.Close()
	send(Fragment{Final: true})
}
