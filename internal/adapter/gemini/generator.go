package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"askdoc/internal/synthesize"
)

// Generator runs prompts through a Gemini generative model, whole or
// streamed.
type Generator struct {
	client *Client
	model  string
}

func NewGenerator(client *Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	cl, err := g.client.get(ctx)
	if err != nil {
		return "", err
	}

	resp, err := cl.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("model returned no text")
	}
	return text, nil
}

// GenerateStream opens a streaming generation. The returned stream
// yields one text delta per response chunk and io.EOF at the end.
func (g *Generator) GenerateStream(ctx context.Context, prompt string) (synthesize.TokenStream, error) {
	cl, err := g.client.get(ctx)
	if err != nil {
		return nil, err
	}

	it := cl.GenerativeModel(g.model).GenerateContentStream(ctx, genai.Text(prompt))
	return &tokenStream{it: it}, nil
}

type tokenStream struct {
	it *genai.GenerateContentResponseIterator
}

func (t *tokenStream) Next() (string, error) {
	resp, err := t.it.Next()
	if errors.Is(err, iterator.Done) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
