package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor strips markdown formatting and keeps the readable
// text. Block elements are separated by blank lines so the chunker can
// still find paragraph boundaries; fenced code blocks are kept verbatim
// since code snippets are often what users ask about.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Extract(data []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(data))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch t := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(t.Segment.Value(data))
				if t.HardLineBreak() || t.SoftLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.FencedCodeBlock:
			if entering {
				writeLines(&b, t.Lines(), data)
				return ast.WalkSkipChildren, nil
			}
		case *ast.CodeBlock:
			if entering {
				writeLines(&b, t.Lines(), data)
				return ast.WalkSkipChildren, nil
			}
		case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.Blockquote:
			if !entering {
				b.WriteString("\n\n")
			}
		case *ast.AutoLink:
			if entering {
				b.Write(t.URL(data))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}

	return collapseBlankLines(b.String()), nil
}

func writeLines(b *strings.Builder, lines *text.Segments, data []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(data))
	}
	b.WriteString("\n\n")
}

// collapseBlankLines trims the output and squeezes runs of three or
// more newlines down to a paragraph break.
func collapseBlankLines(s string) string {
	s = strings.TrimSpace(s)
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
