// Package extract turns uploaded files into plain text suitable for
// chunking. Formats are keyed by file extension; unknown extensions
// are rejected rather than guessed.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts one document format to plain text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// Registry maps normalized file extensions to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the built-in formats registered:
// markdown (.md, .markdown) and plain text (.txt, .text).
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	md := &MarkdownExtractor{}
	r.Register("md", md)
	r.Register("markdown", md)
	txt := &PlainTextExtractor{}
	r.Register("txt", txt)
	r.Register("text", txt)
	return r
}

// Register binds an extractor to an extension. The extension is
// normalized: lowercased, leading dot stripped.
func (r *Registry) Register(ext string, e Extractor) {
	r.extractors[normalizeExt(ext)] = e
}

// Supported reports whether the extension has a registered extractor.
func (r *Registry) Supported(ext string) bool {
	_, ok := r.extractors[normalizeExt(ext)]
	return ok
}

// Extract dispatches to the extractor registered for ext.
func (r *Registry) Extract(ext string, data []byte) (string, error) {
	e, ok := r.extractors[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return e.Extract(data)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
