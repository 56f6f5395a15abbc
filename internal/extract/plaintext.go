package extract

import "strings"

// PlainTextExtractor passes text files through, normalizing line
// endings so downstream paragraph detection sees "\n\n" regardless of
// the uploading platform.
type PlainTextExtractor struct{}

func (e *PlainTextExtractor) Extract(data []byte) (string, error) {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s), nil
}
