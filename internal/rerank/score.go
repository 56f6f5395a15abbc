package rerank

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ParseScore extracts a relevance score from an LLM response. Models
// asked for a bare number still wrap it in prose, quotes or JSON often
// enough that we scan for the first numeric token instead of parsing
// the whole string. Out-of-range and non-finite values are rejected
// rather than clamped, so a confused response falls back to the vector
// score instead of polluting the ranking.
func ParseScore(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}

	token := trimmed
	if _, err := strconv.ParseFloat(token, 64); err != nil {
		token = numberRe.FindString(trimmed)
		if token == "" {
			return 0, false
		}
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}
