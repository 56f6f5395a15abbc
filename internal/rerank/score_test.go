package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
		ok   bool
	}{
		{"Bare Number", "0.8", 0.8, true},
		{"With Whitespace", "  0.35\n", 0.35, true},
		{"Integer Zero", "0", 0, true},
		{"Integer One", "1", 1, true},
		{"Embedded In Prose", "The relevance score is 0.75 out of 1.", 0.75, true},
		{"JSON Wrapper", `{"score": 0.6}`, 0.6, true},
		{"Quoted", `"0.9"`, 0.9, true},
		{"Above Range", "1.5", 0, false},
		{"Below Range", "-0.2", 0, false},
		{"No Number", "quite relevant", 0, false},
		{"Empty", "", 0, false},
		{"Whitespace Only", "   ", 0, false},
		{"NaN", "NaN", 0, false},
		{"Infinity", "Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseScore(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
