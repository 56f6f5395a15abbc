package text

import (
	"strings"

	"github.com/google/uuid"
)

// Chunk is one contiguous slice of a document. Start and End are rune
// offsets into the original text, so input[Start:End] (in runes) is
// exactly Text. Adjacent chunks overlap by the configured number of
// runes: dropping the first `overlap` runes of every chunk after the
// first and concatenating the rest reconstructs the original input.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Index      int
	Start      int
	End        int
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// Split cuts a document into overlapping chunks of at most maxChars
// runes. Cut points prefer paragraph breaks, then sentence boundaries,
// and fall back to a hard cut when a single block exceeds maxChars.
// Each chunk after the first starts `overlap` runes before the previous
// chunk's end. Whitespace-only input yields no chunks.
func Split(documentID, input string, maxChars, overlap int) []Chunk {
	if maxChars <= 0 || overlap < 0 || overlap >= maxChars {
		return nil
	}
	if strings.TrimSpace(input) == "" {
		return nil
	}

	runes := []rune(input)
	n := len(runes)

	var chunks []Chunk
	pos := 0
	for pos < n {
		if n-pos <= maxChars {
			chunks = append(chunks, newChunk(documentID, runes, pos, n, len(chunks)))
			break
		}

		limit := pos + maxChars
		cut := cutPoint(runes, pos+overlap, limit)
		chunks = append(chunks, newChunk(documentID, runes, pos, cut, len(chunks)))
		pos = cut - overlap
	}

	return chunks
}

func newChunk(documentID string, runes []rune, start, end, index int) Chunk {
	return Chunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Text:       string(runes[start:end]),
		Index:      index,
		Start:      start,
		End:        end,
	}
}

// cutPoint returns the rune offset to end the current chunk at. It
// scans (floor, limit] backwards for a paragraph break, then a sentence
// boundary. The floor excludes the overlap region so that the next
// chunk always advances. With no boundary in range it cuts at the
// limit.
func cutPoint(runes []rune, floor, limit int) int {
	// Paragraph break: cut just after the blank line.
	for i := limit; i > floor+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}

	// Sentence boundary: cut after the terminator when it ends the
	// sentence. Fullwidth terminators are self-delimiting; ASCII ones
	// need trailing whitespace so decimals like "3.5" survive.
	for i := limit; i > floor; i-- {
		r := runes[i-1]
		if !sentenceEnders[r] {
			continue
		}
		if r > 0x7f {
			return i
		}
		if i == limit || runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i
		}
	}

	return limit
}
