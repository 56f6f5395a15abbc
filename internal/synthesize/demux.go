package synthesize

import "strings"

// Reasoning-capable models are prompted to tag their output with these
// markers. The demuxer splits the raw token stream on them.
const (
	markerThinkStart  = "<think>"
	markerThinkEnd    = "</think>"
	markerAnswerStart = "<answer>"
	markerAnswerEnd   = "</answer>"
)

type demuxState int

const (
	// statePreamble buffers everything before the first marker; that
	// text is dropped once a marker appears.
	statePreamble demuxState = iota
	stateThinking
	// stateInterlude is the gap between </think> and <answer>.
	stateInterlude
	stateAnswering
	// stateRaw is the violation fallback: markers stopped making
	// sense, everything from here on is answer text.
	stateRaw
	stateDone
)

// demuxer incrementally routes model output to the think and answer
// channels. Markers may arrive split across token boundaries. Think
// content is buffered until </think> proves the section conformant;
// answer text streams as it arrives, holding back only a suffix that
// could still grow into the close marker.
type demuxer struct {
	state demuxState
	buf   string
	emit  func(Fragment)
}

func (d *demuxer) Feed(tok string) {
	d.buf += tok
	d.advance()
}

func (d *demuxer) advance() {
	for {
		switch d.state {
		case statePreamble:
			iThink := strings.Index(d.buf, markerThinkStart)
			iAns := strings.Index(d.buf, markerAnswerStart)
			switch {
			case iThink >= 0 && (iAns < 0 || iThink < iAns):
				d.buf = d.buf[iThink+len(markerThinkStart):]
				d.state = stateThinking
			case iAns >= 0:
				d.buf = d.buf[iAns+len(markerAnswerStart):]
				d.state = stateAnswering
			default:
				return
			}

		case stateThinking:
			// Held back in full until the close marker confirms the
			// section really is reasoning; an unclosed <think> is
			// retagged as answer text at close.
			if idx := strings.Index(d.buf, markerThinkEnd); idx >= 0 {
				d.send(ChannelThink, d.buf[:idx])
				d.buf = d.buf[idx+len(markerThinkEnd):]
				d.state = stateInterlude
				continue
			}
			return

		case stateInterlude:
			iAns := strings.Index(d.buf, markerAnswerStart)
			iViol := earliest(
				strings.Index(d.buf, markerThinkStart),
				strings.Index(d.buf, markerAnswerEnd),
			)
			switch {
			case iAns >= 0 && (iViol < 0 || iAns < iViol):
				// Text between the markers is dropped.
				d.buf = d.buf[iAns+len(markerAnswerStart):]
				d.state = stateAnswering
			case iViol >= 0:
				// Out-of-order marker: give up on the protocol and
				// treat the rest as answer text.
				d.buf = stripMarkers(d.buf)
				d.state = stateRaw
			default:
				return
			}

		case stateAnswering:
			if idx := strings.Index(d.buf, markerAnswerEnd); idx >= 0 {
				d.send(ChannelAnswer, d.buf[:idx])
				d.buf = ""
				d.state = stateDone
				return
			}
			safe := holdback(d.buf, markerAnswerEnd)
			d.send(ChannelAnswer, d.buf[:safe])
			d.buf = d.buf[safe:]
			return

		case stateRaw:
			d.send(ChannelAnswer, d.buf)
			d.buf = ""
			return

		case stateDone:
			d.buf = ""
			return
		}
	}
}

// Close flushes whatever is still buffered when the token stream ends.
// A stream that never produced markers yields its whole output as
// answer text. A <think> that was never closed counts as markers
// absent, so its content comes out as answer too; only an unterminated
// answer section stays on its own channel.
func (d *demuxer) Close() {
	switch d.state {
	case statePreamble, stateInterlude:
		if s := strings.TrimSpace(stripMarkers(d.buf)); s != "" {
			d.send(ChannelAnswer, s)
		}
	case stateThinking:
		if s := strings.TrimSpace(stripMarkers(d.buf)); s != "" {
			d.send(ChannelAnswer, s)
		}
	case stateAnswering, stateRaw:
		d.send(ChannelAnswer, d.buf)
	}
	d.buf = ""
	d.state = stateDone
}

func (d *demuxer) send(ch Channel, text string) {
	if text == "" {
		return
	}
	d.emit(Fragment{Channel: ch, Text: text})
}

// holdback returns the length of the prefix of s that is safe to emit:
// everything except the longest suffix that could still grow into the
// given marker.
func holdback(s, marker string) int {
	maxHold := len(marker) - 1
	if maxHold > len(s) {
		maxHold = len(s)
	}
	for l := maxHold; l > 0; l-- {
		if strings.HasSuffix(s, marker[:l]) {
			return len(s) - l
		}
	}
	return len(s)
}

func stripMarkers(s string) string {
	for _, m := range []string{markerThinkStart, markerThinkEnd, markerAnswerStart, markerAnswerEnd} {
		s = strings.ReplaceAll(s, m, "")
	}
	return s
}

func earliest(indices ...int) int {
	best := -1
	for _, i := range indices {
		if i < 0 {
			continue
		}
		if best < 0 || i < best {
			best = i
		}
	}
	return best
}
