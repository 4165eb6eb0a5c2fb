// Package segment decides when accumulated assistant text is ready for
// speech synthesis. Flushing on every delta fragments words; waiting for the
// whole reply adds seconds of latency. The segmenter splits the difference
// by flushing at delimiter boundaries.
package segment

import (
	"strings"
	"unicode"
)

// Tier selects which delimiter set closes a flushable unit.
type Tier int

const (
	// TierSentence flushes only at full sentence boundaries. Default for the
	// conversation loop: smoother prosody at slightly higher latency.
	TierSentence Tier = iota
	// TierFragment additionally flushes at clause-level delimiters for
	// lower-latency paths, at the cost of choppier synthesis.
	TierFragment
)

var (
	sentenceDelimiters = map[rune]bool{
		'.': true, '?': true, '!': true, '…': true, '。': true,
		'\n': true,
	}
	fragmentDelimiters = map[rune]bool{
		',': true, ';': true, ':': true,
		')': true, ']': true, '}': true,
		'-': true, '—': true, '–': true,
	}
)

// Flush is one unit of text ready to hand to TTS.
type Flush struct {
	Text string
}

// Segmenter accumulates streamed text deltas and emits flushable units.
// Not safe for concurrent use; each conversation owns one.
type Segmenter struct {
	tier Tier
	buf  strings.Builder
}

func New(tier Tier) *Segmenter {
	return &Segmenter{tier: tier}
}

// Push appends one delta and reports whether the buffer became flushable.
// The boundary test looks at the delta's final rune so a delimiter arriving
// mid-buffer (e.g. "Dr." inside a later delta) does not force a flush.
func (s *Segmenter) Push(delta string) (Flush, bool) {
	if delta == "" {
		return Flush{}, false
	}
	s.buf.WriteString(delta)

	runes := []rune(delta)
	last := runes[len(runes)-1]
	if !s.isBoundary(last) {
		return Flush{}, false
	}
	return s.take()
}

// Finish flushes whatever remains, delimiter or not. Called on the stream's
// terminal event so trailing fragments are still spoken.
func (s *Segmenter) Finish() (Flush, bool) {
	return s.take()
}

// Pending reports whether unflushed text is buffered.
func (s *Segmenter) Pending() bool {
	return strings.TrimSpace(s.buf.String()) != ""
}

// Reset drops any accumulated text, used when a generation is aborted.
func (s *Segmenter) Reset() {
	s.buf.Reset()
}

func (s *Segmenter) take() (Flush, bool) {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if !Speakable(text) {
		return Flush{}, false
	}
	return Flush{Text: text}, true
}

func (s *Segmenter) isBoundary(r rune) bool {
	if sentenceDelimiters[r] {
		return true
	}
	return s.tier == TierFragment && fragmentDelimiters[r]
}

// Speakable reports whether text is worth a synthesis call: empty,
// whitespace-only, and bare-punctuation strings produce silence or glitch
// audio on every provider and are dropped before the wire.
func Speakable(text string) bool {
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
