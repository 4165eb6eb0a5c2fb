package voice

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	fencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern   = regexp.MustCompile("`[^`]*`")
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// sanitizeSpeechText strips markup and symbol noise from model output so the
// synthesized speech sounds conversational. Sentence punctuation survives so
// the segmenter downstream still sees utterance boundaries.
func sanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = fencedCodePattern.ReplaceAllString(raw, " ")
	raw = inlineCodePattern.ReplaceAllString(raw, " ")
	raw = markdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = urlPattern.ReplaceAllString(raw, " ")

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '‍' || r == '️' || r == '⃣':
			// zero-width joiner and emoji modifiers
			continue
		case r == '\n':
			// newline is an utterance boundary for the segmenter
			b.WriteRune(r)
			prevSpace = true
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			// emoji and symbol glyphs sound unnatural when spoken
			continue
		case isSpeechSafePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r) || r == '<' || r == '>' || r == '|' || r == '~':
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// speechDeltaSpacing restores the word boundary that sanitizing strips from a
// delta's leading whitespace, so "Hello"+" world" doesn't speak as
// "Helloworld".
func speechDeltaSpacing(rawDelta, sanitized string, alreadySent bool) string {
	if sanitized == "" || !alreadySent {
		return sanitized
	}
	first, _ := utf8.DecodeRuneInString(sanitized)
	if !unicode.IsLetter(first) && !unicode.IsDigit(first) {
		return sanitized
	}
	lead, _ := utf8.DecodeRuneInString(rawDelta)
	if unicode.IsSpace(lead) {
		return " " + sanitized
	}
	return sanitized
}

func isSpeechSafePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '…', '。', '—', '–':
		return true
	default:
		return false
	}
}
