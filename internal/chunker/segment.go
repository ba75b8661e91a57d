package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// boundary matches a sentence terminator followed by whitespace, or a blank
// line. Group 1 holds the terminator so it stays with its sentence.
var boundary = regexp.MustCompile(`([.!?]+["'”’)\]]*)\s+|\n[ \t]*\n\s*`)

// span is a byte range of the source text.
type span struct {
	start int
	end   int
}

// segment splits text into sentence and paragraph units. Only whitespace
// falls outside the returned spans, and spans are in source order.
func segment(text string) []span {
	var spans []span
	start := 0
	for _, m := range boundary.FindAllStringSubmatchIndex(text, -1) {
		end := m[0]
		if m[2] >= 0 {
			end = m[3]
		}
		spans = appendTrimmed(spans, text, start, end)
		start = m[1]
	}
	return appendTrimmed(spans, text, start, len(text))
}

func appendTrimmed(spans []span, text string, start, end int) []span {
	if start >= end {
		return spans
	}
	seg := text[start:end]
	left := strings.TrimLeftFunc(seg, unicode.IsSpace)
	if left == "" {
		return spans
	}
	s := start + len(seg) - len(left)
	trimmed := strings.TrimRightFunc(left, unicode.IsSpace)
	return append(spans, span{start: s, end: s + len(trimmed)})
}
