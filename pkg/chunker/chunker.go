// Package chunker splits raw text into bounded, sentence-aligned chunks.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSize is used when a non-positive max size is requested.
const DefaultMaxSize = 500

// Segment is a chunk of text together with the byte offset of its first
// sentence in the source text.
type Segment struct {
	Text   string
	Offset int
}

type sentence struct {
	text   string
	offset int
}

// Chunk splits text into chunks of at most maxSize runes.
// A sentence longer than maxSize is emitted on its own.
func Chunk(text string, maxSize int) []string {
	segments := Split(text, maxSize)
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Text
	}
	return out
}

// Split is Chunk with source offsets attached to every chunk.
func Split(text string, maxSize int) []Segment {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	var segments []Segment
	var buf strings.Builder
	bufLen := 0
	bufOffset := 0

	flush := func() {
		if buf.Len() > 0 {
			segments = append(segments, Segment{Text: buf.String(), Offset: bufOffset})
			buf.Reset()
			bufLen = 0
		}
	}

	for _, s := range sentences(text) {
		n := utf8.RuneCountInString(s.text)
		if bufLen > 0 && bufLen+1+n > maxSize {
			flush()
		}
		if bufLen == 0 {
			bufOffset = s.offset
		} else {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(s.text)
		bufLen += n
	}
	flush()

	return segments
}

// sentences breaks text after runs of '.', '!' or '?' that are followed by
// whitespace or the end of input. Text without terminal punctuation is a
// single sentence.
func sentences(text string) []sentence {
	var out []sentence
	start := 0

	emit := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
			out = append(out, sentence{text: trimmed, offset: start + lead})
		}
		start = end
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminal(r) {
			continue
		}
		// Swallow the rest of a terminal run such as "?!" or "...".
		for i < len(text) {
			next, nsize := utf8.DecodeRuneInString(text[i:])
			if !isTerminal(next) {
				break
			}
			i += nsize
		}
		if i == len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(next) {
			emit(i)
		}
	}
	emit(len(text))

	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
