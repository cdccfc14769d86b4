package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestChunk_PacksSentences(t *testing.T) {
	text := "One two. Three four! Five six? Seven."

	chunks := Chunk(text, 20)

	require.Equal(t, []string{"One two. Three four!", "Five six? Seven."}, chunks)
}

func TestChunk_EmptyInput(t *testing.T) {
	require.Empty(t, Chunk("", 100))
	require.Empty(t, Chunk("   \n\t  ", 100))
}

func TestChunk_OversizedSentence(t *testing.T) {
	long := strings.Repeat("a", 50) + "."
	text := "Short one. " + long + " Tail."

	chunks := Chunk(text, 20)

	require.Equal(t, []string{"Short one.", long, "Tail."}, chunks)
}

func TestChunk_NoPunctuation(t *testing.T) {
	chunks := Chunk("just words without an ending", 100)
	require.Equal(t, []string{"just words without an ending"}, chunks)
}

func TestChunk_TerminalRunsAndDecimals(t *testing.T) {
	chunks := Chunk("Pi is 3.14 roughly. Really?! Yes...", 1)
	require.Equal(t, []string{"Pi is 3.14 roughly.", "Really?!", "Yes..."}, chunks)
}

func TestChunk_DefaultMaxSize(t *testing.T) {
	text := strings.Repeat("Word word word word word. ", 100)

	for _, c := range Chunk(text, 0) {
		require.LessOrEqual(t, utf8.RuneCountInString(c), DefaultMaxSize)
	}
}

func TestChunk_SizeBound(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon. Zeta eta theta iota kappa lambda mu nu xi omicron pi rho. " +
		"Sigma. Tau upsilon phi chi psi omega! Short? Ünïcödé sentence with accents. End"

	for _, maxSize := range []int{1, 5, 10, 20, 40, 80, 1000} {
		for _, c := range Chunk(text, maxSize) {
			require.NotEmpty(t, c)
			if utf8.RuneCountInString(c) > maxSize {
				// Only a lone oversized sentence may exceed the bound.
				require.Len(t, sentences(c), 1, "chunk %q exceeds %d", c, maxSize)
			}
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := "First sentence. Second sentence here. Third! Fourth? Fifth."
	require.Equal(t, Chunk(text, 25), Chunk(text, 25))
}

func TestSplit_Offsets(t *testing.T) {
	text := "  Hello there. General Kenobi!"

	segments := Split(text, 14)

	require.Len(t, segments, 2)
	require.Equal(t, Segment{Text: "Hello there.", Offset: 2}, segments[0])
	require.Equal(t, Segment{Text: "General Kenobi!", Offset: 15}, segments[1])
	for _, s := range segments {
		require.True(t, strings.HasPrefix(text[s.Offset:], s.Text))
	}
}
