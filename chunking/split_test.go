package chunking

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentence = "The quick brown fox jumps over the lazy dog. "

func repeatTo(s string, n int) string {
	return strings.Repeat(s, n/len(s)+1)[:n]
}

// reconstruct rebuilds the source text from chunk spans by dropping each
// chunk's overlap with its predecessor.
func reconstruct(runes []rune, spans []Span) string {
	var sb strings.Builder
	prevEnd := 0
	for _, s := range spans {
		sb.WriteString(string(runes[max(s.Start, prevEnd):s.End]))
		prevEnd = s.End
	}
	return sb.String()
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	tests := []string{"a", "hello world", repeatTo(sentence, 1000)}
	for _, text := range tests {
		chunks := Split(text, 1000, 100)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0])
	}
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Empty(t, Split("", 1000, 100))
}

func TestSplit_TwentyFiveHundredChars(t *testing.T) {
	text := repeatTo(sentence, 2500)
	require.Len(t, text, 2500)

	chunks := Split(text, 1000, 100)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
		assert.NotEmpty(t, c)
	}

	spans := Spans(text, 1000, 100)
	require.Len(t, spans, 3)
	for i := 1; i < len(spans); i++ {
		shared := spans[i-1].End - spans[i].Start
		assert.InDelta(t, 100, shared, 10, "chunks %d and %d share %d runes", i-1, i, shared)
	}

	// Chunks end after a sentence terminator when one is near the limit.
	assert.True(t, strings.HasSuffix(chunks[0], "."), "chunk 0 should end on a sentence: %q", chunks[0][len(chunks[0])-10:])

	assert.Equal(t, text, reconstruct([]rune(text), spans))
}

func TestSplit_HardCutWithoutWhitespace(t *testing.T) {
	text := strings.Repeat("x", 2500)
	spans := Spans(text, 1000, 100)

	require.Len(t, spans, 3)
	assert.Equal(t, Span{0, 1000}, spans[0])
	assert.Equal(t, Span{900, 1900}, spans[1])
	assert.Equal(t, Span{1800, 2500}, spans[2])

	bound := int(math.Ceil(2500.0/900.0)) + 1
	assert.LessOrEqual(t, len(spans), bound)
}

func TestSplit_WordBreaksStayWithinChunkBound(t *testing.T) {
	for period := 2; period <= 40; period++ {
		word := strings.Repeat("w", period-1) + " "
		text := repeatTo(word, 100_000)
		runes := []rune(text)

		spans := Spans(text, 1000, 100)
		bound := int(math.Ceil(float64(len(runes))/900.0)) + 1
		require.LessOrEqual(t, len(spans), bound, "word length %d", period)
		assert.Equal(t, text, reconstruct(runes, spans), "word length %d", period)
		for _, s := range spans[:len(spans)-1] {
			assert.Equal(t, ' ', runes[s.End], "word length %d: break at %d", period, s.End)
		}
	}
}

func TestSplit_FallsBackToWhitespace(t *testing.T) {
	word := "lorem "
	text := repeatTo(word, 500)
	spans := Spans(text, 100, 0)
	require.Greater(t, len(spans), 1)

	runes := []rune(text)
	for _, s := range spans[:len(spans)-1] {
		assert.Equal(t, ' ', runes[s.End], "break at %d should fall on whitespace", s.End)
	}
}

func TestSplit_OverlapNotSmallerThanChunk(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)

	for _, overlap := range []int{10, 11, 50} {
		spans := Spans(text, 10, overlap)
		require.NotEmpty(t, spans)
		for i := 1; i < len(spans); i++ {
			assert.Greater(t, spans[i].Start, spans[i-1].Start, "overlap %d must still make progress", overlap)
		}
		assert.Equal(t, text, reconstruct([]rune(text), spans))
	}
}

func TestSplit_InvalidParametersAreNormalized(t *testing.T) {
	text := repeatTo(sentence, 3000)
	assert.Equal(t, Split(text, DefaultMaxChunkSize, 0), Split(text, 0, -5))
}

func TestSplit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abc de.f! g?h\n\tünï ")

	params := []struct{ size, overlap int }{
		{1, 0}, {7, 3}, {50, 10}, {100, 99}, {64, 64}, {300, 0},
	}

	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(2000)
		runes := make([]rune, n)
		for i := range runes {
			runes[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)

		for _, p := range params {
			spans := Spans(text, p.size, p.overlap)
			chunks := Split(text, p.size, p.overlap)
			require.Len(t, chunks, len(spans))

			if n == 0 {
				assert.Empty(t, chunks)
				continue
			}

			assert.Equal(t, text, reconstruct(runes, spans), "size=%d overlap=%d", p.size, p.overlap)
			assert.Equal(t, 0, spans[0].Start)
			assert.Equal(t, n, spans[len(spans)-1].End)
			for i, c := range chunks {
				assert.NotEmpty(t, c)
				assert.LessOrEqual(t, utf8.RuneCountInString(c), p.size)
				if i > 0 {
					assert.Greater(t, spans[i].Start, spans[i-1].Start)
					assert.LessOrEqual(t, spans[i].Start, spans[i-1].End)
				}
			}
			assert.LessOrEqual(t, len(spans), n)
			if p.overlap < p.size {
				bound := (n+p.size-p.overlap-1)/(p.size-p.overlap) + 1
				assert.LessOrEqual(t, len(spans), bound, "size=%d overlap=%d n=%d", p.size, p.overlap, n)
			}
		}
	}
}
