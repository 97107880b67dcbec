package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxChunkSize, c.MaxChunkSize())
	assert.Equal(t, DefaultOverlap, c.overlap)
	assert.Equal(t, StrategyFixed, c.strategy)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(WithMaxChunkSize(0))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = New(WithOverlap(-1))
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	_, err = New(WithStrategy("semantic"))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyFixed, s)

	s, err = ParseStrategy(" Headers ")
	require.NoError(t, err)
	assert.Equal(t, StrategyHeaders, s)

	_, err = ParseStrategy("tokens")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestChunker_Fixed(t *testing.T) {
	c, err := New(WithMaxChunkSize(1000), WithOverlap(100))
	require.NoError(t, err)

	text := repeatTo(sentence, 2500)
	assert.Equal(t, Split(text, 1000, 100), c.Chunk(text))
}

func TestChunker_WhitespaceOnly(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Empty(t, c.Chunk(" \n\t "))
}

func TestChunker_DropsBlankChunks(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	text := "Intro paragraph. " + strings.Repeat("\n", 2500) + "Closing paragraph."
	chunks := c.Chunk(text)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0], "Intro paragraph."))
	assert.True(t, strings.HasSuffix(chunks[1], "Closing paragraph."))
	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestChunker_Headers(t *testing.T) {
	c, err := New(WithStrategy(StrategyHeaders), WithMaxChunkSize(200), WithOverlap(20))
	require.NoError(t, err)

	text := "# Short\nA line.\n\n# Long\n" + repeatTo(sentence, 500)
	chunks := c.Chunk(text)

	require.Greater(t, len(chunks), 2)
	assert.Equal(t, "# Short\n\nA line.", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "# Long\n\n"))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 200)
	}
}
