package service

import (
	"strings"
	"testing"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(ChunkConfig{ChunkSize: size, Overlap: overlap})
	require.NoError(t, err)
	return c
}

func assertOffsetsMatch(t *testing.T, text string, pieces []ChunkPiece) {
	t.Helper()
	runes := []rune(text)
	for i, p := range pieces {
		assert.Equal(t, i, p.Metadata.ChunkIndex)
		assert.Less(t, p.Metadata.StartPosition, p.Metadata.EndPosition)
		assert.Equal(t, string(runes[p.Metadata.StartPosition:p.Metadata.EndPosition]), p.Content)
		if i > 0 {
			assert.GreaterOrEqual(t, p.Metadata.StartPosition, pieces[i-1].Metadata.StartPosition)
		}
	}
}

func TestChunkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkConfig
		wantErr bool
	}{
		{"default", DefaultChunkConfig(), false},
		{"with overlap", ChunkConfig{ChunkSize: 400, Overlap: 50}, false},
		{"zero size", ChunkConfig{ChunkSize: 0}, true},
		{"negative overlap", ChunkConfig{ChunkSize: 100, Overlap: -1}, true},
		{"overlap equals size", ChunkConfig{ChunkSize: 100, Overlap: 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidChunkConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChunker_EmptyInput(t *testing.T) {
	c := newTestChunker(t, 400, 0)

	assert.Empty(t, c.Chunk("", nil))
	assert.Empty(t, c.Chunk("   \n\n\t  ", nil))
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := newTestChunker(t, 400, 0)
	text := "  Hello world.\n"

	pieces := c.Chunk(text, nil)
	require.Len(t, pieces, 1)
	assert.Equal(t, "Hello world.", pieces[0].Content)
	assert.Equal(t, 2, pieces[0].Metadata.StartPosition)
	assert.Equal(t, 14, pieces[0].Metadata.EndPosition)
	assert.Nil(t, pieces[0].Metadata.PageNumber)
}

func TestChunker_PrefersParagraphBreak(t *testing.T) {
	c := newTestChunker(t, 100, 0)
	first := strings.Repeat("a", 70)
	second := strings.Repeat("b", 60)
	text := first + "\n\n" + second

	pieces := c.Chunk(text, nil)
	require.Len(t, pieces, 2)
	assert.Equal(t, first, pieces[0].Content)
	assert.Equal(t, second, pieces[1].Content)
	assertOffsetsMatch(t, text, pieces)
}

func TestChunker_IgnoresEarlyParagraphBreak(t *testing.T) {
	c := newTestChunker(t, 100, 0)
	// The paragraph break sits at 20% of the window, too early to accept, so
	// the word break later in the window wins.
	text := strings.Repeat("a", 20) + "\n\n" + strings.Repeat("b", 50) + " " + strings.Repeat("c", 60)

	pieces := c.Chunk(text, nil)
	require.Len(t, pieces, 2)
	assert.Equal(t, 0, pieces[0].Metadata.StartPosition)
	assert.Equal(t, 72, pieces[0].Metadata.EndPosition)
	assert.Equal(t, strings.Repeat("c", 60), pieces[1].Content)
	assertOffsetsMatch(t, text, pieces)
}

func TestChunker_HardCutWithoutSeparators(t *testing.T) {
	c := newTestChunker(t, 100, 0)
	text := strings.Repeat("x", 250)

	pieces := c.Chunk(text, nil)
	require.Len(t, pieces, 3)
	assert.Len(t, []rune(pieces[0].Content), 100)
	assert.Len(t, []rune(pieces[1].Content), 100)
	assert.Len(t, []rune(pieces[2].Content), 50)
	assertOffsetsMatch(t, text, pieces)
}

func TestChunker_PositionsAreCharacterOffsets(t *testing.T) {
	c := newTestChunker(t, 20, 0)
	text := "héllo wörld ünïcode 日本語のテキスト です 続きの文章"

	pieces := c.Chunk(text, nil)
	require.NotEmpty(t, pieces)
	assertOffsetsMatch(t, text, pieces)
	last := pieces[len(pieces)-1]
	assert.Equal(t, len([]rune(text)), last.Metadata.EndPosition)
}

func TestChunker_Overlap(t *testing.T) {
	c := newTestChunker(t, 50, 10)
	words := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ")

	pieces := c.Chunk(text, nil)
	require.Greater(t, len(pieces), 1)
	assertOffsetsMatch(t, text, pieces)

	for i := 1; i < len(pieces); i++ {
		prev := pieces[i-1].Metadata
		cur := pieces[i].Metadata
		assert.Less(t, cur.StartPosition, prev.EndPosition, "chunk %d should overlap its predecessor", i)
		assert.GreaterOrEqual(t, cur.StartPosition, prev.EndPosition-10)
		assert.False(t, strings.HasPrefix(pieces[i].Content, " "))
	}
}

func TestChunker_OverlapNeverReachesBeforePreviousStart(t *testing.T) {
	c := newTestChunker(t, 100, 60)
	// The middle chunk is only 30 characters long, shorter than the overlap.
	text := strings.Repeat("a", 100) + strings.Repeat("b", 30) + " " + strings.Repeat("c", 100)

	pieces := c.Chunk(text, nil)
	require.Len(t, pieces, 3)
	assertOffsetsMatch(t, text, pieces)
	assert.Equal(t, 40, pieces[1].Metadata.StartPosition)
	assert.Equal(t, 130, pieces[1].Metadata.EndPosition)
	assert.Equal(t, 100, pieces[2].Metadata.StartPosition)
}

func TestChunker_ThreePagePDF(t *testing.T) {
	c := newTestChunker(t, 400, 0)

	page := strings.Repeat("p", 800)
	text := page + "\n" + page + "\n" + page
	pages := []domain.PagePosition{
		{PageNumber: 1, StartChar: 0, EndChar: 800},
		{PageNumber: 2, StartChar: 801, EndChar: 1601},
		{PageNumber: 3, StartChar: 1602, EndChar: 2402},
	}

	pieces := c.Chunk(text, pages)
	require.Len(t, pieces, 6)
	assertOffsetsMatch(t, text, pieces)

	wantPages := []int{1, 1, 2, 2, 3, 3}
	for i, p := range pieces {
		require.NotNil(t, p.Metadata.PageNumber)
		assert.Equal(t, wantPages[i], *p.Metadata.PageNumber)
		if i > 0 {
			assert.Greater(t, p.Metadata.StartPosition, pieces[i-1].Metadata.StartPosition)
			assert.GreaterOrEqual(t, p.Metadata.StartPosition, pieces[i-1].Metadata.EndPosition)
		}
	}
}

func TestPageFor(t *testing.T) {
	pages := []domain.PagePosition{
		{PageNumber: 1, StartChar: 0, EndChar: 10},
		{PageNumber: 2, StartChar: 11, EndChar: 20},
	}

	tests := []struct {
		name string
		pos  int
		want int
	}{
		{"first page", 0, 1},
		{"end of first page", 9, 1},
		{"page separator", 10, 1},
		{"second page", 11, 2},
		{"beyond last page", 500, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pageFor(tt.pos, pages)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	assert.Nil(t, pageFor(3, nil))
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "short", previewText("  short  ", 10))
	assert.Equal(t, "abc...", previewText("abcdef", 3))
}
