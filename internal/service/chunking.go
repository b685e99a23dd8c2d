package service

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// ChunkConfig controls how extracted text is split. Sizes are in characters.
type ChunkConfig struct {
	ChunkSize int
	Overlap   int
}

// DefaultChunkConfig provides the defaults used by the ingestion pipeline.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize: 400,
		Overlap:   0,
	}
}

func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return domain.ErrInvalidChunkConfig.WithCause(fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return domain.ErrInvalidChunkConfig.WithCause(fmt.Errorf("overlap must be in [0, %d), got %d", c.ChunkSize, c.Overlap))
	}
	return nil
}

// separator is a split candidate. minPercent is how far into the window the
// separator must sit before it is accepted.
type separator struct {
	text       []rune
	minPercent int
}

// Paragraph breaks first, then line breaks, then spaces.
var separators = []separator{
	{text: []rune("\n\n"), minPercent: 60},
	{text: []rune("\n"), minPercent: 50},
	{text: []rune(" "), minPercent: 30},
}

// ChunkPiece is one chunk of text with its provenance.
type ChunkPiece struct {
	Content  string
	Metadata domain.ChunkMetadata
}

// Chunker splits text into bounded segments whose positions are rune offsets
// into the original text: string([]rune(text)[Start:End]) == Content.
type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Chunk splits text. pages may be nil; when present, each chunk is assigned
// the page containing its start position.
func (c *Chunker) Chunk(text string, pages []domain.PagePosition) []ChunkPiece {
	runes := []rune(text)
	n := len(runes)
	size := c.cfg.ChunkSize
	overlap := c.cfg.Overlap

	pages = sortedPages(pages)

	var pieces []ChunkPiece
	pos := 0
	prevStart, prevEnd := 0, 0
	for pos < n {
		for pos < n && unicode.IsSpace(runes[pos]) {
			pos++
		}
		if pos >= n {
			break
		}

		limit := pos + size
		if limit >= n {
			limit = n
		} else {
			limit = splitPoint(runes, pos, limit)
		}

		end := limit
		for end > pos && unicode.IsSpace(runes[end-1]) {
			end--
		}

		start := pos
		if overlap > 0 && len(pieces) > 0 {
			start = overlapStart(runes, pos, prevStart, prevEnd, overlap)
		}

		pieces = append(pieces, ChunkPiece{
			Content: string(runes[start:end]),
			Metadata: domain.ChunkMetadata{
				ChunkIndex:    len(pieces),
				StartPosition: start,
				EndPosition:   end,
				PageNumber:    pageFor(start, pages),
			},
		})
		prevStart, prevEnd = pos, end
		pos = limit
	}

	return pieces
}

// splitPoint returns where the window runes[start:limit] should end, preferring
// the latest acceptable separator in priority order and hard-cutting at limit
// when none qualifies.
func splitPoint(runes []rune, start, limit int) int {
	window := runes[start:limit]
	size := len(window)
	for _, sep := range separators {
		i := lastIndex(window, sep.text)
		if i > 0 && i*100 >= sep.minPercent*size {
			return start + i
		}
	}
	return limit
}

// overlapStart moves a chunk's start back over the trailing overlap characters
// of the previous chunk, never past that chunk's own start, and drops leading
// whitespace so the content still starts on text.
func overlapStart(runes []rune, pos, prevStart, prevEnd, overlap int) int {
	start := prevEnd - overlap
	if start < prevStart {
		start = prevStart
	}
	for start < pos && unicode.IsSpace(runes[start]) {
		start++
	}
	return start
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func sortedPages(pages []domain.PagePosition) []domain.PagePosition {
	if len(pages) == 0 {
		return nil
	}
	out := append([]domain.PagePosition(nil), pages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartChar < out[j].StartChar })
	return out
}

// pageFor returns the page whose range contains pos. Positions between pages
// belong to the preceding page and positions past the end to the last page.
func pageFor(pos int, pages []domain.PagePosition) *int {
	if len(pages) == 0 {
		return nil
	}
	page := pages[0].PageNumber
	for _, p := range pages {
		if p.StartChar > pos {
			break
		}
		page = p.PageNumber
	}
	return &page
}

// previewText shortens s to at most n runes for logs and source previews.
func previewText(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
