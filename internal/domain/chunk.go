package domain

import (
	"fmt"
	"time"
)

// Chunk is the retrievable unit: a position-tracked segment of a source's
// extracted text together with its embedding.
type Chunk struct {
	ID            int64
	SourceID      int64
	SourceFile    string
	FileType      string
	ChunkIndex    int
	Content       string
	Embedding     []float32
	StartPosition int
	EndPosition   int
	PageNumber    *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChunkMetadata carries the provenance of a chunk within its source text.
// Positions are character (rune) offsets.
type ChunkMetadata struct {
	ChunkIndex    int
	StartPosition int
	EndPosition   int
	PageNumber    *int
}

// PagePosition records the character range a page occupies in extracted text.
// End is exclusive.
type PagePosition struct {
	PageNumber int
	StartChar  int
	EndChar    int
}

// ExtractedText is the output contract of every format reader.
type ExtractedText struct {
	Text     string
	FileType string
	Pages    []PagePosition
}

// ValidateChunk validates a Chunk before it is written to the store
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.Content == "" {
		return fmt.Errorf("chunk Content is required")
	}

	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk ChunkIndex cannot be negative")
	}

	if c.StartPosition < 0 || c.StartPosition >= c.EndPosition {
		return fmt.Errorf("chunk positions are invalid: start=%d end=%d", c.StartPosition, c.EndPosition)
	}

	if c.PageNumber != nil && *c.PageNumber < 1 {
		return fmt.Errorf("chunk PageNumber must be positive")
	}

	return nil
}

// ValidateChunkSequence checks the per-source invariants of a batch: dense
// 0..N-1 indexes and non-decreasing start offsets.
func ValidateChunkSequence(chunks []Chunk) error {
	for i := range chunks {
		if err := ValidateChunk(&chunks[i]); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if chunks[i].ChunkIndex != i {
			return fmt.Errorf("chunk index %d out of sequence at position %d", chunks[i].ChunkIndex, i)
		}
		if i > 0 && chunks[i].StartPosition < chunks[i-1].StartPosition {
			return fmt.Errorf("chunk %d starts before chunk %d", i, i-1)
		}
	}
	return nil
}
