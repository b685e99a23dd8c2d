package domain

import (
	"strings"
	"time"
)

// Strategy names an algorithm for ranking chunks against a query.
type Strategy string

const (
	StrategySemantic Strategy = "semantic"
	StrategyKeyword  Strategy = "keyword"
	StrategyHybrid   Strategy = "hybrid"
	StrategyEnhanced Strategy = "enhanced"
	StrategyCombined Strategy = "combined"
)

// AllStrategies lists the strategies in a stable order.
var AllStrategies = []Strategy{
	StrategySemantic,
	StrategyKeyword,
	StrategyHybrid,
	StrategyEnhanced,
	StrategyCombined,
}

// ParseStrategy converts a user-supplied name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidStrategy
	}
	return st, nil
}

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategySemantic, StrategyKeyword, StrategyHybrid, StrategyEnhanced, StrategyCombined:
		return true
	}
	return false
}

// NeedsEmbedding reports whether the strategy requires a query vector.
func (s Strategy) NeedsEmbedding() bool {
	return s != StrategyKeyword
}

// ScoredChunk is one ranked retrieval hit.
//
// Score is distance-like (lower is better) for every strategy. RawScore keeps
// the strategy's native value. Confidence is the normalized 0-1 value that is
// comparable across strategies.
type ScoredChunk struct {
	ID            int64   `json:"id"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	RawScore      float64 `json:"raw_score"`
	Confidence    float64 `json:"confidence"`
	SourceFile    string  `json:"source_file,omitempty"`
	ChunkIndex    int     `json:"chunk_index"`
	StartPosition int     `json:"start_position"`
	EndPosition   int     `json:"end_position"`
	PageNumber    *int    `json:"page_number,omitempty"`
}

// RetrievalResult is the transient outcome of one retrieval.
type RetrievalResult struct {
	Query                  string
	Documents              []ScoredChunk
	StrategyUsed           Strategy
	RetrievalTime          time.Duration
	EmbeddingTime          time.Duration
	TotalDocumentsSearched int
	CacheHit               bool
	// Degraded is set when the requested strategy could not run and a
	// fallback produced the documents.
	Degraded bool
	// Err records a failure swallowed at the strategy boundary.
	Err error
}

// RetrievalTimeMS reports the retrieval time in milliseconds.
func (r *RetrievalResult) RetrievalTimeMS() float64 {
	return float64(r.RetrievalTime.Microseconds()) / 1000
}

// EmbeddingTimeMS reports the embedding time in milliseconds, zero when no
// embedding was requested.
func (r *RetrievalResult) EmbeddingTimeMS() float64 {
	return float64(r.EmbeddingTime.Microseconds()) / 1000
}

// Empty reports whether no relevant chunk survived filtering.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Documents) == 0
}

// ReferencesSource reports whether any document came from sourceFile.
func ReferencesSource(docs []ScoredChunk, sourceFile string) bool {
	for _, d := range docs {
		if d.SourceFile != "" && d.SourceFile == sourceFile {
			return true
		}
	}
	return false
}

// SourceRef is the source metadata returned alongside a generated answer.
type SourceRef struct {
	ID             int64   `json:"id"`
	SourceFile     string  `json:"source_file"`
	DisplayName    string  `json:"display_name"`
	Confidence     float64 `json:"confidence"`
	RawScore       float64 `json:"raw_score"`
	PageNumber     *int    `json:"page_number,omitempty"`
	ContentPreview string  `json:"content_preview"`
}
