package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected Strategy
		wantErr  bool
	}{
		{"semantic", StrategySemantic, false},
		{"KEYWORD", StrategyKeyword, false},
		{" hybrid ", StrategyHybrid, false},
		{"enhanced", StrategyEnhanced, false},
		{"combined", StrategyCombined, false},
		{"fuzzy", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStrategy_NeedsEmbedding(t *testing.T) {
	for _, s := range AllStrategies {
		t.Run(string(s), func(t *testing.T) {
			assert.Equal(t, s != StrategyKeyword, s.NeedsEmbedding())
		})
	}
}

func TestRetrievalResult_Timings(t *testing.T) {
	r := &RetrievalResult{RetrievalTime: 1500 * time.Microsecond, EmbeddingTime: 0}
	assert.InDelta(t, 1.5, r.RetrievalTimeMS(), 1e-9)
	assert.Zero(t, r.EmbeddingTimeMS())
}

func TestRetrievalResult_Empty(t *testing.T) {
	var nilResult *RetrievalResult
	assert.True(t, nilResult.Empty())
	assert.True(t, (&RetrievalResult{}).Empty())
	assert.False(t, (&RetrievalResult{Documents: []ScoredChunk{{ID: 1}}}).Empty())
}

func TestReferencesSource(t *testing.T) {
	docs := []ScoredChunk{
		{ID: 1, SourceFile: "/docs/a.pdf"},
		{ID: 2, SourceFile: ""},
	}
	assert.True(t, ReferencesSource(docs, "/docs/a.pdf"))
	assert.False(t, ReferencesSource(docs, "/docs/b.pdf"))
	assert.False(t, ReferencesSource(docs, ""))
}
