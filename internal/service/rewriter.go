package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/openai"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
)

// ChatClient defines the interface for single-turn LLM completions
type ChatClient interface {
	Generate(ctx context.Context, req openai.ChatRequest) (string, error)
}

// RewriteKind tells whether a query was split.
type RewriteKind string

const (
	RewriteSimple     RewriteKind = "simple"
	RewriteSubqueries RewriteKind = "subqueries"
)

// Rewrite is the outcome of QueryRewriter.Rewrite. Subqueries is set only for
// RewriteSubqueries.
type Rewrite struct {
	Kind       RewriteKind
	Query      string
	Subqueries []string
	// Refined is true when the LLM produced the subqueries.
	Refined bool
}

// RewriterConfig tunes query decomposition.
type RewriterConfig struct {
	MaxSubqueries  int
	MinSplitWords  int
	ChunkOverWords int
	MinGroupWords  int
	Connectors     []string
	UseLLM         bool
}

func DefaultRewriterConfig() RewriterConfig {
	return RewriterConfig{
		MaxSubqueries:  3,
		MinSplitWords:  6,
		ChunkOverWords: 12,
		MinGroupWords:  6,
		Connectors:     []string{" and ", " or ", ",", ";", " vs ", " versus "},
		UseLLM:         true,
	}
}

// QueryRewriter decomposes compound questions into focused subqueries.
type QueryRewriter struct {
	llm ChatClient
	cfg RewriterConfig
}

// NewQueryRewriter creates a rewriter. llm may be nil, in which case only the
// heuristic split is used.
func NewQueryRewriter(llm ChatClient, cfg RewriterConfig) *QueryRewriter {
	if cfg.MaxSubqueries <= 0 {
		cfg.MaxSubqueries = DefaultRewriterConfig().MaxSubqueries
	}
	if len(cfg.Connectors) == 0 {
		cfg.Connectors = DefaultRewriterConfig().Connectors
	}
	return &QueryRewriter{llm: llm, cfg: cfg}
}

// Rewrite splits query when the heuristic finds at least two parts, then asks
// the LLM to refine them. Any LLM failure falls back to the heuristic parts.
func (r *QueryRewriter) Rewrite(ctx context.Context, query string) Rewrite {
	query = strings.TrimSpace(query)
	parts := r.heuristicSplit(query)
	if len(parts) < 2 {
		return Rewrite{Kind: RewriteSimple, Query: query}
	}

	if r.cfg.UseLLM && r.llm != nil {
		ctx, span := telemetry.StartSpan(ctx, "QueryRewriter.Rewrite", telemetry.SpanAttributes{
			Query:     query,
			Operation: "rewrite",
		})
		subs, err := r.refine(ctx, query)
		span.End()
		if err == nil {
			return Rewrite{Kind: RewriteSubqueries, Query: query, Subqueries: subs, Refined: true}
		}
		log.Printf("rewriter: using heuristic split: %v", err)
	}

	return Rewrite{Kind: RewriteSubqueries, Query: query, Subqueries: parts}
}

func (r *QueryRewriter) heuristicSplit(query string) []string {
	words := strings.Fields(query)
	if len(words) <= r.cfg.MinSplitWords {
		return nil
	}

	parts := []string{query}
	lower := strings.ToLower(query)
	for _, c := range r.cfg.Connectors {
		if strings.Contains(lower, c) {
			parts = splitFold(query, c)
			break
		}
	}

	if len(parts) == 1 && len(words) > r.cfg.ChunkOverWords {
		size := max(r.cfg.MinGroupWords, len(words)/r.cfg.MaxSubqueries)
		parts = parts[:0]
		for i := 0; i < len(words); i += size {
			parts = append(parts, strings.Join(words[i:min(i+size, len(words))], " "))
		}
	}

	if len(parts) > r.cfg.MaxSubqueries {
		parts = parts[:r.cfg.MaxSubqueries]
	}
	if len(parts) <= 1 {
		return nil
	}
	return parts
}

// splitFold splits s on every case-insensitive occurrence of sep and drops
// blank parts.
func splitFold(s, sep string) []string {
	lower := strings.ToLower(s)
	var parts []string
	if len(lower) != len(s) {
		for _, p := range strings.Split(s, sep) {
			parts = appendTrimmed(parts, p)
		}
		return parts
	}
	start := 0
	for {
		i := strings.Index(lower[start:], sep)
		if i < 0 {
			break
		}
		parts = appendTrimmed(parts, s[start:start+i])
		start += i + len(sep)
	}
	return appendTrimmed(parts, s[start:])
}

func appendTrimmed(parts []string, p string) []string {
	if p = strings.TrimSpace(p); p != "" {
		parts = append(parts, p)
	}
	return parts
}

const rewritePrompt = `You are an assistant that rewrites user search queries into a small list of focused search subqueries. Given the user query below, return a JSON object with a single key "subqueries" whose value is a list of at most %d concise subqueries.

User query: %s

Respond only with the JSON object.`

func (r *QueryRewriter) refine(ctx context.Context, query string) ([]string, error) {
	text, err := r.llm.Generate(ctx, openai.ChatRequest{
		Prompt:      fmt.Sprintf(rewritePrompt, r.cfg.MaxSubqueries, query),
		Temperature: 0.1,
		MaxTokens:   256,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}
	return parseSubqueries(text, r.cfg.MaxSubqueries)
}

// parseSubqueries reads {"subqueries": [...]} from text, tolerating prose
// around the JSON object.
func parseSubqueries(text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	var payload struct {
		Subqueries []any `json:"subqueries"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in response")
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse subqueries: %w", err)
		}
	}

	subs := make([]string, 0, len(payload.Subqueries))
	for _, v := range payload.Subqueries {
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				subs = append(subs, s)
			}
		}
	}
	if len(subs) > limit {
		subs = subs[:limit]
	}
	if len(subs) < 2 {
		return nil, fmt.Errorf("expected at least 2 subqueries, got %d", len(subs))
	}
	return subs, nil
}

// MergeResults fuses per-subquery result sets, keeping the lowest score per
// chunk id. Output is sorted by score, then id, so input order never changes
// the result.
func MergeResults(results [][]domain.ScoredChunk) []domain.ScoredChunk {
	best := make(map[int64]domain.ScoredChunk)
	for _, set := range results {
		for _, doc := range set {
			existing, ok := best[doc.ID]
			if !ok || doc.Score < existing.Score || (doc.Score == existing.Score && doc.Confidence > existing.Confidence) {
				best[doc.ID] = doc
			}
		}
	}

	merged := make([]domain.ScoredChunk, 0, len(best))
	for _, doc := range best {
		merged = append(merged, doc)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score < merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
