package service

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"gopkg.in/yaml.v3"
)

// ConfidencePoint maps a distance to a confidence. Between points the mapping
// is linear.
type ConfidencePoint struct {
	Distance   float64 `yaml:"distance"`
	Confidence float64 `yaml:"confidence"`
}

// AffinityRule lightly favours sources whose path contains one of
// SourceTerms when the query mentions one of QueryTerms. Factor multiplies
// the distance-like score, so values below 1 favour the source.
type AffinityRule struct {
	QueryTerms  []string `yaml:"query_terms"`
	SourceTerms []string `yaml:"source_terms"`
	Factor      float64  `yaml:"factor"`
}

// RetrievalPolicy holds every tunable of the retrieval engine.
type RetrievalPolicy struct {
	// Strategy selection.
	DomainKeywords  []string `yaml:"domain_keywords"`
	PolicyKeywords  []string `yaml:"policy_keywords"`
	KeywordMaxWords int      `yaml:"keyword_max_words"`
	HybridEnabled   bool     `yaml:"hybrid_enabled"`

	// Strategy execution.
	HybridAlpha              float64  `yaml:"hybrid_alpha"`
	EnumeratedListFilter     []string `yaml:"enumerated_list_filter"`
	CombinedFallbackDistance float64  `yaml:"combined_fallback_distance"`
	CombinedKeywordWeight    float64  `yaml:"combined_keyword_weight"`
	CandidateMultiplier      int      `yaml:"candidate_multiplier"`

	// Relevance filtering.
	SemanticMaxDistance float64 `yaml:"semantic_max_distance"`
	SemanticMultiplier  float64 `yaml:"semantic_multiplier"`
	RecallMultiplier    float64 `yaml:"recall_multiplier"`

	// Source boosting.
	BoostMin       float64        `yaml:"boost_min"`
	BoostMax       float64        `yaml:"boost_max"`
	NameMatchBoost float64        `yaml:"name_match_boost"`
	Affinity       []AffinityRule `yaml:"affinity"`

	// Score normalization.
	Confidence      []ConfidencePoint `yaml:"confidence"`
	ConfidenceFloor float64           `yaml:"confidence_floor"`
}

// DefaultRetrievalPolicy returns the tuning the engine ships with.
func DefaultRetrievalPolicy() RetrievalPolicy {
	return RetrievalPolicy{
		DomainKeywords:  []string{"drug", "substance", "test", "testing", "list"},
		PolicyKeywords:  []string{"policy", "policies", "procedure", "procedures", "guideline", "guidelines", "protocol", "requirement", "requirements", "compliance", "regulation"},
		KeywordMaxWords: 2,

		HybridAlpha:              0.7,
		EnumeratedListFilter:     []string{"drug", "substance", "test"},
		CombinedFallbackDistance: 0.8,
		CombinedKeywordWeight:    0.3,
		CandidateMultiplier:      2,

		SemanticMaxDistance: 50,
		SemanticMultiplier:  1.5,
		RecallMultiplier:    1.75,

		BoostMin:       0.5,
		BoostMax:       1.5,
		NameMatchBoost: 0.9,
		Affinity: []AffinityRule{
			{QueryTerms: []string{"policy", "policies"}, SourceTerms: []string{"policy", "policies", "handbook"}, Factor: 0.85},
			{QueryTerms: []string{"procedure", "procedures", "how to", "steps"}, SourceTerms: []string{"procedure", "sop", "manual"}, Factor: 0.85},
			{QueryTerms: []string{"drug", "substance", "test"}, SourceTerms: []string{"drug", "test", "lab", "panel"}, Factor: 0.85},
		},

		Confidence: []ConfidencePoint{
			{Distance: 5, Confidence: 0.95},
			{Distance: 10, Confidence: 0.85},
			{Distance: 15, Confidence: 0.70},
			{Distance: 20, Confidence: 0.50},
			{Distance: 25, Confidence: 0.25},
		},
		ConfidenceFloor: 0.05,
	}
}

// LoadRetrievalPolicy overlays the YAML file at path on the defaults. An empty
// path returns the defaults.
func LoadRetrievalPolicy(path string) (RetrievalPolicy, error) {
	policy := DefaultRetrievalPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read retrieval policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse retrieval policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// Validate rejects tunings that would break the engine's ordering guarantees.
func (p RetrievalPolicy) Validate() error {
	if p.HybridAlpha < 0 || p.HybridAlpha > 1 {
		return fmt.Errorf("hybrid_alpha must be in [0, 1], got %v", p.HybridAlpha)
	}
	if p.BoostMin <= 0 || p.BoostMin > 1 || p.BoostMax < 1 {
		return fmt.Errorf("boost range must contain 1 and be positive, got [%v, %v]", p.BoostMin, p.BoostMax)
	}
	if p.SemanticMultiplier < 1 || p.RecallMultiplier < 1 {
		return fmt.Errorf("relevance multipliers must be at least 1")
	}
	if p.CombinedKeywordWeight <= 0 {
		return fmt.Errorf("combined_keyword_weight must be positive")
	}
	for i := 1; i < len(p.Confidence); i++ {
		if p.Confidence[i].Distance <= p.Confidence[i-1].Distance {
			return fmt.Errorf("confidence distances must increase")
		}
		if p.Confidence[i].Confidence > p.Confidence[i-1].Confidence {
			return fmt.Errorf("confidence values must not increase with distance")
		}
	}
	return nil
}

// SelectStrategy picks a strategy from the query text alone. The first
// matching rule wins: domain vocabulary, policy vocabulary, short or quoted
// queries, then the semantic default.
func (p RetrievalPolicy) SelectStrategy(query string) domain.Strategy {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)

	if containsAnyTerm(lower, words, p.DomainKeywords) {
		return domain.StrategyEnhanced
	}
	if containsAnyTerm(lower, words, p.PolicyKeywords) {
		return domain.StrategyCombined
	}
	if len(words) <= p.KeywordMaxWords || hasQuotedPhrase(query) {
		return domain.StrategyKeyword
	}
	if p.HybridEnabled {
		return domain.StrategyHybrid
	}
	return domain.StrategySemantic
}

// quotedPhrase matches text wrapped in a pair of double quotes, curly quotes,
// or single quotes that open and close at word boundaries. Apostrophes inside
// words ("what's", "manager's") do not count.
var quotedPhrase = regexp.MustCompile(`"[^"]+"|\x{201C}[^\x{201D}]+\x{201D}|(?:^|[\s(])'[^']+'(?:$|[\s).,;:!?])`)

func hasQuotedPhrase(query string) bool {
	return quotedPhrase.MatchString(query)
}

// containsAnyTerm matches single-word terms against word prefixes, so "test"
// matches "tests" and "testing", and multi-word terms as substrings.
func containsAnyTerm(lower string, words []string, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(term, " ") {
			if strings.Contains(lower, term) {
				return true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(strings.Trim(w, ".,;:!?\"'()[]"), term) {
				return true
			}
		}
	}
	return false
}

// queryTerms splits a query into lowercase terms with surrounding punctuation
// removed.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}
