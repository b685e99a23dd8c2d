package service

import (
	"sort"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// filterByRelevance drops weak matches. Results must be sorted best-first.
// Keyword results are trusted as ranked.
func (p RetrievalPolicy) filterByRelevance(docs []domain.ScoredChunk, strategy domain.Strategy) []domain.ScoredChunk {
	if len(docs) == 0 || strategy == domain.StrategyKeyword {
		return docs
	}

	best := docs[0].Score
	var threshold float64
	switch strategy {
	case domain.StrategySemantic:
		threshold = p.SemanticMaxDistance
		if len(docs) > 1 && best > 0 {
			threshold = min(threshold, best*p.SemanticMultiplier)
		}
	default:
		if best <= 0 {
			return docs
		}
		threshold = best * p.RecallMultiplier
	}

	out := docs[:0:0]
	for _, d := range docs {
		if d.Score <= threshold {
			out = append(out, d)
		}
	}
	return out
}

// boostFactor combines static affinity rules with the feedback weight for a
// source, clamped to [BoostMin, BoostMax]. weight is in [0, 1]; a neutral
// 0.5 leaves the score unchanged.
func (p RetrievalPolicy) boostFactor(lowerQuery string, terms []string, sourceFile string, weight float64, hasWeight bool) float64 {
	factor := 1.0
	if sourceFile == "" {
		return factor
	}

	name := strings.ToLower(domain.DisplayName(sourceFile))
	for _, rule := range p.Affinity {
		if !containsAnyTerm(lowerQuery, terms, rule.QueryTerms) {
			continue
		}
		for _, st := range rule.SourceTerms {
			if st != "" && strings.Contains(name, strings.ToLower(st)) {
				factor *= rule.Factor
				break
			}
		}
	}

	if p.NameMatchBoost > 0 {
		for _, t := range terms {
			if len([]rune(t)) >= 4 && strings.Contains(name, t) {
				factor *= p.NameMatchBoost
				break
			}
		}
	}

	if hasWeight {
		weight = min(max(weight, 0), 1)
		factor *= 1.25 - 0.5*weight
	}

	return min(max(factor, p.BoostMin), p.BoostMax)
}

// applyBoost multiplies each score by its source factor and re-sorts stably.
// prefs maps source files to feedback weights and may be nil.
func (p RetrievalPolicy) applyBoost(docs []domain.ScoredChunk, query string, prefs map[string]float64) []domain.ScoredChunk {
	if len(docs) == 0 {
		return docs
	}

	lower := strings.ToLower(query)
	terms := queryTerms(query)
	factors := make(map[string]float64)
	for i := range docs {
		src := docs[i].SourceFile
		f, ok := factors[src]
		if !ok {
			w, has := prefs[src]
			f = p.boostFactor(lower, terms, src, w, has)
			factors[src] = f
		}
		if docs[i].Score > 0 {
			docs[i].Score *= f
		}
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score < docs[j].Score })
	return docs
}

// ConfidenceFor maps a distance-like score to [0, 1] with the policy's
// piecewise-linear breakpoints. It is monotonically non-increasing in
// distance.
func (p RetrievalPolicy) ConfidenceFor(distance float64) float64 {
	points := p.Confidence
	if len(points) == 0 {
		return clamp01(1 - distance)
	}

	var c float64
	switch {
	case distance <= points[0].Distance:
		c = points[0].Confidence
	case distance > points[len(points)-1].Distance:
		c = p.ConfidenceFloor
	default:
		for i := 1; i < len(points); i++ {
			lo, hi := points[i-1], points[i]
			if distance <= hi.Distance {
				frac := (distance - lo.Distance) / (hi.Distance - lo.Distance)
				c = lo.Confidence + frac*(hi.Confidence-lo.Confidence)
				break
			}
		}
	}
	return clamp01(c)
}

func (p RetrievalPolicy) normalize(docs []domain.ScoredChunk) {
	for i := range docs {
		docs[i].Confidence = p.ConfidenceFor(docs[i].Score)
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
