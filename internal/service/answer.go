package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/openai"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
)

// InsufficientInformationAnswer is returned when retrieval finds nothing
// relevant.
const InsufficientInformationAnswer = "I don't have information about this in the available documents."

const answerSystemPrompt = `You are a document retrieval assistant. Your ONLY job is to present information from the provided documents.
RULES:
1. ONLY use information that is explicitly stated in the provided documents
2. Do NOT generate, infer, or create any new information
3. If the documents don't contain the answer, say '` + InsufficientInformationAnswer + `'
4. Present the information in a clear, organized way using the exact content from the documents
5. Cite sources as [Source N] when presenting information
6. If multiple documents contain relevant information, combine them clearly

Available documents:
`

// AnswerConfig bounds the context handed to the model.
type AnswerConfig struct {
	MaxDocChars     int
	MaxContextChars int
	PreviewChars    int
	Temperature     float32
	MaxTokens       int
	Decompose       bool
}

func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		MaxDocChars:     2000,
		MaxContextChars: 8000,
		PreviewChars:    200,
		Temperature:     0.1,
		MaxTokens:       512,
		Decompose:       true,
	}
}

// Answer is a generated response with the sources it was built from.
type Answer struct {
	Query          string
	Text           string
	Sources        []domain.SourceRef
	Strategy       domain.Strategy
	Cached         bool
	Retrieval      *domain.RetrievalResult
	GenerationTime time.Duration
}

// AnswerService retrieves context and asks the LLM for a grounded answer.
type AnswerService struct {
	retrieval *RetrievalService
	llm       ChatClient
	caches    *cache.Layer
	cfg       AnswerConfig
}

func NewAnswerService(retrieval *RetrievalService, llm ChatClient, caches *cache.Layer, cfg AnswerConfig) *AnswerService {
	return &AnswerService{
		retrieval: retrieval,
		llm:       llm,
		caches:    caches,
		cfg:       cfg,
	}
}

// Answer returns a cached response when one exists. Otherwise it retrieves,
// generates and caches the answer. Empty retrievals return the fixed
// insufficient-information answer without calling the model and are never
// cached.
func (s *AnswerService) Answer(ctx context.Context, query string, topK int) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Answer", telemetry.SpanAttributes{
		Query:     query,
		Operation: "answer",
	})
	defer span.End()

	responses := s.responseCache()
	var gen uint64
	if responses != nil {
		gen = responses.Generation()
		if cached, ok := responses.Get(query); ok {
			return &Answer{
				Query:    query,
				Text:     cached.Answer,
				Sources:  cached.Sources,
				Strategy: cached.Strategy,
				Cached:   true,
			}, nil
		}
	}

	var (
		result *domain.RetrievalResult
		err    error
	)
	if s.cfg.Decompose {
		result, _, err = s.retrieval.RetrieveDecomposed(ctx, query, topK)
	} else {
		result, err = s.retrieval.Retrieve(ctx, query, topK, nil)
	}
	if err != nil {
		return nil, err
	}

	answer := &Answer{Query: query, Strategy: result.StrategyUsed, Retrieval: result}
	if result.Empty() {
		answer.Text = InsufficientInformationAnswer
		answer.Sources = []domain.SourceRef{}
		return answer, nil
	}

	contextText, sources := s.buildContext(result.Documents)
	answer.Sources = sources

	if s.llm == nil {
		return nil, openai.ErrNoChatModel
	}
	started := time.Now()
	text, err := s.llm.Generate(ctx, openai.ChatRequest{
		System:      answerSystemPrompt + contextText,
		Prompt:      query,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	answer.GenerationTime = time.Since(started)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	answer.Text = strings.TrimSpace(text)

	if responses != nil && answer.Text != "" {
		stored := responses.PutIfGeneration(query, cache.Response{
			Answer:   answer.Text,
			Sources:  answer.Sources,
			Strategy: answer.Strategy,
			CachedAt: time.Now().UTC(),
		}, gen)
		if !stored {
			log.Printf("answer: not caching %q, a source was invalidated during generation", query)
		}
	}
	log.Printf("answer: %d sources, strategy=%s, generated in %s", len(sources), answer.Strategy, answer.GenerationTime.Round(time.Millisecond))
	return answer, nil
}

// buildContext numbers each document as [Source N], truncating long chunks,
// and stops before the context budget is exceeded.
func (s *AnswerService) buildContext(docs []domain.ScoredChunk) (string, []domain.SourceRef) {
	blocks := make([]string, 0, len(docs))
	sources := make([]domain.SourceRef, 0, len(docs))
	total := 0

	for i, d := range docs {
		content := d.Content
		if r := []rune(content); len(r) > s.cfg.MaxDocChars {
			content = string(r[:s.cfg.MaxDocChars]) + "..."
		}
		block := fmt.Sprintf("[Source %d]\n%s", i+1, content)
		size := len([]rune(block))
		if len(blocks) > 0 && total+size > s.cfg.MaxContextChars {
			break
		}
		blocks = append(blocks, block)
		total += size

		sources = append(sources, domain.SourceRef{
			ID:             d.ID,
			SourceFile:     d.SourceFile,
			DisplayName:    domain.DisplayName(d.SourceFile),
			Confidence:     d.Confidence,
			RawScore:       d.RawScore,
			PageNumber:     d.PageNumber,
			ContentPreview: previewText(d.Content, s.cfg.PreviewChars),
		})
	}

	return strings.Join(blocks, "\n\n"), sources
}

func (s *AnswerService) responseCache() *cache.ResponseCache {
	if s.caches == nil {
		return nil
	}
	return s.caches.Responses
}
