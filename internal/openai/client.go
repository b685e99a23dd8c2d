package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL targets a local Ollama instance through its OpenAI-compatible API
	DefaultBaseURL = "http://localhost:11434/v1"
	// DefaultEmbeddingModel is the model used for generating embeddings
	DefaultEmbeddingModel = "nomic-embed-text"
	// DefaultEmbeddingDimensions is the expected dimension of nomic-embed-text vectors
	DefaultEmbeddingDimensions = 768
	// DefaultChatModel is the model used for answer generation and query refinement
	DefaultChatModel = "mistral:7b"
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoChatModel is returned when generation is requested without a chat model
	ErrNoChatModel = errors.New("no chat model configured")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatAPI defines the interface for chat completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is a single-turn completion request.
type ChatRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSON        bool
}

type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: openai.EmbeddingModel(model),
		chatModel:      cfg.ChatModel,
	}
}

// CreateEmbeddings embeds all texts in one request and returns the vectors in
// input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// CreateChatCompletion calls the chat endpoint and returns the first choice.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	if a.chatModel == "" {
		return "", ErrNoChatModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       a.chatModel,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type Config struct {
	BaseURL             string
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	// EmbedTimeout bounds one embedding request, GenerationTimeout one completion.
	EmbedTimeout      time.Duration
	GenerationTimeout time.Duration
	// RequestsPerSecond throttles provider calls; zero disables throttling.
	RequestsPerSecond float64
}

// Client wraps an OpenAI-compatible provider with validation, timeouts and
// rate limiting.
type Client struct {
	api               EmbeddingAPI
	chat              ChatAPI
	model             string
	dimensions        int
	limiter           *rate.Limiter
	embedTimeout      time.Duration
	generationTimeout time.Duration
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	adapter := NewOpenAIAdapter(cfg)
	return NewClientWithAPI(adapter, adapter, cfg)
}

// NewClientWithAPI builds a client over arbitrary provider implementations.
// chat may be nil when only embeddings are needed.
func NewClientWithAPI(api EmbeddingAPI, chat ChatAPI, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		api:               api,
		chat:              chat,
		model:             model,
		dimensions:        dimensions,
		limiter:           limiter,
		embedTimeout:      cfg.EmbedTimeout,
		generationTimeout: cfg.GenerationTimeout,
	}
}

// Model names the embedding model; it takes part in cache keys.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings embeds a batch of texts with a single provider call.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	if err := c.wait(ctx); err != nil {
		return nil, domain.ErrEmbeddingUnavailable.WithCause(err)
	}

	callCtx, cancel := withTimeout(ctx, c.embedTimeout)
	defer cancel()

	vectors, err := c.api.CreateEmbeddings(callCtx, texts)
	if err != nil {
		return nil, domain.ErrEmbeddingUnavailable.WithCause(fmt.Errorf("failed to create embedding: %w", err))
	}
	if len(vectors) != len(texts) {
		return nil, domain.ErrEmbeddingMalformed.WithCause(fmt.Errorf("got %d embeddings for %d inputs", len(vectors), len(texts)))
	}
	for i, v := range vectors {
		if len(v) != c.dimensions {
			return nil, domain.ErrEmbeddingMalformed.WithCause(
				fmt.Errorf("%w: input %d expected %d, got %d", ErrWrongDimensions, i, c.dimensions, len(v)))
		}
	}

	return vectors, nil
}

// Generate runs a single completion. It fails fast when no chat API is wired.
func (c *Client) Generate(ctx context.Context, req ChatRequest) (string, error) {
	if c.chat == nil {
		return "", ErrNoChatModel
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := withTimeout(ctx, c.generationTimeout)
	defer cancel()

	out, err := c.chat.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	return out, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
