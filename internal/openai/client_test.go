package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingAPI is a mock for the provider's embedding endpoint
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockChatAPI is a mock for the provider's chat endpoint
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func vector(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, nil, Config{})

	ctx := context.Background()
	text := "Employees accrue vacation monthly."
	expected := vector(DefaultEmbeddingDimensions, 0.01)

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{text}).Return([][]float32{expected}, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbeddings_Batch(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, nil, Config{EmbeddingDimensions: 4})

	texts := []string{"one", "two", "three"}
	mockAPI.On("CreateEmbeddings", mock.Anything, texts).
		Return([][]float32{vector(4, 1), vector(4, 2), vector(4, 3)}, nil)

	vectors, err := client.GenerateEmbeddings(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(3), vectors[2][0])
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 1)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClientWithAPI(new(MockEmbeddingAPI), nil, Config{})

	embedding, err := client.GenerateEmbedding(context.Background(), "   ")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, nil, Config{})

	apiErr := errors.New("connection refused")
	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"Test text"}).Return(nil, apiErr)

	embedding, err := client.GenerateEmbedding(context.Background(), "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, apiErr)
	assert.Contains(t, err.Error(), "failed to create embedding")
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, nil, Config{})

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"Test text"}).Return([][]float32{vector(512, 0)}, nil)

	embedding, err := client.GenerateEmbedding(context.Background(), "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, ErrWrongDimensions)
	assert.ErrorIs(t, err, domain.ErrEmbeddingMalformed)
}

func TestClient_GenerateEmbeddings_CountMismatch(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, nil, Config{EmbeddingDimensions: 2})

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"a", "b"}).Return([][]float32{vector(2, 0)}, nil)

	_, err := client.GenerateEmbeddings(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingMalformed)
}

func TestClient_GenerateEmbedding_Timeout(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, nil, Config{EmbedTimeout: 20 * time.Millisecond})

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"slow"}).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := client.GenerateEmbedding(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestClient_Generate(t *testing.T) {
	chat := new(MockChatAPI)
	client := NewClientWithAPI(new(MockEmbeddingAPI), chat, Config{})

	req := ChatRequest{Prompt: "hello", Temperature: 0.1, MaxTokens: 16}
	chat.On("CreateChatCompletion", mock.Anything, req).Return("hi", nil)

	out, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestClient_Generate_NoChat(t *testing.T) {
	client := NewClientWithAPI(new(MockEmbeddingAPI), nil, Config{})

	_, err := client.Generate(context.Background(), ChatRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrNoChatModel)
}

func TestNewClientWithConfig(t *testing.T) {
	client := NewClientWithConfig(Config{
		BaseURL:           DefaultBaseURL,
		APIKey:            "ollama",
		ChatModel:         DefaultChatModel,
		RequestsPerSecond: 5,
	})

	assert.NotNil(t, client.api)
	assert.NotNil(t, client.chat)
	assert.NotNil(t, client.limiter)
	assert.Equal(t, DefaultEmbeddingModel, client.Model())
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
}
