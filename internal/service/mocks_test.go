package service

import (
	"context"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/openai"
	"github.com/stretchr/testify/mock"
)

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) DeleteBySource(ctx context.Context, sourceFile string) (int64, error) {
	args := m.Called(ctx, sourceFile)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) HasChunks(ctx context.Context, sourceFile string) (bool, error) {
	args := m.Called(ctx, sourceFile)
	return args.Bool(0), args.Error(1)
}

func (m *MockChunkRepository) CountDocuments(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockChunkRepository) CountBySource(ctx context.Context) ([]domain.SourceCount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SourceCount), args.Error(1)
}

func (m *MockChunkRepository) ListSourceFiles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockSourceRepository is a mock implementation of SourceRepositoryInterface
type MockSourceRepository struct {
	mock.Mock
}

func (m *MockSourceRepository) Upsert(ctx context.Context, s *domain.DocumentSource) (int64, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSourceRepository) GetByPath(ctx context.Context, path string) (*domain.DocumentSource, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentSource), args.Error(1)
}

func (m *MockSourceRepository) List(ctx context.Context) ([]*domain.DocumentSource, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentSource), args.Error(1)
}

func (m *MockSourceRepository) Delete(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient. A
// func([]string) [][]float32 return value is called with the input texts.
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if fn, ok := args.Get(0).(func([]string) [][]float32); ok {
		return fn(texts), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func fixedEmbeddings(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out
}

// MockSearchRepository is a mock implementation of SearchRepositoryInterface
type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) scored(args mock.Arguments) ([]domain.ScoredChunk, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	docs := args.Get(0).([]domain.ScoredChunk)
	return append([]domain.ScoredChunk(nil), docs...), args.Error(1)
}

func (m *MockSearchRepository) SearchSemantic(ctx context.Context, embedding []float32, limit int) ([]domain.ScoredChunk, error) {
	return m.scored(m.Called(ctx, embedding, limit))
}

func (m *MockSearchRepository) SearchKeyword(ctx context.Context, terms []string, phrase string, limit int) ([]domain.ScoredChunk, error) {
	return m.scored(m.Called(ctx, terms, phrase, limit))
}

func (m *MockSearchRepository) SearchHybrid(ctx context.Context, query string, embedding []float32, alpha float64, limit int) ([]domain.ScoredChunk, error) {
	return m.scored(m.Called(ctx, query, embedding, alpha, limit))
}

func (m *MockSearchRepository) SearchExactPhrase(ctx context.Context, phrase string, limit int) ([]domain.ScoredChunk, error) {
	return m.scored(m.Called(ctx, phrase, limit))
}

func (m *MockSearchRepository) SearchTermOverlap(ctx context.Context, terms []string, limit int) ([]domain.ScoredChunk, error) {
	return m.scored(m.Called(ctx, terms, limit))
}

func (m *MockSearchRepository) SearchEnumeratedList(ctx context.Context, filterTerms []string, limit int) ([]domain.ScoredChunk, error) {
	return m.scored(m.Called(ctx, filterTerms, limit))
}

// MockChatClient is a mock implementation of ChatClient
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Generate(ctx context.Context, req openai.ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockRetrievalLogRepository is a mock implementation of RetrievalLogRepository
type MockRetrievalLogRepository struct {
	mock.Mock
}

func (m *MockRetrievalLogRepository) CreateRetrievalLog(ctx context.Context, entry domain.RetrievalLogEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

// MockPreferenceProvider is a mock implementation of SourcePreferenceProvider
type MockPreferenceProvider struct {
	mock.Mock
}

func (m *MockPreferenceProvider) SourcePreferences(ctx context.Context, query string) (map[string]float64, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}
