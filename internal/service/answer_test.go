package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const answerQuery = "how do I request time off"

func newAnswerFixture(llm ChatClient) (*retrievalFixture, *AnswerService) {
	f := newRetrievalFixture()
	cfg := DefaultAnswerConfig()
	cfg.Decompose = false
	return f, NewAnswerService(f.service(), llm, f.caches, cfg)
}

func TestAnswerService_Answer(t *testing.T) {
	ctx := context.Background()
	llm := new(MockChatClient)
	f, svc := newAnswerFixture(llm)

	f.embedder.On("GenerateEmbedding", mock.Anything, answerQuery).Return(queryVec, nil)
	f.search.On("SearchSemantic", mock.Anything, queryVec, 10).Return([]domain.ScoredChunk{
		{ID: 1, Content: "Submit a PTO request in the HR portal.", Score: 0.4, RawScore: 0.4, SourceFile: "/docs/pto.md"},
		{ID: 2, Content: "Managers approve requests within two days.", Score: 0.5, RawScore: 0.5, SourceFile: "/docs/approvals.pdf", PageNumber: intPtr(3)},
	}, nil)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req openai.ChatRequest) bool {
		return req.Prompt == answerQuery &&
			strings.Contains(req.System, "[Source 1]\nSubmit a PTO request in the HR portal.") &&
			strings.Contains(req.System, "[Source 2]\nManagers approve requests within two days.") &&
			req.Temperature == 0.1 && req.MaxTokens == 512 && !req.JSON
	})).Return("  Use the HR portal [Source 1].  ", nil).Once()

	answer, err := svc.Answer(ctx, answerQuery, 5)
	require.NoError(t, err)

	assert.Equal(t, "Use the HR portal [Source 1].", answer.Text)
	assert.False(t, answer.Cached)
	assert.Equal(t, domain.StrategySemantic, answer.Strategy)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "pto.md", answer.Sources[0].DisplayName)
	assert.Equal(t, 3, *answer.Sources[1].PageNumber)
	assert.Equal(t, "Managers approve requests within two days.", answer.Sources[1].ContentPreview)

	t.Run("repeat question is served from the response cache", func(t *testing.T) {
		again, err := svc.Answer(ctx, "How do I request TIME off", 5)
		require.NoError(t, err)
		assert.True(t, again.Cached)
		assert.Equal(t, answer.Text, again.Text)
		llm.AssertNumberOfCalls(t, "Generate", 1)
	})

	t.Run("invalidating a cited source drops the cached answer", func(t *testing.T) {
		inv := f.caches.InvalidateBySource("/docs/approvals.pdf")
		assert.Equal(t, 1, inv.Responses)
		_, ok := f.caches.Responses.Get(answerQuery)
		assert.False(t, ok)
	})
}

func TestAnswerService_Answer_RemovalDuringGenerationIsNotCached(t *testing.T) {
	ctx := context.Background()
	const gone = "/docs/pto.md"
	llm := new(MockChatClient)
	f, svc := newAnswerFixture(llm)
	remover := f.sourceRemover(gone)

	f.embedder.On("GenerateEmbedding", mock.Anything, answerQuery).Return(queryVec, nil)
	f.search.On("SearchSemantic", mock.Anything, queryVec, 10).Return([]domain.ScoredChunk{
		{ID: 1, Content: "Submit a PTO request in the HR portal.", Score: 0.4, RawScore: 0.4, SourceFile: gone},
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := remover.RemoveSource(ctx, gone)
			require.NoError(t, err)
		}).
		Return("Use the HR portal [Source 1].", nil)

	answer, err := svc.Answer(ctx, answerQuery, 5)
	require.NoError(t, err)
	assert.False(t, answer.Cached)

	_, ok := f.caches.Responses.Get(answerQuery)
	assert.False(t, ok)
}

func TestAnswerService_Answer_NoResults(t *testing.T) {
	llm := new(MockChatClient)
	f, svc := newAnswerFixture(llm)
	f.embedder.On("GenerateEmbedding", mock.Anything, answerQuery).Return(queryVec, nil)
	f.search.On("SearchSemantic", mock.Anything, queryVec, 10).Return([]domain.ScoredChunk{}, nil)

	answer, err := svc.Answer(context.Background(), answerQuery, 5)
	require.NoError(t, err)

	assert.Equal(t, InsufficientInformationAnswer, answer.Text)
	assert.Empty(t, answer.Sources)
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	_, ok := f.caches.Responses.Get(answerQuery)
	assert.False(t, ok)
}

func TestAnswerService_Answer_Errors(t *testing.T) {
	docs := []domain.ScoredChunk{{ID: 1, Content: "PTO", Score: 0.4, RawScore: 0.4}}

	t.Run("empty query", func(t *testing.T) {
		_, svc := newAnswerFixture(nil)
		_, err := svc.Answer(context.Background(), " ", 5)
		assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	})

	t.Run("no chat model configured", func(t *testing.T) {
		f, svc := newAnswerFixture(nil)
		f.embedder.On("GenerateEmbedding", mock.Anything, answerQuery).Return(queryVec, nil)
		f.search.On("SearchSemantic", mock.Anything, queryVec, 10).Return(docs, nil)

		_, err := svc.Answer(context.Background(), answerQuery, 5)
		assert.ErrorIs(t, err, openai.ErrNoChatModel)
	})

	t.Run("generation failure is not cached", func(t *testing.T) {
		llm := new(MockChatClient)
		f, svc := newAnswerFixture(llm)
		f.embedder.On("GenerateEmbedding", mock.Anything, answerQuery).Return(queryVec, nil)
		f.search.On("SearchSemantic", mock.Anything, queryVec, 10).Return(docs, nil)
		llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))

		_, err := svc.Answer(context.Background(), answerQuery, 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to generate answer")
		_, ok := f.caches.Responses.Get(answerQuery)
		assert.False(t, ok)
	})
}

func TestAnswerService_BuildContext(t *testing.T) {
	cfg := DefaultAnswerConfig()
	cfg.MaxDocChars = 10
	cfg.MaxContextChars = 40
	cfg.PreviewChars = 5
	svc := &AnswerService{cfg: cfg}

	docs := []domain.ScoredChunk{
		{ID: 1, Content: "abcdefghijklmnop", SourceFile: "/a.txt"},
		{ID: 2, Content: "short", SourceFile: "/b.txt"},
		{ID: 3, Content: "never included", SourceFile: "/c.txt"},
	}

	text, sources := svc.buildContext(docs)

	assert.Equal(t, "[Source 1]\nabcdefghij...\n\n[Source 2]\nshort", text)
	require.Len(t, sources, 2)
	assert.Equal(t, "abcde...", sources[0].ContentPreview)
	assert.Equal(t, int64(2), sources[1].ID)
}

func intPtr(v int) *int {
	return &v
}
