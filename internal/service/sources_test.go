package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSourceFixture() (*MockChunkRepository, *MockSourceRepository, *testTxRunner, *cache.Layer, *SourceService) {
	chunkRepo := new(MockChunkRepository)
	srcRepo := new(MockSourceRepository)
	tx := newTestTxRunner(chunkRepo, srcRepo)
	caches := cache.NewLayer(cache.DefaultLayerConfig("test-model"))
	return chunkRepo, srcRepo, tx, caches, NewSourceService(chunkRepo, srcRepo, tx, caches, nil)
}

func TestSourceService_RemoveSource(t *testing.T) {
	ctx := context.Background()

	t.Run("removes chunks and invalidates caches", func(t *testing.T) {
		chunkRepo, srcRepo, tx, caches, svc := newSourceFixture()
		path := "/docs/handbook.md"

		key := cache.QueryKey{Query: "pto", TopK: 5, Strategy: domain.StrategyKeyword, Model: "test-model"}
		caches.QueryResults.Put(key, []domain.ScoredChunk{{ID: 1, SourceFile: path}})
		caches.Responses.Put("pto", cache.Response{Answer: "See handbook", Sources: []domain.SourceRef{{SourceFile: path}}})

		chunkRepo.On("DeleteBySource", mock.Anything, path).Return(int64(4), nil)
		srcRepo.On("Delete", mock.Anything, path).Return(true, nil)

		removed, err := svc.RemoveSource(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, int64(4), removed)
		assert.Equal(t, 1, tx.called)
		_, ok := caches.QueryResults.Get(key)
		assert.False(t, ok)
		_, ok = caches.Responses.Get("pto")
		assert.False(t, ok)
	})

	t.Run("unknown source", func(t *testing.T) {
		chunkRepo, srcRepo, _, _, svc := newSourceFixture()
		chunkRepo.On("DeleteBySource", mock.Anything, "/docs/ghost.md").Return(int64(0), nil)
		srcRepo.On("Delete", mock.Anything, "/docs/ghost.md").Return(false, nil)

		_, err := svc.RemoveSource(ctx, "/docs/ghost.md")
		assert.ErrorIs(t, err, domain.ErrSourceNotFound)
	})

	t.Run("registry row without chunks", func(t *testing.T) {
		chunkRepo, srcRepo, _, _, svc := newSourceFixture()
		chunkRepo.On("DeleteBySource", mock.Anything, "/docs/empty.md").Return(int64(0), nil)
		srcRepo.On("Delete", mock.Anything, "/docs/empty.md").Return(true, nil)

		removed, err := svc.RemoveSource(ctx, "/docs/empty.md")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("store failure", func(t *testing.T) {
		_, _, tx, _, svc := newSourceFixture()
		tx.err = errors.New("connection refused")

		_, err := svc.RemoveSource(ctx, "/docs/handbook.md")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestSourceService_Stats(t *testing.T) {
	chunkRepo, _, _, _, svc := newSourceFixture()
	counts := []domain.SourceCount{{SourceFile: "/docs/a.md", Count: 3}, {SourceFile: "/docs/b.pdf", Count: 9}}
	chunkRepo.On("CountDocuments", mock.Anything).Return(12, nil)
	chunkRepo.On("CountBySource", mock.Anything).Return(counts, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.TotalChunks)
	assert.Equal(t, counts, stats.Sources)

	t.Run("store failure", func(t *testing.T) {
		chunkRepo, _, _, _, svc := newSourceFixture()
		chunkRepo.On("CountDocuments", mock.Anything).Return(0, errors.New("down"))

		_, err := svc.Stats(context.Background())
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}
