//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/jpark8215/internal-chatbot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSource(ctx context.Context, t *testing.T, repo *SourceRepository, path string) *domain.DocumentSource {
	src := &domain.DocumentSource{
		SourcePath:     path,
		FileType:       domain.FileTypeFor(path),
		FileModifiedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err := repo.Upsert(ctx, src)
	require.NoError(t, err)
	return src
}

func makeChunks(src *domain.DocumentSource, contents ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(contents))
	pos := 0
	for i, c := range contents {
		chunks = append(chunks, domain.Chunk{
			SourceID:      src.ID,
			SourceFile:    src.SourcePath,
			FileType:      src.FileType,
			ChunkIndex:    i,
			Content:       c,
			Embedding:     testutil.Vector(i, 1),
			StartPosition: pos,
			EndPosition:   pos + len([]rune(c)),
		})
		pos += len([]rune(c)) + 1
	}
	return chunks
}

func TestChunkRepository_InsertBatch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	sourceRepo := NewSourceRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	src := seedSource(ctx, t, sourceRepo, "/docs/handbook.md")
	chunks := makeChunks(src, "first chunk", "second chunk", "third chunk")
	page := 2
	chunks[2].PageNumber = &page

	require.NoError(t, chunkRepo.InsertBatch(ctx, chunks))
	for _, c := range chunks {
		assert.NotZero(t, c.ID)
	}

	count, err := chunkRepo.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	has, err := chunkRepo.HasChunks(ctx, src.SourcePath)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = chunkRepo.HasChunks(ctx, "/docs/missing.md")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestChunkRepository_InsertBatch_RejectsInvalidChunk(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)
	err := chunkRepo.InsertBatch(ctx, []domain.Chunk{{SourceFile: "a.txt", Content: "x", StartPosition: 5, EndPosition: 5}})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))

	count, err := chunkRepo.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestChunkRepository_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	sourceRepo := NewSourceRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	a := seedSource(ctx, t, sourceRepo, "/docs/a.txt")
	b := seedSource(ctx, t, sourceRepo, "/docs/b.txt")
	require.NoError(t, chunkRepo.InsertBatch(ctx, makeChunks(a, "alpha one", "alpha two")))
	require.NoError(t, chunkRepo.InsertBatch(ctx, makeChunks(b, "beta one")))

	removed, err := chunkRepo.DeleteBySource(ctx, a.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	counts, err := chunkRepo.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SourceCount{{SourceFile: "/docs/b.txt", Count: 1}}, counts)

	removed, err = chunkRepo.DeleteBySource(ctx, a.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	files, err := chunkRepo.ListSourceFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/b.txt"}, files)
}

func TestTxRunner_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	sourceRepo := NewSourceRepository(pool)
	chunkRepo := NewChunkRepository(pool)
	src := seedSource(ctx, t, sourceRepo, "/docs/tx.txt")
	require.NoError(t, chunkRepo.InsertBatch(ctx, makeChunks(src, "original")))

	runner := NewTxRunner(pool)
	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if _, err := repos.Chunks().DeleteBySource(ctx, src.SourcePath); err != nil {
			return err
		}
		// duplicate chunk index violates the unique constraint
		dup := makeChunks(src, "one", "two")
		dup[1].ChunkIndex = 0
		return repos.Chunks().InsertBatch(ctx, dup)
	})
	require.Error(t, err)

	counts, err := chunkRepo.CountBySource(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, counts[0].Count)
}
