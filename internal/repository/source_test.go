//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewSourceRepository(pool)
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	src := &domain.DocumentSource{SourcePath: "/docs/policy.pdf", FileType: "pdf", FileModifiedAt: mtime}
	id, err := repo.Upsert(ctx, src)
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := repo.GetByPath(ctx, "/docs/policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, mtime.Equal(got.FileModifiedAt))

	newer := mtime.Add(time.Hour)
	again, err := repo.Upsert(ctx, &domain.DocumentSource{SourcePath: "/docs/policy.pdf", FileType: "pdf", FileModifiedAt: newer})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	got, err = repo.GetByPath(ctx, "/docs/policy.pdf")
	require.NoError(t, err)
	assert.True(t, newer.Equal(got.FileModifiedAt))
}

func TestSourceRepository_GetByPath_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewSourceRepository(pool)
	_, err := repo.GetByPath(ctx, "/nope.txt")
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestSourceRepository_DeleteCascadesChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	sourceRepo := NewSourceRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	src := seedSource(ctx, t, sourceRepo, "/docs/cascade.txt")
	require.NoError(t, chunkRepo.InsertBatch(ctx, makeChunks(src, "one", "two")))

	deleted, err := sourceRepo.Delete(ctx, src.SourcePath)
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err := chunkRepo.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	deleted, err = sourceRepo.Delete(ctx, src.SourcePath)
	require.NoError(t, err)
	assert.False(t, deleted)

	sources, err := sourceRepo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)
}
