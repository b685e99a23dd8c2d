package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectStore struct {
	mock.Mock
	contents map[string]string
}

func (m *MockObjectStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ObjectInfo), args.Error(1)
}

func (m *MockObjectStore) Download(ctx context.Context, key string, w io.Writer) error {
	args := m.Called(ctx, key)
	if err := args.Error(0); err != nil {
		return err
	}
	_, err := io.Copy(w, bytes.NewBufferString(m.contents[key]))
	return err
}

func supportsDocs(path string) bool {
	return strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".txt")
}

func TestS3Mirror_Sync(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	modified := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	store := &MockObjectStore{contents: map[string]string{
		"docs/handbook.md":      "# Handbook",
		"docs/policies/pto.txt": "PTO accrues monthly.",
	}}
	store.On("ListObjects", mock.Anything, "docs/").Return([]ObjectInfo{
		{Key: "docs/", Size: 0},
		{Key: "docs/handbook.md", Size: 10, LastModified: modified},
		{Key: "docs/policies/pto.txt", Size: 20, LastModified: modified},
		{Key: "docs/logo.png", Size: 4, LastModified: modified},
		{Key: "docs/.draft.md", Size: 4, LastModified: modified},
		{Key: "docs/../escape.md", Size: 4, LastModified: modified},
	}, nil)
	store.On("Download", mock.Anything, "docs/handbook.md").Return(nil)
	store.On("Download", mock.Anything, "docs/policies/pto.txt").Return(nil)

	mirror := NewS3Mirror(store, "docs/", root, supportsDocs)
	report, err := mirror.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Listed)
	assert.Equal(t, 4, report.Skipped)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "handbook.md"),
		filepath.Join(root, "policies", "pto.txt"),
	}, report.Downloaded)

	data, err := os.ReadFile(filepath.Join(root, "policies", "pto.txt"))
	require.NoError(t, err)
	assert.Equal(t, "PTO accrues monthly.", string(data))

	info, err := os.Stat(filepath.Join(root, "handbook.md"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(modified))

	leftovers, err := filepath.Glob(filepath.Join(root, ".mirror-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	t.Run("second sync skips unchanged files", func(t *testing.T) {
		report, err := mirror.Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Unchanged)
		assert.Empty(t, report.Downloaded)
		store.AssertNumberOfCalls(t, "Download", 2)
	})
}

func TestS3Mirror_SyncErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("listing failure", func(t *testing.T) {
		store := &MockObjectStore{}
		store.On("ListObjects", mock.Anything, "").Return(nil, errors.New("access denied"))

		_, err := NewS3Mirror(store, "", t.TempDir(), nil).Sync(ctx)
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("download failure leaves no partial file", func(t *testing.T) {
		root := t.TempDir()
		store := &MockObjectStore{}
		store.On("ListObjects", mock.Anything, "").Return([]ObjectInfo{{Key: "a.md", Size: 3}}, nil)
		store.On("Download", mock.Anything, "a.md").Return(errors.New("connection reset"))

		report, err := NewS3Mirror(store, "", root, nil).Sync(ctx)
		require.NoError(t, err)
		assert.Contains(t, report.Errors, "a.md")

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
