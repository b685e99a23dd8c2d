package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFileIngester struct {
	mock.Mock
}

func (m *MockFileIngester) Supports(path string) bool {
	return supportsText(path)
}

func (m *MockFileIngester) IngestFile(ctx context.Context, path string, mode service.IngestMode) (int, error) {
	args := m.Called(ctx, path, mode)
	return args.Int(0), args.Error(1)
}

type MockSourceRemover struct {
	mock.Mock
}

func (m *MockSourceRemover) RemoveSource(ctx context.Context, path string) (int64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(int64), args.Error(1)
}

func testWatcherConfig(root string) WatcherConfig {
	cfg := DefaultWatcherConfig(root)
	cfg.MaxRetries = 3
	cfg.RetryInitial = time.Millisecond
	cfg.RetryMax = 5 * time.Millisecond
	cfg.Stability = StabilityConfig{Timeout: time.Second, PollInterval: 5 * time.Millisecond, Checks: 1}
	return cfg
}

func TestFileWatcher_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("ingests an existing file incrementally", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "a.txt")
		write(t, path, "alpha")

		ingester := new(MockFileIngester)
		ingester.On("IngestFile", mock.Anything, path, service.IngestModeIncremental).Return(2, nil).Once()

		NewFileWatcher(testWatcherConfig(dir), ingester, new(MockSourceRemover), nil).process(ctx, path)
		ingester.AssertExpectations(t)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "a.txt")
		write(t, path, "alpha")

		ingester := new(MockFileIngester)
		ingester.On("IngestFile", mock.Anything, path, service.IngestModeIncremental).
			Return(0, domain.ErrEmbeddingUnavailable).Once()
		ingester.On("IngestFile", mock.Anything, path, service.IngestModeIncremental).Return(1, nil).Once()

		NewFileWatcher(testWatcherConfig(dir), ingester, new(MockSourceRemover), nil).process(ctx, path)
		ingester.AssertNumberOfCalls(t, "IngestFile", 2)
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "a.txt")
		write(t, path, "alpha")

		ingester := new(MockFileIngester)
		ingester.On("IngestFile", mock.Anything, path, service.IngestModeIncremental).
			Return(0, domain.ErrStoreUnavailable)

		NewFileWatcher(testWatcherConfig(dir), ingester, new(MockSourceRemover), nil).process(ctx, path)
		ingester.AssertNumberOfCalls(t, "IngestFile", 3)
	})

	t.Run("does not retry corrupt files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "a.txt")
		write(t, path, "alpha")

		ingester := new(MockFileIngester)
		ingester.On("IngestFile", mock.Anything, path, service.IngestModeIncremental).
			Return(0, domain.ErrCorruptFile.WithCause(errors.New("bad zip")))

		NewFileWatcher(testWatcherConfig(dir), ingester, new(MockSourceRemover), nil).process(ctx, path)
		ingester.AssertNumberOfCalls(t, "IngestFile", 1)
	})

	t.Run("removes a deleted file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gone.txt")

		ingester := new(MockFileIngester)
		remover := new(MockSourceRemover)
		remover.On("RemoveSource", mock.Anything, path).Return(int64(4), nil).Once()

		NewFileWatcher(testWatcherConfig(dir), ingester, remover, nil).process(ctx, path)
		remover.AssertExpectations(t)
		ingester.AssertNotCalled(t, "IngestFile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown source on delete is not an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "never-ingested.txt")

		remover := new(MockSourceRemover)
		remover.On("RemoveSource", mock.Anything, path).Return(int64(0), domain.ErrSourceNotFound)

		NewFileWatcher(testWatcherConfig(dir), new(MockFileIngester), remover, nil).process(ctx, path)
		remover.AssertNumberOfCalls(t, "RemoveSource", 1)
	})
}

func TestFileWatcher_Run(t *testing.T) {
	modes := map[string]bool{"fsnotify": false, "polling": true}
	for name, forcePolling := range modes {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			existing := filepath.Join(dir, "existing.txt")
			write(t, existing, "already here")

			cfg := testWatcherConfig(dir)
			cfg.ForcePolling = forcePolling
			cfg.PollInterval = 20 * time.Millisecond

			created := filepath.Join(dir, "sub", "new.md")
			ingested := make(chan struct{}, 1)
			removed := make(chan struct{}, 1)
			ingester := new(MockFileIngester)
			ingester.On("IngestFile", mock.Anything, created, service.IngestModeIncremental).Return(1, nil).
				Run(func(mock.Arguments) { signal(ingested) })
			remover := new(MockSourceRemover)
			remover.On("RemoveSource", mock.Anything, existing).Return(int64(1), nil).
				Run(func(mock.Arguments) { signal(removed) })

			w := NewFileWatcher(cfg, ingester, remover, nil)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			time.Sleep(50 * time.Millisecond)
			write(t, created, "# New")
			require.NoError(t, os.Remove(existing))

			for _, ch := range []chan struct{}{ingested, removed} {
				select {
				case <-ch:
				case <-time.After(3 * time.Second):
					t.Fatal("timed out waiting for the watcher")
				}
			}

			cancel()
			require.NoError(t, <-done)
			assert.Zero(t, w.inflight.len())
			ingester.AssertNotCalled(t, "IngestFile", mock.Anything, existing, mock.Anything)
		})
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func TestFileWatcher_RunMissingRoot(t *testing.T) {
	w := NewFileWatcher(testWatcherConfig(filepath.Join(t.TempDir(), "missing")), new(MockFileIngester), new(MockSourceRemover), nil)
	err := w.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrPathNotFound)
}
