package service

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
)

// CleanupReport summarizes one orphan sweep.
type CleanupReport struct {
	Checked       int
	Removed       []string
	ChunksRemoved int64
	Errors        []FileError
	Duration      time.Duration
}

// SyncStatus compares the store with the filesystem.
type SyncStatus struct {
	Root         string   `json:"root"`
	Orphaned     []string `json:"orphaned"`
	Missing      []string `json:"missing"`
	Synchronized int      `json:"synchronized"`
	InSync       bool     `json:"in_sync"`
}

// CleanupService removes sources whose files disappeared from disk.
type CleanupService struct {
	chunkRepo ChunkRepositoryInterface
	srcRepo   SourceRepositoryInterface
	sources   *SourceService
	supports  func(path string) bool
	metrics   *metrics.Recorder
}

// NewCleanupService creates a cleanup service. supports decides which files
// on disk count as ingestible.
func NewCleanupService(
	chunkRepo ChunkRepositoryInterface,
	srcRepo SourceRepositoryInterface,
	sources *SourceService,
	supports func(path string) bool,
	recorder *metrics.Recorder,
) *CleanupService {
	if supports == nil {
		supports = domain.IsSupportedFile
	}
	return &CleanupService{
		chunkRepo: chunkRepo,
		srcRepo:   srcRepo,
		sources:   sources,
		supports:  supports,
		metrics:   recorder,
	}
}

// CleanupOrphans removes every stored source under root whose file no longer
// exists. Per-source failures are recorded and do not stop the sweep.
func (s *CleanupService) CleanupOrphans(ctx context.Context, root string) (*CleanupReport, error) {
	started := time.Now()
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.ErrPathNotFound.WithCause(err)
	}

	stored, err := s.storedPaths(ctx, root)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{Checked: len(stored)}
	for _, path := range stored {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}

		removed, err := s.sources.RemoveSource(ctx, path)
		if err != nil && !errors.Is(err, domain.ErrSourceNotFound) {
			log.Printf("cleanup: failed to remove %s: %v", path, err)
			report.Errors = append(report.Errors, FileError{Path: path, Err: err})
			continue
		}
		report.Removed = append(report.Removed, path)
		report.ChunksRemoved += removed
	}

	report.Duration = time.Since(started)
	s.metrics.CleanupRemoved(len(report.Removed))
	if len(report.Removed) > 0 || len(report.Errors) > 0 {
		log.Printf("cleanup: checked %d sources, removed %d (%d chunks), %d errors",
			report.Checked, len(report.Removed), report.ChunksRemoved, len(report.Errors))
	}
	return report, nil
}

// SyncStatus reports stored sources missing on disk (orphaned) and supported
// files on disk that have no chunks (missing).
func (s *CleanupService) SyncStatus(ctx context.Context, root string) (*SyncStatus, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.ErrPathNotFound.WithCause(err)
	}

	stored, err := s.storedPaths(ctx, root)
	if err != nil {
		return nil, err
	}
	onDisk, err := listSupportedFiles(root, s.supports)
	if err != nil {
		return nil, err
	}

	storedSet := make(map[string]bool, len(stored))
	for _, p := range stored {
		storedSet[p] = true
	}
	diskSet := make(map[string]bool, len(onDisk))
	for _, p := range onDisk {
		diskSet[p] = true
	}

	status := &SyncStatus{Root: root, Orphaned: []string{}, Missing: []string{}}
	for _, p := range stored {
		if diskSet[p] {
			status.Synchronized++
		} else {
			status.Orphaned = append(status.Orphaned, p)
		}
	}
	for _, p := range onDisk {
		if !storedSet[p] {
			status.Missing = append(status.Missing, p)
		}
	}
	status.InSync = len(status.Orphaned) == 0 && len(status.Missing) == 0
	return status, nil
}

// storedPaths unions chunk sources and registry rows under root.
func (s *CleanupService) storedPaths(ctx context.Context, root string) ([]string, error) {
	files, err := s.chunkRepo.ListSourceFiles(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}
	sources, err := s.srcRepo.List(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}

	seen := make(map[string]bool, len(files)+len(sources))
	var out []string
	add := func(p string) {
		if p == "" || seen[p] || !underRoot(p, root) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, f := range files {
		add(f)
	}
	for _, src := range sources {
		add(src.SourcePath)
	}
	sort.Strings(out)
	return out, nil
}

func underRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}
