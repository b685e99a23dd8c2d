package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ObjectStore is the subset of S3Client the mirror needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Download(ctx context.Context, key string, w io.Writer) error
}

// MirrorReport summarizes one sync.
type MirrorReport struct {
	Listed     int
	Downloaded []string
	Unchanged  int
	Skipped    int
	Errors     map[string]error
	Duration   time.Duration
}

// S3Mirror copies objects under a bucket prefix into a local directory so
// the file watcher picks them up. Files are written to a hidden temporary
// name and renamed into place, and local files are never deleted.
type S3Mirror struct {
	store    ObjectStore
	prefix   string
	root     string
	supports func(path string) bool
}

func NewS3Mirror(store ObjectStore, prefix, root string, supports func(path string) bool) *S3Mirror {
	return &S3Mirror{store: store, prefix: prefix, root: root, supports: supports}
}

// Sync downloads new and changed objects. An object is unchanged when the
// local file has the same size and modification time.
func (m *S3Mirror) Sync(ctx context.Context) (*MirrorReport, error) {
	started := time.Now()
	objects, err := m.store.ListObjects(ctx, m.prefix)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror root: %w", err)
	}

	report := &MirrorReport{Listed: len(objects), Errors: map[string]error{}}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dest, ok := m.localPath(obj.Key)
		if !ok || (m.supports != nil && !m.supports(dest)) {
			report.Skipped++
			continue
		}
		if unchanged(dest, obj) {
			report.Unchanged++
			continue
		}
		if err := m.download(ctx, obj, dest); err != nil {
			log.Printf("storage: failed to mirror %s: %v", obj.Key, err)
			report.Errors[obj.Key] = err
			continue
		}
		report.Downloaded = append(report.Downloaded, dest)
	}

	report.Duration = time.Since(started)
	log.Printf("storage: mirrored %d of %d objects from %q (%d unchanged, %d skipped, %d errors)",
		len(report.Downloaded), report.Listed, m.prefix, report.Unchanged, report.Skipped, len(report.Errors))
	return report, nil
}

// ProcessJobs lets the mirror run on a jobs.Worker schedule.
func (m *S3Mirror) ProcessJobs(ctx context.Context) error {
	_, err := m.Sync(ctx)
	return err
}

// localPath maps key to a path under root. Folder markers, hidden files and
// keys escaping the root are rejected.
func (m *S3Mirror) localPath(key string) (string, bool) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, m.prefix), "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	rel = path.Clean(rel)
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", false
	}
	return filepath.Join(m.root, filepath.FromSlash(rel)), true
}

func unchanged(dest string, obj ObjectInfo) bool {
	info, err := os.Stat(dest)
	if err != nil {
		return false
	}
	return info.Size() == obj.Size && info.ModTime().Truncate(time.Second).Equal(obj.LastModified.Truncate(time.Second))
}

func (m *S3Mirror) download(ctx context.Context, obj ObjectInfo, dest string) (err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".mirror-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := m.store.Download(ctx, obj.Key, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if !obj.LastModified.IsZero() {
		if err := os.Chtimes(tmp.Name(), obj.LastModified, obj.LastModified); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), dest)
}
