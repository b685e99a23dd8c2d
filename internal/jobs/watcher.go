package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// FileIngester ingests a single file.
type FileIngester interface {
	Supports(path string) bool
	IngestFile(ctx context.Context, path string, mode service.IngestMode) (int, error)
}

// SourceRemover deletes a source and its chunks.
type SourceRemover interface {
	RemoveSource(ctx context.Context, path string) (int64, error)
}

type EventOp int

const (
	EventUpsert EventOp = iota + 1
	EventRemove
)

func (o EventOp) String() string {
	switch o {
	case EventUpsert:
		return "upsert"
	case EventRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// FileEvent is a change notification for one path.
type FileEvent struct {
	Path string
	Op   EventOp
}

type WatcherConfig struct {
	Root         string
	ForcePolling bool
	PollInterval time.Duration
	ScanOnStart  bool
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
	Stability    StabilityConfig
}

func DefaultWatcherConfig(root string) WatcherConfig {
	return WatcherConfig{
		Root:         root,
		PollInterval: 10 * time.Minute,
		Workers:      2,
		QueueSize:    256,
		MaxRetries:   5,
		RetryInitial: 2 * time.Second,
		RetryMax:     30 * time.Second,
		Stability:    DefaultStabilityConfig(),
	}
}

// FileWatcher keeps the store in sync with a directory tree. Filesystem
// notifications and periodic scans feed one event channel; a dispatcher
// deduplicates through the in-flight set and a fixed pool of workers does
// the ingestion and removal.
type FileWatcher struct {
	cfg      WatcherConfig
	ingester FileIngester
	remover  SourceRemover
	metrics  *metrics.Recorder
	inflight *inflightSet
	events   chan FileEvent
}

func NewFileWatcher(cfg WatcherConfig, ingester FileIngester, remover SourceRemover, recorder *metrics.Recorder) *FileWatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	return &FileWatcher{
		cfg:      cfg,
		ingester: ingester,
		remover:  remover,
		metrics:  recorder,
		inflight: newInflightSet(),
		events:   make(chan FileEvent, cfg.QueueSize),
	}
}

// Submit queues an event as if it came from the filesystem.
func (w *FileWatcher) Submit(ctx context.Context, ev FileEvent) error {
	select {
	case w.events <- ev:
		w.metrics.WatcherEvent(ev.Op.String())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	root, err := filepath.Abs(w.cfg.Root)
	if err != nil {
		return domain.ErrPathNotFound.WithCause(err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return domain.ErrPathNotFound.WithCause(fmt.Errorf("watch root %s is not a directory", root))
	}

	g, ctx := errgroup.WithContext(ctx)
	work := make(chan FileEvent, w.cfg.QueueSize)

	mode := "polling"
	if !w.cfg.ForcePolling {
		fw, err := w.startNotify(root)
		if err != nil {
			log.Printf("watcher: filesystem notifications unavailable, falling back to polling: %v", err)
		} else {
			mode = "fsnotify"
			g.Go(func() error { return w.notifyLoop(ctx, fw) })
		}
	}

	poller := NewPoller(root, w.ingester.Supports, w.cfg.ScanOnStart)
	g.Go(func() error { return poller.Run(ctx, w.cfg.PollInterval, w.events) })
	g.Go(func() error { return w.dispatch(ctx, work) })
	for range w.cfg.Workers {
		g.Go(func() error { return w.work(ctx, work) })
	}

	log.Printf("watcher: watching %s (%s, poll every %s, %d workers)", root, mode, w.cfg.PollInterval, w.cfg.Workers)
	err = g.Wait()
	log.Printf("watcher: stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *FileWatcher) startNotify(root string) (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fw, root); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *FileWatcher) notifyLoop(ctx context.Context, fw *fsnotify.Watcher) error {
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleNotify(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher: fsnotify error: %v", err)
		}
	}
}

// handleNotify maps fsnotify operations to file events. New directories are
// watched and their existing files queued, which covers directories moved in
// from elsewhere.
func (w *FileWatcher) handleNotify(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if isHidden(ev.Name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := addRecursive(fw, ev.Name); err != nil {
				log.Printf("watcher: %v", err)
			}
			w.submitTree(ctx, ev.Name)
			return
		}
		if w.ingester.Supports(ev.Name) {
			_ = w.Submit(ctx, FileEvent{Path: ev.Name, Op: EventUpsert})
		}
	case ev.Op.Has(fsnotify.Write):
		if w.ingester.Supports(ev.Name) {
			_ = w.Submit(ctx, FileEvent{Path: ev.Name, Op: EventUpsert})
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if w.ingester.Supports(ev.Name) {
			_ = w.Submit(ctx, FileEvent{Path: ev.Name, Op: EventRemove})
		}
	}
}

func (w *FileWatcher) submitTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return nil
		}
		if path != dir && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && w.ingester.Supports(path) {
			_ = w.Submit(ctx, FileEvent{Path: path, Op: EventUpsert})
		}
		return nil
	})
}

func (w *FileWatcher) dispatch(ctx context.Context, work chan<- FileEvent) error {
	defer close(work)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.events:
			if !w.inflight.begin(ev.Path) {
				continue
			}
			select {
			case work <- ev:
			case <-ctx.Done():
				w.inflight.finish(ev.Path)
				return nil
			}
		}
	}
}

func (w *FileWatcher) work(ctx context.Context, work <-chan FileEvent) error {
	for ev := range work {
		for {
			w.process(ctx, ev.Path)
			if !w.inflight.finish(ev.Path) {
				break
			}
		}
	}
	return nil
}

// process decides from the current state of the file rather than the event
// op, so a stale removal for a re-created file still ingests it.
func (w *FileWatcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.remove(ctx, path)
	case err != nil:
		log.Printf("watcher: failed to stat %s: %v", path, err)
	case info.IsDir():
	default:
		w.ingest(ctx, path)
	}
}

func (w *FileWatcher) ingest(ctx context.Context, path string) {
	if err := WaitForStable(ctx, path, w.cfg.Stability); err != nil {
		if errors.Is(err, fs.ErrNotExist) || ctx.Err() != nil {
			return
		}
		w.abandon(ctx, path, err)
		return
	}

	var chunks int
	err := w.retry(ctx, path, "ingest", func() error {
		n, err := w.ingester.IngestFile(ctx, path, service.IngestModeIncremental)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		chunks = n
		return nil
	})
	switch {
	case err == nil:
		if chunks > 0 {
			log.Printf("watcher: ingested %s (%d chunks)", path, chunks)
		}
	case ctx.Err() != nil, errors.Is(err, domain.ErrPathNotFound):
	default:
		w.abandon(ctx, path, err)
	}
}

func (w *FileWatcher) remove(ctx context.Context, path string) {
	err := w.retry(ctx, path, "remove", func() error {
		_, err := w.remover.RemoveSource(ctx, path)
		if errors.Is(err, domain.ErrSourceNotFound) {
			return nil
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		w.abandon(ctx, path, err)
	}
}

func (w *FileWatcher) retry(ctx context.Context, path, action string, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryInitial
	b.MaxInterval = w.cfg.RetryMax
	b.MaxElapsedTime = 0

	retries := w.cfg.MaxRetries - 1
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		log.Printf("watcher: %s %s failed, retrying in %s: %v", action, path, next.Round(time.Millisecond), err)
	})
}

// abandon gives up on path and reports it so an operator can act.
func (w *FileWatcher) abandon(ctx context.Context, path string, err error) {
	log.Printf("watcher: abandoning %s: %v", path, err)
	w.metrics.FileAbandoned()
	telemetry.CaptureErrorWithTags(ctx, err, map[string]string{
		"component":   "watcher",
		"source_file": path,
	})
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedFormat) ||
		errors.Is(err, domain.ErrCorruptFile) ||
		errors.Is(err, domain.ErrExtractorMissing) ||
		errors.Is(err, domain.ErrPathNotFound) ||
		errors.Is(err, domain.ErrInvalidChunkConfig)
}
