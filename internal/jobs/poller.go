package jobs

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Poller detects changes under a root by diffing directory scans. It is the
// fallback when filesystem notifications are unavailable and a safety net
// for events they miss.
type Poller struct {
	root        string
	supports    func(path string) bool
	emitInitial bool
	snapshot    map[string]fingerprint
}

// NewPoller creates a poller for root. When emitInitial is set the first scan
// reports every file as an upsert; otherwise it only records a baseline.
func NewPoller(root string, supports func(path string) bool, emitInitial bool) *Poller {
	return &Poller{root: root, supports: supports, emitInitial: emitInitial}
}

// Scan walks the root and returns upserts for new or changed files and
// removals for files that disappeared since the previous scan.
func (p *Poller) Scan() ([]FileEvent, error) {
	current := make(map[string]fingerprint)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			return nil
		}
		if path != p.root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !p.supports(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		current[path] = fingerprintOf(info)
		return nil
	})
	if err != nil {
		return nil, err
	}

	previous := p.snapshot
	p.snapshot = current
	if previous == nil && !p.emitInitial {
		return nil, nil
	}

	var events []FileEvent
	for path, fp := range current {
		if old, ok := previous[path]; !ok || !old.equal(fp) {
			events = append(events, FileEvent{Path: path, Op: EventUpsert})
		}
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			events = append(events, FileEvent{Path: path, Op: EventRemove})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events, nil
}

// Run scans every interval and sends events to out until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration, out chan<- FileEvent) error {
	scan := func() bool {
		events, err := p.Scan()
		if err != nil {
			log.Printf("watcher: poll of %s failed: %v", p.root, err)
			return true
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	if !scan() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !scan() {
				return nil
			}
		}
	}
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
