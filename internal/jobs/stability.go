package jobs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// ErrFileNotReady is returned when a file keeps changing past the stability
// timeout.
var ErrFileNotReady = errors.New("file did not stabilize before timeout")

// StabilityConfig controls how long a file must stay unchanged before it is
// ingested.
type StabilityConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Checks       int
}

func DefaultStabilityConfig() StabilityConfig {
	return StabilityConfig{
		Timeout:      60 * time.Second,
		PollInterval: time.Second,
		Checks:       2,
	}
}

type fingerprint struct {
	size    int64
	modTime time.Time
}

func (f fingerprint) equal(o fingerprint) bool {
	return f.size == o.size && f.modTime.Equal(o.modTime)
}

func fingerprintOf(info fs.FileInfo) fingerprint {
	return fingerprint{size: info.Size(), modTime: info.ModTime()}
}

func statFingerprint(path string) (fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, err
	}
	return fingerprintOf(info), nil
}

// WaitForStable polls path until its size and mtime are identical across
// cfg.Checks consecutive polls. It returns the stat error if the file
// disappears and ErrFileNotReady once cfg.Timeout elapses.
func WaitForStable(ctx context.Context, path string, cfg StabilityConfig) error {
	last, err := statFingerprint(path)
	if err != nil {
		return err
	}
	if cfg.Checks <= 0 {
		return nil
	}

	var deadline <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	stable := 0
	for stable < cfg.Checks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrFileNotReady
		case <-ticker.C:
		}

		cur, err := statFingerprint(path)
		if err != nil {
			return err
		}
		if cur.equal(last) {
			stable++
		} else {
			stable = 0
			last = cur
		}
	}
	return nil
}
