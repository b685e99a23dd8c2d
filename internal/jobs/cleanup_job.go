package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/jpark8215/internal-chatbot/internal/service"
)

// OrphanCleaner removes stored sources whose files are gone.
type OrphanCleaner interface {
	CleanupOrphans(ctx context.Context, root string) (*service.CleanupReport, error)
}

// ExpiredPurger drops expired cache entries.
type ExpiredPurger interface {
	PurgeExpired() int
}

// CleanupJob sweeps orphaned sources under root and purges expired cache
// entries. Either part may be absent.
type CleanupJob struct {
	cleaner OrphanCleaner
	caches  ExpiredPurger
	root    string
}

func NewCleanupJob(cleaner OrphanCleaner, caches ExpiredPurger, root string) *CleanupJob {
	return &CleanupJob{cleaner: cleaner, caches: caches, root: root}
}

// ProcessJobs implements the JobProcessor interface
func (j *CleanupJob) ProcessJobs(ctx context.Context) error {
	if j.caches != nil {
		if n := j.caches.PurgeExpired(); n > 0 {
			log.Printf("cleanup: purged %d expired cache entries", n)
		}
	}

	if j.cleaner == nil || j.root == "" {
		return nil
	}
	report, err := j.cleaner.CleanupOrphans(ctx, j.root)
	if err != nil {
		return fmt.Errorf("failed to clean up orphaned sources: %w", err)
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("cleanup left %d sources in place, first: %s: %w",
			len(report.Errors), report.Errors[0].Path, report.Errors[0].Err)
	}
	return nil
}
