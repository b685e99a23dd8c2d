package domain

import (
	"fmt"
	"time"
)

// RetrievalLogEntry records a retrieval for evaluation and feedback loops.
type RetrievalLogEntry struct {
	ID          string
	Query       string
	Strategy    Strategy
	ResultCount int
	TopSource   string
	DurationMs  int
	CacheHit    bool
	Degraded    bool
	CreatedAt   time.Time
}

// SourceFeedback is an operator judgement about a source for a query.
type SourceFeedback struct {
	ID         string
	Query      string
	SourceFile string
	Helpful    bool
	CreatedAt  time.Time
}

// ValidateSourceFeedback validates a SourceFeedback instance
func ValidateSourceFeedback(f *SourceFeedback) error {
	if f == nil {
		return fmt.Errorf("feedback cannot be nil")
	}
	if f.ID == "" {
		return fmt.Errorf("feedback ID is required")
	}
	if f.Query == "" {
		return fmt.Errorf("feedback Query is required")
	}
	if f.SourceFile == "" {
		return fmt.Errorf("feedback SourceFile is required")
	}
	return nil
}
