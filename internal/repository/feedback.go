package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// FeedbackRepository records operator judgements about sources.
type FeedbackRepository struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{pool: pool}
}

func (r *FeedbackRepository) RecordFeedback(ctx context.Context, f *domain.SourceFeedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if err := domain.ValidateSourceFeedback(f); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid feedback", err)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO retrieval_feedback (id, query, source_file, helpful, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		f.ID, strings.TrimSpace(f.Query), f.SourceFile, f.Helpful, f.CreatedAt,
	)
	return err
}

// SourcePreferences aggregates feedback into a helpful ratio per source.
// With a non-empty query only feedback given for that query (case-insensitive)
// counts; otherwise all feedback does.
func (r *FeedbackRepository) SourcePreferences(ctx context.Context, query string) (map[string]float64, error) {
	query = strings.TrimSpace(query)
	rows, err := r.pool.Query(ctx,
		`SELECT source_file,
		        (COUNT(*) FILTER (WHERE helpful))::float8 / COUNT(*)::float8 AS weight
		 FROM retrieval_feedback
		 WHERE $1 = '' OR LOWER(query) = LOWER($1)
		 GROUP BY source_file`,
		query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make(map[string]float64)
	for rows.Next() {
		var source string
		var weight float64
		if err := rows.Scan(&source, &weight); err != nil {
			return nil, err
		}
		prefs[source] = weight
	}
	return prefs, rows.Err()
}
