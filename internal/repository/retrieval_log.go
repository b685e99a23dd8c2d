package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// RetrievalLogRepository stores retrieval logs for evaluation/feedback loops.
type RetrievalLogRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{pool: pool}
}

func (r *RetrievalLogRepository) CreateRetrievalLog(ctx context.Context, entry domain.RetrievalLogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO retrieval_log (id, query, strategy, result_count, top_source, duration_ms, cache_hit, degraded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.Query,
		string(entry.Strategy),
		entry.ResultCount,
		nullableString(entry.TopSource),
		entry.DurationMs,
		entry.CacheHit,
		entry.Degraded,
		entry.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// ListRecent returns the newest entries first.
func (r *RetrievalLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.RetrievalLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, query, strategy, result_count, top_source, duration_ms, cache_hit, degraded, created_at
		 FROM retrieval_log
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RetrievalLogEntry
	for rows.Next() {
		var e domain.RetrievalLogEntry
		var strategy string
		var topSource *string
		if err := rows.Scan(&e.ID, &e.Query, &strategy, &e.ResultCount, &topSource, &e.DurationMs, &e.CacheHit, &e.Degraded, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Strategy = domain.Strategy(strategy)
		if topSource != nil {
			e.TopSource = *topSource
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
