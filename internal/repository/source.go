package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// SourceRepository tracks ingested files and their modification times.
type SourceRepository struct {
	db dbtx
}

func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: pool}
}

func NewSourceRepositoryWithTx(tx pgx.Tx) *SourceRepository {
	return &SourceRepository{db: tx}
}

// Upsert inserts the source or refreshes its file type and mtime.
func (r *SourceRepository) Upsert(ctx context.Context, s *domain.DocumentSource) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO document_sources (source_path, file_type, file_modified_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_path) DO UPDATE
		 SET file_type = EXCLUDED.file_type,
		     file_modified_at = EXCLUDED.file_modified_at,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		s.SourcePath, s.FileType, s.FileModifiedAt.UTC(),
	).Scan(&id, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

func (r *SourceRepository) GetByPath(ctx context.Context, path string) (*domain.DocumentSource, error) {
	var s domain.DocumentSource
	err := r.db.QueryRow(ctx,
		`SELECT id, source_path, file_type, file_modified_at, created_at, updated_at
		 FROM document_sources WHERE source_path = $1`,
		path,
	).Scan(&s.ID, &s.SourcePath, &s.FileType, &s.FileModifiedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SourceRepository) List(ctx context.Context) ([]*domain.DocumentSource, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_path, file_type, file_modified_at, created_at, updated_at
		 FROM document_sources ORDER BY source_path`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*domain.DocumentSource
	for rows.Next() {
		var s domain.DocumentSource
		if err := rows.Scan(&s.ID, &s.SourcePath, &s.FileType, &s.FileModifiedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}

// Delete removes the source row. Chunks linked through source_id cascade.
func (r *SourceRepository) Delete(ctx context.Context, path string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_sources WHERE source_path = $1`, path)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
