package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository persists document chunks and their embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

const insertChunkSQL = `INSERT INTO documents
	(source_id, content, embedding, source_file, file_type, chunk_index, start_position, end_position, page_number, created_at, updated_at)
 VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
 RETURNING id`

// InsertBatch writes all chunks in a single round trip and fills in their IDs.
// Callers wanting all-or-nothing semantics run it inside a transaction.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		if err := domain.ValidateChunk(c); err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk", err)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}

		var embedding any
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}
		var sourceID *int64
		if c.SourceID > 0 {
			sourceID = &c.SourceID
		}

		batch.Queue(insertChunkSQL,
			sourceID,
			c.Content,
			embedding,
			c.SourceFile,
			c.FileType,
			c.ChunkIndex,
			c.StartPosition,
			c.EndPosition,
			nullableInt(c.PageNumber),
			c.CreatedAt,
			c.UpdatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for i := range chunks {
		if err := br.QueryRow().Scan(&chunks[i].ID); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert chunk %d of %s: %w", chunks[i].ChunkIndex, chunks[i].SourceFile, err)
		}
	}
	return br.Close()
}

// DeleteBySource removes every chunk of a source file and reports how many went.
func (r *ChunkRepository) DeleteBySource(ctx context.Context, sourceFile string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE source_file = $1`, sourceFile)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChunkRepository) HasChunks(ctx context.Context, sourceFile string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE source_file = $1)`,
		sourceFile,
	).Scan(&exists)
	return exists, err
}

func (r *ChunkRepository) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

func (r *ChunkRepository) CountBySource(ctx context.Context) ([]domain.SourceCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT source_file, COUNT(*) FROM documents GROUP BY source_file ORDER BY source_file`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.SourceCount
	for rows.Next() {
		var sc domain.SourceCount
		if err := rows.Scan(&sc.SourceFile, &sc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

// ListSourceFiles returns the distinct source files that have chunks.
func (r *ChunkRepository) ListSourceFiles(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT source_file FROM documents ORDER BY source_file`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
