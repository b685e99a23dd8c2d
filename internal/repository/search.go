package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/pgvector/pgvector-go"
)

// SearchRepository implements the ranking primitives the retrieval engine
// composes into strategies. Every primitive returns rows best-first and puts
// the native score in both Score and RawScore.
type SearchRepository struct {
	db dbtx
}

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{db: pool}
}

const scoredColumns = `id, content, %s AS score, source_file, chunk_index, start_position, end_position, page_number`

// SearchSemantic ranks by L2 distance to the query vector.
func (r *SearchRepository) SearchSemantic(ctx context.Context, embedding []float32, limit int) ([]domain.ScoredChunk, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT `+fmt.Sprintf(scoredColumns, `(embedding <-> $1)::float8`)+`
		 FROM documents
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <-> $1 ASC
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanScoredRows(rows)
}

// SearchKeyword requires every term to appear. A chunk containing the full
// phrase scores 0.1, any other match 0.5; shorter chunks win ties.
func (r *SearchRepository) SearchKeyword(ctx context.Context, terms []string, phrase string, limit int) ([]domain.ScoredChunk, error) {
	if len(terms) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	args := []any{containsPattern(strings.ToLower(phrase))}
	conditions := make([]string, 0, len(terms))
	for _, term := range terms {
		args = append(args, containsPattern(strings.ToLower(term)))
		conditions = append(conditions, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	args = append(args, limit)

	query := `SELECT ` + fmt.Sprintf(scoredColumns, `(CASE WHEN content ILIKE $1 THEN 0.1 ELSE 0.5 END)::float8`) + `
		FROM documents
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY score ASC, LENGTH(content) ASC, id ASC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanScoredRows(rows)
}

// SearchHybrid fuses cosine similarity with full-text rank:
// alpha*(1-cosine_distance) + (1-alpha)*ts_rank. Higher is better.
func (r *SearchRepository) SearchHybrid(ctx context.Context, query string, embedding []float32, alpha float64, limit int) ([]domain.ScoredChunk, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT `+fmt.Sprintf(scoredColumns,
			`($1::float8 * (1 - (embedding <=> $2)) + (1 - $1::float8) * ts_rank(content_tsv, plainto_tsquery('english', $3)))::float8`)+`
		 FROM documents
		 WHERE embedding IS NOT NULL
		   AND content_tsv @@ plainto_tsquery('english', $3)
		 ORDER BY score DESC, id ASC
		 LIMIT $4`,
		alpha, vec, query, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanScoredRows(rows)
}

// SearchExactPhrase finds chunks containing the phrase, shortest first.
func (r *SearchRepository) SearchExactPhrase(ctx context.Context, phrase string, limit int) ([]domain.ScoredChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+fmt.Sprintf(scoredColumns, `0.1::float8`)+`
		 FROM documents
		 WHERE content ILIKE $1
		 ORDER BY LENGTH(content) ASC, id ASC
		 LIMIT $2`,
		containsPattern(strings.ToLower(phrase)), limit,
	)
	if err != nil {
		return nil, err
	}
	return scanScoredRows(rows)
}

// SearchTermOverlap scores 10 minus the number of query terms a chunk contains.
func (r *SearchRepository) SearchTermOverlap(ctx context.Context, terms []string, limit int) ([]domain.ScoredChunk, error) {
	if len(terms) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	args := make([]any, 0, len(terms)+1)
	matches := make([]string, 0, len(terms))
	conditions := make([]string, 0, len(terms))
	for _, term := range terms {
		args = append(args, containsPattern(strings.ToLower(term)))
		matches = append(matches, fmt.Sprintf("(CASE WHEN content ILIKE $%d THEN 1 ELSE 0 END)", len(args)))
		conditions = append(conditions, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	args = append(args, limit)

	query := `SELECT ` + fmt.Sprintf(scoredColumns, `(10.0 - (`+strings.Join(matches, " + ")+`))::float8`) + `
		FROM documents
		WHERE ` + strings.Join(conditions, " OR ") + `
		ORDER BY score ASC, LENGTH(content) ASC, id ASC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanScoredRows(rows)
}

// SearchEnumeratedList favours chunks that look like numbered lists of tests
// or substances. Candidates must contain at least one of the filter terms.
func (r *SearchRepository) SearchEnumeratedList(ctx context.Context, filterTerms []string, limit int) ([]domain.ScoredChunk, error) {
	if len(filterTerms) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	args := []any{"%1. %", "%2. %", "%3. %", "%list of tests%", "%tests performed%", "%drug%", "%substance%"}
	conditions := make([]string, 0, len(filterTerms))
	for _, term := range filterTerms {
		args = append(args, containsPattern(strings.ToLower(term)))
		conditions = append(conditions, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	args = append(args, limit)

	score := `(CASE
			WHEN content LIKE $1 AND content LIKE $2 AND content LIKE $3 THEN 0.1
			WHEN content ILIKE $4 OR content ILIKE $5 THEN 0.2
			WHEN (content ILIKE $6 OR content ILIKE $7) AND content LIKE $1 THEN 0.3
			ELSE 10.0
		END)::float8`

	query := `SELECT ` + fmt.Sprintf(scoredColumns, score) + `
		FROM documents
		WHERE ` + strings.Join(conditions, " OR ") + `
		ORDER BY score ASC, id ASC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanScoredRows(rows)
}

func scanScoredRows(rows pgx.Rows) ([]domain.ScoredChunk, error) {
	defer rows.Close()

	results := []domain.ScoredChunk{}
	for rows.Next() {
		var c domain.ScoredChunk
		var page *int32
		if err := rows.Scan(&c.ID, &c.Content, &c.Score, &c.SourceFile, &c.ChunkIndex, &c.StartPosition, &c.EndPosition, &page); err != nil {
			return nil, err
		}
		c.RawScore = c.Score
		if page != nil {
			p := int(*page)
			c.PageNumber = &p
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
