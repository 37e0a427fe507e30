package vectorsearch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"product-recommender/internal/models"
)

// PgVectorStore ranks catalog rows by cosine similarity between the query
// embedding and a precomputed embedding column.
type PgVectorStore struct {
	db       *sql.DB
	table    string
	embedder Embedder
}

func NewPgVectorStore(db *sql.DB, table string, embedder Embedder) (*PgVectorStore, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid products table name %q", table)
	}
	if embedder == nil {
		return nil, fmt.Errorf("pgvector store needs an embedder")
	}
	return &PgVectorStore{db: db, table: table, embedder: embedder}, nil
}

func (s *PgVectorStore) Name() string { return "pgvector" }

// BuildSQL returns the statement and its positional arguments. $1 is the
// query vector; score is cosine similarity so higher ranks first.
func (s *PgVectorStore) BuildSQL(embedding []float32, filters models.Filters, topK int) (string, []interface{}) {
	args := []interface{}{pgvector.NewVector(embedding)}
	where := []string{"embedding IS NOT NULL"}
	where, args = appendFilterClauses(where, args, filters)

	args = append(args, topK)
	query := fmt.Sprintf(
		"SELECT %s, 1 - (embedding <=> $1) AS score FROM %s WHERE %s ORDER BY embedding <=> $1 ASC, uniq_id ASC LIMIT $%d",
		productColumns, s.table, strings.Join(where, " AND "), len(args),
	)
	return query, args
}

func (s *PgVectorStore) Search(ctx context.Context, queryText string, filters models.Filters, fields []string, topK int) ([]Record, error) {
	embedding, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	query, args := s.BuildSQL(embedding, filters, topK)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	return scanCatalogRows(rows, fields)
}
