package vectorsearch

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"product-recommender/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// PostgresStore ranks catalog rows with full-text search over a
// precomputed search_vector column.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid products table name %q", table)
	}
	return &PostgresStore{db: db, table: table}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

const productColumns = "uniq_id, title, brand, category, price, description, ingredients, material, rating, availability, product_url"

// BuildSQL returns the statement and its positional arguments.
func (s *PostgresStore) BuildSQL(queryText string, filters models.Filters, topK int) (string, []interface{}) {
	args := []interface{}{queryText}
	where := []string{"search_vector @@ plainto_tsquery('english', $1)"}
	where, args = appendFilterClauses(where, args, filters)

	args = append(args, topK)
	query := fmt.Sprintf(
		"SELECT %s, ts_rank_cd(search_vector, plainto_tsquery('english', $1)) AS score FROM %s WHERE %s ORDER BY score DESC, uniq_id ASC LIMIT $%d",
		productColumns, s.table, strings.Join(where, " AND "), len(args),
	)
	return query, args
}

// appendFilterClauses adds one positional WHERE clause per recognised filter.
func appendFilterClauses(where []string, args []interface{}, filters models.Filters) ([]string, []interface{}) {
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if v, ok := filters.Float(models.FilterMaxPrice); ok {
		add("price <= $%d", v)
	}
	if v, ok := filters.Float(models.FilterMinPrice); ok {
		add("price >= $%d", v)
	}
	if v, ok := filters.String(models.FilterBrand); ok {
		add("brand ILIKE '%%' || $%d || '%%'", v)
	}
	if v, ok := filters.String(models.FilterCategory); ok {
		add("category ILIKE '%%' || $%d || '%%'", v)
	}
	if v, ok := filters.String(models.FilterMaterial); ok {
		add("(coalesce(material, '') || ' ' || coalesce(description, '')) ILIKE '%%' || $%d || '%%'", v)
	}
	if v, ok := filters.String(models.FilterMustContain); ok {
		add("(title || ' ' || coalesce(description, '')) ILIKE '%%' || $%d || '%%'", v)
	}
	return where, args
}

func (s *PostgresStore) Search(ctx context.Context, queryText string, filters models.Filters, fields []string, topK int) ([]Record, error) {
	query, args := s.BuildSQL(queryText, filters, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	return scanCatalogRows(rows, fields)
}

// scanCatalogRows reads productColumns followed by a score column.
func scanCatalogRows(rows *sql.Rows, fields []string) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			id                                               string
			title, brand, category, description, ingredients sql.NullString
			material, availability, link                     sql.NullString
			price, rating                                    sql.NullFloat64
			score                                            float64
		)
		if err := rows.Scan(&id, &title, &brand, &category, &price, &description, &ingredients,
			&material, &rating, &availability, &link, &score); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}

		source := map[string]interface{}{}
		setString(source, models.FieldTitle, title)
		setString(source, models.FieldBrand, brand)
		setString(source, models.FieldCategory, category)
		setString(source, models.FieldDescription, description)
		setString(source, models.FieldIngredients, ingredients)
		setString(source, models.FieldMaterial, material)
		setString(source, models.FieldAvailability, availability)
		if price.Valid {
			source[models.FieldPrice] = price.Float64
		}
		if rating.Valid {
			source[models.FieldRating] = rating.Float64
		}

		records = append(records, Record{
			ID:     id,
			Score:  score,
			Fields: project(source, fields),
			Link:   link.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog rows error: %w", err)
	}
	return records, nil
}

func setString(dst map[string]interface{}, key string, v sql.NullString) {
	if v.Valid && v.String != "" {
		dst[key] = v.String
	}
}
