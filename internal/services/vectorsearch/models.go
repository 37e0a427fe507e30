package vectorsearch

import (
	"context"

	"product-recommender/internal/models"
)

// Record is one raw catalog hit.
type Record struct {
	ID     string
	Score  float64
	Fields map[string]interface{}
	Link   string
}

// Searcher is the private catalog search capability.
type Searcher interface {
	Name() string
	Search(ctx context.Context, queryText string, filters models.Filters, fields []string, topK int) ([]Record, error)
}

// project keeps only the requested fields that carry a value.
func project(source map[string]interface{}, fields []string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := source[f]; ok && v != nil && v != "" {
			out[f] = v
		}
	}
	return out
}
