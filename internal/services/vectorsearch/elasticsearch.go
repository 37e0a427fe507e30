package vectorsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"product-recommender/internal/models"
)

// ElasticsearchStore searches a product index with text relevance plus
// filters. With an embedder it also runs approximate kNN over the embedding
// field and Elasticsearch sums both scores.
type ElasticsearchStore struct {
	client   *elasticsearch.Client
	index    string
	embedder Embedder
}

// Dense vector field holding the product embeddings.
const embeddingField = "embedding"

func NewElasticsearchStore(client *elasticsearch.Client, index string) *ElasticsearchStore {
	return &ElasticsearchStore{client: client, index: index}
}

// WithEmbedder turns on hybrid text and kNN retrieval.
func (s *ElasticsearchStore) WithEmbedder(e Embedder) *ElasticsearchStore {
	s.embedder = e
	return s
}

func (s *ElasticsearchStore) Name() string { return "elasticsearch" }

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                 `json:"_id"`
			Score  float64                `json:"_score"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchStore) Search(ctx context.Context, queryText string, filters models.Filters, fields []string, topK int) ([]Record, error) {
	query := BuildQuery(queryText, filters, fields)
	if s.embedder != nil && queryText != "" {
		embedding, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, fmt.Errorf("query embedding failed: %w", err)
		}
		AddKNN(query, embedding, filters, topK)
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		Size:  &topK,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.Status())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	records := make([]Record, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		id := hit.ID
		if uid, ok := hit.Source["uniq_id"].(string); ok && uid != "" {
			id = uid
		}
		link, _ := hit.Source["product_url"].(string)
		records = append(records, Record{
			ID:     id,
			Score:  hit.Score,
			Fields: project(hit.Source, fields),
			Link:   link,
		})
	}
	return records, nil
}

// BuildQuery produces a bool query: text relevance in must, filters in filter.
func BuildQuery(queryText string, filters models.Filters, fields []string) map[string]interface{} {
	mustClauses := []interface{}{}

	if queryText != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  queryText,
				"fields": []string{"title^3", "brand^2", "category^2", "description", "ingredients"},
				"type":   "best_fields",
			},
		})
	} else {
		mustClauses = append(mustClauses, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	sourceFields := append([]string{"uniq_id", "product_url"}, fields...)
	return map[string]interface{}{
		"_source": sourceFields,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   mustClauses,
				"filter": buildFilterClauses(filters),
			},
		},
	}
}

// AddKNN attaches a top-level knn section using the same filters as the
// bool query so vector hits obey the plan constraints too.
func AddKNN(query map[string]interface{}, embedding []float32, filters models.Filters, topK int) {
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	query["knn"] = map[string]interface{}{
		"field":          embeddingField,
		"query_vector":   embedding,
		"k":              topK,
		"num_candidates": numCandidates,
		"filter":         buildFilterClauses(filters),
	}
}

func buildFilterClauses(filters models.Filters) []interface{} {
	filterClauses := []interface{}{}

	priceRange := map[string]interface{}{}
	if max, ok := filters.Float(models.FilterMaxPrice); ok {
		priceRange["lte"] = max
	}
	if min, ok := filters.Float(models.FilterMinPrice); ok {
		priceRange["gte"] = min
	}
	if len(priceRange) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{"price": priceRange},
		})
	}

	for _, key := range []string{models.FilterBrand, models.FilterCategory} {
		if v, ok := filters.String(key); ok {
			filterClauses = append(filterClauses, map[string]interface{}{
				"match": map[string]interface{}{key: map[string]interface{}{"query": v, "operator": "and"}},
			})
		}
	}
	if v, ok := filters.String(models.FilterMaterial); ok {
		filterClauses = append(filterClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{"query": v, "fields": []string{"material", "description"}, "operator": "and"},
		})
	}
	if v, ok := filters.String(models.FilterMustContain); ok {
		filterClauses = append(filterClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{"query": v, "fields": []string{"title", "description"}, "type": "phrase"},
		})
	}
	return filterClauses
}
