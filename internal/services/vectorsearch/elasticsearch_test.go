package vectorsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-recommender/internal/models"
)

func newFakeES(t *testing.T, handler func(body map[string]interface{}) (int, string)) *elasticsearch.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		status, resp := handler(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

func TestBuildQuery_FiltersInFilterContext(t *testing.T) {
	q := BuildQuery("skateboard", models.Filters{
		models.FilterMaxPrice: 300.0,
		models.FilterMinPrice: 50.0,
		models.FilterBrand:    "Atlas",
	}, []string{"title", "price"})

	boolQ := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQ["must"].([]interface{})
	filter := boolQ["filter"].([]interface{})

	require.Len(t, must, 1)
	assert.Contains(t, must[0], "multi_match")
	require.Len(t, filter, 2)

	rng := filter[0].(map[string]interface{})["range"].(map[string]interface{})["price"].(map[string]interface{})
	assert.Equal(t, 300.0, rng["lte"])
	assert.Equal(t, 50.0, rng["gte"])
	assert.Equal(t, []string{"uniq_id", "product_url", "title", "price"}, q["_source"])
}

func TestBuildQuery_EmptyTextMatchesAll(t *testing.T) {
	q := BuildQuery("", nil, nil)
	must := q["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
	assert.Contains(t, must[0], "match_all")
}

func TestElasticsearchStore_Search(t *testing.T) {
	client := newFakeES(t, func(body map[string]interface{}) (int, string) {
		assert.Contains(t, body, "query")
		return http.StatusOK, `{
			"hits": {"hits": [
				{"_id": "doc-1", "_score": 7.5, "_source": {"uniq_id": "sku-1", "title": "Atlas Cruiser", "price": 249, "brand": "Atlas", "product_url": "https://shop.example/atlas"}},
				{"_id": "doc-2", "_score": 3.1, "_source": {"title": "Budget Deck", "price": 89.5}}
			]}
		}`
	})
	store := NewElasticsearchStore(client, "products")

	records, err := store.Search(context.Background(), "skateboard", models.Filters{models.FilterMaxPrice: 300.0}, []string{"title", "price"}, 10)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sku-1", records[0].ID)
	assert.Equal(t, 7.5, records[0].Score)
	assert.Equal(t, "https://shop.example/atlas", records[0].Link)
	assert.Equal(t, map[string]interface{}{"title": "Atlas Cruiser", "price": 249.0}, records[0].Fields)
	assert.Equal(t, "doc-2", records[1].ID)
	assert.Empty(t, records[1].Link)
}

func TestElasticsearchStore_ErrorStatus(t *testing.T) {
	client := newFakeES(t, func(map[string]interface{}) (int, string) {
		return http.StatusNotFound, `{"error":{"type":"index_not_found_exception"}}`
	})
	store := NewElasticsearchStore(client, "missing")

	_, err := store.Search(context.Background(), "x", nil, nil, 5)
	assert.ErrorContains(t, err, "404")
}

func TestAddKNN_SharesFilters(t *testing.T) {
	q := BuildQuery("skateboard", models.Filters{models.FilterMaxPrice: 300.0}, nil)
	AddKNN(q, []float32{0.1, 0.2}, models.Filters{models.FilterMaxPrice: 300.0}, 5)

	knn := q["knn"].(map[string]interface{})
	assert.Equal(t, "embedding", knn["field"])
	assert.Equal(t, 5, knn["k"])
	assert.Equal(t, 100, knn["num_candidates"])
	assert.Equal(t, []float32{0.1, 0.2}, knn["query_vector"])
	assert.Len(t, knn["filter"], 1)
}

func TestElasticsearchStore_HybridSearchSendsKNN(t *testing.T) {
	var sent map[string]interface{}
	client := newFakeES(t, func(body map[string]interface{}) (int, string) {
		sent = body
		return http.StatusOK, `{"hits": {"hits": [{"_id": "sku-1", "_score": 1.9, "_source": {"title": "Atlas Cruiser"}}]}}`
	})
	embedder := &fakeEmbedder{vector: []float32{0.5, 0.25}}
	store := NewElasticsearchStore(client, "products").WithEmbedder(embedder)

	records, err := store.Search(context.Background(), "street cruiser", nil, []string{"title"}, 20)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"street cruiser"}, embedder.texts)
	require.Contains(t, sent, "knn")
	knn := sent["knn"].(map[string]interface{})
	assert.Equal(t, []interface{}{0.5, 0.25}, knn["query_vector"])
	assert.EqualValues(t, 20, knn["k"])
	assert.EqualValues(t, 200, knn["num_candidates"])
	assert.Contains(t, sent, "query")
}

func TestElasticsearchStore_EmbeddingFailure(t *testing.T) {
	client := newFakeES(t, func(map[string]interface{}) (int, string) {
		t.Error("search must not run without a query vector")
		return http.StatusOK, `{"hits":{"hits":[]}}`
	})
	store := NewElasticsearchStore(client, "products").WithEmbedder(&fakeEmbedder{err: errEmbeddingDown})

	_, err := store.Search(context.Background(), "deck", nil, nil, 5)
	assert.ErrorIs(t, err, errEmbeddingDown)
}
