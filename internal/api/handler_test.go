package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-recommender/internal/common/database"
	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/models"
)

// ==========================
// Test doubles
// ==========================

type fakePipeline struct {
	rec     *models.Recommendation
	err     error
	lastQry models.Query
}

func (f *fakePipeline) Run(ctx context.Context, q models.Query) (*models.Recommendation, error) {
	f.lastQry = q
	return f.rec, f.err
}

type fakeDep struct {
	name string
	err  error
}

func (d fakeDep) Name() string                   { return d.name }
func (d fakeDep) Ping(ctx context.Context) error { return d.err }

func serve(t *testing.T, h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	return rr
}

// ==========================
// POST /v1/recommendations
// ==========================

func TestRecommend_Success(t *testing.T) {
	pipeline := &fakePipeline{rec: &models.Recommendation{
		Kind:      models.KindGrounded,
		Text:      "Get the Cruiser X.",
		Citations: []string{"p-1"},
		ComparisonTable: []models.ComparisonRow{
			{Rank: 1, ID: "p-1", Source: models.SourcePrivate, Fields: map[string]interface{}{"title": "Cruiser X", "price": 249.0}},
		},
		Safe: true,
	}}
	h := NewHandler(pipeline, nil, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodPost, "/v1/recommendations", RecommendRequest{Query: "skateboard under 300", ID: "req-1"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "req-1", pipeline.lastQry.ID)
	assert.Equal(t, "skateboard under 300", pipeline.lastQry.Text)

	var resp RecommendResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, models.KindGrounded, resp.Recommendation.Kind)
	assert.Equal(t, []string{"p-1"}, resp.Recommendation.Citations)
	assert.Contains(t, resp.SpeechText, "Product 1: Cruiser X")
}

func TestRecommend_GeneratesRequestID(t *testing.T) {
	pipeline := &fakePipeline{rec: &models.Recommendation{Kind: models.KindGeneral, Text: "Hi.", Citations: []string{}, Safe: true}}
	h := NewHandler(pipeline, nil, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodPost, "/v1/recommendations", RecommendRequest{Query: "hello"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, pipeline.lastQry.ID)
}

func TestRecommend_MalformedBody(t *testing.T) {
	h := NewHandler(&fakePipeline{}, nil, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodPost, "/v1/recommendations", "{not json")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp FailureResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_QUERY", resp.Error.Code)
}

func TestRecommend_PipelineFailures(t *testing.T) {
	failures := errors.NewFailureHandler(nil)
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"retrieval unavailable", failures.Handle("req-9", "retriever", errors.NewRetrievalUnavailableError(map[string]error{"private": stderrors.New("down")})), http.StatusServiceUnavailable, "RETRIEVAL_UNAVAILABLE", true},
		{"invalid query", failures.Handle("req-9", "router", errors.NewInvalidQueryError("empty")), http.StatusBadRequest, "INVALID_QUERY", false},
		{"cancelled", failures.Handle("req-9", "planner", errors.NewCancelledError(context.Canceled)), 499, "REQUEST_CANCELLED", false},
		{"unclassified", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakePipeline{err: tt.err}, nil, logger.NewTestLogger(t))

			rr := serve(t, h, http.MethodPost, "/v1/recommendations", RecommendRequest{Query: "x", ID: "req-9"})

			assert.Equal(t, tt.status, rr.Code)
			var resp FailureResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, "req-9", resp.RequestID)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
			assert.NotContains(t, resp.Error.Message, "down")
			assert.NotContains(t, resp.Error.Message, "boom")
		})
	}
}

func TestRecommend_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakePipeline{}, nil, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodGet, "/v1/recommendations", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

// ==========================
// Health, readiness, metrics
// ==========================

func TestHealth(t *testing.T) {
	h := NewHandler(&fakePipeline{}, nil, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}

func TestReady(t *testing.T) {
	deps := []database.Pinger{fakeDep{name: "redis"}, fakeDep{name: "elasticsearch"}}
	h := NewHandler(&fakePipeline{}, deps, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodGet, "/ready", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ready"`)
}

func TestReady_DependencyDown(t *testing.T) {
	deps := []database.Pinger{fakeDep{name: "redis"}, fakeDep{name: "postgres", err: stderrors.New("connection refused")}}
	h := NewHandler(&fakePipeline{}, deps, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodGet, "/ready", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, map[string]interface{}{"postgres": "connection refused"}, body["failures"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(&fakePipeline{}, nil, logger.NewTestLogger(t))

	rr := serve(t, h, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
