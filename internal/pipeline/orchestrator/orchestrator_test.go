package orchestrator

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/observability"
	"product-recommender/internal/models"
)

// ==========================
// Test doubles
// ==========================

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, stage)
}

type fakeRouter struct {
	rec    *recorder
	intent *models.IntentClassification
	err    error
	hook   func()
}

func (f *fakeRouter) Classify(ctx context.Context, q models.Query) (*models.IntentClassification, error) {
	f.rec.add("router")
	if f.hook != nil {
		f.hook()
	}
	return f.intent, f.err
}

type fakePlanner struct {
	rec  *recorder
	plan *models.RetrievalPlan
	err  error
}

func (f *fakePlanner) Plan(ctx context.Context, intent *models.IntentClassification) (*models.RetrievalPlan, error) {
	f.rec.add("planner")
	if intent.Route != models.RouteSearch {
		return nil, f.err
	}
	return f.plan, f.err
}

type fakeRetriever struct {
	rec      *recorder
	result   *models.RetrievalResult
	err      error
	lastTask string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, task string, plan *models.RetrievalPlan) (*models.RetrievalResult, error) {
	f.rec.add("retriever")
	f.lastTask = task
	return f.result, f.err
}

type fakeAnswerer struct {
	rec *recorder
	err error
}

func (f *fakeAnswerer) Answer(ctx context.Context, state *models.PipelineState) (*models.Recommendation, error) {
	f.rec.add("answerer")
	if f.err != nil {
		return nil, f.err
	}
	intent, _ := state.Intent()
	switch intent.Route {
	case models.RouteUnsafe:
		return &models.Recommendation{Kind: models.KindRefusal, Text: "no", Citations: []string{}, ComparisonTable: []models.ComparisonRow{}}, nil
	case models.RouteGeneral:
		return &models.Recommendation{Kind: models.KindGeneral, Text: "hi", Citations: []string{}, ComparisonTable: []models.ComparisonRow{}, Safe: true}, nil
	}
	result, _ := state.Result()
	if result.IsEmpty() {
		return &models.Recommendation{Kind: models.KindNoResults, Text: "none", Citations: []string{}, ComparisonTable: []models.ComparisonRow{}, Safe: true}, nil
	}
	return &models.Recommendation{Kind: models.KindGrounded, Text: "buy it", Citations: result.IDs()[:1], Safe: true}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	outcomes []models.Outcome
	err      error
}

func (p *fakePublisher) PublishOutcome(ctx context.Context, outcome models.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
	return p.err
}

type fixture struct {
	rec       *recorder
	router    *fakeRouter
	planner   *fakePlanner
	retriever *fakeRetriever
	answerer  *fakeAnswerer
	publisher *fakePublisher
	orch      *Orchestrator
}

func newFixture(t *testing.T, route models.Route) *fixture {
	t.Helper()
	rec := &recorder{}
	intent := &models.IntentClassification{Route: route, Task: "find a skateboard", ExtractedQuery: "skateboard under 300"}
	if route == models.RouteUnsafe {
		intent = &models.IntentClassification{Route: route, UnsafeReason: "weapons"}
	}
	f := &fixture{
		rec:    rec,
		router: &fakeRouter{rec: rec, intent: intent},
		planner: &fakePlanner{rec: rec, plan: &models.RetrievalPlan{
			Sources:            []models.Source{models.SourcePrivate},
			Fields:             []string{models.FieldTitle, models.FieldPrice},
			ComparisonCriteria: []string{"price"},
			TopK:               5,
		}},
		retriever: &fakeRetriever{rec: rec, result: &models.RetrievalResult{Candidates: []models.ProductCandidate{
			{ID: "p-1", Source: models.SourcePrivate, Fields: map[string]interface{}{"title": "Cruiser"}},
		}}},
		answerer:  &fakeAnswerer{rec: rec},
		publisher: &fakePublisher{},
	}
	f.orch = NewOrchestrator(&Config{RequestTimeout: 5 * time.Second, PublishTimeout: time.Second},
		f.router, f.planner, f.retriever, f.answerer, observability.NewNoop(), logger.NewTestLogger(t)).
		WithPublisher(f.publisher)
	return f
}

func requireFailure(t *testing.T, err error) *errors.PipelineFailure {
	t.Helper()
	var failure *errors.PipelineFailure
	require.True(t, stderrors.As(err, &failure), "expected PipelineFailure, got %v", err)
	return failure
}

// ==========================
// Branch table
// ==========================

func TestRun_StageSequencePerRoute(t *testing.T) {
	tests := []struct {
		route  models.Route
		stages []string
		kind   models.RecommendationKind
	}{
		{models.RouteUnsafe, []string{"router", "answerer"}, models.KindRefusal},
		{models.RouteGeneral, []string{"router", "planner", "answerer"}, models.KindGeneral},
		{models.RouteSearch, []string{"router", "planner", "retriever", "answerer"}, models.KindGrounded},
	}

	for _, tt := range tests {
		t.Run(string(tt.route), func(t *testing.T) {
			f := newFixture(t, tt.route)

			rec, err := f.orch.Run(context.Background(), models.NewQuery("query"))

			require.NoError(t, err)
			assert.Equal(t, tt.kind, rec.Kind)
			assert.Equal(t, tt.stages, f.rec.calls)
			assert.Equal(t, tt.stages, StagesFor(tt.route))
		})
	}
}

func TestStagesFor_UnknownRoute(t *testing.T) {
	assert.Nil(t, StagesFor(models.Route("shopping")))
}

func TestRun_RetrieverGetsSearchText(t *testing.T) {
	f := newFixture(t, models.RouteSearch)

	_, err := f.orch.Run(context.Background(), models.NewQuery("skateboard under 300 dollars"))

	require.NoError(t, err)
	assert.Equal(t, "skateboard under 300", f.retriever.lastTask)
}

func TestRun_NoResultsIsARecommendation(t *testing.T) {
	f := newFixture(t, models.RouteSearch)
	f.retriever.result = &models.RetrievalResult{Candidates: []models.ProductCandidate{}}

	rec, err := f.orch.Run(context.Background(), models.NewQuery("unobtainium board"))

	require.NoError(t, err)
	assert.Equal(t, models.KindNoResults, rec.Kind)
}

// ==========================
// Failures
// ==========================

func TestRun_StageFailureBecomesPipelineFailure(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		stage  string
		code   errors.ErrorCode
		status int
		calls  []string
	}{
		{
			name:   "router unavailable",
			setup:  func(f *fixture) { f.router.err = errors.NewStageUnavailableError(errors.ErrCodeRouterUnavailable, 3, stderrors.New("down")) },
			stage:  "router",
			code:   errors.ErrCodeRouterUnavailable,
			status: http.StatusServiceUnavailable,
			calls:  []string{"router"},
		},
		{
			name:   "invalid query",
			setup:  func(f *fixture) { f.router.err = errors.NewInvalidQueryError("empty query") },
			stage:  "router",
			code:   errors.ErrCodeInvalidQuery,
			status: http.StatusBadRequest,
			calls:  []string{"router"},
		},
		{
			name:   "planner unavailable",
			setup:  func(f *fixture) { f.planner.err = errors.NewStageUnavailableError(errors.ErrCodePlannerUnavailable, 3, stderrors.New("bad json")) },
			stage:  "planner",
			code:   errors.ErrCodePlannerUnavailable,
			status: http.StatusServiceUnavailable,
			calls:  []string{"router", "planner"},
		},
		{
			name: "retrieval unavailable",
			setup: func(f *fixture) {
				f.retriever.err = errors.NewRetrievalUnavailableError(map[string]error{"private": stderrors.New("es down")})
			},
			stage:  "retriever",
			code:   errors.ErrCodeRetrievalUnavailable,
			status: http.StatusServiceUnavailable,
			calls:  []string{"router", "planner", "retriever"},
		},
		{
			name:   "answerer unavailable",
			setup:  func(f *fixture) { f.answerer.err = errors.NewStageUnavailableError(errors.ErrCodeAnswererUnavailable, 3, stderrors.New("down")) },
			stage:  "answerer",
			code:   errors.ErrCodeAnswererUnavailable,
			status: http.StatusServiceUnavailable,
			calls:  []string{"router", "planner", "retriever", "answerer"},
		},
		{
			name:   "unexpected error",
			setup:  func(f *fixture) { f.answerer.err = stderrors.New("nil pointer somewhere") },
			stage:  "answerer",
			code:   errors.ErrCodeInternal,
			status: http.StatusInternalServerError,
			calls:  []string{"router", "planner", "retriever", "answerer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, models.RouteSearch)
			tt.setup(f)

			rec, err := f.orch.Run(context.Background(), models.NewQueryWithID("req-1", "skateboard"))

			assert.Nil(t, rec)
			failure := requireFailure(t, err)
			assert.Equal(t, tt.code, failure.Code)
			assert.Equal(t, tt.stage, failure.Stage)
			assert.Equal(t, "req-1", failure.RequestID)
			assert.Equal(t, tt.status, failure.HTTPStatus())
			assert.Equal(t, tt.calls, f.rec.calls)
			assert.NotContains(t, failure.Message, "down")
		})
	}
}

func TestRun_PlanOnGeneralRouteIsStateViolation(t *testing.T) {
	f := newFixture(t, models.RouteGeneral)
	plan := f.planner.plan
	f.orch.planner = plannerFunc(func(ctx context.Context, intent *models.IntentClassification) (*models.RetrievalPlan, error) {
		f.rec.add("planner")
		return plan, nil
	})

	_, err := f.orch.Run(context.Background(), models.NewQuery("hello"))

	failure := requireFailure(t, err)
	assert.Equal(t, errors.ErrCodeStateViolation, failure.Code)
	assert.Equal(t, "planner", failure.Stage)
	assert.Equal(t, []string{"router", "planner"}, f.rec.calls)
}

type plannerFunc func(ctx context.Context, intent *models.IntentClassification) (*models.RetrievalPlan, error)

func (fn plannerFunc) Plan(ctx context.Context, intent *models.IntentClassification) (*models.RetrievalPlan, error) {
	return fn(ctx, intent)
}

func TestRun_CancelledBeforeNextStage(t *testing.T) {
	f := newFixture(t, models.RouteSearch)
	ctx, cancel := context.WithCancel(context.Background())
	f.router.hook = cancel

	rec, err := f.orch.Run(ctx, models.NewQuery("skateboard"))

	assert.Nil(t, rec)
	failure := requireFailure(t, err)
	assert.Equal(t, errors.ErrCodeRequestCancelled, failure.Code)
	assert.Equal(t, "planner", failure.Stage)
	assert.Equal(t, 499, failure.HTTPStatus())
	assert.Equal(t, []string{"router"}, f.rec.calls)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	f := newFixture(t, models.RouteSearch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Run(ctx, models.NewQuery("skateboard"))

	failure := requireFailure(t, err)
	assert.Equal(t, errors.ErrCodeRequestCancelled, failure.Code)
	assert.Empty(t, f.rec.calls)
}

// ==========================
// Outcomes and tracing
// ==========================

func TestRun_PublishesOutcome(t *testing.T) {
	f := newFixture(t, models.RouteSearch)

	_, err := f.orch.Run(context.Background(), models.NewQueryWithID("req-7", "skateboard"))
	require.NoError(t, err)

	require.Len(t, f.publisher.outcomes, 1)
	out := f.publisher.outcomes[0]
	assert.Equal(t, "req-7", out.RequestID)
	assert.Equal(t, "search", out.Route)
	assert.Equal(t, models.KindGrounded, out.Kind)
	assert.Equal(t, []string{"p-1"}, out.Citations)
	assert.True(t, out.Succeeded())
}

func TestRun_PublishesFailureOutcome(t *testing.T) {
	f := newFixture(t, models.RouteSearch)
	f.retriever.err = errors.NewRetrievalUnavailableError(map[string]error{"private": stderrors.New("down")})

	_, err := f.orch.Run(context.Background(), models.NewQuery("skateboard"))
	require.Error(t, err)

	require.Len(t, f.publisher.outcomes, 1)
	out := f.publisher.outcomes[0]
	assert.False(t, out.Succeeded())
	assert.Equal(t, "RETRIEVAL_UNAVAILABLE", out.ErrorCode)
	assert.Equal(t, "retriever", out.FailedStage)
}

func TestRun_PublisherErrorDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, models.RouteGeneral)
	f.publisher.err = stderrors.New("sns throttled")

	rec, err := f.orch.Run(context.Background(), models.NewQuery("hi"))

	require.NoError(t, err)
	assert.Equal(t, models.KindGeneral, rec.Kind)
}

func TestRun_OneSpanPerStage(t *testing.T) {
	f := newFixture(t, models.RouteSearch)
	spans := tracetest.NewSpanRecorder()
	obs := observability.NewNoop()
	obs.UseSpanProcessor("orchestrator-test", spans)
	defer obs.Shutdown()
	f.orch.obs = obs

	_, err := f.orch.Run(context.Background(), models.NewQuery("skateboard"))
	require.NoError(t, err)

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"pipeline.router", "pipeline.planner", "pipeline.retriever", "pipeline.answerer"}, names)
}
