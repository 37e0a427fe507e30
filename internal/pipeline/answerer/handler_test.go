package answerer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/models"
	"product-recommender/internal/services/completion"
)

// ==========================
// Test doubles
// ==========================

type scriptedCompleter struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	roles    []string
	excerpts []interface{}
}

type step struct {
	output string
	err    error
}

func (s *scriptedCompleter) Complete(ctx context.Context, role string, excerpt interface{}, schemaID string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	s.roles = append(s.roles, role)
	s.excerpts = append(s.excerpts, excerpt)
	if s.steps[i].err != nil {
		return s.steps[i].err
	}
	return json.Unmarshal([]byte(s.steps[i].output), out)
}

func createTestConfig() *Config {
	return &Config{
		TopK:                3,
		MaxGroundingRetries: 2,
		RefusalText:         "I can't help with that.",
		NoResultsText:       "Nothing matched.",
		Timeout:             time.Second,
		MaxRetries:          2,
	}
}

func newTestHandler(t *testing.T, steps ...step) (*Handler, *scriptedCompleter) {
	completer := &scriptedCompleter{steps: steps}
	return NewHandler(createTestConfig(), completer, logger.NewTestLogger(t)), completer
}

func skateboards() []models.ProductCandidate {
	return []models.ProductCandidate{
		{ID: "p-1", Source: models.SourcePrivate, CompositeScore: 0.9, Link: "https://shop.example/p-1",
			Fields: map[string]interface{}{"title": "Cruiser X", "brand": "Acme", "price": 89.0, "rating": 4.6}},
		{ID: "p-2", Source: models.SourcePrivate, CompositeScore: 0.7,
			Fields: map[string]interface{}{"title": "Street Pro", "price": 120.5}},
		{ID: "web-3", Source: models.SourceLive, CompositeScore: 0.5, Link: "https://other.example/deck",
			Fields: map[string]interface{}{"title": "Deck Lite", "price": 45.0}},
		{ID: "p-4", Source: models.SourcePrivate, CompositeScore: 0.1,
			Fields: map[string]interface{}{"title": "Old Board", "price": 20.0}},
	}
}

func searchState(t *testing.T, candidates []models.ProductCandidate) *models.PipelineState {
	t.Helper()
	state := models.NewPipelineState(models.NewQuery("skateboard under 300 dollars"))
	require.NoError(t, state.SetIntent(&models.IntentClassification{Route: models.RouteSearch, Task: "find a skateboard"}))
	require.NoError(t, state.SetPlan(&models.RetrievalPlan{
		Sources:            []models.Source{models.SourcePrivate, models.SourceLive},
		Fields:             []string{models.FieldTitle, models.FieldBrand, models.FieldPrice},
		ComparisonCriteria: []string{"price"},
		TopK:               5,
	}))
	require.NoError(t, state.SetResult(&models.RetrievalResult{
		Candidates: candidates,
		QueryEcho:  "find a skateboard",
		Warnings:   []string{"live source unavailable: timeout"},
	}))
	return state
}

func routedState(t *testing.T, intent *models.IntentClassification) *models.PipelineState {
	t.Helper()
	state := models.NewPipelineState(models.NewQuery("hello there"))
	require.NoError(t, state.SetIntent(intent))
	require.NoError(t, state.SetPlan(nil))
	return state
}

// ==========================
// Refusal / general / no results
// ==========================

func TestAnswer_UnsafeRefusesWithoutCompletion(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{"text":"never"}`})
	state := routedState(t, &models.IntentClassification{Route: models.RouteUnsafe, UnsafeReason: "weapons"})

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.KindRefusal, rec.Kind)
	assert.False(t, rec.Safe)
	assert.Equal(t, "I can't help with that.", rec.Text)
	assert.NotNil(t, rec.Citations)
	assert.Empty(t, rec.Citations)
	assert.NotNil(t, rec.ComparisonTable)
	assert.Empty(t, rec.ComparisonTable)
	assert.Equal(t, 0, completer.calls)
}

func TestAnswer_GeneralReplyIsPlainText(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{"text":"## Hi!\n**Happy** to help you *shop*."}`})
	state := routedState(t, &models.IntentClassification{Route: models.RouteGeneral, Task: "greeting"})

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.KindGeneral, rec.Kind)
	assert.True(t, rec.Safe)
	assert.Equal(t, "Hi! Happy to help you shop.", rec.Text)
	assert.Empty(t, rec.Citations)
	assert.Equal(t, []string{completion.RoleGeneral}, completer.roles)
}

func TestAnswer_GeneralRetriesSchemaViolation(t *testing.T) {
	h, completer := newTestHandler(t,
		step{err: errors.NewSchemaViolationError("general.v1", []string{"missing text"})},
		step{output: `{"text":"Hello."}`},
	)
	state := routedState(t, &models.IntentClassification{Route: models.RouteGeneral, Task: "greeting"})

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, "Hello.", rec.Text)
	assert.Equal(t, 2, completer.calls)
}

func TestAnswer_NoResults(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{}`})
	state := searchState(t, []models.ProductCandidate{})

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.KindNoResults, rec.Kind)
	assert.Equal(t, "Nothing matched.", rec.Text)
	assert.True(t, rec.Safe)
	assert.Empty(t, rec.Citations)
	assert.Empty(t, rec.ComparisonTable)
	assert.Equal(t, 0, completer.calls)
}

// ==========================
// Grounded answers
// ==========================

func TestAnswer_GroundedDraft(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{
		"text": "- **Cruiser X** is the best value [id: p-1]\n- Street Pro if you want speed",
		"citations": ["p-1", " p-2 ", "p-1", ""]
	}`})
	state := searchState(t, skateboards())

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.KindGrounded, rec.Kind)
	assert.True(t, rec.Safe)
	assert.Equal(t, "Cruiser X is the best value. Street Pro if you want speed.", rec.Text)
	assert.Equal(t, []string{"p-1", "p-2"}, rec.Citations)

	require.Len(t, rec.ComparisonTable, 3)
	assert.Equal(t, []string{"p-1", "p-2", "web-3"}, []string{rec.ComparisonTable[0].ID, rec.ComparisonTable[1].ID, rec.ComparisonTable[2].ID})
	assert.Equal(t, 1, rec.ComparisonTable[0].Rank)
	assert.Equal(t, 3, rec.ComparisonTable[2].Rank)

	require.Len(t, completer.excerpts, 1)
	in := completer.excerpts[0].(groundedExcerpt)
	assert.Len(t, in.Candidates, 3)
	assert.Equal(t, []string{"live source unavailable: timeout"}, in.Notes)
	assert.Equal(t, []string{completion.RoleAnswerer}, completer.roles)
}

func TestAnswer_ConflictsReachTheExcerpt(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{"text":"Cruiser X is 89 dollars in the catalog but 79 dollars online.","citations":["p-1"]}`})

	state := models.NewPipelineState(models.NewQuery("cheap cruiser"))
	require.NoError(t, state.SetIntent(&models.IntentClassification{Route: models.RouteSearch, Task: "find a cruiser"}))
	require.NoError(t, state.SetPlan(&models.RetrievalPlan{
		Sources:            []models.Source{models.SourcePrivate, models.SourceLive},
		Fields:             []string{models.FieldTitle, models.FieldPrice},
		ComparisonCriteria: []string{"price"},
		TopK:               5,
	}))
	conflict := models.Conflict{ID: "p-1", Field: models.FieldPrice, Private: "89", Live: "79", Link: "https://deals.example/p-1"}
	require.NoError(t, state.SetResult(&models.RetrievalResult{
		Candidates: skateboards()[:1],
		QueryEcho:  "find a cruiser",
		Conflicts:  []models.Conflict{conflict},
	}))

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, rec.Citations)
	require.Len(t, completer.excerpts, 1)
	assert.Equal(t, []models.Conflict{conflict}, completer.excerpts[0].(groundedExcerpt).Conflicts)
}

func TestAnswer_UnknownCitationIsRetried(t *testing.T) {
	h, completer := newTestHandler(t,
		step{output: `{"text":"Buy the Mega Board.","citations":["p-9"]}`},
		step{output: `{"text":"Street Pro or Cruiser X.","citations":["p-2","p-1"]}`},
	)
	state := searchState(t, skateboards())

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"p-2", "p-1"}, rec.Citations)
	assert.Equal(t, "Street Pro or Cruiser X.", rec.Text)
	require.Len(t, completer.excerpts, 2)
	assert.Equal(t, []string{"p-9"}, completer.excerpts[1].(groundedExcerpt).RejectedCitations)
}

func TestAnswer_CitationOutsideTopKIsStillGrounded(t *testing.T) {
	h, _ := newTestHandler(t, step{output: `{"text":"The Old Board is cheapest.","citations":["p-4"]}`})

	rec, err := h.Answer(context.Background(), searchState(t, skateboards()))

	require.NoError(t, err)
	assert.Equal(t, []string{"p-4"}, rec.Citations)
}

func TestAnswer_FallsBackAfterGroundingBudget(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{"text":"Try the Hover Board.","citations":["hover-1"]}`})
	state := searchState(t, skateboards())

	rec, err := h.Answer(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 3, completer.calls)
	assert.Equal(t, models.KindGrounded, rec.Kind)
	assert.Equal(t, []string{"p-1", "p-2", "web-3"}, rec.Citations)
	assert.Equal(t,
		"My top recommendation is Cruiser X by Acme, priced at 89 dollars. "+
			"You could also consider Street Pro, priced at 120.5 dollars, or Deck Lite, priced at 45 dollars.",
		rec.Text)
	assert.NotContains(t, rec.Text, "Hover")
}

func TestAnswer_DraftWithoutCitationsFallsBack(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{"text":"Any board will do.","citations":[]}`})

	rec, err := h.Answer(context.Background(), searchState(t, skateboards()))

	require.NoError(t, err)
	assert.Equal(t, 3, completer.calls)
	assert.Equal(t, []string{"p-1", "p-2", "web-3"}, rec.Citations)
}

func TestAnswer_ServiceExhaustionEscalates(t *testing.T) {
	h, completer := newTestHandler(t, step{err: errors.NewServiceUnavailableError("completion", stderrors.New("down"))})

	rec, err := h.Answer(context.Background(), searchState(t, skateboards()))

	assert.Nil(t, rec)
	assert.True(t, stderrors.Is(err, errors.ErrAnswererUnavailable))
	assert.Equal(t, errors.ErrCodeAnswererUnavailable, errors.CodeOf(err))
	assert.Equal(t, 3, completer.calls)
}

func TestAnswer_CancelledContext(t *testing.T) {
	h, _ := newTestHandler(t, step{err: errors.NewServiceUnavailableError("completion", context.Canceled)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Answer(ctx, searchState(t, skateboards()))

	assert.True(t, stderrors.Is(err, errors.ErrRequestCancelled))
}

// ==========================
// State checks
// ==========================

func TestAnswer_RequiresIntent(t *testing.T) {
	h, _ := newTestHandler(t, step{output: `{}`})

	_, err := h.Answer(context.Background(), models.NewPipelineState(models.NewQuery("x")))

	assert.True(t, stderrors.Is(err, errors.ErrStateViolation))
}

func TestAnswer_SearchWithoutResult(t *testing.T) {
	h, _ := newTestHandler(t, step{output: `{}`})
	state := models.NewPipelineState(models.NewQuery("skateboard"))
	require.NoError(t, state.SetIntent(&models.IntentClassification{Route: models.RouteSearch, Task: "find"}))

	_, err := h.Answer(context.Background(), state)

	assert.True(t, stderrors.Is(err, errors.ErrStateViolation))
}

func TestCheckGrounding(t *testing.T) {
	result := &models.RetrievalResult{Candidates: skateboards()}

	ids, err := checkGrounding(draftOutput{Citations: []string{"web-3", "p-1", "web-3"}}, result)
	require.NoError(t, err)
	assert.Equal(t, []string{"web-3", "p-1"}, ids)

	_, err = checkGrounding(draftOutput{Citations: []string{"p-1", "nope"}}, result)
	assert.True(t, stderrors.Is(err, errors.ErrGroundingViolation))

	_, err = checkGrounding(draftOutput{}, result)
	assert.True(t, stderrors.Is(err, errors.ErrGroundingViolation))
}
