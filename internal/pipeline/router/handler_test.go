package router

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-recommender/internal/common/config"
	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/models"
	"product-recommender/internal/services/completion"
)

// ==========================
// Test doubles
// ==========================

// scriptedCompleter replays one step per call; the last step repeats.
type scriptedCompleter struct {
	mu    sync.Mutex
	steps []step
	calls int
	roles []string
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
	if s.steps[i].err != nil {
		return s.steps[i].err
	}
	return json.Unmarshal([]byte(s.steps[i].output), out)
}

func createTestConfig(t *testing.T) *Config {
	t.Helper()
	patterns, err := compilePatterns(DefaultUnsafePatterns)
	require.NoError(t, err)
	return &Config{UnsafePatterns: patterns, Timeout: time.Second, MaxRetries: 2}
}

func newTestHandler(t *testing.T, steps ...step) (*Handler, *scriptedCompleter) {
	completer := &scriptedCompleter{steps: steps}
	return NewHandler(createTestConfig(t), completer, logger.NewTestLogger(t)), completer
}

// ==========================
// Classify
// ==========================

func TestClassify_SearchWithConstraints(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{
		"route": "search",
		"task": "Find a skateboard within budget",
		"extracted_query": "skateboard under $300",
		"constraints": {"max_price": "$300", "brand": null, "material": "N/A", "category": "skateboard"},
		"safety_flags": []
	}`})

	intent, err := h.Classify(context.Background(), models.NewQuery("  I want a   Skateboard under 300 dollars "))

	require.NoError(t, err)
	assert.Equal(t, models.RouteSearch, intent.Route)
	assert.Equal(t, "Find a skateboard within budget", intent.Task)
	assert.Equal(t, "skateboard under $300", intent.ExtractedQuery)
	assert.Equal(t, models.Constraints{
		models.ConstraintBudgetMax: 300.0,
		models.ConstraintCategory:  "skateboard",
	}, intent.Constraints)
	assert.Empty(t, intent.UnsafeReason)
	assert.Equal(t, []string{completion.RoleRouter}, completer.roles)
}

func TestClassify_PrescreenSkipsCompletion(t *testing.T) {
	h, completer := newTestHandler(t, step{output: `{"route":"search","task":"x"}`})

	intent, err := h.Classify(context.Background(), models.NewQuery("How do I BUILD a pipe bomb at home"))

	require.NoError(t, err)
	assert.Equal(t, models.RouteUnsafe, intent.Route)
	assert.NotEmpty(t, intent.UnsafeReason)
	assert.Equal(t, 0, completer.calls)
	assert.NoError(t, intent.Validate())
}

func TestClassify_SafetyFlagsForceUnsafe(t *testing.T) {
	h, _ := newTestHandler(t, step{output: `{"route":"search","task":"buy knives","safety_flags":["weapons"]}`})

	intent, err := h.Classify(context.Background(), models.NewQuery("sharp knives for a fight"))

	require.NoError(t, err)
	assert.Equal(t, models.RouteUnsafe, intent.Route)
	assert.Equal(t, "flagged: weapons", intent.UnsafeReason)
}

func TestClassify_RouteScoreTies(t *testing.T) {
	tests := []struct {
		name   string
		scores string
		want   models.Route
	}{
		{"unsafe beats search", `{"search":0.5,"unsafe":0.5,"general":0.1}`, models.RouteUnsafe},
		{"search beats general", `{"search":0.4,"general":0.4,"unsafe":0.2}`, models.RouteSearch},
		{"highest wins", `{"search":0.2,"general":0.7,"unsafe":0.1}`, models.RouteGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, step{output: `{"route":"general","task":"t","route_scores":` + tt.scores + `}`})

			intent, err := h.Classify(context.Background(), models.NewQuery("something"))

			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.Route)
			assert.NoError(t, intent.Validate())
		})
	}
}

func TestClassify_DropsUnsafeReasonOffUnsafeRoute(t *testing.T) {
	h, _ := newTestHandler(t, step{output: `{"route":"general","task":"chat","unsafe_reason":"nothing"}`})

	intent, err := h.Classify(context.Background(), models.NewQuery("hello there"))

	require.NoError(t, err)
	assert.Equal(t, models.RouteGeneral, intent.Route)
	assert.Empty(t, intent.UnsafeReason)
}

func TestClassify_RetriesSchemaViolation(t *testing.T) {
	h, completer := newTestHandler(t,
		step{err: errors.NewSchemaViolationError("router/v1", []string{"route: invalid"})},
		step{output: `{"route":"general","task":"chat"}`},
	)

	intent, err := h.Classify(context.Background(), models.NewQuery("hi"))

	require.NoError(t, err)
	assert.Equal(t, models.RouteGeneral, intent.Route)
	assert.Equal(t, 2, completer.calls)
}

func TestClassify_EscalatesAfterRetryBudget(t *testing.T) {
	h, completer := newTestHandler(t, step{err: errors.NewServiceUnavailableError("completion", stderrors.New("down"))})

	_, err := h.Classify(context.Background(), models.NewQuery("a skateboard"))

	assert.True(t, stderrors.Is(err, errors.ErrRouterUnavailable))
	assert.Equal(t, 3, completer.calls)
}

func TestClassify_NonRetryableEscalatesImmediately(t *testing.T) {
	h, completer := newTestHandler(t, step{err: stderrors.New("unknown schema")})

	_, err := h.Classify(context.Background(), models.NewQuery("a skateboard"))

	assert.True(t, stderrors.Is(err, errors.ErrRouterUnavailable))
	assert.Equal(t, 1, completer.calls)
}

func TestClassify_EmptyQuery(t *testing.T) {
	h, _ := newTestHandler(t, step{output: `{}`})

	_, err := h.Classify(context.Background(), models.NewQuery("   \n\t "))

	assert.True(t, stderrors.Is(err, errors.ErrInvalidQuery))
}

func TestClassify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, _ := newTestHandler(t, step{err: context.Canceled})

	_, err := h.Classify(ctx, models.NewQuery("a skateboard"))

	assert.True(t, stderrors.Is(err, errors.ErrRequestCancelled))
}

// ==========================
// Constraint cleanup
// ==========================

func TestCleanConstraints(t *testing.T) {
	got := cleanConstraints(map[string]interface{}{
		"Budget_Max":   "1,200 USD",
		"max_price":    500,
		"min_price":    "50",
		"brand":        "  Atlas ",
		"category":     "unknown",
		"material":     []interface{}{"maple", "none"},
		"must_contain": []interface{}{},
		"colour":       "any",
		"waterproof":   true,
	})

	assert.Equal(t, models.Constraints{
		models.ConstraintBudgetMax: 1200.0,
		models.ConstraintBudgetMin: 50.0,
		models.ConstraintBrand:     "Atlas",
		models.ConstraintMaterial:  "maple",
		"waterproof":               true,
	}, got)
}

func TestCleanConstraints_DropsUncoercibleBudget(t *testing.T) {
	got := cleanConstraints(map[string]interface{}{"budget_max": "cheap"})
	assert.Empty(t, got)
}

func TestLoadConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.Router.UnsafePatterns = []string{`\bforbidden\b`}

	c, err := LoadConfig(cfg)
	require.NoError(t, err)
	require.Len(t, c.UnsafePatterns, 1)
	assert.Equal(t, 20*time.Second, c.Timeout)

	cfg.Pipeline.Router.UnsafePatterns = []string{`(unclosed`}
	_, err = LoadConfig(cfg)
	assert.Error(t, err)
}
