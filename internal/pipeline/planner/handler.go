package planner

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/metrics"
	"product-recommender/internal/common/retry"
	"product-recommender/internal/common/validation"
	"product-recommender/internal/models"
	"product-recommender/internal/services/completion"
)

const StageName = "planner"

type Handler struct {
	config    *Config
	completer completion.Completer
	logger    logger.Logger
}

func NewHandler(config *Config, completer completion.Completer, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		completer: completer,
		logger:    log.With(map[string]interface{}{"stage": StageName}),
	}
}

// Plan returns nil without calling the model for any route but search.
func (h *Handler) Plan(ctx context.Context, intent *models.IntentClassification) (*models.RetrievalPlan, error) {
	if intent == nil {
		return nil, errors.NewStateViolationError("planner called without an intent")
	}
	if intent.Route != models.RouteSearch {
		return nil, nil
	}

	start := time.Now()
	in := excerpt{
		Task:            intent.Task,
		ExtractedQuery:  intent.ExtractedQuery,
		Constraints:     intent.Constraints,
		AllowedFields:   sortedKeys(models.AllowedFields),
		AllowedCriteria: sortedKeys(models.AllowedCriteria),
	}

	var out completionOutput
	var lastErr error
	attempts, err := retry.Do(ctx, retry.DefaultPolicy(h.config.MaxRetries), isRetryable, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(StageName, string(errors.CodeOf(lastErr))).Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()

		out = completionOutput{}
		lastErr = h.completer.Complete(callCtx, completion.RolePlanner, in, validation.SchemaPlannerV1, &out)
		return lastErr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.NewCancelledError(ctxErr)
		}
		h.logger.Error("planner exhausted retry budget", map[string]interface{}{
			"attempts": attempts,
			"error":    err.Error(),
		})
		return nil, errors.NewStageUnavailableError(errors.ErrCodePlannerUnavailable, attempts, err)
	}

	plan := h.buildPlan(intent, &out)
	if err := plan.Validate(); err != nil {
		return nil, errors.NewInvalidPlanError(err.Error())
	}

	h.logger.Info("retrieval plan built", map[string]interface{}{
		"sources":    plan.Sources,
		"fields":     plan.Fields,
		"filters":    len(plan.Filters),
		"criteria":   plan.ComparisonCriteria,
		"topK":       plan.TopK,
		"useWebFor":  plan.UseWebFor,
		"rationale":  out.Rationale,
		"attempts":   attempts,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return plan, nil
}

func (h *Handler) buildPlan(intent *models.IntentClassification, out *completionOutput) *models.RetrievalPlan {
	sources := []models.Source{models.SourcePrivate}
	live := wantsLive(intent, h.config.LiveHintTerms)
	for _, s := range out.Sources {
		if models.Source(s) == models.SourceLive {
			live = true
		}
	}
	if live {
		sources = append(sources, models.SourceLive)
	}

	filters := filtersFromConstraints(intent.Constraints, h.logger)
	criteria := normalizeCriteria(out.ComparisonCriteria, h.config.DefaultCriteria)
	fields := normalizeFields(out.Fields, h.config.DefaultFields, filters, criteria)

	topK := out.NResults
	if topK <= 0 {
		topK = h.config.DefaultTopK
	}
	if topK > h.config.MaxTopK {
		topK = h.config.MaxTopK
	}

	plan := &models.RetrievalPlan{
		Sources:            sources,
		Fields:             fields,
		Filters:            filters,
		ComparisonCriteria: criteria,
		TopK:               topK,
	}
	if live {
		plan.UseWebFor = strings.Join(strings.Fields(out.UseWebFor), " ")
	}
	return plan
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isRetryable(err error) bool {
	return stderrors.Is(err, errors.ErrSchemaViolation) || stderrors.Is(err, errors.ErrServiceUnavailable)
}
