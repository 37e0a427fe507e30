package router

import (
	"context"
	stderrors "errors"
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

const StageName = "router"

const prescreenFlag = "blocked_pattern"

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

// Classify decides the route of a query and extracts its task and constraints.
func (h *Handler) Classify(ctx context.Context, q models.Query) (*models.IntentClassification, error) {
	text := q.NormalizedText()
	if text == "" {
		return nil, errors.NewInvalidQueryError("query text is empty")
	}
	log := h.logger.With(map[string]interface{}{"requestId": q.ID})

	if pattern := h.prescreen(text); pattern != "" {
		log.Info("query blocked by unsafe pattern", map[string]interface{}{"pattern": pattern})
		return &models.IntentClassification{
			Route:        models.RouteUnsafe,
			Task:         text,
			Constraints:  models.Constraints{},
			UnsafeReason: "request matches a blocked pattern",
			SafetyFlags:  []string{prescreenFlag},
		}, nil
	}

	start := time.Now()
	var out completionOutput
	var lastErr error
	attempts, err := retry.Do(ctx, retry.DefaultPolicy(h.config.MaxRetries), isRetryable, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(StageName, string(errors.CodeOf(lastErr))).Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()

		out = completionOutput{}
		lastErr = h.completer.Complete(callCtx, completion.RoleRouter, excerpt{Query: text}, validation.SchemaRouterV1, &out)
		return lastErr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.NewCancelledError(ctxErr)
		}
		log.Error("router exhausted retry budget", map[string]interface{}{
			"attempts": attempts,
			"error":    err.Error(),
		})
		return nil, errors.NewStageUnavailableError(errors.ErrCodeRouterUnavailable, attempts, err)
	}

	intent := h.buildIntent(text, &out)
	log.Info("intent classified", map[string]interface{}{
		"route":       string(intent.Route),
		"constraints": len(intent.Constraints),
		"attempts":    attempts,
		"durationMs":  time.Since(start).Milliseconds(),
	})
	return intent, nil
}

func (h *Handler) prescreen(text string) string {
	for _, re := range h.config.UnsafePatterns {
		if re.MatchString(text) {
			return re.String()
		}
	}
	return ""
}

func (h *Handler) buildIntent(text string, out *completionOutput) *models.IntentClassification {
	route := resolveRoute(out)

	task := strings.TrimSpace(out.Task)
	if task == "" {
		task = text
	}

	intent := &models.IntentClassification{
		Route:          route,
		Task:           task,
		Constraints:    cleanConstraints(out.Constraints),
		SafetyFlags:    out.SafetyFlags,
		ExtractedQuery: strings.TrimSpace(out.ExtractedQuery),
	}
	if route == models.RouteUnsafe {
		intent.UnsafeReason = unsafeReason(out)
	}
	return intent
}

// resolveRoute applies safety flags first, then route scores, then the
// declared route. Equal scores resolve in RoutePrecedence order.
func resolveRoute(out *completionOutput) models.Route {
	if len(out.SafetyFlags) > 0 {
		return models.RouteUnsafe
	}
	if len(out.RouteScores) > 0 {
		best := models.Route("")
		bestScore := -1.0
		for _, r := range models.RoutePrecedence {
			score, ok := out.RouteScores[string(r)]
			if ok && score > bestScore {
				best, bestScore = r, score
			}
		}
		if best != "" {
			return best
		}
	}
	return models.Route(out.Route)
}

func unsafeReason(out *completionOutput) string {
	if reason := strings.TrimSpace(out.UnsafeReason); reason != "" {
		return reason
	}
	if len(out.SafetyFlags) > 0 {
		return "flagged: " + strings.Join(out.SafetyFlags, ", ")
	}
	return "request classified as unsafe"
}

func isRetryable(err error) bool {
	return stderrors.Is(err, errors.ErrSchemaViolation) || stderrors.Is(err, errors.ErrServiceUnavailable)
}
