package answerer

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

const StageName = "answerer"

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

// Answer produces the terminal Recommendation for a routed state.
func (h *Handler) Answer(ctx context.Context, state *models.PipelineState) (*models.Recommendation, error) {
	intent, ok := state.Intent()
	if !ok {
		return nil, errors.NewStateViolationError("answerer called before routing")
	}
	log := h.logger.With(map[string]interface{}{"requestId": state.Query().ID, "route": string(intent.Route)})

	switch intent.Route {
	case models.RouteUnsafe:
		log.Info("returning refusal", map[string]interface{}{"reason": intent.UnsafeReason})
		return h.refusal(), nil
	case models.RouteGeneral:
		return h.general(ctx, state.Query(), intent, log)
	case models.RouteSearch:
		result, ok := state.Result()
		if !ok {
			return nil, errors.NewStateViolationError("search route answered without a retrieval result")
		}
		if result.IsEmpty() {
			log.Info("no candidates survived retrieval", nil)
			return &models.Recommendation{
				Kind:            models.KindNoResults,
				Text:            h.config.NoResultsText,
				Citations:       []string{},
				ComparisonTable: []models.ComparisonRow{},
				Safe:            true,
			}, nil
		}
		plan, _ := state.Plan()
		return h.grounded(ctx, state.Query(), intent, plan, result, log)
	default:
		return nil, errors.NewStateViolationError("unknown route " + string(intent.Route))
	}
}

func (h *Handler) refusal() *models.Recommendation {
	return &models.Recommendation{
		Kind:            models.KindRefusal,
		Text:            h.config.RefusalText,
		Citations:       []string{},
		ComparisonTable: []models.ComparisonRow{},
		Safe:            false,
	}
}

func (h *Handler) general(ctx context.Context, q models.Query, intent *models.IntentClassification, log logger.Logger) (*models.Recommendation, error) {
	var out generalOutput
	var lastErr error
	attempts, err := retry.Do(ctx, retry.DefaultPolicy(h.config.MaxRetries), isTransient, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(StageName, string(errors.CodeOf(lastErr))).Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()

		out = generalOutput{}
		lastErr = h.completer.Complete(callCtx, completion.RoleGeneral, generalExcerpt{Query: q.Text, Task: intent.Task}, validation.SchemaGeneralV1, &out)
		return lastErr
	})
	if err != nil {
		return nil, h.escalate(ctx, attempts, err, log)
	}

	log.Info("general reply generated", map[string]interface{}{"attempts": attempts})
	return &models.Recommendation{
		Kind:            models.KindGeneral,
		Text:            plainText(out.Text),
		Citations:       []string{},
		ComparisonTable: []models.ComparisonRow{},
		Safe:            true,
	}, nil
}

func (h *Handler) grounded(ctx context.Context, q models.Query, intent *models.IntentClassification, plan *models.RetrievalPlan, result *models.RetrievalResult, log logger.Logger) (*models.Recommendation, error) {
	var fields []string
	if plan != nil {
		fields = plan.Fields
	}
	table := BuildTable(result.Top(h.config.TopK), fields)

	in := groundedExcerpt{
		Query:      q.Text,
		Task:       intent.Task,
		Candidates: table,
		Notes:      result.Warnings,
		Conflicts:  result.Conflicts,
	}

	start := time.Now()
	groundingFailures, transientFailures := 0, 0
	shouldRetry := func(err error) bool {
		switch {
		case stderrors.Is(err, errors.ErrGroundingViolation):
			groundingFailures++
			metrics.StageRetries.WithLabelValues(StageName, string(errors.ErrCodeGroundingViolation)).Inc()
			return groundingFailures <= h.config.MaxGroundingRetries
		case isTransient(err):
			transientFailures++
			metrics.StageRetries.WithLabelValues(StageName, string(errors.CodeOf(err))).Inc()
			return transientFailures <= h.config.MaxRetries
		default:
			return false
		}
	}

	var text string
	var citations []string
	policy := retry.DefaultPolicy(h.config.MaxRetries + h.config.MaxGroundingRetries)
	attempts, err := retry.Do(ctx, policy, shouldRetry, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()

		var draft draftOutput
		if err := h.completer.Complete(callCtx, completion.RoleAnswerer, in, validation.SchemaAnswererV1, &draft); err != nil {
			return err
		}
		cleaned, err := checkGrounding(draft, result)
		if err != nil {
			log.Warn("draft rejected by grounding check", map[string]interface{}{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			in.RejectedCitations = draft.Citations
			return err
		}
		text, citations = plainText(draft.Text), cleaned
		return nil
	})

	switch {
	case err == nil && text != "":
	case err == nil || stderrors.Is(err, errors.ErrGroundingViolation):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.NewCancelledError(ctxErr)
		}
		log.Warn("using deterministic summary after grounding failures", map[string]interface{}{
			"attempts": attempts,
		})
		text = fallbackSummary(table)
		citations = make([]string, 0, len(table))
		for _, row := range table {
			citations = append(citations, row.ID)
		}
	default:
		return nil, h.escalate(ctx, attempts, err, log)
	}

	log.Info("recommendation grounded", map[string]interface{}{
		"citations":  len(citations),
		"rows":       len(table),
		"attempts":   attempts,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return &models.Recommendation{
		Kind:            models.KindGrounded,
		Text:            text,
		Citations:       citations,
		ComparisonTable: table,
		Safe:            true,
	}, nil
}

// checkGrounding deduplicates citations in order of first appearance and
// rejects drafts that cite nothing or cite ids outside the result set.
func checkGrounding(draft draftOutput, result *models.RetrievalResult) ([]string, error) {
	seen := map[string]bool{}
	citations := make([]string, 0, len(draft.Citations))
	var unknown []string
	for _, raw := range draft.Citations {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if !result.Contains(id) {
			unknown = append(unknown, id)
			continue
		}
		citations = append(citations, id)
	}
	if len(unknown) > 0 {
		return nil, errors.NewGroundingViolationError(unknown)
	}
	if len(citations) == 0 {
		return nil, errors.NewGroundingViolationError(nil).WithMetadata("reason", "draft has no citations")
	}
	return citations, nil
}

func (h *Handler) escalate(ctx context.Context, attempts int, err error, log logger.Logger) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.NewCancelledError(ctxErr)
	}
	log.Error("answerer exhausted retry budget", map[string]interface{}{
		"attempts": attempts,
		"error":    err.Error(),
	})
	return errors.NewStageUnavailableError(errors.ErrCodeAnswererUnavailable, attempts, err)
}

func isTransient(err error) bool {
	return stderrors.Is(err, errors.ErrSchemaViolation) || stderrors.Is(err, errors.ErrServiceUnavailable)
}
