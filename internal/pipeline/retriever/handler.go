package retriever

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/metrics"
	"product-recommender/internal/common/retry"
	"product-recommender/internal/models"
	"product-recommender/internal/services/livesearch"
	"product-recommender/internal/services/vectorsearch"
)

const StageName = "retriever"

var errNotConfigured = stderrors.New("source not configured")

type Handler struct {
	config  *Config
	private vectorsearch.Searcher
	live    livesearch.Searcher
	cache   Cache
	logger  logger.Logger
}

// NewHandler wires the retrieval sources. live and cache may be nil.
func NewHandler(config *Config, private vectorsearch.Searcher, live livesearch.Searcher, cache Cache, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		private: private,
		live:    live,
		cache:   cache,
		logger:  log.With(map[string]interface{}{"stage": StageName}),
	}
}

// Retrieve executes the plan against every source it names, then merges,
// filters, reranks and truncates the combined candidates.
func (h *Handler) Retrieve(ctx context.Context, task string, plan *models.RetrievalPlan) (*models.RetrievalResult, error) {
	if plan == nil {
		return nil, errors.NewInvalidPlanError("retriever called without a plan")
	}
	if err := plan.Validate(); err != nil {
		return nil, errors.NewInvalidPlanError(err.Error())
	}

	start := time.Now()
	log := h.logger.With(map[string]interface{}{"task": task})

	outcomes := h.fetchAll(ctx, task, plan)
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(err)
	}

	var warnings []string
	var privateRecords []vectorsearch.Record
	var liveRecords []livesearch.Record
	sourceErrs := map[string]error{}
	for _, o := range outcomes {
		result := "ok"
		if o.cached {
			result = "cached"
		}
		if o.err != nil {
			result = "error"
			sourceErrs[string(o.source)] = o.err
			warnings = append(warnings, fmt.Sprintf("%s source unavailable: %v", o.source, o.err))
			log.Warn("retrieval source failed", map[string]interface{}{
				"source":   string(o.source),
				"attempts": o.attempts,
				"error":    o.err.Error(),
			})
		}
		metrics.SourceFetches.WithLabelValues(string(o.source), result).Inc()

		switch o.source {
		case models.SourcePrivate:
			privateRecords = o.private
		case models.SourceLive:
			liveRecords = o.live
		}
	}

	if len(sourceErrs) == len(outcomes) {
		return nil, errors.NewRetrievalUnavailableError(sourceErrs)
	}

	webCandidates, observed := liveCandidates(liveRecords, privateRecords, plan.Fields)
	candidates := merge(privateCandidates(privateRecords), webCandidates)
	metrics.RetrievalCandidates.WithLabelValues("merged").Observe(float64(len(candidates)))

	candidates = applyFilters(candidates, plan.Filters)
	metrics.RetrievalCandidates.WithLabelValues("filtered").Observe(float64(len(candidates)))

	candidates = rerank(candidates, plan.ComparisonCriteria, h.config.WeightDecay)
	if len(candidates) > h.config.TopN {
		candidates = candidates[:h.config.TopN]
	}
	metrics.RetrievalCandidates.WithLabelValues("returned").Observe(float64(len(candidates)))

	conflicts := detectConflicts(candidates, observed)

	log.Info("retrieval completed", map[string]interface{}{
		"sources":    len(outcomes),
		"private":    len(privateRecords),
		"live":       len(liveRecords),
		"candidates": len(candidates),
		"warnings":   len(warnings),
		"conflicts":  len(conflicts),
		"durationMs": time.Since(start).Milliseconds(),
	})

	return &models.RetrievalResult{
		Candidates: candidates,
		QueryEcho:  task,
		Warnings:   warnings,
		Conflicts:  conflicts,
	}, nil
}

// fetchAll launches one goroutine per planned source and waits for all of them.
func (h *Handler) fetchAll(ctx context.Context, task string, plan *models.RetrievalPlan) []sourceOutcome {
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make([]sourceOutcome, 0, len(plan.Sources))

	collect := func(o sourceOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	for _, source := range plan.Sources {
		switch source {
		case models.SourcePrivate:
			if h.private == nil {
				collect(sourceOutcome{source: source, err: errNotConfigured})
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				collect(h.fetchPrivate(ctx, task, plan))
			}()
		case models.SourceLive:
			if h.live == nil {
				collect(sourceOutcome{source: source, err: errNotConfigured})
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				collect(h.fetchLive(ctx, task, plan))
			}()
		}
	}
	wg.Wait()

	// Goroutines finish in any order; keep the planned order for stable warnings.
	ordered := make([]sourceOutcome, 0, len(outcomes))
	for _, source := range plan.Sources {
		for _, o := range outcomes {
			if o.source == source {
				ordered = append(ordered, o)
			}
		}
	}
	return ordered
}

func (h *Handler) fetchPrivate(ctx context.Context, task string, plan *models.RetrievalPlan) sourceOutcome {
	out := sourceOutcome{source: models.SourcePrivate}
	topK := plan.TopK * h.config.OverFetchFactor

	key := CacheKey(cacheKeyInput{Source: models.SourcePrivate, Task: task, Filters: plan.Filters, Fields: plan.Fields, TopK: topK})
	if h.cache != nil && h.cache.Get(ctx, key, &out.private) {
		out.cached = true
		return out
	}

	out.attempts, out.err = retry.Do(ctx, retry.DefaultPolicy(h.config.MaxRetries), nil, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(StageName, "private").Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, h.config.PrivateTimeout)
		defer cancel()

		records, err := h.private.Search(callCtx, task, plan.Filters, plan.Fields, topK)
		if err != nil {
			return errors.NewServiceUnavailableError(h.private.Name(), err)
		}
		out.private = records
		return nil
	})
	if out.err == nil && h.cache != nil {
		h.cache.Set(ctx, key, out.private)
	}
	return out
}

func (h *Handler) fetchLive(ctx context.Context, task string, plan *models.RetrievalPlan) sourceOutcome {
	out := sourceOutcome{source: models.SourceLive}

	key := CacheKey(cacheKeyInput{Source: models.SourceLive, Task: task, Purpose: plan.UseWebFor, Filters: plan.Filters, Fields: plan.Fields, TopK: plan.TopK})
	if h.cache != nil && h.cache.Get(ctx, key, &out.live) {
		out.cached = true
		return out
	}

	query := livesearch.Query{
		Task:        task,
		Purpose:     plan.UseWebFor,
		Constraints: constraintsFromFilters(plan.Filters),
		MaxResults:  plan.TopK,
	}
	out.attempts, out.err = retry.Do(ctx, retry.DefaultPolicy(h.config.MaxRetries), nil, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(StageName, "live").Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, h.config.LiveTimeout)
		defer cancel()

		records, err := h.live.Search(callCtx, query)
		if err != nil {
			return errors.NewServiceUnavailableError("live search", err)
		}
		out.live = records
		return nil
	})
	if out.err == nil && h.cache != nil {
		h.cache.Set(ctx, key, out.live)
	}
	return out
}

// constraintsFromFilters restates plan filters in the phrasing the live query builder expects.
func constraintsFromFilters(filters models.Filters) models.Constraints {
	c := models.Constraints{}
	if v, ok := filters.Float(models.FilterMaxPrice); ok {
		c[models.ConstraintBudgetMax] = v
	}
	if v, ok := filters.Float(models.FilterMinPrice); ok {
		c[models.ConstraintBudgetMin] = v
	}
	for _, key := range []string{models.FilterBrand, models.FilterCategory, models.FilterMaterial, models.FilterMustContain} {
		if v, ok := filters.String(key); ok {
			c[key] = v
		}
	}
	return c
}
