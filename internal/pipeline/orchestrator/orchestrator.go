package orchestrator

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/codes"

	"product-recommender/internal/common/config"
	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/metrics"
	"product-recommender/internal/common/observability"
	"product-recommender/internal/models"
)

const outcomeFailed = "failed"

// Orchestrator drives one request through the stage sequence of its route.
type Orchestrator struct {
	config    *Config
	router    Router
	planner   Planner
	retriever Retriever
	answerer  Answerer
	publisher OutcomePublisher
	obs       *observability.Observability
	failures  *errors.FailureHandler
	logger    logger.Logger
}

func NewOrchestrator(config *Config, router Router, planner Planner, retriever Retriever, answerer Answerer, obs *observability.Observability, log logger.Logger) *Orchestrator {
	if obs == nil {
		obs = observability.NewNoop()
	}
	log = log.With(map[string]interface{}{"component": "orchestrator"})
	return &Orchestrator{
		config:    config,
		router:    router,
		planner:   planner,
		retriever: retriever,
		answerer:  answerer,
		obs:       obs,
		failures:  errors.NewFailureHandler(log),
		logger:    log,
	}
}

// WithPublisher sends an Outcome for every finished request.
func (o *Orchestrator) WithPublisher(p OutcomePublisher) *Orchestrator {
	o.publisher = p
	return o
}

// Run executes the pipeline for q. It returns either a Recommendation or a
// *errors.PipelineFailure, never both.
func (o *Orchestrator) Run(ctx context.Context, q models.Query) (*models.Recommendation, error) {
	start := time.Now()
	metrics.RequestsInFlight.Inc()
	defer metrics.RequestsInFlight.Dec()

	if o.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestTimeout)
		defer cancel()
	}

	state := models.NewPipelineState(q)
	log := o.logger.With(map[string]interface{}{"requestId": q.ID})
	log.Info("pipeline started", map[string]interface{}{"queryLength": len(q.Text)})

	if err := o.runStage(ctx, state, config.StageRouter); err != nil {
		return nil, o.fail(ctx, state, config.StageRouter, err, start)
	}

	intent, _ := state.Intent()
	stages, ok := stagesAfterRouting[intent.Route]
	if !ok {
		err := errors.NewStateViolationError("no stage sequence for route " + string(intent.Route))
		return nil, o.fail(ctx, state, config.StageRouter, err, start)
	}
	log.Debug("route resolved", map[string]interface{}{
		"route":  string(intent.Route),
		"stages": StagesFor(intent.Route),
	})

	for _, stage := range stages {
		if err := o.runStage(ctx, state, stage); err != nil {
			return nil, o.fail(ctx, state, stage, err, start)
		}
	}

	rec, ok := state.Recommendation()
	if !ok {
		err := errors.NewStateViolationError("pipeline ended without a recommendation")
		return nil, o.fail(ctx, state, config.StageAnswerer, err, start)
	}
	o.succeed(ctx, state, rec, start, log)
	return rec, nil
}

// runStage checks for cancellation, executes one stage inside a span and
// records its duration.
func (o *Orchestrator) runStage(ctx context.Context, state *models.PipelineState, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(err)
	}

	ctx, span := o.obs.StartStage(ctx, stage, state.Query().ID)
	defer span.End()

	start := time.Now()
	err := o.execute(ctx, state, stage)
	elapsed := time.Since(start)

	metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		metrics.StageFailures.WithLabelValues(stage, string(errors.CodeOf(err))).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	}
	o.obs.RecordStageDuration(ctx, stage, elapsed, status)
	return err
}

func (o *Orchestrator) execute(ctx context.Context, state *models.PipelineState, stage string) error {
	switch stage {
	case config.StageRouter:
		intent, err := o.router.Classify(ctx, state.Query())
		if err != nil {
			return err
		}
		return guard(state.SetIntent(intent))

	case config.StagePlanner:
		intent, _ := state.Intent()
		plan, err := o.planner.Plan(ctx, intent)
		if err != nil {
			return err
		}
		return guard(state.SetPlan(plan))

	case config.StageRetriever:
		intent, _ := state.Intent()
		plan, _ := state.Plan()
		result, err := o.retriever.Retrieve(ctx, intent.SearchText(), plan)
		if err != nil {
			return err
		}
		return guard(state.SetResult(result))

	case config.StageAnswerer:
		rec, err := o.answerer.Answer(ctx, state)
		if err != nil {
			return err
		}
		return guard(state.SetRecommendation(rec))

	default:
		return errors.NewStateViolationError("unknown stage " + stage)
	}
}

func guard(err error) error {
	if err != nil {
		return errors.NewStateViolationError(err.Error())
	}
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, state *models.PipelineState, rec *models.Recommendation, start time.Time, log logger.Logger) {
	route := routeLabel(state)
	elapsed := time.Since(start)

	metrics.PipelineRequests.WithLabelValues(route, string(rec.Kind)).Inc()
	metrics.PipelineDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	o.obs.RecordRequest(ctx, route, string(rec.Kind))
	if rec.Kind == models.KindGrounded {
		o.obs.RecordCitations(ctx, len(rec.Citations))
	}

	log.Info("pipeline answered", map[string]interface{}{
		"route":      route,
		"kind":       string(rec.Kind),
		"citations":  len(rec.Citations),
		"durationMs": elapsed.Milliseconds(),
	})

	o.publish(ctx, models.Outcome{
		RequestID:  state.Query().ID,
		Route:      route,
		Kind:       rec.Kind,
		Citations:  rec.Citations,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
}

func (o *Orchestrator) fail(ctx context.Context, state *models.PipelineState, stage string, err error, start time.Time) *errors.PipelineFailure {
	state.MarkFailed()
	if ctxErr := ctx.Err(); ctxErr != nil && !stderrors.Is(err, errors.ErrRequestCancelled) {
		err = errors.NewCancelledError(ctxErr)
	}

	failure := o.failures.Handle(state.Query().ID, stage, err)
	route := routeLabel(state)
	elapsed := time.Since(start)

	metrics.PipelineRequests.WithLabelValues(route, outcomeFailed).Inc()
	metrics.PipelineDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	o.obs.RecordRequest(ctx, route, outcomeFailed)

	o.publish(ctx, models.Outcome{
		RequestID:   state.Query().ID,
		Route:       route,
		ErrorCode:   string(failure.Code),
		FailedStage: stage,
		DurationMs:  elapsed.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	})
	return failure
}

// publish is best effort and detached from the request's cancellation.
func (o *Orchestrator) publish(ctx context.Context, outcome models.Outcome) {
	if o.publisher == nil {
		return
	}
	timeout := o.config.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := o.publisher.PublishOutcome(pubCtx, outcome); err != nil {
		o.logger.Warn("failed to publish outcome", map[string]interface{}{
			"requestId": outcome.RequestID,
			"error":     err.Error(),
		})
	}
}

func routeLabel(state *models.PipelineState) string {
	if intent, ok := state.Intent(); ok {
		return string(intent.Route)
	}
	return "unrouted"
}
