package orchestrator

import (
	"context"

	"product-recommender/internal/common/config"
	"product-recommender/internal/models"
)

// Router classifies a query.
type Router interface {
	Classify(ctx context.Context, q models.Query) (*models.IntentClassification, error)
}

// Planner turns an intent into a retrieval plan, or nil off the search route.
type Planner interface {
	Plan(ctx context.Context, intent *models.IntentClassification) (*models.RetrievalPlan, error)
}

// Retriever executes a plan.
type Retriever interface {
	Retrieve(ctx context.Context, task string, plan *models.RetrievalPlan) (*models.RetrievalResult, error)
}

// Answerer produces the final Recommendation.
type Answerer interface {
	Answer(ctx context.Context, state *models.PipelineState) (*models.Recommendation, error)
}

// OutcomePublisher receives one event per finished request.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome models.Outcome) error
}

// stagesAfterRouting is the closed branch table. Every route runs the router
// first; these are the stages that follow it, in order.
var stagesAfterRouting = map[models.Route][]string{
	models.RouteUnsafe:  {config.StageAnswerer},
	models.RouteGeneral: {config.StagePlanner, config.StageAnswerer},
	models.RouteSearch:  {config.StagePlanner, config.StageRetriever, config.StageAnswerer},
}

// StagesFor returns the full stage sequence for a route.
func StagesFor(route models.Route) []string {
	rest, ok := stagesAfterRouting[route]
	if !ok {
		return nil
	}
	return append([]string{config.StageRouter}, rest...)
}
