package models

import "fmt"

// Stage names the pipeline step that last completed.
type Stage string

const (
	StageStarted   Stage = "started"
	StageRouted    Stage = "routed"
	StagePlanned   Stage = "planned"
	StageRetrieved Stage = "retrieved"
	StageAnswered  Stage = "answered"
	StageFailed    Stage = "failed"
)

// PipelineState is the append-only record of one request. Each artifact is
// written once; readers get ok=false until it has been written.
type PipelineState struct {
	query          Query
	stage          Stage
	intent         *IntentClassification
	plan           *RetrievalPlan
	planDecided    bool
	result         *RetrievalResult
	recommendation *Recommendation
}

func NewPipelineState(q Query) *PipelineState {
	return &PipelineState{query: q, stage: StageStarted}
}

func (s *PipelineState) Query() Query { return s.query }
func (s *PipelineState) Stage() Stage { return s.stage }

func (s *PipelineState) Intent() (*IntentClassification, bool) {
	return s.intent, s.intent != nil
}

// Plan returns the plan. decided is true once the planner ran, even when it
// produced no plan.
func (s *PipelineState) Plan() (plan *RetrievalPlan, decided bool) {
	return s.plan, s.planDecided
}

func (s *PipelineState) Result() (*RetrievalResult, bool) {
	return s.result, s.result != nil
}

func (s *PipelineState) Recommendation() (*Recommendation, bool) {
	return s.recommendation, s.recommendation != nil
}

func (s *PipelineState) SetIntent(ic *IntentClassification) error {
	if ic == nil {
		return fmt.Errorf("intent is nil")
	}
	if s.intent != nil {
		return fmt.Errorf("intent already set")
	}
	if err := ic.Validate(); err != nil {
		return fmt.Errorf("invalid intent: %w", err)
	}
	s.intent = ic
	s.stage = StageRouted
	return nil
}

// SetPlan records the planner's decision. A nil plan is legal only off the
// search route, and a plan is illegal on any other route.
func (s *PipelineState) SetPlan(p *RetrievalPlan) error {
	if s.intent == nil {
		return fmt.Errorf("plan set before intent")
	}
	if s.planDecided {
		return fmt.Errorf("plan already set")
	}
	if s.intent.Route != RouteSearch && p != nil {
		return fmt.Errorf("plan present on %s route", s.intent.Route)
	}
	if s.intent.Route == RouteSearch && p == nil {
		return fmt.Errorf("search route requires a plan")
	}
	s.plan = p
	s.planDecided = true
	s.stage = StagePlanned
	return nil
}

func (s *PipelineState) SetResult(r *RetrievalResult) error {
	if s.plan == nil {
		return fmt.Errorf("result set without a plan")
	}
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if s.result != nil {
		return fmt.Errorf("result already set")
	}
	s.result = r
	s.stage = StageRetrieved
	return nil
}

func (s *PipelineState) SetRecommendation(r *Recommendation) error {
	if s.intent == nil {
		return fmt.Errorf("recommendation set before intent")
	}
	if r == nil {
		return fmt.Errorf("recommendation is nil")
	}
	if s.recommendation != nil {
		return fmt.Errorf("recommendation already set")
	}
	s.recommendation = r
	s.stage = StageAnswered
	return nil
}

// MarkFailed moves the state to its failed terminal stage.
func (s *PipelineState) MarkFailed() {
	s.stage = StageFailed
}
