package models

import "fmt"

// Route gates which pipeline stages run.
type Route string

const (
	RouteSearch  Route = "search"
	RouteGeneral Route = "general"
	RouteUnsafe  Route = "unsafe"
)

// RoutePrecedence orders routes for tie-breaking, safety first.
var RoutePrecedence = []Route{RouteUnsafe, RouteSearch, RouteGeneral}

func (r Route) Valid() bool {
	switch r {
	case RouteSearch, RouteGeneral, RouteUnsafe:
		return true
	}
	return false
}

// Constraint keys the router emits.
const (
	ConstraintBudgetMax   = "budget_max"
	ConstraintBudgetMin   = "budget_min"
	ConstraintBrand       = "brand"
	ConstraintCategory    = "category"
	ConstraintMaterial    = "material"
	ConstraintMustContain = "must_contain"
)

// Constraints maps constraint names to values. Absent constraints have no key.
type Constraints map[string]interface{}

// IntentClassification is the router's verdict.
type IntentClassification struct {
	Route          Route       `json:"route"`
	Task           string      `json:"task"`
	Constraints    Constraints `json:"constraints"`
	UnsafeReason   string      `json:"unsafeReason,omitempty"`
	SafetyFlags    []string    `json:"safetyFlags,omitempty"`
	ExtractedQuery string      `json:"extractedQuery,omitempty"`
}

// Validate enforces that unsafe_reason is present exactly when the route is unsafe.
func (ic *IntentClassification) Validate() error {
	if !ic.Route.Valid() {
		return fmt.Errorf("unknown route %q", ic.Route)
	}
	if ic.Route == RouteUnsafe && ic.UnsafeReason == "" {
		return fmt.Errorf("unsafe route requires an unsafe reason")
	}
	if ic.Route != RouteUnsafe && ic.UnsafeReason != "" {
		return fmt.Errorf("unsafe reason set on %s route", ic.Route)
	}
	return nil
}

// SearchText is the text handed to retrieval: the extracted query when the
// router produced one, the task otherwise.
func (ic *IntentClassification) SearchText() string {
	if ic.ExtractedQuery != "" {
		return ic.ExtractedQuery
	}
	return ic.Task
}
