package router

// excerpt is the slice of state the router prompt sees.
type excerpt struct {
	Query string `json:"query"`
}

// completionOutput mirrors the router/v1 schema.
type completionOutput struct {
	Route          string                 `json:"route"`
	Task           string                 `json:"task"`
	Constraints    map[string]interface{} `json:"constraints"`
	UnsafeReason   string                 `json:"unsafe_reason"`
	SafetyFlags    []string               `json:"safety_flags"`
	ExtractedQuery string                 `json:"extracted_query"`
	RouteScores    map[string]float64     `json:"route_scores"`
}
