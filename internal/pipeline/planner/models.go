package planner

import "product-recommender/internal/models"

// excerpt is the slice of state the planner prompt sees.
type excerpt struct {
	Task            string             `json:"task"`
	ExtractedQuery  string             `json:"extracted_query,omitempty"`
	Constraints     models.Constraints `json:"constraints"`
	AllowedFields   []string           `json:"allowed_fields"`
	AllowedCriteria []string           `json:"allowed_criteria"`
}

// completionOutput mirrors the planner/v1 schema.
type completionOutput struct {
	Sources            []string `json:"sources"`
	Fields             []string `json:"fields"`
	ComparisonCriteria []string `json:"comparison_criteria"`
	NResults           int      `json:"n_results"`
	UseWebFor          string   `json:"use_web_for"`
	Rationale          string   `json:"rationale"`
}
