package answerer

import "product-recommender/internal/models"

type generalExcerpt struct {
	Query string `json:"query"`
	Task  string `json:"task"`
}

type groundedExcerpt struct {
	Query             string                 `json:"query"`
	Task              string                 `json:"task"`
	Candidates        []models.ComparisonRow `json:"candidates"`
	Notes             []string               `json:"notes,omitempty"`
	Conflicts         []models.Conflict      `json:"conflicts,omitempty"`
	RejectedCitations []string               `json:"rejected_citations,omitempty"`
}

type generalOutput struct {
	Text string `json:"text"`
}

type draftOutput struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}
