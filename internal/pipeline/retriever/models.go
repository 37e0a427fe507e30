package retriever

import (
	"product-recommender/internal/models"
	"product-recommender/internal/services/livesearch"
	"product-recommender/internal/services/vectorsearch"
)

// sourceOutcome is what one fetch goroutine hands back across the barrier.
type sourceOutcome struct {
	source   models.Source
	private  []vectorsearch.Record
	live     []livesearch.Record
	attempts int
	cached   bool
	err      error
}

// cacheKeyInput is hashed into the per-source cache key.
type cacheKeyInput struct {
	Source  models.Source  `json:"source"`
	Task    string         `json:"task"`
	Purpose string         `json:"purpose,omitempty"`
	Filters models.Filters `json:"filters"`
	Fields  []string       `json:"fields"`
	TopK    int            `json:"topK"`
}
