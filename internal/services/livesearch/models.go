package livesearch

import (
	"context"

	"product-recommender/internal/models"
)

// Record is one web result. Price is set when a dollar amount was found in the
// result text.
type Record struct {
	ID      string   `json:"id,omitempty"`
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Snippet string   `json:"snippet"`
	Price   *float64 `json:"price,omitempty"`
	Score   float64  `json:"score"`
}

// Query is one live search request. Purpose is the planner's note on what the
// web results should cover, such as current prices or stock.
type Query struct {
	Task        string
	Purpose     string
	Constraints models.Constraints
	MaxResults  int
}

// Searcher is the live web search capability.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Record, error)
}

type tavilyRequest struct {
	Query       string `json:"query"`
	APIKey      string `json:"api_key,omitempty"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}
