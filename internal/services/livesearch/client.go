package livesearch

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"product-recommender/internal/common/config"
	httpclient "product-recommender/internal/common/http"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/retry"
	"product-recommender/internal/models"
)

const (
	defaultSearchDepth = "basic"
	defaultMaxResults  = 5
	rateLimitRetries   = 3
)

// Client talks to a Tavily-compatible search API.
type Client struct {
	baseURL     string
	apiKey      string
	searchDepth string
	maxResults  int
	http        *httpclient.Client
	// rateLimitDelay is the first wait after a 429; it doubles on each retry.
	rateLimitDelay time.Duration
	logger         logger.Logger
}

func NewClient(cfg config.LiveSearchAPIConfig, log logger.Logger) *Client {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	depth := cfg.SearchDepth
	if depth == "" {
		depth = defaultSearchDepth
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		searchDepth:    depth,
		maxResults:     maxResults,
		http:           httpclient.NewClient(timeout),
		rateLimitDelay: 500 * time.Millisecond,
		logger:         log.With(map[string]interface{}{"component": "livesearch"}),
	}
}

// Search runs one web query for the task. MaxResults <= 0 uses the configured count.
func (c *Client) Search(ctx context.Context, q Query) ([]Record, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = c.maxResults
	}
	req := tavilyRequest{
		Query:       BuildQuery(q.Task, q.Purpose, q.Constraints),
		APIKey:      c.apiKey,
		SearchDepth: c.searchDepth,
		MaxResults:  maxResults,
	}

	policy := retry.Policy{MaxAttempts: rateLimitRetries + 1, InitialDelay: c.rateLimitDelay, MaxDelay: 8 * c.rateLimitDelay}

	var resp tavilyResponse
	attempts, err := retry.Do(ctx, policy, isRateLimited, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.logger.Warn("live search rate limited, backing off", map[string]interface{}{
				"attempt": attempt,
				"delayMs": policy.Backoff(attempt).Milliseconds(),
			})
		}
		resp = tavilyResponse{}
		return c.http.PostJSON(ctx, c.baseURL+"/search", req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("live search failed after %d attempt(s): %w", attempts, err)
	}

	records := normalize(resp)
	c.logger.Debug("live search completed", map[string]interface{}{
		"query":   req.Query,
		"results": len(records),
	})
	return records, nil
}

func isRateLimited(err error) bool {
	var statusErr *httpclient.StatusError
	return stderrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}

// normalize drops results without a URL, keeps the best-scored copy of each
// URL and sorts by descending score.
func normalize(resp tavilyResponse) []Record {
	byURL := map[string]int{}
	records := make([]Record, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		rec := Record{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score}
		if p, ok := models.PriceFromText(r.Title + " " + r.Content); ok {
			rec.Price = &p
		}
		if i, seen := byURL[r.URL]; seen {
			if rec.Score > records[i].Score {
				records[i] = rec
			}
			continue
		}
		byURL[r.URL] = len(records)
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Score > records[j].Score })
	return records
}

// BuildQuery appends constraint phrases, then the purpose, to the task so the
// web engine sees them.
func BuildQuery(task, purpose string, constraints models.Constraints) string {
	parts := []string{strings.TrimSpace(task)}
	lower := strings.ToLower(task)

	addPhrase := func(phrase string) {
		phrase = strings.TrimSpace(phrase)
		if phrase != "" && !strings.Contains(lower, strings.ToLower(phrase)) {
			parts = append(parts, phrase)
		}
	}
	for _, key := range []string{models.ConstraintBrand, models.ConstraintCategory, models.ConstraintMaterial, models.ConstraintMustContain} {
		addPhrase(models.ToString(constraints[key]))
	}
	if v, ok := models.ToFloat(constraints[models.ConstraintBudgetMin]); ok {
		addPhrase("over " + formatDollars(v) + " dollars")
	}
	if v, ok := models.ToFloat(constraints[models.ConstraintBudgetMax]); ok {
		addPhrase("under " + formatDollars(v) + " dollars")
	}
	addPhrase(purpose)
	return strings.Join(parts, " ")
}

func formatDollars(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
