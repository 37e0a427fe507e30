package completion

import (
	"context"
	"fmt"
	"strings"

	commonhttp "product-recommender/internal/common/http"
)

// GenerateRequest is one instruction/input pair sent to a model backend.
type GenerateRequest struct {
	Role        string
	System      string
	User        string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Backend produces raw model text. It knows nothing about schemas.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// HTTPBackend talks to a GenAI gateway exposing POST /api/ai/generate.
type HTTPBackend struct {
	baseURL string
	client  *commonhttp.Client
}

func NewHTTPBackend(cfg *Config) *HTTPBackend {
	client := commonhttp.NewClient(cfg.Timeout)
	if cfg.APIKey != "" {
		client = client.WithHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

func (b *HTTPBackend) Name() string { return "http" }

func (b *HTTPBackend) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	requestBody := map[string]interface{}{
		"role":            req.Role,
		"system":          req.System,
		"prompt":          req.User,
		"response_format": "json",
		"temperature":     req.Temperature,
	}
	if req.Model != "" {
		requestBody["model"] = req.Model
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := b.client.PostJSON(ctx, b.baseURL+"/api/ai/generate", requestBody, &apiResponse); err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	return apiResponse.Text, nil
}
