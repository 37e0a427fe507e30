package completion

import (
	"time"

	"product-recommender/internal/common/config"
)

type Config struct {
	Backend     string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

func LoadConfig(cfg *config.Config) *Config {
	api := cfg.APIs.Completion
	return &Config{
		Backend:     api.Backend,
		BaseURL:     api.BaseURL,
		APIKey:      api.APIKey,
		Model:       api.Model,
		Temperature: api.Temperature,
		MaxTokens:   api.MaxTokens,
		Timeout:     config.GetDuration(api.Timeout),
		MaxRetries:  api.MaxRetries,
	}
}
