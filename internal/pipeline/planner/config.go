package planner

import (
	"time"

	"product-recommender/internal/common/config"
)

type Config struct {
	DefaultFields   []string
	DefaultCriteria []string
	DefaultTopK     int
	MaxTopK         int
	LiveHintTerms   []string
	Timeout         time.Duration
	MaxRetries      int
}

func LoadConfig(cfg *config.Config) *Config {
	p := cfg.Pipeline.Planner
	stage := config.GetStageConfig(cfg, config.StagePlanner)

	c := &Config{
		DefaultFields:   p.DefaultFields,
		DefaultCriteria: p.DefaultCriteria,
		DefaultTopK:     p.DefaultTopK,
		MaxTopK:         p.MaxTopK,
		LiveHintTerms:   p.LiveHintTerms,
		Timeout:         config.GetDuration(stage.Timeout),
		MaxRetries:      stage.MaxRetries,
	}
	if len(c.DefaultFields) == 0 {
		c.DefaultFields = []string{"title", "brand", "category", "price", "description"}
	}
	if len(c.DefaultCriteria) == 0 {
		c.DefaultCriteria = []string{"relevance", "price"}
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = 20
	}
	return c
}
