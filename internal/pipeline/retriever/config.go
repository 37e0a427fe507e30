package retriever

import (
	"time"

	"product-recommender/internal/common/config"
)

type Config struct {
	TopN            int
	OverFetchFactor int
	WeightDecay     float64
	PrivateTimeout  time.Duration
	LiveTimeout     time.Duration
	MaxRetries      int
	CacheTTL        time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	r := cfg.Pipeline.Retriever
	c := &Config{
		TopN:            r.TopN,
		OverFetchFactor: r.OverFetchFactor,
		WeightDecay:     r.WeightDecay,
		PrivateTimeout:  config.GetDuration(r.PrivateTimeout),
		LiveTimeout:     config.GetDuration(r.LiveTimeout),
		MaxRetries:      r.MaxRetries,
		CacheTTL:        time.Duration(r.CacheTTL) * time.Second,
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.OverFetchFactor <= 0 {
		c.OverFetchFactor = 2
	}
	if c.WeightDecay <= 0 || c.WeightDecay > 1 {
		c.WeightDecay = 0.6
	}
	if c.PrivateTimeout <= 0 {
		c.PrivateTimeout = 5 * time.Second
	}
	if c.LiveTimeout <= 0 {
		c.LiveTimeout = 8 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	return c
}
