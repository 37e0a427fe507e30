package orchestrator

import (
	"time"

	"product-recommender/internal/common/config"
)

type Config struct {
	RequestTimeout time.Duration
	PublishTimeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
		PublishTimeout: 2 * time.Second,
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}
