package answerer

import (
	"time"

	"product-recommender/internal/common/config"
)

type Config struct {
	TopK                int
	MaxGroundingRetries int
	RefusalText         string
	NoResultsText       string
	Timeout             time.Duration
	MaxRetries          int
}

func LoadConfig(cfg *config.Config) *Config {
	a := cfg.Pipeline.Answerer
	stage := config.GetStageConfig(cfg, config.StageAnswerer)

	c := &Config{
		TopK:                a.TopK,
		MaxGroundingRetries: a.MaxGroundingRetries,
		RefusalText:         a.RefusalText,
		NoResultsText:       a.NoResultsText,
		Timeout:             config.GetDuration(stage.Timeout),
		MaxRetries:          stage.MaxRetries,
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.MaxGroundingRetries <= 0 {
		c.MaxGroundingRetries = 2
	}
	if c.RefusalText == "" {
		c.RefusalText = "Sorry, I can't help with that request. I can help you find and compare products instead."
	}
	if c.NoResultsText == "" {
		c.NoResultsText = "I couldn't find any matching products for that request."
	}
	return c
}
