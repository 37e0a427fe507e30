package router

import (
	"fmt"
	"regexp"
	"time"

	"product-recommender/internal/common/config"
)

// DefaultUnsafePatterns catch requests that never need a model to refuse.
var DefaultUnsafePatterns = []string{
	`\b(make|build|assemble|cook)\b.*\b(bomb|explosive|pipe bomb|napalm|meth)\b`,
	`\b(buy|order|get)\b.*\b(cocaine|heroin|fentanyl|ghost gun|unregistered (gun|firearm))s?\b`,
	`\b(untraceable|illegal)\b.*\b(gun|firearm|weapon)s?\b`,
	`\bhow (do i|to)\b.*\b(poison|stalk)\b`,
}

type Config struct {
	UnsafePatterns []*regexp.Regexp
	Timeout        time.Duration
	MaxRetries     int
}

func LoadConfig(cfg *config.Config) (*Config, error) {
	stage := config.GetStageConfig(cfg, config.StageRouter)

	sources := cfg.Pipeline.Router.UnsafePatterns
	if len(sources) == 0 {
		sources = DefaultUnsafePatterns
	}
	patterns, err := compilePatterns(sources)
	if err != nil {
		return nil, err
	}

	return &Config{
		UnsafePatterns: patterns,
		Timeout:        config.GetDuration(stage.Timeout),
		MaxRetries:     stage.MaxRetries,
	}, nil
}

func compilePatterns(sources []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("invalid unsafe pattern %q: %w", src, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
