package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Stage names used as keys of Config.Stages.
const (
	StageRouter    = "router"
	StagePlanner   = "planner"
	StageRetriever = "retriever"
	StageAnswerer  = "answerer"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// overlays environment variables.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	if root := findProjectRoot(); root != "" {
		v.AddConfigPath(filepath.Join(root, "configs"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	envOverride(&cfg.APIs.Completion.APIKey, "COMPLETION_API_KEY", "OPENAI_API_KEY")
	envOverride(&cfg.APIs.LiveSearch.APIKey, "LIVE_SEARCH_API_KEY", "TAVILY_API_KEY")
	envOverride(&cfg.APIs.Embeddings.APIKey, "EMBEDDINGS_API_KEY", "OPENAI_API_KEY")
	envOverride(&cfg.Database.Postgres.User, "DB_USER")
	envOverride(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	envOverride(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	envOverride(&cfg.Notifications.SNS.TopicARN, "OUTCOME_TOPIC_ARN")
}

func envOverride(target *string, names ...string) {
	if *target != "" {
		return
	}
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			*target = val
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "product-recommender"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 45000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.ProductsTable == "" {
		cfg.Database.Postgres.ProductsTable = "products"
	}
	if cfg.Database.Elasticsearch.ProductIndex == "" {
		cfg.Database.Elasticsearch.ProductIndex = "products"
	}

	if cfg.Stages == nil {
		cfg.Stages = make(map[string]StageConfig)
	}
	for _, name := range []string{StageRouter, StagePlanner, StageAnswerer} {
		if _, ok := cfg.Stages[name]; !ok {
			cfg.Stages[name] = StageConfig{}
		}
	}
	for key, stage := range cfg.Stages {
		if stage.Timeout == 0 {
			stage.Timeout = 20000
		}
		if stage.MaxRetries == 0 {
			stage.MaxRetries = 2
		}
		cfg.Stages[key] = stage
	}

	p := &cfg.Pipeline
	if len(p.Planner.DefaultFields) == 0 {
		p.Planner.DefaultFields = []string{"title", "brand", "category", "price", "description"}
	}
	if len(p.Planner.DefaultCriteria) == 0 {
		p.Planner.DefaultCriteria = []string{"relevance", "price"}
	}
	if p.Planner.DefaultTopK == 0 {
		p.Planner.DefaultTopK = 5
	}
	if p.Planner.MaxTopK == 0 {
		p.Planner.MaxTopK = 20
	}
	if len(p.Planner.LiveHintTerms) == 0 {
		p.Planner.LiveHintTerms = []string{"deal", "deals", "sale", "discount", "in stock", "availability", "available now", "current price", "today", "latest"}
	}
	if p.Retriever.PrivateBackend == "" {
		p.Retriever.PrivateBackend = "elasticsearch"
	}
	if p.Retriever.TopN == 0 {
		p.Retriever.TopN = 10
	}
	if p.Retriever.OverFetchFactor == 0 {
		p.Retriever.OverFetchFactor = 2
	}
	if p.Retriever.WeightDecay == 0 {
		p.Retriever.WeightDecay = 0.6
	}
	if p.Retriever.PrivateTimeout == 0 {
		p.Retriever.PrivateTimeout = 5000
	}
	if p.Retriever.LiveTimeout == 0 {
		p.Retriever.LiveTimeout = 8000
	}
	if p.Retriever.MaxRetries == 0 {
		p.Retriever.MaxRetries = 2
	}
	if p.Retriever.CacheTTL == 0 {
		p.Retriever.CacheTTL = 300
	}
	if p.Answerer.TopK == 0 {
		p.Answerer.TopK = 3
	}
	if p.Answerer.MaxGroundingRetries == 0 {
		p.Answerer.MaxGroundingRetries = 2
	}
	if p.Answerer.RefusalText == "" {
		p.Answerer.RefusalText = "Sorry, I can't help with that request. I can help you find and compare products instead."
	}
	if p.Answerer.NoResultsText == "" {
		p.Answerer.NoResultsText = "I couldn't find any matching products for that request. Try widening your budget or removing a brand or category."
	}

	if cfg.APIs.Completion.Backend == "" {
		cfg.APIs.Completion.Backend = "http"
	}
	if cfg.APIs.Completion.Model == "" {
		cfg.APIs.Completion.Model = "gpt-4o-mini"
	}
	if cfg.APIs.Completion.Timeout == 0 {
		cfg.APIs.Completion.Timeout = 30000
	}
	if cfg.APIs.Completion.MaxRetries == 0 {
		cfg.APIs.Completion.MaxRetries = 2
	}
	if cfg.APIs.LiveSearch.BaseURL == "" {
		cfg.APIs.LiveSearch.BaseURL = "https://api.tavily.com"
	}
	if cfg.APIs.LiveSearch.SearchDepth == "" {
		cfg.APIs.LiveSearch.SearchDepth = "basic"
	}
	if cfg.APIs.LiveSearch.MaxResults == 0 {
		cfg.APIs.LiveSearch.MaxResults = 5
	}
	if cfg.APIs.LiveSearch.Timeout == 0 {
		cfg.APIs.LiveSearch.Timeout = 10000
	}

	if cfg.APIs.Embeddings.Model == "" {
		cfg.APIs.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.APIs.Embeddings.Dimensions == 0 {
		cfg.APIs.Embeddings.Dimensions = 1536
	}
	if cfg.APIs.Embeddings.Timeout == 0 {
		cfg.APIs.Embeddings.Timeout = 5000
	}

	if cfg.Prompts.File == "" {
		cfg.Prompts.File = "configs/prompts.yaml"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.Tracing.SampleRatio == 0 {
		cfg.Observability.Tracing.SampleRatio = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.APIs.Completion.Backend {
	case "http":
		if cfg.APIs.Completion.BaseURL == "" {
			return fmt.Errorf("apis.completion.base_url is required for the http backend")
		}
	case "openai":
	default:
		return fmt.Errorf("apis.completion.backend %q is not supported", cfg.APIs.Completion.Backend)
	}

	switch cfg.Pipeline.Retriever.PrivateBackend {
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses is required for the elasticsearch backend")
		}
	case "postgres", "pgvector":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.host and database are required for the %s backend", cfg.Pipeline.Retriever.PrivateBackend)
		}
	default:
		return fmt.Errorf("pipeline.retriever.private_backend %q is not supported", cfg.Pipeline.Retriever.PrivateBackend)
	}

	if cfg.Pipeline.Retriever.PrivateBackend == "pgvector" && !cfg.APIs.Embeddings.Enabled {
		return fmt.Errorf("apis.embeddings.enabled is required for the pgvector backend")
	}
	if cfg.APIs.Embeddings.Dimensions < 0 {
		return fmt.Errorf("apis.embeddings.dimensions must not be negative")
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}

	if cfg.Pipeline.Answerer.TopK > cfg.Pipeline.Retriever.TopN {
		return fmt.Errorf("pipeline.answerer.top_k (%d) must not exceed pipeline.retriever.top_n (%d)",
			cfg.Pipeline.Answerer.TopK, cfg.Pipeline.Retriever.TopN)
	}
	if d := cfg.Pipeline.Retriever.WeightDecay; d <= 0 || d > 1 {
		return fmt.Errorf("pipeline.retriever.weight_decay must be in (0, 1], got %v", d)
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetStageConfig returns stage settings with defaults for unknown stages.
func GetStageConfig(cfg *Config, stage string) StageConfig {
	if s, ok := cfg.Stages[stage]; ok {
		return s
	}
	return StageConfig{Timeout: 20000, MaxRetries: 2}
}
