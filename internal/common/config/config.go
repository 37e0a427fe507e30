package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig              `mapstructure:"app"`
	Server        ServerConfig           `mapstructure:"server"`
	Database      DatabaseConfig         `mapstructure:"database"`
	Stages        map[string]StageConfig `mapstructure:"stages"`
	Pipeline      PipelineConfig         `mapstructure:"pipeline"`
	APIs          APIsConfig             `mapstructure:"apis"`
	Prompts       PromptsConfig          `mapstructure:"prompts"`
	Notifications NotificationConfig     `mapstructure:"notifications"`
	Observability ObservabilityConfig    `mapstructure:"observability"`
	Logging       LoggingConfig          `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int `mapstructure:"request_timeout"` // milliseconds, whole pipeline
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	ProductsTable  string `mapstructure:"products_table"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	ProductIndex string   `mapstructure:"product_index"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StageConfig holds the completion call settings of an LLM-backed stage.
// The retriever has no entry; its budgets live under pipeline.retriever.
type StageConfig struct {
	Timeout    int `mapstructure:"timeout"`     // milliseconds, per external call
	MaxRetries int `mapstructure:"max_retries"` // retries after the first attempt
}

// --- Pipeline Behaviour ---

type PipelineConfig struct {
	Router    RouterConfig    `mapstructure:"router"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Retriever RetrieverConfig `mapstructure:"retriever"`
	Answerer  AnswererConfig  `mapstructure:"answerer"`
}

type RouterConfig struct {
	UnsafePatterns []string `mapstructure:"unsafe_patterns"`
}

type PlannerConfig struct {
	DefaultFields   []string `mapstructure:"default_fields"`
	DefaultCriteria []string `mapstructure:"default_criteria"`
	DefaultTopK     int      `mapstructure:"default_top_k"`
	MaxTopK         int      `mapstructure:"max_top_k"`
	LiveHintTerms   []string `mapstructure:"live_hint_terms"`
}

type RetrieverConfig struct {
	PrivateBackend  string  `mapstructure:"private_backend"` // elasticsearch | postgres | pgvector
	TopN            int     `mapstructure:"top_n"`
	OverFetchFactor int     `mapstructure:"over_fetch_factor"`
	WeightDecay     float64 `mapstructure:"weight_decay"`
	PrivateTimeout  int     `mapstructure:"private_timeout"` // milliseconds
	LiveTimeout     int     `mapstructure:"live_timeout"`    // milliseconds
	MaxRetries      int     `mapstructure:"max_retries"`
	CacheEnabled    bool    `mapstructure:"cache_enabled"`
	CacheTTL        int     `mapstructure:"cache_ttl"` // seconds
}

type AnswererConfig struct {
	TopK                int    `mapstructure:"top_k"`
	MaxGroundingRetries int    `mapstructure:"max_grounding_retries"`
	RefusalText         string `mapstructure:"refusal_text"`
	NoResultsText       string `mapstructure:"no_results_text"`
}

// --- External APIs ---

type APIsConfig struct {
	Completion CompletionAPIConfig `mapstructure:"completion"`
	LiveSearch LiveSearchAPIConfig `mapstructure:"live_search"`
	Embeddings EmbeddingsAPIConfig `mapstructure:"embeddings"`
}

type CompletionAPIConfig struct {
	Backend     string  `mapstructure:"backend"` // http | openai
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
}

type LiveSearchAPIConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	SearchDepth string `mapstructure:"search_depth"`
	MaxResults  int    `mapstructure:"max_results"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

// EmbeddingsAPIConfig configures query embeddings for vector retrieval.
// Dimensions must match the vectors the catalog was indexed with.
type EmbeddingsAPIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

type PromptsConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type ObservabilityConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Tracing     struct {
		Enabled        bool    `mapstructure:"enabled"`
		JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
		SampleRatio    float64 `mapstructure:"sample_ratio"`
	} `mapstructure:"tracing"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}
