package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"BP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"BP_DB_MAX_CONNS" default:"8"`

	// EntityJSONMode selects how entity list columns are stored:
	// "jsonb" for native structured storage, "text" for serialized JSON.
	EntityJSONMode string `envconfig:"ENTITY_JSON_MODE" default:"jsonb"`

	GeminiAPIKeys   string `envconfig:"GEMINI_API_KEYS" default:""`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	ExtractionModel string `envconfig:"EXTRACTION_MODEL" default:"gemma-3-27b-it"`

	SimilarityThreshold      float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.5"`
	TimeWindowHours          int     `envconfig:"TIME_WINDOW_HOURS" default:"72"`
	UnclusteredLookbackHours int     `envconfig:"UNCLUSTERED_LOOKBACK_HOURS" default:"168"`
	TrendingLookbackHours    int     `envconfig:"TRENDING_LOOKBACK_HOURS" default:"48"`

	NotificationSourceThreshold int `envconfig:"NOTIFICATION_SOURCE_THRESHOLD" default:"10"`

	LockFile string `envconfig:"LOCK_FILE" default:"blindspot.lock"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8090"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("BP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("BP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("BP_DB_MIN_CONNS (%d) cannot exceed BP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	switch strings.ToLower(strings.TrimSpace(c.EntityJSONMode)) {
	case "jsonb", "text":
	default:
		return fmt.Errorf("ENTITY_JSON_MODE must be jsonb or text, got %q", c.EntityJSONMode)
	}
	if c.SimilarityThreshold <= -1 || c.SimilarityThreshold >= 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (-1, 1), got %f", c.SimilarityThreshold)
	}
	if c.TimeWindowHours < 1 {
		return fmt.Errorf("TIME_WINDOW_HOURS must be >= 1")
	}
	if c.UnclusteredLookbackHours < 1 {
		return fmt.Errorf("UNCLUSTERED_LOOKBACK_HOURS must be >= 1")
	}
	if c.TrendingLookbackHours < 1 {
		return fmt.Errorf("TRENDING_LOOKBACK_HOURS must be >= 1")
	}
	if c.NotificationSourceThreshold < 1 {
		return fmt.Errorf("NOTIFICATION_SOURCE_THRESHOLD must be >= 1")
	}
	if strings.TrimSpace(c.LockFile) == "" {
		return fmt.Errorf("LOCK_FILE is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be a valid port, got %d", c.HTTPPort)
	}
	return nil
}

// GeminiAPIKeyList splits GEMINI_API_KEYS into a deduplicated ordered list.
func (c *Config) GeminiAPIKeyList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.GeminiAPIKeys, ",")
	keys := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		key := strings.TrimSpace(part)
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
