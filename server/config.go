package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full docflow service configuration. The LLM API key is
// never read from this file; it comes from the environment only.
type Config struct {
	Listen           string           `yaml:"listen"`
	UploadDir        string           `yaml:"upload_dir"`
	MaxUploadMB      int              `yaml:"max_upload_mb"`
	ArchiveDir       string           `yaml:"archive_dir"` // empty disables the response archive
	ObservabilityDB  string           `yaml:"observability_db"`
	LogLevel         string           `yaml:"log_level"`
	LogRetentionDays int              `yaml:"log_retention_days"`
	Perplexity       PerplexityConfig `yaml:"perplexity"`
}

// PerplexityConfig configures the LLM client.
type PerplexityConfig struct {
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:           ":8080",
		UploadDir:        "uploads",
		MaxUploadMB:      16,
		ArchiveDir:       "perplexity_responses",
		ObservabilityDB:  "db/observability.db",
		LogLevel:         "info",
		LogRetentionDays: 30,
		Perplexity: PerplexityConfig{
			Model:          "sonar",
			TimeoutSeconds: 30,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.LogRetentionDays < 0 {
		return fmt.Errorf("log_retention_days must be >= 0")
	}
	if c.Perplexity.TimeoutSeconds <= 0 {
		return fmt.Errorf("perplexity.timeout_seconds must be > 0")
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// PerplexityTimeout returns the LLM request timeout as a duration.
func (c *Config) PerplexityTimeout() time.Duration {
	return time.Duration(c.Perplexity.TimeoutSeconds) * time.Second
}
