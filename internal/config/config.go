// Package config provides configuration management for the retriever.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

// Config holds all configuration for the retriever.
type Config struct {
	// OpenAlex contains API client settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// Retrieval contains the default retrieval run settings.
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	// Resolver contains author candidate resolution settings.
	Resolver ResolverConfig `mapstructure:"resolver"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
}

// OpenAlexConfig holds API client configuration.
type OpenAlexConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Mailto is the contact address sent with every request, required
	// by the API's courtesy policy.
	Mailto string `mapstructure:"mailto"`
	// UserAgent overrides the default User-Agent header.
	UserAgent string `mapstructure:"user_agent"`
	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxAttempts bounds attempts per request on 429s and transport
	// errors.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// RetrievalConfig holds the default settings for retrieval runs.
type RetrievalConfig struct {
	StartYear             int      `mapstructure:"start_year"`
	EndYear               int      `mapstructure:"end_year"`
	DocTypes              []string `mapstructure:"doc_types"`
	Language              string   `mapstructure:"language"`
	Fields                []string `mapstructure:"fields"`
	RequestsPerSecond     float64  `mapstructure:"requests_per_second"`
	MaxConcurrentStreams  int      `mapstructure:"max_concurrent_streams"`
	MaxConcurrentEntities int      `mapstructure:"max_concurrent_entities"`
	PageSize              int      `mapstructure:"page_size"`
}

// ResolverConfig holds author candidate resolution settings.
type ResolverConfig struct {
	// Workers bounds concurrent name lookups.
	Workers int `mapstructure:"workers"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from defaults, an optional config file
// (config.yaml in ., ./config or /etc/openalex-retriever) and
// OPENALEX_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OPENALEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/openalex-retriever")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.timeout", "30s")
	v.SetDefault("openalex.max_attempts", 5)

	now := time.Now().Year()
	v.SetDefault("retrieval.start_year", now-5)
	v.SetDefault("retrieval.end_year", now)
	v.SetDefault("retrieval.language", string(domain.LanguageAll))
	v.SetDefault("retrieval.fields", domain.DefaultFields)
	v.SetDefault("retrieval.requests_per_second", 10.0)
	v.SetDefault("retrieval.max_concurrent_streams", 3)
	v.SetDefault("retrieval.max_concurrent_entities", 3)
	v.SetDefault("retrieval.page_size", 200)

	v.SetDefault("resolver.workers", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OpenAlex.Mailto == "" {
		return &domain.ValidationError{Field: "openalex.mailto", Message: "contact address is required"}
	}
	if !strings.Contains(c.OpenAlex.Mailto, "@") {
		return &domain.ValidationError{Field: "openalex.mailto", Message: "must be an email address"}
	}
	if c.Resolver.Workers < 1 {
		return &domain.ValidationError{Field: "resolver.workers", Message: "must be at least 1"}
	}
	// Run-level settings are re-validated per run; checking here
	// surfaces bad static configuration at startup.
	return domain.ValidateRun(
		[]domain.EntityReference{{Kind: domain.EntityKindInstitution, ID: "placeholder", Label: "placeholder"}},
		c.RetrievalDefaults(),
	)
}

// RetrievalDefaults converts the configured defaults to a run
// configuration.
func (c *Config) RetrievalDefaults() domain.RetrievalConfig {
	return domain.RetrievalConfig{
		StartYear:             c.Retrieval.StartYear,
		EndYear:               c.Retrieval.EndYear,
		DocTypes:              c.Retrieval.DocTypes,
		Language:              domain.LanguageFilter(c.Retrieval.Language),
		Fields:                c.Retrieval.Fields,
		RequestsPerSecond:     c.Retrieval.RequestsPerSecond,
		MaxConcurrentStreams:  c.Retrieval.MaxConcurrentStreams,
		MaxConcurrentEntities: c.Retrieval.MaxConcurrentEntities,
		PageSize:              c.Retrieval.PageSize,
	}
}

// ClientConfig converts the OpenAlex section to a client configuration.
func (c *Config) ClientConfig() openalex.Config {
	return openalex.Config{
		BaseURL:     c.OpenAlex.BaseURL,
		Mailto:      c.OpenAlex.Mailto,
		UserAgent:   c.OpenAlex.UserAgent,
		Timeout:     c.OpenAlex.Timeout,
		MaxAttempts: c.OpenAlex.MaxAttempts,
	}
}
