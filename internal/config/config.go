// Package config loads the catalogsync runtime configuration from a YAML
// file, with environment variable overrides for ambient/credential fields
// only. Pipeline business fields (regions, page size, limit, batch size)
// come solely from the file or command-line flags, so a run's planned
// scope is always traceable to one explicit source.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opendatacatalog/catalogsync/internal/httpx"
	"github.com/opendatacatalog/catalogsync/internal/model"
)

// Config is the top-level catalogsync configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Postgres PostgresConfig `yaml:"postgres"`
	Socrata  SocrataConfig  `yaml:"socrata"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type PipelineConfig struct {
	Name          string   `yaml:"name"`
	Regions       []string `yaml:"regions"`
	PageSize      int      `yaml:"page_size"`
	Limit         int      `yaml:"limit"`
	DryRun        bool     `yaml:"dry_run"`
	ResumeEnabled bool     `yaml:"resume_enabled"`
	BatchSize     int      `yaml:"batch_size"`

	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `yaml:"retry_max_delay_ms"`
}

// PostgresConfig holds the repository connection string. DSN is never
// logged; Load only ever reads it from the file or the PG env override.
// Pool tuning is fixed inside repository.NewPgRepository, not configurable
// here.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// SocrataConfig holds the discovery-client app token. AppToken is never
// logged.
type SocrataConfig struct {
	AppToken string `yaml:"app_token"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file (if it exists) and applies
// environment variable overrides for ambient fields. When the file does
// not exist, only built-in defaults and environment variables are used.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Pipeline: PipelineConfig{
			Name:             "catalogsync",
			Regions:          []string{"US"},
			PageSize:         100,
			Limit:            1000,
			ResumeEnabled:    true,
			BatchSize:        100,
			RetryMaxAttempts: 3,
			RetryBaseDelayMs: 200,
			RetryMaxDelayMs:  30000,
		},
		Logging: LoggingConfig{Level: "info"},
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, unmarshalErr
		}
	}

	// Environment overrides cover only ambient/credential fields; pipeline
	// scope fields are never overridable this way.
	if v := os.Getenv("CATALOGSYNC_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CATALOGSYNC_SOCRATA_APP_TOKEN"); v != "" {
		cfg.Socrata.AppToken = v
	}
	if v := os.Getenv("CATALOGSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if cfg.Pipeline.Name == "" {
		cfg.Pipeline.Name = "catalogsync"
	}
	if cfg.Pipeline.BatchSize <= 0 {
		cfg.Pipeline.BatchSize = 100
	}

	return cfg, nil
}

// RegionList parses the configured region codes, skipping any that aren't
// recognized.
func (c PipelineConfig) RegionList() []model.Region {
	var out []model.Region
	for _, s := range c.Regions {
		r := model.Region(s)
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// RetryConfig builds the httpx.RetryConfig this pipeline run should use,
// falling back to httpx.DefaultRetryConfig for any zeroed field.
func (c PipelineConfig) RetryConfig() httpx.RetryConfig {
	cfg := httpx.DefaultRetryConfig()
	if c.RetryMaxAttempts > 0 {
		cfg.MaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryBaseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	if c.RetryMaxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	}
	return cfg
}
