// Package config loads and validates SDK configuration for the CLI and
// examples. Library consumers usually build promptwire.Config directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config mirrors promptwire.Config in file form.
type Config struct {
	APIURL    string `yaml:"api_url" json:"api_url"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	ProjectID string `yaml:"project_id" json:"project_id"`

	EnableRealtime bool `yaml:"enable_realtime" json:"enable_realtime"`
	CachePrompts   bool `yaml:"cache_prompts" json:"cache_prompts"`

	// CacheTTL is a Go duration string such as "5m".
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl"`

	// StrictVariants rejects experiments whose traffic shares do not sum
	// to 1.0 instead of relying on the last-variant fallback.
	StrictVariants bool `yaml:"strict_variants" json:"strict_variants"`

	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig enables the Prometheus exposition endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9464". Empty disables it.
	Addr string `yaml:"addr" json:"addr"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Load reads a yaml or json5 config file, expanding ${ENV} references.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and parsable durations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api_url is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api_key is required")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("project_id is required")
	}
	if _, err := c.CacheTTLDuration(); err != nil {
		return err
	}
	return nil
}

// CacheTTLDuration parses CacheTTL; zero means "use the default".
func (c *Config) CacheTTLDuration() (time.Duration, error) {
	if strings.TrimSpace(c.CacheTTL) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("cache_ttl: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("cache_ttl must not be negative")
	}
	return d, nil
}
