// Package config loads the daemon configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// QueryLimits bounds query result sets. Zero values keep the built-in
// defaults.
type QueryLimits struct {
	MaxResults         int `yaml:"max_results"`
	MaxResultsPerTable int `yaml:"max_results_per_table"`
}

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
	// RDNames maps route distinguishers to display names shown in the
	// routing instance directory.
	RDNames map[string]string `yaml:"rd_names"`
	// QueryLimits are the default limits applied to queries.
	QueryLimits QueryLimits `yaml:"query_limits"`
	// Fixtures optionally names a YAML route fixture file loaded at
	// startup, for development without a collector.
	Fixtures string `yaml:"fixtures"`
}

func defaults() *Config {
	return &Config{
		Listen:   ":3000",
		LogLevel: "info",
	}
}

// Load reads the configuration from path. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
