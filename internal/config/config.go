// Package config loads the host application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Simulation SimulationConfig `yaml:"simulation"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Log        LogConfig        `yaml:"log"`
}

// StoreConfig selects the repository backend.
type StoreConfig struct {
	// Type is "memory" or "sqlite".
	Type string `yaml:"type"`
	// Path is the SQLite database file, for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// SimulationConfig holds market simulation defaults.
type SimulationConfig struct {
	PathCount    int     `yaml:"path_count"`
	InterestRate float64 `yaml:"interest_rate"`
	Seed         int64   `yaml:"seed"`
}

// EvaluationConfig holds evaluator settings.
type EvaluationConfig struct {
	// Workers is the evaluation worker count; 1 evaluates sequentially
	// along the persisted execution order.
	Workers int `yaml:"workers"`
	// MaxStubbedCalls bounds graph expansion during compilation.
	MaxStubbedCalls int `yaml:"max_stubbed_calls"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Store:      StoreConfig{Type: "memory"},
		Simulation: SimulationConfig{PathCount: 20000, InterestRate: 0.05, Seed: 1},
		Evaluation: EvaluationConfig{Workers: 1},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile reads a YAML configuration file, filling unset fields
// from Default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Store.Type != "memory" && cfg.Store.Type != "sqlite" {
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
	if cfg.Store.Type == "sqlite" && cfg.Store.Path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	return cfg, nil
}
