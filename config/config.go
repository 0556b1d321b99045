// Package config loads the library's assembly configuration from YAML.
//
// Configuration covers only wiring concerns: default model selections,
// invocation timeouts, loop iteration caps, and which optional
// collaborators to attach. Everything has a usable default, so a zero
// Config (or an absent file section) still assembles a working engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level assembly configuration.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Worker     WorkerConfig     `yaml:"worker"`
	Memory     MemoryConfig     `yaml:"memory"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Duration wraps time.Duration so YAML values like "90s" or "2m" decode.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ModelConfig configures the invocation layer.
type ModelConfig struct {
	// Default is the model id used when a request leaves Model empty.
	Default string `yaml:"default"`
	// Timeout bounds each invocation end-to-end.
	Timeout Duration `yaml:"timeout"`
	// Retries is the transport-error retry count per invocation.
	Retries int `yaml:"retries"`
}

// SupervisorConfig configures the orchestration loop.
type SupervisorConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// WorkerConfig configures subordinate worker loops.
type WorkerConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	HistoryWindow int `yaml:"history_window"`
}

// MemoryConfig selects the optional persistent-memory collaborator.
// Driver is one of "none", "inmemory", or "redis".
type MemoryConfig struct {
	Driver string `yaml:"driver"`
	Addr   string `yaml:"addr"`
}

// TrackingConfig configures the optional tracking collaborator.
type TrackingConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load parses the YAML file at path and applies defaults for anything the
// file leaves unset.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model.Default == "" {
		c.Model.Default = "claude-3-5-haiku-latest"
	}
	if c.Model.Timeout <= 0 {
		c.Model.Timeout = Duration(120 * time.Second)
	}
	if c.Model.Retries < 0 {
		c.Model.Retries = 0
	}

	if c.Supervisor.MaxIterations <= 0 {
		c.Supervisor.MaxIterations = 10
	}
	if c.Worker.MaxIterations <= 0 {
		c.Worker.MaxIterations = 10
	}
	if c.Worker.HistoryWindow <= 0 {
		c.Worker.HistoryWindow = 5
	}

	if c.Memory.Driver == "" {
		c.Memory.Driver = "none"
	}
	if c.Tracking.BufferSize <= 0 {
		c.Tracking.BufferSize = 256
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects configurations that cannot be assembled.
func (c *Config) Validate() error {
	switch c.Memory.Driver {
	case "none", "inmemory":
	case "redis":
		if c.Memory.Addr == "" {
			return errors.New("memory driver redis requires addr")
		}
	default:
		return fmt.Errorf("unknown memory driver %q", c.Memory.Driver)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	return nil
}
