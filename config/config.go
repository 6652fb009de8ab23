// Package config provides unified configuration loading for the engine:
// defaults, then a YAML file, then environment variable overrides, in
// that precedence order.
package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lexflow/lexflow/history"
	"github.com/lexflow/lexflow/pipeline"
)

// Config is the full engine configuration.
type Config struct {
	Engine  EngineConfig        `yaml:"engine"`
	History history.StoreConfig `yaml:"history"`
	Log     LogConfig           `yaml:"log"`
}

// EngineConfig maps onto pipeline.Options.
type EngineConfig struct {
	// FailFast stops a run at the first failed node.
	FailFast bool `yaml:"fail_fast"`
	// DefaultTimeout applies to steps without their own timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// DefaultRetries applies to steps without their own retry budget.
	DefaultRetries int `yaml:"default_retries"`
	// AutonomyMode: cautious, balanced, or autonomous.
	AutonomyMode string `yaml:"autonomy_mode"`
	// MaxParallel caps concurrent members within a parallel group.
	MaxParallel int64 `yaml:"max_parallel"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format: json or console.
	Format string `yaml:"format"`
}

// Default returns the baseline configuration before file and environment
// overrides apply.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			FailFast:       true,
			DefaultTimeout: 60 * time.Second,
			DefaultRetries: 2,
			AutonomyMode:   string(pipeline.AutonomyBalanced),
		},
		History: history.DefaultStoreConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Options converts the engine section to executor options.
func (c *Config) Options() pipeline.Options {
	return pipeline.Options{
		FailFast:       c.Engine.FailFast,
		DefaultTimeout: c.Engine.DefaultTimeout,
		DefaultRetries: c.Engine.DefaultRetries,
		AutonomyMode:   pipeline.AutonomyMode(c.Engine.AutonomyMode),
		MaxParallel:    c.Engine.MaxParallel,
	}
}

// NewLogger builds a zap logger from the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch pipeline.AutonomyMode(c.Engine.AutonomyMode) {
	case pipeline.AutonomyCautious, pipeline.AutonomyBalanced, pipeline.AutonomyAutonomous:
	default:
		return fmt.Errorf("invalid autonomy mode: %q", c.Engine.AutonomyMode)
	}
	if c.Engine.DefaultRetries < 0 {
		return fmt.Errorf("default_retries must be >= 0, got %d", c.Engine.DefaultRetries)
	}
	if c.Engine.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be positive, got %s", c.Engine.DefaultTimeout)
	}
	return nil
}
