package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexflow/lexflow/history"
)

// Loader loads configuration with the precedence
// defaults -> YAML file -> environment variables.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with the default env prefix LEXFLOW.
func NewLoader() *Loader {
	return &Loader{envPrefix: "LEXFLOW"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults and environment still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if v, ok := l.env("ENGINE_FAIL_FAST"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.FailFast = b
		}
	}
	if v, ok := l.env("ENGINE_DEFAULT_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.DefaultTimeout = d
		}
	}
	if v, ok := l.env("ENGINE_DEFAULT_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DefaultRetries = n
		}
	}
	if v, ok := l.env("ENGINE_AUTONOMY_MODE"); ok {
		cfg.Engine.AutonomyMode = v
	}
	if v, ok := l.env("ENGINE_MAX_PARALLEL"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.MaxParallel = n
		}
	}

	if v, ok := l.env("HISTORY_TYPE"); ok {
		cfg.History.Type = history.StoreType(v)
	}
	if v, ok := l.env("HISTORY_BASE_DIR"); ok {
		cfg.History.BaseDir = v
	}
	if v, ok := l.env("HISTORY_SQLITE_PATH"); ok {
		cfg.History.SQLitePath = v
	}
	if v, ok := l.env("REDIS_ADDR"); ok {
		cfg.History.Redis.Addr = v
	}
	if v, ok := l.env("REDIS_PASSWORD"); ok {
		cfg.History.Redis.Password = v
	}
	if v, ok := l.env("REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Redis.DB = n
		}
	}

	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
}

func (l *Loader) env(suffix string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + suffix)
}
