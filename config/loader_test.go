package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexflow/lexflow/history"
	"github.com/lexflow/lexflow/pipeline"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.True(t, cfg.Engine.FailFast)
	assert.Equal(t, 60*time.Second, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 2, cfg.Engine.DefaultRetries)
	assert.Equal(t, string(pipeline.AutonomyBalanced), cfg.Engine.AutonomyMode)
	assert.Equal(t, history.StoreTypeMemory, cfg.History.Type)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  fail_fast: false
  default_timeout: 90s
  default_retries: 4
  autonomy_mode: cautious
  max_parallel: 3
history:
  type: sqlite
  sqlite_path: /var/lib/lexflow/history.db
log:
  level: debug
  format: console
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.False(t, cfg.Engine.FailFast)
	assert.Equal(t, 90*time.Second, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 4, cfg.Engine.DefaultRetries)
	assert.Equal(t, "cautious", cfg.Engine.AutonomyMode)
	assert.Equal(t, int64(3), cfg.Engine.MaxParallel)
	assert.Equal(t, history.StoreTypeSQLite, cfg.History.Type)
	assert.Equal(t, "/var/lib/lexflow/history.db", cfg.History.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	require.NoError(t, err)
	assert.True(t, cfg.Engine.FailFast)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [not a mapping"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  default_retries: 4\n"), 0o644))

	t.Setenv("LEXFLOW_ENGINE_DEFAULT_RETRIES", "7")
	t.Setenv("LEXFLOW_ENGINE_FAIL_FAST", "false")
	t.Setenv("LEXFLOW_ENGINE_DEFAULT_TIMEOUT", "45s")
	t.Setenv("LEXFLOW_HISTORY_TYPE", "redis")
	t.Setenv("LEXFLOW_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("LEXFLOW_REDIS_DB", "5")
	t.Setenv("LEXFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.DefaultRetries)
	assert.False(t, cfg.Engine.FailFast)
	assert.Equal(t, 45*time.Second, cfg.Engine.DefaultTimeout)
	assert.Equal(t, history.StoreTypeRedis, cfg.History.Type)
	assert.Equal(t, "redis.internal:6379", cfg.History.Redis.Addr)
	assert.Equal(t, 5, cfg.History.Redis.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("ACME_ENGINE_DEFAULT_RETRIES", "9")

	cfg, err := NewLoader().WithEnvPrefix("ACME").Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Engine.DefaultRetries)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.AutonomyMode = "reckless"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.DefaultRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.DefaultTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.Engine.MaxParallel = 4

	opts := cfg.Options()
	assert.True(t, opts.FailFast)
	assert.Equal(t, 60*time.Second, opts.DefaultTimeout)
	assert.Equal(t, 2, opts.DefaultRetries)
	assert.Equal(t, pipeline.AutonomyBalanced, opts.AutonomyMode)
	assert.Equal(t, int64(4), opts.MaxParallel)
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	logger.Sync()

	cfg.Log.Format = "console"
	cfg.Log.Level = "debug"
	logger, err = cfg.NewLogger()
	require.NoError(t, err)
	logger.Sync()

	cfg.Log.Level = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
