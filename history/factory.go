package history

import "fmt"

// StoreConfig selects and configures a history backend.
type StoreConfig struct {
	// Type selects the backend; empty defaults to memory.
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the file backend's root directory.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// SQLitePath is the sqlite backend's database file.
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	// Redis configures the redis backend.
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// DefaultStoreConfig returns an in-memory configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Type: StoreTypeMemory}
}

// NewStore creates a Store from configuration.
func NewStore(cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(cfg.BaseDir)
	case StoreTypeRedis:
		return NewRedisStore(cfg.Redis)
	case StoreTypeSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported history store type: %s", cfg.Type)
	}
}
