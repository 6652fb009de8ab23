package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexflow/lexflow/pipeline"
)

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// RedisStore is a redis-backed implementation of Store. Suitable for
// distributed deployments where several processes share run history.
// Each run is a JSON value under a prefixed key, with a set indexing the
// known run IDs.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "lexflow:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "run:",
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "lexflow:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "run:"}
}

func (s *RedisStore) runKey(runID string) string {
	return s.keyPrefix + "data:" + runID
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "index"
}

func (s *RedisStore) Save(ctx context.Context, result *pipeline.PipelineResult) error {
	stored, err := cloneResult(result)
	if err != nil {
		return err
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(stored.RunID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), stored.RunID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run %s: %w", stored.RunID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, runID string) (*pipeline.PipelineResult, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	var result pipeline.PipelineResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &result, nil
}

func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*pipeline.PipelineResult, error) {
	runIDs, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}

	var results []*pipeline.PipelineResult
	for _, runID := range runIDs {
		result, err := s.Get(ctx, runID)
		if err != nil {
			// Index entry without data: the run was deleted mid-listing.
			continue
		}
		if filter.Matches(result) {
			results = append(results, result)
		}
	}
	return sortAndCap(results, filter.Limit), nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	runIDs, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, runID := range runIDs {
		pipe.Del(ctx, s.runKey(runID))
	}
	pipe.Del(ctx, s.indexKey())
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
