// Package history provides durable storage for pipeline run results and
// suspended run state, keyed by run ID.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - File: for single-node deployments
//   - Redis: for distributed deployments
//   - SQLite: for embedded durable deployments
//
// Every backend's Save is idempotent: re-saving a run ID never produces
// a second entry, and listing never yields duplicates for one run.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/lexflow/lexflow/pipeline"
)

// Common errors
var (
	ErrNotFound     = errors.New("run not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType selects a storage backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	// Pipeline matches the definition name the run was built from.
	Pipeline string
	// Status matches the run's current status.
	Status pipeline.RunStatus
	// Since/Until bound the run's start time (inclusive).
	Since time.Time
	Until time.Time
	// Limit caps the number of results; 0 means no cap.
	Limit int
}

// Matches reports whether a result passes the filter, ignoring Limit.
func (f Filter) Matches(r *pipeline.PipelineResult) bool {
	if f.Pipeline != "" && r.Pipeline != f.Pipeline {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && r.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.StartedAt.After(f.Until) {
		return false
	}
	return true
}

// Store persists pipeline run results. A run entering
// awaiting_checkpoint is saved immediately so the process can restart
// and resume from durable state.
type Store interface {
	// Save persists a result snapshot, replacing any previous snapshot
	// for the same run ID.
	Save(ctx context.Context, result *pipeline.PipelineResult) error

	// Get returns the stored result for a run ID, or ErrNotFound.
	Get(ctx context.Context, runID string) (*pipeline.PipelineResult, error)

	// List returns stored results matching the filter, ordered by start
	// time ascending.
	List(ctx context.Context, filter Filter) ([]*pipeline.PipelineResult, error)

	// Clear removes all stored runs.
	Clear(ctx context.Context) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// cloneResult deep-copies a result through JSON so stored snapshots are
// isolated from later mutation by the executor, and so every backend
// returns the same JSON-shaped payloads.
func cloneResult(r *pipeline.PipelineResult) (*pipeline.PipelineResult, error) {
	if r == nil || r.RunID == "" {
		return nil, ErrInvalidInput
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out pipeline.PipelineResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// sortAndCap orders results by start time and applies the filter limit.
func sortAndCap(results []*pipeline.PipelineResult, limit int) []*pipeline.PipelineResult {
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.Before(results[j].StartedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
