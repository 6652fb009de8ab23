package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lexflow/lexflow/pipeline"
)

// FileStore is a file-backed implementation of Store. Suitable for
// single-node deployments. Each run is one JSON file under the base
// directory; writes are atomic (temp file then rename).
type FileStore struct {
	baseDir string
	closed  bool
	mu      sync.RWMutex
}

// NewFileStore creates a file store rooted at dir, creating it if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	baseDir := filepath.Join(dir, "runs")
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) runPath(runID string) string {
	return filepath.Join(s.baseDir, runID+".json")
}

func (s *FileStore) Save(ctx context.Context, result *pipeline.PipelineResult) error {
	stored, err := cloneResult(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	path := s.runPath(stored.RunID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to commit run file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, runID string) (*pipeline.PipelineResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.read(s.runPath(runID), runID)
}

func (s *FileStore) read(path, runID string) (*pipeline.PipelineResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
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

func (s *FileStore) List(ctx context.Context, filter Filter) ([]*pipeline.PipelineResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	var results []*pipeline.PipelineResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		runID := strings.TrimSuffix(entry.Name(), ".json")
		result, err := s.read(filepath.Join(s.baseDir, entry.Name()), runID)
		if err != nil {
			return nil, err
		}
		if filter.Matches(result) {
			results = append(results, result)
		}
	}
	return sortAndCap(results, filter.Limit), nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
