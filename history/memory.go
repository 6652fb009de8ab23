package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/lexflow/lexflow/pipeline"
)

// MemoryStore is an in-memory implementation of Store. Suitable for
// development and testing; data is lost on restart.
type MemoryStore struct {
	runs   map[string]*pipeline.PipelineResult
	closed bool
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*pipeline.PipelineResult),
	}
}

func (s *MemoryStore) Save(ctx context.Context, result *pipeline.PipelineResult) error {
	stored, err := cloneResult(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.runs[stored.RunID] = stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, runID string) (*pipeline.PipelineResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	stored, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return cloneResult(stored)
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*pipeline.PipelineResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var results []*pipeline.PipelineResult
	for _, stored := range s.runs {
		if !filter.Matches(stored) {
			continue
		}
		clone, err := cloneResult(stored)
		if err != nil {
			return nil, err
		}
		results = append(results, clone)
	}
	return sortAndCap(results, filter.Limit), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.runs = make(map[string]*pipeline.PipelineResult)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
