package pipeline

import (
	"fmt"
	"strings"
	"sync"
)

// ExecutionContext is the append-only key/value store carrying step
// outputs through a run. Each step writes exactly one new key (its output
// key); a key, once written, is never overwritten for the remainder of
// the run. Concurrent writers in a parallel group never target the same
// key because the builder rejects duplicate output keys, so reads always
// see either the pre-group snapshot or the fully merged context.
type ExecutionContext struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewExecutionContext creates a context seeded with the initial values.
// The initial map is copied; the caller keeps ownership of its map.
func NewExecutionContext(initial map[string]any) *ExecutionContext {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &ExecutionContext{values: values}
}

// Get returns the value stored under key.
func (c *ExecutionContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set writes a new key. Writing a key that already exists violates the
// append-only discipline and fails with ErrKeyConflict.
func (c *ExecutionContext) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrKeyConflict)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[key]; ok {
		return fmt.Errorf("%w: %s", ErrKeyConflict, key)
	}
	c.values[key] = value
	return nil
}

// replace overwrites an existing key. This is the single sanctioned
// exception to append-only semantics: a checkpoint modify decision
// replaces the just-written output before the run continues.
func (c *ExecutionContext) replace(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[key]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	c.values[key] = value
	return nil
}

// Snapshot returns a shallow copy of the current values. Parallel groups
// run their members against a snapshot taken when the group starts.
func (c *ExecutionContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snapshot[k] = v
	}
	return snapshot
}

// Len returns the number of keys written so far.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Lookup resolves a dotted source path ("research.citations.count")
// against the context, descending into nested map[string]any values.
func (c *ExecutionContext) Lookup(path string) (any, bool) {
	return lookupPath(c.Snapshot(), path)
}

// lookupPath resolves a dotted path against a plain value map.
func lookupPath(values map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = values
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// applyInputMapping builds a step's input from target -> source-path
// pairs. Missing source paths resolve to nil and are passed through;
// agents must tolerate partial inputs.
func applyInputMapping(values map[string]any, mapping map[string]string) map[string]any {
	if len(mapping) == 0 {
		return map[string]any{}
	}

	input := make(map[string]any, len(mapping))
	for target, sourcePath := range mapping {
		v, ok := lookupPath(values, sourcePath)
		if !ok {
			input[target] = nil
			continue
		}
		input[target] = v
	}
	return input
}
