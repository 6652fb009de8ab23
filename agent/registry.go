package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Common registry errors
var (
	ErrNotFound      = errors.New("agent not found")
	ErrAlreadyExists = errors.New("agent already registered")
	ErrInvalidAgent  = errors.New("invalid agent")
)

// Registry is an explicit, typed mapping from agent ID to Agent. It is
// populated at startup and validated once before any pipeline executes,
// rather than resolving agents ad hoc per task.
type Registry struct {
	agents map[string]Agent
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds an agent under its own ID.
func (r *Registry) Register(a Agent) error {
	if a == nil || a.ID() == "" {
		return ErrInvalidAgent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[a.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, a.ID())
	}
	r.agents[a.ID()] = a

	r.logger.Debug("agent registered", zap.String("agent_id", a.ID()))
	return nil
}

// RegisterFunc registers a function-backed agent under id.
func (r *Registry) RegisterFunc(id string, fn ExecuteFunc) error {
	return r.Register(NewFuncAgent(id, fn))
}

// Resolve returns the agent registered under id.
func (r *Registry) Resolve(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Validate checks that every ID in ids is registered. It returns an error
// naming all missing agents so callers can fail before dispatching anything.
func (r *Registry) Validate(ids []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, id := range ids {
		if _, ok := r.agents[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %v", ErrNotFound, missing)
	}
	return nil
}

// IDs returns the sorted identifiers of all registered agents.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
