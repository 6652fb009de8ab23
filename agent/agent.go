package agent

import (
	"context"
	"time"
)

// Outcome classifies how an agent invocation ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the value an Agent hands back to the engine. Output is written
// to the invoking step's output key; Summary is a short human-readable
// account of what the agent did.
type Result struct {
	Outcome  Outcome       `json:"outcome"`
	Output   any           `json:"output,omitempty"`
	Summary  string        `json:"summary,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// Agent is a single unit of work. Execute receives the step's task
// description and the input assembled from the run context by the step's
// input mapping. Inputs may be partial (missing source paths arrive as
// nil values); agents must tolerate that. The engine may call Execute
// more than once for the same logical step under retry, so agents must
// be idempotent-safe.
type Agent interface {
	// ID returns the stable identifier steps bind to.
	ID() string

	// Execute performs the task. A nil error with a failed Outcome and an
	// error both count as a failed attempt; the engine treats them the same.
	Execute(ctx context.Context, task string, input map[string]any) (*Result, error)
}

// ExecuteFunc is the function form of Agent.Execute.
type ExecuteFunc func(ctx context.Context, task string, input map[string]any) (*Result, error)

// FuncAgent adapts a plain function to the Agent interface.
type FuncAgent struct {
	id string
	fn ExecuteFunc
}

// NewFuncAgent creates an Agent backed by fn.
func NewFuncAgent(id string, fn ExecuteFunc) *FuncAgent {
	return &FuncAgent{id: id, fn: fn}
}

func (a *FuncAgent) ID() string {
	return a.id
}

func (a *FuncAgent) Execute(ctx context.Context, task string, input map[string]any) (*Result, error) {
	return a.fn(ctx, task, input)
}
