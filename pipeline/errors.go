package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Build-time validation errors
var (
	ErrDuplicateOutputKey   = errors.New("duplicate output key")
	ErrDanglingModifier     = errors.New("modifier has no preceding node")
	ErrEmptyParallelGroup   = errors.New("parallel group has no steps")
	ErrInvalidMergeStrategy = errors.New("invalid merge strategy")
	ErrEmptyPipeline        = errors.New("pipeline has no nodes")
)

// Run-time errors
var (
	ErrKeyConflict        = errors.New("context key already written")
	ErrKeyNotFound        = errors.New("context key not found")
	ErrRunNotFound        = errors.New("run not found")
	ErrRunNotSuspended    = errors.New("run is not awaiting a checkpoint")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointResolved = errors.New("checkpoint already resolved")
)

// StepExecutionError marks a single failed agent attempt, either because
// the agent returned an error or because it reported a failed outcome.
type StepExecutionError struct {
	StepID  string
	AgentID string
	Attempt int
	Err     error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (agent %s) attempt %d failed: %v", e.StepID, e.AgentID, e.Attempt, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// StepTimeoutError marks an agent attempt that exceeded the step timeout.
type StepTimeoutError struct {
	StepID  string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.StepID, e.Timeout)
}

// RetryExhaustedError wraps the last attempt error after the step's whole
// retry budget is spent.
type RetryExhaustedError struct {
	StepID   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempts: %v", e.StepID, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// ParallelGroupFailure carries the per-member outcomes of a group that
// resolved as failed.
type ParallelGroupFailure struct {
	GroupID  string
	Strategy MergeStrategy
	Members  []*NodeResult
}

func (e *ParallelGroupFailure) Error() string {
	failed := 0
	for _, m := range e.Members {
		if m.State == NodeStateFailed {
			failed++
		}
	}
	return fmt.Sprintf("parallel group %s (%s) failed: %d/%d members failed", e.GroupID, e.Strategy, failed, len(e.Members))
}

// CheckpointRejectedError marks a run failed by a human reject decision.
type CheckpointRejectedError struct {
	CheckpointID string
	NodeID       string
}

func (e *CheckpointRejectedError) Error() string {
	return fmt.Sprintf("checkpoint %s on node %s rejected", e.CheckpointID, e.NodeID)
}

// RunCancelledError marks a run terminated by an external cancel signal.
type RunCancelledError struct {
	RunID string
}

func (e *RunCancelledError) Error() string {
	return fmt.Sprintf("run %s cancelled", e.RunID)
}
