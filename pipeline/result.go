package pipeline

import "time"

// RunStatus is the run-level state machine:
// pending -> in_progress -> {awaiting_checkpoint <-> in_progress} ->
// {completed | partially_completed | failed | cancelled}.
type RunStatus string

const (
	RunStatusPending            RunStatus = "pending"
	RunStatusInProgress         RunStatus = "in_progress"
	RunStatusAwaitingCheckpoint RunStatus = "awaiting_checkpoint"
	RunStatusCompleted          RunStatus = "completed"
	RunStatusPartiallyCompleted RunStatus = "partially_completed"
	RunStatusFailed             RunStatus = "failed"
	RunStatusCancelled          RunStatus = "cancelled"
)

// Terminal reports whether the run can no longer make progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartiallyCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// NodeState is a node's terminal state within a run.
type NodeState string

const (
	NodeStateSucceeded NodeState = "succeeded"
	NodeStateFailed    NodeState = "failed"
	NodeStateSkipped   NodeState = "skipped"
)

// NodeResult records one node's execution. For parallel groups, Members
// holds the per-member step results; for conditionals and routers it
// holds the single dispatched branch. Error is a string so results stay
// JSON round-trippable for the history store.
type NodeResult struct {
	NodeID      string        `json:"node_id"`
	Kind        NodeKind      `json:"kind"`
	State       NodeState     `json:"state"`
	AgentID     string        `json:"agent_id,omitempty"`
	Attempts    int           `json:"attempts,omitempty"`
	Output      any           `json:"output,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Members     []*NodeResult `json:"members,omitempty"`
}

// PipelineResult is the outcome record of one run. A failed run still
// carries a complete result: every dispatched node's terminal state, the
// full checkpoint history in temporal order, and the final context. For
// a suspended run, NextNode is the definition index execution resumes at.
type PipelineResult struct {
	RunID        string         `json:"run_id"`
	Pipeline     string         `json:"pipeline"`
	Status       RunStatus      `json:"status"`
	NodeResults  []*NodeResult  `json:"node_results"`
	Checkpoints  []*Checkpoint  `json:"checkpoints"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
	FinalContext map[string]any `json:"final_context"`
	NextNode     int            `json:"next_node,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// NodeResultByID returns the recorded result for a node, searching group
// members and dispatched branches as well.
func (r *PipelineResult) NodeResultByID(nodeID string) *NodeResult {
	return findNodeResult(r.NodeResults, nodeID)
}

func findNodeResult(results []*NodeResult, nodeID string) *NodeResult {
	for _, nr := range results {
		if nr.NodeID == nodeID {
			return nr
		}
		if found := findNodeResult(nr.Members, nodeID); found != nil {
			return found
		}
	}
	return nil
}

// counts tallies top-level node states for the final status decision.
func (r *PipelineResult) counts() (succeeded, failed, skipped int) {
	for _, nr := range r.NodeResults {
		switch nr.State {
		case NodeStateSucceeded:
			succeeded++
		case NodeStateFailed:
			failed++
		case NodeStateSkipped:
			skipped++
		}
	}
	return
}
