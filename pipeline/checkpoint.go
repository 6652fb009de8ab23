package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CheckpointStatus tracks a checkpoint through its decision lifecycle.
type CheckpointStatus string

const (
	CheckpointStatusPending  CheckpointStatus = "pending"
	CheckpointStatusApproved CheckpointStatus = "approved"
	CheckpointStatusModified CheckpointStatus = "modified"
	CheckpointStatusRejected CheckpointStatus = "rejected"
)

// ResumeAction is the kind of decision supplied to Resume.
type ResumeAction string

const (
	ResumeApprove ResumeAction = "approve"
	ResumeReject  ResumeAction = "reject"
	ResumeModify  ResumeAction = "modify"
)

// ResumeDecision is a human decision on a pending checkpoint. Payload is
// only consulted for modify, where it replaces the flagged node's output.
type ResumeDecision struct {
	Action  ResumeAction `json:"action"`
	Payload any          `json:"payload,omitempty"`
	Comment string       `json:"comment,omitempty"`
}

// Approve continues the run unchanged.
func Approve() ResumeDecision {
	return ResumeDecision{Action: ResumeApprove}
}

// Reject fails the run at the checkpointed node.
func Reject(comment string) ResumeDecision {
	return ResumeDecision{Action: ResumeReject, Comment: comment}
}

// Modify replaces the checkpointed node's output with payload, then
// continues the run.
func Modify(payload any) ResumeDecision {
	return ResumeDecision{Action: ResumeModify, Payload: payload}
}

// Checkpoint is a human-in-the-loop suspension point raised after a
// flagged node completes. Payload is a snapshot of the node's output at
// the time the checkpoint was raised; OutputKey is the context key a
// modify decision overwrites.
type Checkpoint struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id"`
	NodeID     string           `json:"node_id"`
	OutputKey  string           `json:"output_key,omitempty"`
	Message    string           `json:"message,omitempty"`
	Payload    any              `json:"payload,omitempty"`
	Status     CheckpointStatus `json:"status"`
	Decision   *ResumeDecision  `json:"decision,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// CheckpointManager owns pending checkpoints until they are resumed. At
// most a queue of checkpoints is pending per run (a parallel group can
// flag several members); they resolve in the order they were raised.
type CheckpointManager struct {
	pending map[string][]*Checkpoint // run ID -> FIFO of unresolved checkpoints
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewCheckpointManager creates a checkpoint manager.
func NewCheckpointManager(logger *zap.Logger) *CheckpointManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointManager{
		pending: make(map[string][]*Checkpoint),
		logger:  logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Raise creates a pending checkpoint for a completed node and queues it
// for resolution.
func (m *CheckpointManager) Raise(runID, nodeID, outputKey, message string, payload any) *Checkpoint {
	cp := &Checkpoint{
		ID:        generateCheckpointID(),
		RunID:     runID,
		NodeID:    nodeID,
		OutputKey: outputKey,
		Message:   message,
		Payload:   payload,
		Status:    CheckpointStatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.pending[runID] = append(m.pending[runID], cp)
	m.mu.Unlock()

	m.logger.Info("checkpoint raised",
		zap.String("checkpoint_id", cp.ID),
		zap.String("run_id", runID),
		zap.String("node_id", nodeID),
	)
	return cp
}

// Head returns the oldest unresolved checkpoint for a run.
func (m *CheckpointManager) Head(runID string) (*Checkpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queue := m.pending[runID]
	if len(queue) == 0 {
		return nil, false
	}
	return queue[0], true
}

// Pending returns all unresolved checkpoints for a run in raise order.
func (m *CheckpointManager) Pending(runID string) []*Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queue := m.pending[runID]
	out := make([]*Checkpoint, len(queue))
	copy(out, queue)
	return out
}

// Resolve applies a decision to the identified pending checkpoint. Only
// the head of the run's queue may be resolved; decisions arrive in the
// order the checkpoints were raised.
func (m *CheckpointManager) Resolve(runID, checkpointID string, decision ResumeDecision) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.pending[runID]
	if len(queue) == 0 {
		return nil, fmt.Errorf("%w: run %s has no pending checkpoint", ErrCheckpointNotFound, runID)
	}
	head := queue[0]
	if head.ID != checkpointID {
		for _, cp := range queue[1:] {
			if cp.ID == checkpointID {
				return nil, fmt.Errorf("%w: checkpoint %s must wait for %s", ErrCheckpointNotFound, checkpointID, head.ID)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpointID)
	}

	now := time.Now()
	head.ResolvedAt = &now
	d := decision
	head.Decision = &d
	switch decision.Action {
	case ResumeApprove:
		head.Status = CheckpointStatusApproved
	case ResumeModify:
		head.Status = CheckpointStatusModified
	case ResumeReject:
		head.Status = CheckpointStatusRejected
	default:
		head.ResolvedAt = nil
		head.Decision = nil
		return nil, fmt.Errorf("unknown resume action: %q", decision.Action)
	}

	if len(queue) == 1 {
		delete(m.pending, runID)
	} else {
		m.pending[runID] = queue[1:]
	}

	m.logger.Info("checkpoint resolved",
		zap.String("checkpoint_id", checkpointID),
		zap.String("run_id", runID),
		zap.String("action", string(decision.Action)),
	)
	return head, nil
}

// Restore re-registers pending checkpoints for a run re-hydrated from
// durable state after a process restart.
func (m *CheckpointManager) Restore(runID string, checkpoints []*Checkpoint) {
	var pending []*Checkpoint
	for _, cp := range checkpoints {
		if cp.Status == CheckpointStatusPending {
			pending = append(pending, cp)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(pending) > 0 {
		m.pending[runID] = pending
	}
}

// Drop discards any pending checkpoints for a run, used when the run is
// cancelled out from under them.
func (m *CheckpointManager) Drop(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, runID)
}

var checkpointSeq atomic.Uint64

func generateCheckpointID() string {
	return fmt.Sprintf("ckpt_%d_%d", time.Now().UnixNano(), checkpointSeq.Add(1))
}
