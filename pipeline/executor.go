package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lexflow/lexflow/agent"
	"github.com/lexflow/lexflow/internal/metrics"
	"github.com/lexflow/lexflow/internal/retry"
)

// AutonomyMode is an authoring-time policy determining how liberally
// checkpoints are attached when a pipeline is built. The executor never
// consults it; it is carried in Options so builders and callers share
// one configuration surface.
type AutonomyMode string

const (
	AutonomyCautious   AutonomyMode = "cautious"
	AutonomyBalanced   AutonomyMode = "balanced"
	AutonomyAutonomous AutonomyMode = "autonomous"
)

// Options configure a run.
type Options struct {
	// FailFast stops dispatch at the first failed node, marking every
	// remaining node skipped. When false, dispatch continues and the run
	// ends partially_completed if anything failed but something succeeded.
	FailFast bool

	// DefaultTimeout applies to steps without their own timeout.
	DefaultTimeout time.Duration

	// DefaultRetries applies to steps without their own retry budget.
	DefaultRetries int

	// AutonomyMode is recorded for builders; see the type doc.
	AutonomyMode AutonomyMode

	// MaxParallel caps concurrently-running members within a parallel
	// group. Zero means unbounded.
	MaxParallel int64

	// Backoff overrides the retry backoff policy. MaxRetries on the
	// policy is ignored; the per-step budget wins.
	Backoff *retry.Policy

	// Metrics, when set, registers engine metrics against it.
	Metrics prometheus.Registerer
}

// DefaultOptions returns the documented defaults: fail-fast on, 60s step
// timeout, 2 retries, balanced autonomy.
func DefaultOptions() Options {
	return Options{
		FailFast:       true,
		DefaultTimeout: 60 * time.Second,
		DefaultRetries: 2,
		AutonomyMode:   AutonomyBalanced,
	}
}

// HistoryStore is the durability surface the executor needs: runs are
// saved on every status transition and loaded back to resume a suspended
// run after a process restart. The history package provides memory,
// file, redis, and sqlite implementations.
type HistoryStore interface {
	Save(ctx context.Context, result *PipelineResult) error
	Get(ctx context.Context, runID string) (*PipelineResult, error)
}

// Executor walks a PipelineDefinition in order, dispatching each node,
// applying retries and timeouts, merging parallel results, and producing
// a PipelineResult. It exclusively owns the ExecutionContext and the
// result for the duration of a run.
type Executor struct {
	registry    *agent.Registry
	history     HistoryStore
	checkpoints *CheckpointManager
	collector   *metrics.Collector
	logger      *zap.Logger
	opts        Options

	active map[string]*runState
	mu     sync.Mutex
}

// runState is the in-memory state of a run between dispatch boundaries,
// kept while the run is suspended on a checkpoint.
type runState struct {
	def    *PipelineDefinition
	ctx    *ExecutionContext
	result *PipelineResult
	opts   Options
	next   int
}

// checkpointRequest is a deferred checkpoint: nodes report the flag and
// the dispatch loop decides whether the run actually suspends (a
// fail-fast abort discards them).
type checkpointRequest struct {
	nodeID    string
	outputKey string
	message   string
	payload   any
}

// NewExecutor creates an executor. The history store may be nil, in
// which case runs are not durable and suspended state lives only in
// memory.
func NewExecutor(registry *agent.Registry, store HistoryStore, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry:    registry,
		history:     store,
		checkpoints: NewCheckpointManager(logger),
		logger:      logger.With(zap.String("component", "pipeline_executor")),
		opts:        opts,
		active:      make(map[string]*runState),
	}
	if opts.Metrics != nil {
		e.collector = metrics.NewCollector("lexflow", opts.Metrics)
	}
	return e
}

// Execute runs a definition against an initial context using the
// executor's options. A failed run still returns a complete result, not
// an error; the error path is reserved for invalid input (nil or empty
// definition, unregistered agents).
func (e *Executor) Execute(ctx context.Context, def *PipelineDefinition, initial map[string]any) (*PipelineResult, error) {
	return e.ExecuteWithOptions(ctx, def, initial, e.opts)
}

// ExecuteWithOptions is Execute with per-run option overrides.
func (e *Executor) ExecuteWithOptions(ctx context.Context, def *PipelineDefinition, initial map[string]any, opts Options) (*PipelineResult, error) {
	if def == nil || def.Len() == 0 {
		return nil, ErrEmptyPipeline
	}
	if err := e.registry.Validate(def.AgentIDs()); err != nil {
		return nil, fmt.Errorf("definition references unknown agents: %w", err)
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultOptions().DefaultTimeout
	}
	if opts.DefaultRetries < 0 {
		opts.DefaultRetries = 0
	}

	st := &runState{
		def:  def,
		ctx:  NewExecutionContext(initial),
		opts: opts,
		result: &PipelineResult{
			RunID:       uuid.NewString(),
			Pipeline:    def.Name(),
			Status:      RunStatusPending,
			NodeResults: []*NodeResult{},
			Checkpoints: []*Checkpoint{},
			StartedAt:   time.Now(),
		},
	}

	e.logger.Info("run started",
		zap.String("run_id", st.result.RunID),
		zap.String("pipeline", def.Name()),
		zap.Int("nodes", def.Len()),
	)

	st.result.Status = RunStatusInProgress
	return e.runLoop(ctx, st), nil
}

// PendingCheckpoints returns the unresolved checkpoints for a run in the
// order they were raised.
func (e *Executor) PendingCheckpoints(runID string) []*Checkpoint {
	return e.checkpoints.Pending(runID)
}

// Resume applies a decision to a suspended run held in memory and
// continues dispatch. After a process restart use ResumeWithDefinition.
func (e *Executor) Resume(ctx context.Context, runID, checkpointID string, decision ResumeDecision) (*PipelineResult, error) {
	e.mu.Lock()
	st, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (re-hydrate with ResumeWithDefinition after a restart)", ErrRunNotFound, runID)
	}
	return e.resume(ctx, st, checkpointID, decision)
}

// ResumeWithDefinition resumes a run from durable state: the persisted
// result re-hydrates the execution context and the dispatch cursor, and
// the caller re-supplies the definition (node predicates and route
// functions do not serialize). The definition must be the one the run
// was started with.
func (e *Executor) ResumeWithDefinition(ctx context.Context, def *PipelineDefinition, runID, checkpointID string, decision ResumeDecision) (*PipelineResult, error) {
	e.mu.Lock()
	st, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		return e.resume(ctx, st, checkpointID, decision)
	}

	if e.history == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	persisted, err := e.history.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if persisted.Status != RunStatusAwaitingCheckpoint {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotSuspended, runID, persisted.Status)
	}
	if def == nil || def.Name() != persisted.Pipeline {
		return nil, fmt.Errorf("definition %q does not match run pipeline %q", defName(def), persisted.Pipeline)
	}

	st = &runState{
		def:    def,
		ctx:    NewExecutionContext(persisted.FinalContext),
		result: persisted,
		opts:   e.opts,
		next:   persisted.NextNode,
	}
	e.checkpoints.Restore(runID, persisted.Checkpoints)

	e.logger.Info("run re-hydrated from history",
		zap.String("run_id", runID),
		zap.Int("next_node", st.next),
	)
	return e.resume(ctx, st, checkpointID, decision)
}

func defName(def *PipelineDefinition) string {
	if def == nil {
		return "<nil>"
	}
	return def.Name()
}

func (e *Executor) resume(ctx context.Context, st *runState, checkpointID string, decision ResumeDecision) (*PipelineResult, error) {
	cp, err := e.checkpoints.Resolve(st.result.RunID, checkpointID, decision)
	if err != nil {
		return nil, err
	}
	if e.collector != nil {
		e.collector.RecordCheckpointResolved(string(decision.Action))
	}

	switch decision.Action {
	case ResumeModify:
		if err := st.ctx.replace(cp.OutputKey, decision.Payload); err != nil {
			return nil, fmt.Errorf("failed to apply modify decision: %w", err)
		}
		if nr := st.result.NodeResultByID(cp.NodeID); nr != nil {
			nr.Output = decision.Payload
		}
	case ResumeReject:
		rejection := &CheckpointRejectedError{CheckpointID: cp.ID, NodeID: cp.NodeID}
		if nr := st.result.NodeResultByID(cp.NodeID); nr != nil {
			nr.State = NodeStateFailed
			nr.Error = rejection.Error()
		}
		if st.opts.FailFast {
			return e.finishFailed(ctx, st, rejection.Error()), nil
		}
	}

	// More checkpoints from the same node are still pending; stay suspended.
	if _, pending := e.checkpoints.Head(st.result.RunID); pending {
		e.persist(ctx, st)
		return st.result, nil
	}

	st.result.Status = RunStatusInProgress
	return e.runLoop(ctx, st), nil
}

// runLoop dispatches nodes in definition order from the current cursor
// until the run completes, fails, is cancelled, or suspends.
func (e *Executor) runLoop(ctx context.Context, st *runState) *PipelineResult {
	nodes := st.def.Nodes()

	for st.next < len(nodes) {
		if ctx.Err() != nil {
			return e.finishCancelled(ctx, st)
		}

		node := nodes[st.next]
		nr, requests := e.dispatchNode(ctx, st, node)
		st.result.NodeResults = append(st.result.NodeResults, nr)
		e.recordNode(nr)
		st.next++

		if ctx.Err() != nil {
			return e.finishCancelled(ctx, st)
		}

		if nr.State == NodeStateFailed && st.opts.FailFast {
			return e.finishFailed(ctx, st, nr.Error)
		}

		if len(requests) > 0 {
			return e.suspend(ctx, st, requests)
		}
	}

	return e.finish(ctx, st)
}

// dispatchNode executes one node and reports any checkpoint requests it
// produced. Conditional and router nodes recurse into exactly one branch.
func (e *Executor) dispatchNode(ctx context.Context, st *runState, node Node) (*NodeResult, []checkpointRequest) {
	switch n := node.(type) {
	case *Step:
		nr := e.executeStep(ctx, st, n, st.ctx.Snapshot())
		var requests []checkpointRequest
		if nr.State == NodeStateSucceeded {
			if err := st.ctx.Set(n.OutputKey, nr.Output); err != nil {
				nr.State = NodeStateFailed
				nr.Error = err.Error()
				return nr, nil
			}
			if n.RequiresCheckpoint {
				requests = append(requests, checkpointRequest{
					nodeID:    n.OutputKey,
					outputKey: n.OutputKey,
					message:   n.Task,
					payload:   nr.Output,
				})
			}
		}
		return nr, requests

	case *ParallelGroup:
		return e.runParallelGroup(ctx, st, n)

	case *ConditionalNode:
		started := time.Now()
		snapshot := st.ctx.Snapshot()
		branch := n.Else
		taken := "else"
		if n.Predicate(snapshot) {
			branch = n.Then
			taken = "then"
		}
		nr := &NodeResult{
			NodeID:    n.ID,
			Kind:      NodeKindConditional,
			StartedAt: started,
			Summary:   fmt.Sprintf("took %s branch", taken),
		}
		if branch == nil {
			nr.State = NodeStateSkipped
			nr.Summary = "predicate false, no else branch"
			nr.CompletedAt = time.Now()
			nr.Duration = nr.CompletedAt.Sub(started)
			return nr, nil
		}
		inner, requests := e.dispatchNode(ctx, st, branch)
		nr.State = inner.State
		nr.Error = inner.Error
		nr.Members = []*NodeResult{inner}
		nr.CompletedAt = time.Now()
		nr.Duration = nr.CompletedAt.Sub(started)
		return nr, requests

	case *RouterNode:
		started := time.Now()
		snapshot := st.ctx.Snapshot()
		key := n.Route(snapshot)
		branch, ok := n.Routes[key]
		if !ok {
			branch = n.Default
		}
		nr := &NodeResult{
			NodeID:    n.ID,
			Kind:      NodeKindRouter,
			StartedAt: started,
			Summary:   fmt.Sprintf("routed to %q", key),
		}
		if branch == nil {
			nr.State = NodeStateFailed
			nr.Error = fmt.Sprintf("no route for key %q and no default route", key)
			nr.CompletedAt = time.Now()
			nr.Duration = nr.CompletedAt.Sub(started)
			return nr, nil
		}
		if !ok {
			nr.Summary = fmt.Sprintf("routed to default (no entry for %q)", key)
		}
		inner, requests := e.dispatchNode(ctx, st, branch)
		nr.State = inner.State
		nr.Error = inner.Error
		nr.Members = []*NodeResult{inner}
		nr.CompletedAt = time.Now()
		nr.Duration = nr.CompletedAt.Sub(started)
		return nr, requests

	default:
		return &NodeResult{
			NodeID:      node.NodeID(),
			Kind:        node.NodeKind(),
			State:       NodeStateFailed,
			Error:       fmt.Sprintf("unknown node type %T", node),
			StartedAt:   time.Now(),
			CompletedAt: time.Now(),
		}, nil
	}
}

// executeStep runs a single step's attempt loop against a value snapshot.
// It does not write to the run context; the caller merges the output.
func (e *Executor) executeStep(ctx context.Context, st *runState, step *Step, values map[string]any) *NodeResult {
	started := time.Now()
	nr := &NodeResult{
		NodeID:    step.OutputKey,
		Kind:      NodeKindStep,
		AgentID:   step.AgentID,
		StartedAt: started,
	}

	a, err := e.registry.Resolve(step.AgentID)
	if err != nil {
		nr.State = NodeStateFailed
		nr.Error = err.Error()
		nr.CompletedAt = time.Now()
		nr.Duration = nr.CompletedAt.Sub(started)
		return nr
	}

	input := applyInputMapping(values, step.InputMapping)

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = st.opts.DefaultTimeout
	}
	retries := step.MaxRetries
	if retries == UnsetRetries {
		retries = st.opts.DefaultRetries
	}

	policy := retry.DefaultPolicy()
	if st.opts.Backoff != nil {
		p := *st.opts.Backoff
		policy = &p
	}
	policy.MaxRetries = retries
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		if e.collector != nil {
			e.collector.RecordRetry()
		}
		e.logger.Debug("step retry",
			zap.String("step", step.OutputKey),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	retryer := retry.NewBackoffRetryer(policy, e.logger)

	attempts := 0
	var out *agent.Result
	attemptErr := retryer.Do(ctx, func(ctx context.Context) error {
		attempts++
		res, err := e.invokeAgent(ctx, a, step, timeout, input, attempts)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	nr.Attempts = attempts

	if attemptErr != nil {
		if attempts > 1 {
			attemptErr = &RetryExhaustedError{StepID: step.OutputKey, Attempts: attempts, Err: attemptErr}
		}
		nr.State = NodeStateFailed
		nr.Error = attemptErr.Error()
	} else {
		nr.State = NodeStateSucceeded
		nr.Output = out.Output
		nr.Summary = out.Summary
	}

	nr.CompletedAt = time.Now()
	nr.Duration = nr.CompletedAt.Sub(started)
	if e.collector != nil {
		e.collector.RecordStep(step.AgentID, nr.Duration)
	}
	return nr
}

// invokeAgent performs one attempt under the per-attempt timeout. The
// agent call runs in its own goroutine so a blocking agent cannot pin the
// dispatch loop past the deadline; the abandoned call receives a
// cancelled context as its best-effort stop request.
func (e *Executor) invokeAgent(ctx context.Context, a agent.Agent, step *Step, timeout time.Duration, input map[string]any, attempt int) (*agent.Result, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		res *agent.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.Execute(attemptCtx, step.Task, input)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &StepTimeoutError{StepID: step.OutputKey, Timeout: timeout}
			}
			return nil, &StepExecutionError{StepID: step.OutputKey, AgentID: step.AgentID, Attempt: attempt, Err: o.err}
		}
		if o.res == nil {
			return nil, &StepExecutionError{StepID: step.OutputKey, AgentID: step.AgentID, Attempt: attempt, Err: errors.New("agent returned no result")}
		}
		switch o.res.Outcome {
		case agent.OutcomeSucceeded, agent.OutcomePartial:
			return o.res, nil
		default:
			reason := o.res.Summary
			if reason == "" {
				reason = fmt.Sprintf("agent reported outcome %q", o.res.Outcome)
			}
			return nil, &StepExecutionError{StepID: step.OutputKey, AgentID: step.AgentID, Attempt: attempt, Err: errors.New(reason)}
		}
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, &StepExecutionError{StepID: step.OutputKey, AgentID: step.AgentID, Attempt: attempt, Err: ctx.Err()}
		}
		return nil, &StepTimeoutError{StepID: step.OutputKey, Timeout: timeout}
	}
}

// runParallelGroup dispatches all member steps concurrently against a
// snapshot of the context, resolves the group per its merge strategy,
// and merges every successful member output collected before resolution.
func (e *Executor) runParallelGroup(ctx context.Context, st *runState, g *ParallelGroup) (*NodeResult, []checkpointRequest) {
	started := time.Now()
	snapshot := st.ctx.Snapshot()
	n := len(g.Steps)

	groupCtx := ctx
	var cancel context.CancelFunc
	if g.Timeout > 0 {
		groupCtx, cancel = context.WithTimeout(ctx, g.Timeout)
	} else {
		groupCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var sem *semaphore.Weighted
	if st.opts.MaxParallel > 0 {
		sem = semaphore.NewWeighted(st.opts.MaxParallel)
	}

	resultCh := make(chan *NodeResult, n)
	for _, member := range g.Steps {
		go func(s *Step) {
			if sem != nil {
				if err := sem.Acquire(groupCtx, 1); err != nil {
					resultCh <- &NodeResult{
						NodeID:      s.OutputKey,
						Kind:        NodeKindStep,
						AgentID:     s.AgentID,
						State:       NodeStateFailed,
						Error:       fmt.Sprintf("member never started: %v", err),
						StartedAt:   time.Now(),
						CompletedAt: time.Now(),
					}
					return
				}
				defer sem.Release(1)
			}
			resultCh <- e.executeStep(groupCtx, st, s, snapshot)
		}(member)
	}

	received := make(map[string]*NodeResult, n)
	succeeded, failed := 0, 0
	resolved, groupFailed, timedOut := false, false, false

collect:
	for len(received) < n {
		select {
		case nr := <-resultCh:
			received[nr.NodeID] = nr
			if nr.State == NodeStateSucceeded {
				succeeded++
			} else {
				failed++
			}
			switch g.Strategy {
			case MergeFirstSuccess:
				if nr.State == NodeStateSucceeded {
					resolved = true
					cancel()
					break collect
				}
			case MergeMajority:
				if succeeded > n/2 {
					resolved = true
					cancel()
					break collect
				}
				if failed > n/2 {
					resolved = true
					groupFailed = true
					cancel()
					break collect
				}
			}
		case <-groupCtx.Done():
			timedOut = true
			break collect
		}
	}

	// Late arrivals already buffered count toward the group before it
	// resolves; anything still running is abandoned.
	for drained := false; !drained; {
		select {
		case nr := <-resultCh:
			if _, dup := received[nr.NodeID]; !dup {
				received[nr.NodeID] = nr
				if nr.State == NodeStateSucceeded {
					succeeded++
				} else {
					failed++
				}
			}
		default:
			drained = true
		}
	}

	// Members that never finished are failed, either by the group
	// timeout or because the group resolved without them.
	members := make([]*NodeResult, 0, n)
	for _, s := range g.Steps {
		nr, ok := received[s.OutputKey]
		if !ok {
			reason := "member did not finish before group resolved"
			if timedOut {
				reason = (&StepTimeoutError{StepID: s.OutputKey, Timeout: g.Timeout}).Error()
			}
			nr = &NodeResult{
				NodeID:      s.OutputKey,
				Kind:        NodeKindStep,
				AgentID:     s.AgentID,
				State:       NodeStateFailed,
				Error:       reason,
				StartedAt:   started,
				CompletedAt: time.Now(),
			}
			failed++
		}
		members = append(members, nr)
	}

	if !resolved {
		switch g.Strategy {
		case MergeAll:
			groupFailed = failed > 0
		case MergeFirstSuccess:
			groupFailed = succeeded == 0
		case MergeMajority:
			switch {
			case succeeded > n/2:
				groupFailed = false
			case timedOut && g.ResolveOnTimeout && succeeded > 0:
				groupFailed = false
			default:
				groupFailed = true
			}
		}
	}

	group := &NodeResult{
		NodeID:    g.GroupID,
		Kind:      NodeKindParallel,
		StartedAt: started,
		Members:   members,
		Summary:   fmt.Sprintf("%d/%d members succeeded (%s)", succeeded, n, g.Strategy),
	}

	// Successful member outputs merge under their own keys regardless of
	// strategy, as long as they arrived before the group resolved.
	var requests []checkpointRequest
	for _, s := range g.Steps {
		nr := received[s.OutputKey]
		if nr == nil || nr.State != NodeStateSucceeded {
			continue
		}
		if err := st.ctx.Set(s.OutputKey, nr.Output); err != nil {
			nr.State = NodeStateFailed
			nr.Error = err.Error()
			continue
		}
		if s.RequiresCheckpoint {
			requests = append(requests, checkpointRequest{
				nodeID:    s.OutputKey,
				outputKey: s.OutputKey,
				message:   s.Task,
				payload:   nr.Output,
			})
		}
	}

	if groupFailed {
		group.State = NodeStateFailed
		group.Error = (&ParallelGroupFailure{GroupID: g.GroupID, Strategy: g.Strategy, Members: members}).Error()
	} else {
		group.State = NodeStateSucceeded
	}
	group.CompletedAt = time.Now()
	group.Duration = group.CompletedAt.Sub(started)

	e.logger.Debug("parallel group resolved",
		zap.String("group", g.GroupID),
		zap.String("strategy", string(g.Strategy)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Bool("timed_out", timedOut),
	)
	return group, requests
}

// suspend raises the deferred checkpoints, persists the run durably, and
// parks its state for Resume.
func (e *Executor) suspend(ctx context.Context, st *runState, requests []checkpointRequest) *PipelineResult {
	for _, req := range requests {
		cp := e.checkpoints.Raise(st.result.RunID, req.nodeID, req.outputKey, req.message, req.payload)
		st.result.Checkpoints = append(st.result.Checkpoints, cp)
		if e.collector != nil {
			e.collector.RecordCheckpointRaised()
		}
	}
	st.result.Status = RunStatusAwaitingCheckpoint

	e.mu.Lock()
	e.active[st.result.RunID] = st
	e.mu.Unlock()

	e.persist(ctx, st)
	e.logger.Info("run awaiting checkpoint",
		zap.String("run_id", st.result.RunID),
		zap.Int("pending", len(requests)),
	)
	return st.result
}

// finish computes the terminal status for a run that dispatched every
// node: completed when nothing failed, partially_completed when at least
// one node failed but at least one succeeded, failed otherwise.
func (e *Executor) finish(ctx context.Context, st *runState) *PipelineResult {
	succeeded, failed, _ := st.result.counts()
	switch {
	case failed == 0:
		st.result.Status = RunStatusCompleted
	case succeeded > 0:
		st.result.Status = RunStatusPartiallyCompleted
		st.result.Error = fmt.Sprintf("%d of %d nodes failed", failed, len(st.result.NodeResults))
	default:
		st.result.Status = RunStatusFailed
		st.result.Error = fmt.Sprintf("%d of %d nodes failed", failed, len(st.result.NodeResults))
	}
	return e.seal(ctx, st)
}

// finishFailed aborts a fail-fast run: every undispatched node is marked
// skipped and the run ends failed.
func (e *Executor) finishFailed(ctx context.Context, st *runState, reason string) *PipelineResult {
	e.skipRemaining(st)
	st.result.Status = RunStatusFailed
	st.result.Error = reason
	return e.seal(ctx, st)
}

// finishCancelled terminates a run at a dispatch boundary after an
// external cancel signal.
func (e *Executor) finishCancelled(ctx context.Context, st *runState) *PipelineResult {
	e.skipRemaining(st)
	e.checkpoints.Drop(st.result.RunID)
	st.result.Status = RunStatusCancelled
	st.result.Error = (&RunCancelledError{RunID: st.result.RunID}).Error()
	return e.seal(ctx, st)
}

func (e *Executor) skipRemaining(st *runState) {
	nodes := st.def.Nodes()
	now := time.Now()
	for ; st.next < len(nodes); st.next++ {
		node := nodes[st.next]
		nr := &NodeResult{
			NodeID:      node.NodeID(),
			Kind:        node.NodeKind(),
			State:       NodeStateSkipped,
			StartedAt:   now,
			CompletedAt: now,
		}
		st.result.NodeResults = append(st.result.NodeResults, nr)
		e.recordNode(nr)
	}
}

// seal stamps completion, persists, releases parked state, and records
// run metrics.
func (e *Executor) seal(ctx context.Context, st *runState) *PipelineResult {
	st.result.CompletedAt = time.Now()

	e.mu.Lock()
	delete(e.active, st.result.RunID)
	e.mu.Unlock()

	e.persist(ctx, st)

	duration := st.result.CompletedAt.Sub(st.result.StartedAt)
	if e.collector != nil {
		e.collector.RecordRun(st.result.Pipeline, string(st.result.Status), duration)
	}
	e.logger.Info("run finished",
		zap.String("run_id", st.result.RunID),
		zap.String("status", string(st.result.Status)),
		zap.Duration("duration", duration),
	)
	return st.result
}

// persist refreshes the result's context snapshot and resume cursor,
// then saves the run durably. Saving survives a cancelled run context; a
// store error is logged, not fatal to the run.
func (e *Executor) persist(ctx context.Context, st *runState) {
	st.result.FinalContext = st.ctx.Snapshot()
	st.result.NextNode = st.next

	if e.history == nil {
		return
	}
	if err := e.history.Save(context.WithoutCancel(ctx), st.result); err != nil {
		e.logger.Error("failed to persist run",
			zap.String("run_id", st.result.RunID),
			zap.Error(err),
		)
	}
}

func (e *Executor) recordNode(nr *NodeResult) {
	if e.collector != nil {
		e.collector.RecordNode(string(nr.Kind), string(nr.State))
	}
}
