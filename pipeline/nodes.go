package pipeline

import "time"

// NodeKind discriminates the four pipeline node types.
type NodeKind string

const (
	NodeKindStep        NodeKind = "step"
	NodeKindParallel    NodeKind = "parallel_group"
	NodeKindConditional NodeKind = "conditional"
	NodeKindRouter      NodeKind = "router"
)

// Node is a single entry in a pipeline definition.
type Node interface {
	// NodeID returns the identifier node results and checkpoints are
	// tagged with. A step is identified by its output key.
	NodeID() string
	// NodeKind returns the node's type discriminator.
	NodeKind() NodeKind
}

// Step binds one agent invocation to one context output key. Timeout and
// MaxRetries fall back to the run options when left at their zero values
// (UnsetRetries for MaxRetries, 0 for Timeout).
type Step struct {
	AgentID            string
	Task               string
	OutputKey          string
	InputMapping       map[string]string
	RequiresCheckpoint bool
	Timeout            time.Duration
	MaxRetries         int
}

// UnsetRetries marks a step that inherits the run's default retry count.
const UnsetRetries = -1

// NewStep creates a step with the retry count unset so the run default
// applies. Used directly when assembling parallel group members.
func NewStep(agentID, task, outputKey string) *Step {
	return &Step{
		AgentID:    agentID,
		Task:       task,
		OutputKey:  outputKey,
		MaxRetries: UnsetRetries,
	}
}

func (s *Step) NodeID() string {
	return s.OutputKey
}

func (s *Step) NodeKind() NodeKind {
	return NodeKindStep
}

// MergeStrategy is the rule resolving a parallel group's terminal state
// from its members' outcomes.
type MergeStrategy string

const (
	// MergeAll resolves only once every member reaches a terminal state
	// and fails if any member fails.
	MergeAll MergeStrategy = "all"
	// MergeFirstSuccess resolves as soon as one member succeeds; the
	// remaining members are cancelled best-effort. The group fails only
	// if every member fails.
	MergeFirstSuccess MergeStrategy = "first_success"
	// MergeMajority resolves once more than half of the members have
	// succeeded, or fails once more than half have failed, whichever
	// threshold is crossed first.
	MergeMajority MergeStrategy = "majority"
)

// ValidMergeStrategy reports whether s is one of the known strategies.
func ValidMergeStrategy(s MergeStrategy) bool {
	switch s {
	case MergeAll, MergeFirstSuccess, MergeMajority:
		return true
	}
	return false
}

// ParallelGroup runs its member steps concurrently against a snapshot of
// the context taken when the group starts. Every member that succeeded
// before the group resolved merges its output into the context under its
// own output key, whatever the group's own terminal state.
type ParallelGroup struct {
	GroupID  string
	Steps    []*Step
	Strategy MergeStrategy
	Timeout  time.Duration

	// ResolveOnTimeout controls a majority group whose timeout fires
	// before either threshold is crossed: false (default) resolves the
	// group as failed, true resolves it with whatever member successes
	// exist at that point.
	ResolveOnTimeout bool
}

func (g *ParallelGroup) NodeID() string {
	return g.GroupID
}

func (g *ParallelGroup) NodeKind() NodeKind {
	return NodeKindParallel
}

// Condition is a predicate over a read snapshot of the context.
type Condition func(snapshot map[string]any) bool

// ConditionalNode evaluates its predicate exactly once and dispatches
// exactly one of Then/Else. A nil Else with a false predicate skips the
// node.
type ConditionalNode struct {
	ID        string
	Predicate Condition
	Then      Node
	Else      Node
}

func (n *ConditionalNode) NodeID() string {
	return n.ID
}

func (n *ConditionalNode) NodeKind() NodeKind {
	return NodeKindConditional
}

// RouteFunc computes a route key from a read snapshot of the context.
type RouteFunc func(snapshot map[string]any) string

// RouterNode evaluates its route function exactly once and dispatches
// the matched route, or Default when the computed key has no entry.
type RouterNode struct {
	ID      string
	Route   RouteFunc
	Routes  map[string]Node
	Default Node
}

func (n *RouterNode) NodeID() string {
	return n.ID
}

func (n *RouterNode) NodeKind() NodeKind {
	return NodeKindRouter
}
