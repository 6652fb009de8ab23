package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// PipelineDefinition is an ordered, immutable sequence of nodes produced
// by Build. Definitions are safe for concurrent reuse across runs.
type PipelineDefinition struct {
	name  string
	nodes []Node
}

// Name returns the pipeline name.
func (d *PipelineDefinition) Name() string {
	return d.name
}

// Nodes returns a copy of the node sequence.
func (d *PipelineDefinition) Nodes() []Node {
	nodes := make([]Node, len(d.nodes))
	copy(nodes, d.nodes)
	return nodes
}

// Len returns the number of top-level nodes.
func (d *PipelineDefinition) Len() int {
	return len(d.nodes)
}

// AgentIDs returns every agent ID referenced anywhere in the definition,
// including group members and branch nodes, for up-front registry
// validation.
func (d *PipelineDefinition) AgentIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	var walk func(n Node)
	walk = func(n Node) {
		switch node := n.(type) {
		case *Step:
			if !seen[node.AgentID] {
				seen[node.AgentID] = true
				ids = append(ids, node.AgentID)
			}
		case *ParallelGroup:
			for _, s := range node.Steps {
				walk(s)
			}
		case *ConditionalNode:
			if node.Then != nil {
				walk(node.Then)
			}
			if node.Else != nil {
				walk(node.Else)
			}
		case *RouterNode:
			for _, route := range node.Routes {
				walk(route)
			}
			if node.Default != nil {
				walk(node.Default)
			}
		}
	}
	for _, n := range d.nodes {
		walk(n)
	}
	return ids
}

// PipelineBuilder assembles a PipelineDefinition fluently. Modifier calls
// (WithInputMapping, WithCheckpoint, WithTimeout, WithRetry) decorate the
// most-recently-added node; validation problems are collected and
// reported together from Build.
type PipelineBuilder struct {
	name   string
	nodes  []Node
	groups int
	errs   []error
}

// NewPipelineBuilder starts a builder for a named pipeline.
func NewPipelineBuilder(name string) *PipelineBuilder {
	return &PipelineBuilder{name: name}
}

// AddStep appends a step binding agentID to outputKey.
func (b *PipelineBuilder) AddStep(agentID, task, outputKey string) *PipelineBuilder {
	b.nodes = append(b.nodes, NewStep(agentID, task, outputKey))
	return b
}

// lastStep returns the most-recently-added node as a step, recording a
// dangling-modifier error when there is none.
func (b *PipelineBuilder) lastStep(modifier string) *Step {
	if len(b.nodes) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDanglingModifier, modifier))
		return nil
	}
	step, ok := b.nodes[len(b.nodes)-1].(*Step)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %s applies to steps, last node is a %s",
			ErrDanglingModifier, modifier, b.nodes[len(b.nodes)-1].NodeKind()))
		return nil
	}
	return step
}

// WithInputMapping sets the preceding step's target -> source-path map.
func (b *PipelineBuilder) WithInputMapping(mapping map[string]string) *PipelineBuilder {
	if step := b.lastStep("WithInputMapping"); step != nil {
		step.InputMapping = mapping
	}
	return b
}

// WithCheckpoint flags the preceding step as a human decision point.
func (b *PipelineBuilder) WithCheckpoint() *PipelineBuilder {
	if step := b.lastStep("WithCheckpoint"); step != nil {
		step.RequiresCheckpoint = true
	}
	return b
}

// WithTimeout sets the per-attempt timeout on the preceding step, or the
// overall timeout on the preceding parallel group.
func (b *PipelineBuilder) WithTimeout(d time.Duration) *PipelineBuilder {
	if len(b.nodes) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: WithTimeout", ErrDanglingModifier))
		return b
	}
	switch node := b.nodes[len(b.nodes)-1].(type) {
	case *Step:
		node.Timeout = d
	case *ParallelGroup:
		node.Timeout = d
	default:
		b.errs = append(b.errs, fmt.Errorf("%w: WithTimeout applies to steps and parallel groups, last node is a %s",
			ErrDanglingModifier, node.NodeKind()))
	}
	return b
}

// WithRetry sets the preceding step's transient-failure retry budget.
func (b *PipelineBuilder) WithRetry(count int) *PipelineBuilder {
	if step := b.lastStep("WithRetry"); step != nil {
		if count < 0 {
			count = 0
		}
		step.MaxRetries = count
	}
	return b
}

// AddParallelGroup appends a group of concurrently-executed steps with a
// merge strategy. A zero timeout means the group has no overall deadline.
func (b *PipelineBuilder) AddParallelGroup(steps []*Step, strategy MergeStrategy, timeout time.Duration) *PipelineBuilder {
	b.groups++
	b.nodes = append(b.nodes, &ParallelGroup{
		GroupID:  fmt.Sprintf("group_%d", b.groups),
		Steps:    steps,
		Strategy: strategy,
		Timeout:  timeout,
	})
	return b
}

// AddNamedParallelGroup is AddParallelGroup with an explicit group ID.
func (b *PipelineBuilder) AddNamedParallelGroup(groupID string, steps []*Step, strategy MergeStrategy, timeout time.Duration) *PipelineBuilder {
	b.groups++
	b.nodes = append(b.nodes, &ParallelGroup{
		GroupID:  groupID,
		Steps:    steps,
		Strategy: strategy,
		Timeout:  timeout,
	})
	return b
}

// WithResolveOnTimeout lets the preceding majority group resolve with
// whatever member successes exist when its timeout fires, instead of
// failing outright.
func (b *PipelineBuilder) WithResolveOnTimeout() *PipelineBuilder {
	if len(b.nodes) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: WithResolveOnTimeout", ErrDanglingModifier))
		return b
	}
	group, ok := b.nodes[len(b.nodes)-1].(*ParallelGroup)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: WithResolveOnTimeout applies to parallel groups, last node is a %s",
			ErrDanglingModifier, b.nodes[len(b.nodes)-1].NodeKind()))
		return b
	}
	group.ResolveOnTimeout = true
	return b
}

// AddConditionalStep appends a predicate node dispatching step when the
// condition holds, elseStep (may be nil) otherwise.
func (b *PipelineBuilder) AddConditionalStep(id string, cond Condition, step Node, elseStep Node) *PipelineBuilder {
	b.nodes = append(b.nodes, &ConditionalNode{
		ID:        id,
		Predicate: cond,
		Then:      step,
		Else:      elseStep,
	})
	return b
}

// AddRouter appends a dynamic routing node. The default route is a node
// of its own and does not need a key in routes.
func (b *PipelineBuilder) AddRouter(id string, route RouteFunc, routes map[string]Node, defaultRoute Node) *PipelineBuilder {
	b.nodes = append(b.nodes, &RouterNode{
		ID:      id,
		Route:   route,
		Routes:  routes,
		Default: defaultRoute,
	})
	return b
}

// Build validates the assembled definition and returns it. Validation
// failures (duplicate output keys, dangling modifiers, empty groups,
// unknown merge strategies) are fatal and reported synchronously here;
// nothing executes.
func (b *PipelineBuilder) Build() (*PipelineDefinition, error) {
	errs := append([]error(nil), b.errs...)

	if len(b.nodes) == 0 {
		errs = append(errs, ErrEmptyPipeline)
	}

	seen := make(map[string]bool)
	var walk func(n Node)
	walk = func(n Node) {
		switch node := n.(type) {
		case *Step:
			if node.OutputKey == "" {
				errs = append(errs, fmt.Errorf("%w: step for agent %s has empty output key", ErrDuplicateOutputKey, node.AgentID))
				return
			}
			if seen[node.OutputKey] {
				errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateOutputKey, node.OutputKey))
				return
			}
			seen[node.OutputKey] = true
		case *ParallelGroup:
			if len(node.Steps) == 0 {
				errs = append(errs, fmt.Errorf("%w: %s", ErrEmptyParallelGroup, node.GroupID))
			}
			if !ValidMergeStrategy(node.Strategy) {
				errs = append(errs, fmt.Errorf("%w: %q in group %s", ErrInvalidMergeStrategy, node.Strategy, node.GroupID))
			}
			for _, s := range node.Steps {
				walk(s)
			}
		case *ConditionalNode:
			if node.Then != nil {
				walk(node.Then)
			}
			if node.Else != nil {
				walk(node.Else)
			}
		case *RouterNode:
			for _, route := range node.Routes {
				walk(route)
			}
			if node.Default != nil {
				walk(node.Default)
			}
		}
	}
	for _, n := range b.nodes {
		walk(n)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("pipeline validation failed: %w", errors.Join(errs...))
	}

	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	return &PipelineDefinition{name: b.name, nodes: nodes}, nil
}
