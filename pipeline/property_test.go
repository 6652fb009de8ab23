package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/lexflow/lexflow/agent"
	"github.com/lexflow/lexflow/pipeline"
)

// runGroup executes a single parallel group whose members deterministically
// succeed or fail per the outcomes slice, and reports the group node result.
func runGroup(t *testing.T, outcomes []bool, strategy pipeline.MergeStrategy) *pipeline.NodeResult {
	t.Helper()

	registry := agent.NewRegistry(nil)
	steps := make([]*pipeline.Step, len(outcomes))
	for i, succeed := range outcomes {
		id := fmt.Sprintf("member_%d", i)
		ok := succeed
		if err := registry.Register(agent.NewFuncAgent(id, func(ctx context.Context, task string, input map[string]any) (*agent.Result, error) {
			if !ok {
				return nil, fmt.Errorf("%s failed", id)
			}
			return &agent.Result{Outcome: agent.OutcomeSucceeded, Output: id}, nil
		})); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		steps[i] = pipeline.NewStep(id, "member task", fmt.Sprintf("out_%d", i))
	}

	def, err := pipeline.NewPipelineBuilder("property").
		AddParallelGroup(steps, strategy, 0).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	opts := testOptions()
	opts.FailFast = false
	exec := pipeline.NewExecutor(registry, nil, opts, nil)
	result, err := exec.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return result.NodeResults[0]
}

func countTrue(outcomes []bool) int {
	n := 0
	for _, b := range outcomes {
		if b {
			n++
		}
	}
	return n
}

func TestMergeStrategyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	outcomesGen := gen.SliceOfN(5, gen.Bool()).SuchThat(func(v []bool) bool {
		return len(v) > 0
	})

	properties.Property("all succeeds iff every member succeeds", prop.ForAll(
		func(outcomes []bool) bool {
			group := runGroup(t, outcomes, pipeline.MergeAll)
			want := countTrue(outcomes) == len(outcomes)
			return (group.State == pipeline.NodeStateSucceeded) == want
		},
		outcomesGen,
	))

	properties.Property("first_success succeeds iff any member succeeds", prop.ForAll(
		func(outcomes []bool) bool {
			group := runGroup(t, outcomes, pipeline.MergeFirstSuccess)
			want := countTrue(outcomes) > 0
			return (group.State == pipeline.NodeStateSucceeded) == want
		},
		outcomesGen,
	))

	properties.Property("majority succeeds iff successes exceed half", prop.ForAll(
		func(outcomes []bool) bool {
			group := runGroup(t, outcomes, pipeline.MergeMajority)
			want := countTrue(outcomes) > len(outcomes)/2
			return (group.State == pipeline.NodeStateSucceeded) == want
		},
		outcomesGen,
	))

	properties.Property("only successful members merge their outputs", prop.ForAll(
		func(outcomes []bool) bool {
			group := runGroup(t, outcomes, pipeline.MergeAll)
			for i, succeed := range outcomes {
				member := pipeline.FindNodeResult(group.Members, fmt.Sprintf("out_%d", i))
				if member == nil {
					return false
				}
				wantState := pipeline.NodeStateFailed
				if succeed {
					wantState = pipeline.NodeStateSucceeded
				}
				if member.State != wantState {
					return false
				}
			}
			return true
		},
		outcomesGen,
	))

	properties.TestingRun(t)
}

func TestContextKeyCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	// A run of n always-succeeding steps grows the context by exactly n keys.
	properties.Property("each successful step adds exactly one key", prop.ForAll(
		func(n int) bool {
			registry := agent.NewRegistry(nil)
			b := pipeline.NewPipelineBuilder("growth")
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("agent_%d", i)
				if err := registry.Register(okAgent(id, i)); err != nil {
					return false
				}
				b.AddStep(id, "task", fmt.Sprintf("key_%d", i))
			}
			def, err := b.Build()
			if err != nil {
				return false
			}

			exec := pipeline.NewExecutor(registry, nil, testOptions(), nil)
			result, err := exec.Execute(context.Background(), def, map[string]any{"seed": true})
			if err != nil {
				return false
			}
			return result.Status == pipeline.RunStatusCompleted && len(result.FinalContext) == n+1
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
