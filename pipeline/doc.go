// Package pipeline implements a multi-step orchestration engine for
// agent tasks: sequential steps, parallel step groups with merge
// policies (all, first_success, majority), conditional branching,
// dynamic routing, per-step retry and timeout budgets, and
// human-in-the-loop checkpoints that durably suspend a run until a
// resume decision arrives.
//
// A run is assembled with PipelineBuilder, executed by Executor, and
// produces a PipelineResult enumerating every node's terminal state, the
// full checkpoint history, and the final execution context. Step outputs
// flow through an append-only keyed ExecutionContext; later steps read
// earlier outputs through explicit input mappings.
package pipeline
