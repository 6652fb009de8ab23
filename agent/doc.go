// Package agent defines the unit-of-work contract the pipeline engine
// dispatches against: an Agent receives a task description and a mapped
// input view of the run context and returns a single result. The package
// also provides a typed Registry so every agent ID referenced by a
// pipeline can be resolved and validated before execution starts.
package agent
