package pipeline

// Test-only aliases so the external pipeline_test package can reach
// unexported helpers.
var (
	LookupPath     = lookupPath
	FindNodeResult = findNodeResult
)
