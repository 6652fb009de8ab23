package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_Terminal(t *testing.T) {
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusPartiallyCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusCancelled.Terminal())

	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusInProgress.Terminal())
	assert.False(t, RunStatusAwaitingCheckpoint.Terminal())
}

func TestNodeResultByID_Recursive(t *testing.T) {
	r := &PipelineResult{
		NodeResults: []*NodeResult{
			{NodeID: "screening", Kind: NodeKindStep},
			{
				NodeID: "group_1",
				Kind:   NodeKindParallel,
				Members: []*NodeResult{
					{NodeID: "citations", Kind: NodeKindStep},
					{NodeID: "risk", Kind: NodeKindStep},
				},
			},
			{
				NodeID: "gate",
				Kind:   NodeKindConditional,
				Members: []*NodeResult{
					{NodeID: "deep_review", Kind: NodeKindStep},
				},
			},
		},
	}

	require.NotNil(t, r.NodeResultByID("screening"))
	assert.Equal(t, "risk", r.NodeResultByID("risk").NodeID)
	assert.Equal(t, "deep_review", r.NodeResultByID("deep_review").NodeID)
	assert.Nil(t, r.NodeResultByID("absent"))
}

func TestPipelineResult_Counts(t *testing.T) {
	r := &PipelineResult{
		NodeResults: []*NodeResult{
			{NodeID: "a", State: NodeStateSucceeded},
			{NodeID: "b", State: NodeStateSucceeded},
			{NodeID: "c", State: NodeStateFailed},
			{NodeID: "d", State: NodeStateSkipped},
		},
	}
	succeeded, failed, skipped := r.counts()
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
}
