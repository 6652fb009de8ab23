package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_AppendOnly(t *testing.T) {
	ctx := NewExecutionContext(nil)

	require.NoError(t, ctx.Set("research", "findings"))

	err := ctx.Set("research", "other findings")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyConflict)

	v, ok := ctx.Get("research")
	require.True(t, ok)
	assert.Equal(t, "findings", v, "conflicting write must not clobber the original")
}

func TestExecutionContext_EmptyKeyRejected(t *testing.T) {
	ctx := NewExecutionContext(nil)
	assert.ErrorIs(t, ctx.Set("", "value"), ErrKeyConflict)
}

func TestExecutionContext_InitialValuesCopied(t *testing.T) {
	initial := map[string]any{"matter_id": "M-1042"}
	ctx := NewExecutionContext(initial)

	initial["matter_id"] = "mutated"

	v, ok := ctx.Get("matter_id")
	require.True(t, ok)
	assert.Equal(t, "M-1042", v)
}

func TestExecutionContext_Replace(t *testing.T) {
	ctx := NewExecutionContext(nil)
	require.NoError(t, ctx.Set("draft", "v1"))

	require.NoError(t, ctx.replace("draft", "v2"))
	v, _ := ctx.Get("draft")
	assert.Equal(t, "v2", v)

	assert.ErrorIs(t, ctx.replace("never_written", "x"), ErrKeyNotFound)
}

func TestExecutionContext_SnapshotIsolation(t *testing.T) {
	ctx := NewExecutionContext(map[string]any{"a": 1})

	snap := ctx.Snapshot()
	require.NoError(t, ctx.Set("b", 2))

	assert.Len(t, snap, 1, "snapshot must not see later writes")
	assert.Equal(t, 2, ctx.Len())

	snap["c"] = 3
	_, ok := ctx.Get("c")
	assert.False(t, ok, "mutating a snapshot must not leak into the context")
}

func TestExecutionContext_ConcurrentDistinctWriters(t *testing.T) {
	ctx := NewExecutionContext(nil)

	const writers = 32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, ctx.Set(fmt.Sprintf("key_%d", i), i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, writers, ctx.Len())
}

func TestLookupPath(t *testing.T) {
	values := map[string]any{
		"research": map[string]any{
			"citations": map[string]any{"count": 7},
			"sources":   []string{"a", "b"},
		},
		"flat": "value",
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"flat", "value", true},
		{"research.citations.count", 7, true},
		{"research.sources", []string{"a", "b"}, true},
		{"research.citations.missing", nil, false},
		{"research.sources.0", nil, false}, // slices are not descended
		{"absent.deep.path", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		v, ok := lookupPath(values, tt.path)
		assert.Equal(t, tt.found, ok, "path %q", tt.path)
		if tt.found {
			assert.Equal(t, tt.want, v, "path %q", tt.path)
		}
	}
}

func TestApplyInputMapping(t *testing.T) {
	values := map[string]any{
		"research": map[string]any{"summary": "short"},
	}

	input := applyInputMapping(values, map[string]string{
		"brief":   "research.summary",
		"missing": "research.absent",
	})

	assert.Equal(t, "short", input["brief"])
	v, ok := input["missing"]
	assert.True(t, ok, "missing paths still produce a key")
	assert.Nil(t, v)

	assert.Empty(t, applyInputMapping(values, nil))
}
