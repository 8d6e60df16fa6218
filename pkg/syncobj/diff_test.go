package syncobj

import (
	"testing"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNormalize(t *testing.T, v interface{}) interface{} {
	t.Helper()

	tree, err := Normalize(v)
	require.NoError(t, err)

	return tree
}

func TestDiffEmptyForIdenticalTrees(t *testing.T) {
	tree := mustNormalize(t, map[string]interface{}{"a": 1, "b": []string{"x", "y"}})
	ops := Diff(tree, mustNormalize(t, map[string]interface{}{"a": 1, "b": []string{"x", "y"}}))
	assert.Empty(t, ops)
}

func TestDiffScalarReplace(t *testing.T) {
	ops := Diff(mustNormalize(t, map[string]int{"n": 1}), mustNormalize(t, map[string]int{"n": 2}))
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Op)
	assert.Equal(t, "/n", ops[0].Path)
}

func TestDiffAddRemoveKeys(t *testing.T) {
	prev := mustNormalize(t, map[string]int{"keep": 1, "gone": 2})
	next := mustNormalize(t, map[string]int{"keep": 1, "new": 3})

	ops := Diff(prev, next)
	require.Len(t, ops, 2)

	byPath := make(map[string]models.PatchOp)
	for _, op := range ops {
		byPath[op.Path] = op
	}

	assert.Equal(t, "remove", byPath["/gone"].Op)
	assert.Equal(t, "add", byPath["/new"].Op)
}

func TestDiffSliceGrowShrink(t *testing.T) {
	prev := mustNormalize(t, []int{1, 2, 3})
	next := mustNormalize(t, []int{1, 9})

	ops := Diff(prev, next)
	applied, err := Apply(mustNormalize(t, []int{1, 2, 3}), ops)
	require.NoError(t, err)
	assert.Equal(t, next, applied)
}

func TestReplayEquivalence(t *testing.T) {
	type flow struct {
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}

	type state struct {
		Alias  string            `json:"alias"`
		Hidden bool              `json:"hidden"`
		Flows  []flow            `json:"flows"`
		Tags   map[string]string `json:"tags"`
	}

	states := []state{
		{Alias: "cam1", Flows: []flow{{ID: "f1", Enabled: true}}},
		{Alias: "cam1", Flows: []flow{{ID: "f1", Enabled: true}, {ID: "f2"}}},
		{Alias: "camera one", Hidden: true, Flows: []flow{{ID: "f2"}}, Tags: map[string]string{"room": "mcr"}},
		{Alias: "camera one", Flows: nil, Tags: map[string]string{"room": "mcr", "rack": "4"}},
		{},
	}

	// Replay from the initial snapshot through every diff; the
	// reconstructed tree must match the authoritative snapshot at each step.
	replica := mustNormalize(t, states[0])
	authoritative := mustNormalize(t, states[0])

	for _, next := range states[1:] {
		nextTree := mustNormalize(t, next)
		ops := Diff(authoritative, nextTree)

		var err error
		replica, err = Apply(replica, ops)
		require.NoError(t, err)

		assert.Equal(t, nextTree, replica)
		authoritative = nextTree
	}
}

func TestDiffEscapedKeys(t *testing.T) {
	prev := mustNormalize(t, map[string]int{"a/b": 1})
	next := mustNormalize(t, map[string]int{"a/b": 2})

	ops := Diff(prev, next)
	require.Len(t, ops, 1)
	assert.Equal(t, "/a~1b", ops[0].Path)

	applied, err := Apply(mustNormalize(t, map[string]int{"a/b": 1}), ops)
	require.NoError(t, err)
	assert.Equal(t, next, applied)
}

func TestDiffTypeChangeReplacesSubtree(t *testing.T) {
	prev := mustNormalize(t, map[string]interface{}{"v": []int{1}})
	next := mustNormalize(t, map[string]interface{}{"v": map[string]int{"n": 1}})

	ops := Diff(prev, next)
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Op)
	assert.Equal(t, "/v", ops[0].Path)
}
