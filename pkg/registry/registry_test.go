package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/models"
)

func simpleWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name: name,
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "end"},
		},
	}
}

func TestAddGetListRemove(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	name, err := r.Add(simpleWorkflow("greeter"), "")
	require.NoError(t, err)
	assert.Equal(t, "greeter", name)

	assert.Equal(t, []string{"greeter"}, r.List())

	got, err := r.Get("greeter")
	require.NoError(t, err)
	assert.Equal(t, "greeter", got.Name)
	assert.True(t, got.Linked())

	assert.True(t, r.Remove("greeter"))
	assert.False(t, r.Remove("greeter"))
	assert.Empty(t, r.List())
}

func TestAddAssignsAutoNameWhenBothEmpty(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	wf := simpleWorkflow("")
	name, err := r.Add(wf, "")
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	assert.Contains(t, r.List(), name)
}

func TestAddRejectsUnknownNodeType(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	wf := &models.Workflow{
		Name:  "bogus",
		Nodes: []models.Node{{ID: "n1", Type: "not_a_real_kind"}},
	}
	_, err := r.Add(wf, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)
}

func TestAddRejectsUnsupportedMergeStrategy(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	wf := &models.Workflow{
		Name: "bad-merge",
		Nodes: []models.Node{
			{ID: "m", Type: "merge_node", Config: map[string]any{"merge_strategy": "majority-vote"}},
		},
	}
	_, err := r.Add(wf, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)
}

func TestGetUnknownWorkflow(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	_, err := r.Get("does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWorkflowNotFound)
}

// P6: add(get(W)) names the same workflow as add(W) up to the assigned
// name — round-tripping a workflow through the registry is lossless.
func TestAddGetRoundTrip(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	name, err := r.Add(simpleWorkflow("roundtrip"), "")
	require.NoError(t, err)

	got, err := r.Get(name)
	require.NoError(t, err)

	name2, err := r.Add(got, "")
	require.NoError(t, err)

	assert.Equal(t, name, name2)

	again, err := r.Get(name2)
	require.NoError(t, err)
	assert.Equal(t, got.Nodes, again.Nodes)
	assert.Equal(t, got.Edges, again.Edges)
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	name, err := r.Add(simpleWorkflow("mutation-safe"), "")
	require.NoError(t, err)

	first, err := r.Get(name)
	require.NoError(t, err)
	first.Nodes[0].ID = "mutated"

	second, err := r.Get(name)
	require.NoError(t, err)
	assert.Equal(t, "start", second.Nodes[0].ID)
}

func TestImplInjectsNoopHandles(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	name, err := r.Add(simpleWorkflow("impl-test"), "")
	require.NoError(t, err)

	impl, err := r.Impl(name)
	require.NoError(t, err)
	assert.True(t, impl.Workflow.Linked())
	require.Len(t, impl.Handles, len(impl.Workflow.Nodes))
}

func TestRemoveAllClearsRegistry(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	_, err := r.Add(simpleWorkflow("one"), "")
	require.NoError(t, err)
	_, err = r.Add(simpleWorkflow("two"), "")
	require.NoError(t, err)

	assert.True(t, r.Remove(""))
	assert.Empty(t, r.List())
	assert.False(t, r.Remove(""))
}

func TestImportYAML(t *testing.T) {
	r := New(builtin.KnownKinds(), nil, nil)

	doc := []byte(`
metadata:
  name: yaml-flow
  description: imported from yaml
variables:
  x: 1
nodes:
  - id: start
    type: start_node
  - id: end
    type: end_node
edges:
  - source_node_idx: 0
    source_slot: start
    target_node_idx: 1
    target_slot: end
`)
	name, err := r.ImportYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "yaml-flow", name)

	wf, err := r.Get(name)
	require.NoError(t, err)
	assert.Equal(t, "imported from yaml", wf.Description)
	assert.Equal(t, float64(1), wf.Variables["x"])
}
