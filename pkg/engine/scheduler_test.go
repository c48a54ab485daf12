package engine_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibenedetto/meshade/pkg/engine"
	"github.com/dibenedetto/meshade/pkg/executor"
	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/models"
)

const testExprCacheCapacity = 64

// newTestEngine wires an isolated Engine with every builtin node kind
// registered, matching spec §9's "tests must be able to instantiate an
// isolated engine without touching module-level state" design note.
func newTestEngine(t *testing.T) (*engine.Engine, *eventbus.Bus) {
	t.Helper()
	manager := executor.NewManager()
	require.NoError(t, builtin.RegisterBuiltins(manager, testExprCacheCapacity))
	bus := eventbus.New(100, nil)
	return engine.New(manager, bus), bus
}

func toInt(t *testing.T, v any) int {
	t.Helper()
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		t.Fatalf("value %v (%T) is not numeric", v, v)
		return 0
	}
}

// Scenario 1: linear pipeline start -> transform(x*2) -> end.
func TestLinearPipeline(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "linear",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "double", Type: "transform_node", Config: map[string]any{"expression": "source.x * 2"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 1, SourceSlot: "target", TargetNodeIdx: 2, TargetSlot: "end"},
		},
		Variables: map[string]any{"x": 3},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	assert.Equal(t, models.PhaseCompleted, state.Phase)
	require.Len(t, state.Nodes, 3)
	assert.Equal(t, 6, toInt(t, state.Nodes[2].Output["end"]))
}

// pollTerminal polls Engine.Status until the execution reaches a terminal
// phase, bounded by a deadline.
func pollTerminal(t *testing.T, eng *engine.Engine, executionID string) models.ExecutionState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := eng.Status(executionID)
		require.NoError(t, err)
		if state.Phase == models.PhaseCompleted || state.Phase == models.PhaseFailed || state.Phase == models.PhaseCancelled {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution %s never reached a terminal phase (last: %s)", executionID, state.Phase)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Scenario 2: parallel fan-out into two independent transforms, merged
// (strategy "all") before the end node.
func TestParallelFanOutMerge(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "fanout",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "add1", Type: "transform_node", Config: map[string]any{"expression": "source.x + 1"}},
			{ID: "add10", Type: "transform_node", Config: map[string]any{"expression": "source.x + 10"}},
			{ID: "merge", Type: "merge_node", Config: map[string]any{"merge_strategy": "all"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 2, TargetSlot: "source"},
			{SourceNodeIdx: 1, SourceSlot: "target", TargetNodeIdx: 3, TargetSlot: "sources.a"},
			{SourceNodeIdx: 2, SourceSlot: "target", TargetNodeIdx: 3, TargetSlot: "sources.b"},
			{SourceNodeIdx: 3, SourceSlot: "target", TargetNodeIdx: 4, TargetSlot: "end"},
		},
		Variables: map[string]any{"x": 0},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	require.Equal(t, models.PhaseCompleted, state.Phase)
	merged, ok := state.Nodes[4].Output["end"].([]any)
	require.True(t, ok, "expected merged output to be a slice, got %#v", state.Nodes[4].Output["end"])
	require.Len(t, merged, 2)
	assert.Equal(t, 1, toInt(t, merged[0]))
	assert.Equal(t, 10, toInt(t, merged[1]))
}

// Scenario 3: switch_node routes to a declared case; the two downstream
// branches both run (the scheduler admits a node once its deps complete,
// independent of which case fired), and a merge (strategy "first") settles
// on the branch wired first.
func TestSwitchRoutesToCase(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "switch",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "route", Type: "switch_node", Config: map[string]any{
				"expression": `value.n > 0 ? "ok" : "no"`,
				"cases":      map[string]any{"ok": struct{}{}, "no": struct{}{}},
			}},
			{ID: "ok_branch", Type: "transform_node", Config: map[string]any{"expression": `"ok-branch"`}},
			{ID: "no_branch", Type: "transform_node", Config: map[string]any{"expression": `"no-branch"`}},
			{ID: "merge", Type: "merge_node", Config: map[string]any{"merge_strategy": "first"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "value"},
			{SourceNodeIdx: 1, SourceSlot: "cases.ok", TargetNodeIdx: 2, TargetSlot: "source"},
			{SourceNodeIdx: 1, SourceSlot: "cases.no", TargetNodeIdx: 3, TargetSlot: "source"},
			{SourceNodeIdx: 2, SourceSlot: "target", TargetNodeIdx: 4, TargetSlot: "sources.a"},
			{SourceNodeIdx: 3, SourceSlot: "target", TargetNodeIdx: 4, TargetSlot: "sources.b"},
			{SourceNodeIdx: 4, SourceSlot: "target", TargetNodeIdx: 5, TargetSlot: "end"},
		},
		Variables: map[string]any{"n": 5},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	require.Equal(t, models.PhaseCompleted, state.Phase)
	assert.Equal(t, "ok-branch", state.Nodes[5].Output["end"])
}

// Scenario 4: one branch fails; its failure does not cascade to unrelated
// branches, which still complete.
func TestFailureIsolation(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "isolation",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "bad", Type: "transform_node", Config: map[string]any{"expression": "no_such_identifier"}},
			{ID: "good", Type: "transform_node", Config: map[string]any{"expression": "source.x"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 2, TargetSlot: "source"},
			{SourceNodeIdx: 2, SourceSlot: "target", TargetNodeIdx: 3, TargetSlot: "end"},
		},
		Variables: map[string]any{"x": 42},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	require.Equal(t, models.PhaseFailed, state.Phase)
	assert.Contains(t, state.Failed, 1)
	assert.Contains(t, state.Completed, 0)
	assert.Contains(t, state.Completed, 2)
	assert.Contains(t, state.Completed, 3)
	assert.Empty(t, state.Pending)
	assert.Equal(t, 42, toInt(t, state.Nodes[3].Output["end"]))
}

// Scenario 5: a user_input_node suspends the execution; cancelling it while
// the node waits resolves Await via the execution's own context and settles
// the execution as cancelled, never as failed.
func TestUserInputCancel(t *testing.T) {
	eng, bus := newTestEngine(t)

	wf := &models.Workflow{
		Name: "user-input",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "ask", Type: "user_input_node", Config: map[string]any{"timeout": 60}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "trigger"},
			{SourceNodeIdx: 1, SourceSlot: "value", TargetNodeIdx: 2, TargetSlot: "end"},
		},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	requested := make(chan struct{}, 1)
	received := 0
	subID := bus.Subscribe("*", func(e models.Event) {
		switch e.Type {
		case models.EventUserInputRequested:
			select {
			case requested <- struct{}{}:
			default:
			}
		case models.EventUserInputReceived:
			received++
		}
	})
	defer bus.Unsubscribe(subID)

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)

	select {
	case <-requested:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for user.input_requested")
	}

	_, err = eng.Cancel(executionID)
	require.NoError(t, err)

	state := pollTerminal(t, eng, executionID)
	assert.Equal(t, models.PhaseCancelled, state.Phase)
	assert.Zero(t, received, "provide_user_input was never called, so no user.input_received should fire")

	// Cancel is idempotent (P5): calling it again must not panic or change
	// the settled terminal state.
	state2, err := eng.Cancel(executionID)
	require.NoError(t, err)
	assert.Equal(t, state.Phase, state2.Phase)
}

// Scenario 6: a downstream node's only dependency fails, leaving it
// permanently pending — a deadlock, not a cascading failure.
func TestDeadlockDetection(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "deadlock",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "bad", Type: "transform_node", Config: map[string]any{"expression": "no_such_identifier"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 1, SourceSlot: "target", TargetNodeIdx: 2, TargetSlot: "end"},
		},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	require.Equal(t, models.PhaseFailed, state.Phase)
	assert.Equal(t, "deadlock / failed dependency", state.Error)
	assert.Contains(t, state.Pending, 2)
	assert.Contains(t, state.Failed, 1)
}

// Edge filters (spec §4.6) gate whether a value crosses an edge at all: a
// filter that evaluates false drops the edge silently rather than setting
// the target's input slot, while a filter that evaluates true lets the
// value through unchanged.
func TestEdgeFilterGatesValue(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "edge-filter",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "pick", Type: "transform_node", Config: map[string]any{"expression": "source.x"}},
			{ID: "merge", Type: "merge_node", Config: map[string]any{"merge_strategy": "all"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 1, SourceSlot: "target", TargetNodeIdx: 2, TargetSlot: "sources.passes", Filter: "value > 10"},
			{SourceNodeIdx: 1, SourceSlot: "target", TargetNodeIdx: 2, TargetSlot: "sources.blocked", Filter: "value > 100"},
			{SourceNodeIdx: 2, SourceSlot: "target", TargetNodeIdx: 3, TargetSlot: "end"},
		},
		Variables: map[string]any{"x": 20},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	require.Equal(t, models.PhaseCompleted, state.Phase)
	merged, ok := state.Nodes[3].Output["end"].([]any)
	require.True(t, ok, "expected merged output to be a slice, got %#v", state.Nodes[3].Output["end"])
	require.Len(t, merged, 1, "the sources.blocked edge's filter should have dropped that value entirely")
	assert.Equal(t, 20, toInt(t, merged[0]))
}

// P1: completed and failed are always a disjoint union covering every
// executable node once an execution settles.
func TestCompletedFailedDisjointUnion(t *testing.T) {
	eng, _ := newTestEngine(t)

	wf := &models.Workflow{
		Name: "disjoint",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "bad", Type: "transform_node", Config: map[string]any{"expression": "no_such_identifier"}},
			{ID: "good", Type: "transform_node", Config: map[string]any{"expression": "source.x"}},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 2, TargetSlot: "source"},
		},
		Variables: map[string]any{"x": 1},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	state := pollTerminal(t, eng, executionID)

	seen := make(map[int]bool)
	for _, idx := range state.Completed {
		assert.False(t, seen[idx], "node %d reported in more than one terminal set", idx)
		seen[idx] = true
	}
	for _, idx := range state.Failed {
		assert.False(t, seen[idx], "node %d reported in more than one terminal set", idx)
		seen[idx] = true
	}
	assert.Len(t, seen, len(wf.Nodes))
}

// P3: a settled execution never reports more than one node.started per node.
func TestNoDuplicateNodeStarted(t *testing.T) {
	eng, bus := newTestEngine(t)

	wf := &models.Workflow{
		Name: "no-dup-start",
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "t1", Type: "transform_node", Config: map[string]any{"expression": "source.x"}},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "source"},
			{SourceNodeIdx: 1, SourceSlot: "target", TargetNodeIdx: 2, TargetSlot: "end"},
		},
		Variables: map[string]any{"x": 1},
	}
	require.NoError(t, wf.Link(builtin.KnownKinds()))

	starts := make(map[string]int)
	var mu sync.Mutex
	subID := bus.Subscribe(models.EventNodeStarted, func(e models.Event) {
		mu.Lock()
		starts[e.SourceNodeID]++
		mu.Unlock()
	})
	defer bus.Unsubscribe(subID)

	executionID, err := eng.Start(wf, nil, nil)
	require.NoError(t, err)
	pollTerminal(t, eng, executionID)

	mu.Lock()
	defer mu.Unlock()
	for nodeID, count := range starts {
		assert.Equal(t, 1, count, "node %s reported node.started %d times", nodeID, count)
	}
}
