package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"

	"github.com/dibenedetto/meshade/pkg/backend"
	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/executor"
	"github.com/dibenedetto/meshade/pkg/models"
)

// newExecutionState builds the Execution Context for one start(), following
// spec §4.4's five steps in order: filter to executable kinds with an
// original-index -> executable-index translation table, build deps/fanout
// (and the incoming-edge lists §4.6 needs) restricted to that subgraph,
// seed the frontier sets, merge variables, and instantiate every node
// through the Node Kind Registry.
func newExecutionState(
	wf *models.Workflow,
	initialData map[string]any,
	manager executor.Manager,
	handles []backend.Handles,
	bus *eventbus.Bus,
	filterCache *builtin.ExprCache,
) (*ExecutionState, error) {
	execIndex := make([]int, len(wf.Nodes))
	var (
		nodeIDs   []string
		nodeTypes []string
		configs   []map[string]any
		executors []executor.Executor
	)
	for i, n := range wf.Nodes {
		if !manager.Has(n.Type) {
			execIndex[i] = -1
			continue
		}
		var h backend.Handles
		if i < len(handles) {
			h = handles[i]
		} else {
			h = backend.NoopHandles()
		}
		exec, err := manager.New(n.Type, len(executors), h)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %s", models.ErrInvalidWorkflow, n.ID, err)
		}
		execIndex[i] = len(executors)
		nodeIDs = append(nodeIDs, n.ID)
		nodeTypes = append(nodeTypes, n.Type)
		configs = append(configs, n.Config)
		executors = append(executors, exec)
	}

	count := len(executors)
	deps := make([][]int, count)
	fanout := make([][]int, count)
	incoming := make([][]execEdge, count)

	for _, e := range wf.Edges {
		if e.IsLoop() {
			// Loop-back edges close a cycle the scheduler's dependency model
			// cannot express (spec §3's deps/fanout assume a DAG); this
			// engine does not implement loop re-entry (see DESIGN.md).
			continue
		}
		src := execIndex[e.SourceNodeIdx]
		tgt := execIndex[e.TargetNodeIdx]
		if src < 0 || tgt < 0 {
			continue
		}
		deps[tgt] = append(deps[tgt], src)
		fanout[src] = append(fanout[src], tgt)
		incoming[tgt] = append(incoming[tgt], execEdge{
			sourceIdx:  src,
			sourceSlot: e.SourceSlot,
			targetSlot: e.TargetSlot,
			filter:     e.Filter,
		})
	}

	pending := make(map[int]struct{})
	ready := make(map[int]struct{})
	records := make([]models.NodeRecord, count)
	nodeByID := make(map[string]int, count)
	for i := 0; i < count; i++ {
		nodeByID[nodeIDs[i]] = i
		records[i] = models.NodeRecord{NodeID: nodeIDs[i], Status: statusPending}
		if len(deps[i]) == 0 {
			ready[i] = struct{}{}
			records[i].Status = statusReady
		} else {
			pending[i] = struct{}{}
		}
	}

	variables := mergeVariables(wf.Variables, initialData)

	ctx, cancel := context.WithCancel(context.Background())

	return &ExecutionState{
		workflowName: wf.Name,
		nodeIDs:      nodeIDs,
		nodeTypes:    nodeTypes,
		configs:      configs,
		executors:    executors,
		deps:         deps,
		fanout:       fanout,
		incoming:     incoming,
		pending:      pending,
		ready:        ready,
		running:      make(map[int]struct{}),
		completed:    make(map[int]struct{}),
		failed:       make(map[int]struct{}),
		outputs:      make([]map[string]any, count),
		records:      records,
		variables:    variables,
		nodeByID:     nodeByID,
		promises:     make(map[int]*inputPromise),
		ctx:          ctx,
		cancel:       cancel,
		phase:        models.PhaseRunning,
		startedAt:    time.Now(),
		bus:          bus,
		filterCache:  filterCache,
	}, nil
}

// mergeVariables merges initial_data into the workflow's own variables per
// spec §4.4 step 4: a key present in initial_data always wins; workflow
// variables only survive for keys initial_data does not mention. Grounded
// on the teacher's engine.MergeVariables (execution variables override
// workflow variables) — same precedence, generalized name.
func mergeVariables(workflowVars, initialData map[string]any) map[string]any {
	merged := make(map[string]any, len(workflowVars)+len(initialData))
	for k, v := range workflowVars {
		merged[k] = v
	}
	for k, v := range initialData {
		merged[k] = v
	}
	return merged
}

// evalEdgeFilter evaluates an edge's optional filter predicate against the
// value about to cross it (spec §4.6). A filter that fails to compile or
// run is treated as false — the edge is dropped rather than the execution
// failing on a malformed link-time-validated filter.
func evalEdgeFilter(cache *builtin.ExprCache, source string, value any) (bool, error) {
	env := map[string]any{"value": value}
	program, err := cache.CompileBoolAndCache(source, env)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}
