// Package engine is the Execution Context (C4) and Frontier Scheduler (C5)
// of spec §4.4/§4.5: per-execution dependency graph, node-output store,
// frontier sets, pending user-input promises, and the concurrent scheduling
// loop that drives a linked workflow to a terminal state. Grounded on the
// teacher's pkg/engine package (ExecutionState/DAGExecutor/helpers), but
// re-keyed throughout from string node ids to the zero-based executable
// index spec §3 requires, and rebuilt around the four-frontier-set model
// instead of the teacher's wave/TopologicalSort batching (see DESIGN.md).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/executor"
	"github.com/dibenedetto/meshade/pkg/models"
)

// defaultUserInputTimeout is the fallback when a user_input_node's
// configured timeout is zero or negative, per spec §5 "default 300 seconds".
const defaultUserInputTimeout = 300 * time.Second

const (
	statusPending   = models.NodeStatusPending
	statusReady     = models.NodeStatusReady
	statusRunning   = models.NodeStatusRunning
	statusCompleted = models.NodeStatusCompleted
	statusFailed    = models.NodeStatusFailed
)

// execEdge is one translated, executable-subgraph edge feeding a node's
// input gathering (spec §4.6).
type execEdge struct {
	sourceIdx  int
	sourceSlot string
	targetSlot string
	filter     string
}

type inputPromise struct {
	resultCh chan userInputResult
}

type userInputResult struct {
	value any
	err   error
}

// ExecutionState is the per-start Execution Context of spec §3: dependency
// maps, node-output store, the four disjoint frontier sets plus the
// `failed` overlay, global variables, pending user-input promises, and a
// cancellation signal (here a context.Context, cancelled by Engine.Cancel).
type ExecutionState struct {
	mu sync.Mutex

	executionID  string
	workflowName string

	nodeIDs   []string
	nodeTypes []string
	configs   []map[string]any
	executors []executor.Executor

	deps     [][]int
	fanout   [][]int
	incoming [][]execEdge

	pending   map[int]struct{}
	ready     map[int]struct{}
	running   map[int]struct{}
	completed map[int]struct{}
	failed    map[int]struct{}

	outputs   []map[string]any
	records   []models.NodeRecord
	variables map[string]any

	nodeByID map[string]int
	promises map[int]*inputPromise

	ctx    context.Context
	cancel context.CancelFunc

	phase  models.Phase
	reason string

	startedAt time.Time
	endedAt   time.Time
	ended     bool

	bus         *eventbus.Bus
	filterCache *builtin.ExprCache
}

// Await implements executor.UserInputWaiter: it registers a pending promise
// for nodeID, emits user.input_requested, and blocks until
// provide_user_input resolves it, the timeout elapses, or the execution is
// cancelled (spec §4.7, §5).
func (s *ExecutionState) Await(ctx context.Context, nodeID string, timeout time.Duration) (any, error) {
	s.mu.Lock()
	idx, ok := s.nodeByID[nodeID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrExecutionNotFound, nodeID)
	}
	p := &inputPromise{resultCh: make(chan userInputResult, 1)}
	s.promises[idx] = p
	s.mu.Unlock()

	s.bus.Emit(models.NewEvent(models.EventUserInputRequested, s.workflowName, s.executionID, nil).WithSourceNode(nodeID))

	if timeout <= 0 {
		timeout = defaultUserInputTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.resultCh:
		return r.value, r.err
	case <-timer.C:
		s.clearPromise(idx)
		return nil, fmt.Errorf("user input for node %s timed out after %s", nodeID, timeout)
	case <-s.ctx.Done():
		s.clearPromise(idx)
		return nil, models.ErrExecutionCancelled
	case <-ctx.Done():
		s.clearPromise(idx)
		return nil, ctx.Err()
	}
}

func (s *ExecutionState) clearPromise(idx int) {
	s.mu.Lock()
	delete(s.promises, idx)
	s.mu.Unlock()
}

// ProvideUserInput resolves the pending promise for nodeID with value, or
// fails with models.ErrNotWaiting if no such promise exists (spec §4.7).
func (s *ExecutionState) ProvideUserInput(nodeID string, value any) error {
	s.mu.Lock()
	idx, ok := s.nodeByID[nodeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrExecutionNotFound, nodeID)
	}
	p, waiting := s.promises[idx]
	if !waiting {
		s.mu.Unlock()
		return models.ErrNotWaiting
	}
	delete(s.promises, idx)
	s.mu.Unlock()

	p.resultCh <- userInputResult{value: value}
	s.bus.Emit(models.NewEvent(models.EventUserInputReceived, s.workflowName, s.executionID, map[string]any{"value": value}).WithSourceNode(nodeID))
	return nil
}

// drainReadyLocked moves every node currently in ready into running, in
// ascending index order (spec §4.5 "tie-breaks ... ascending
// executable-index"), and returns the moved indexes. Caller holds s.mu.
func (s *ExecutionState) drainReadyLocked() []int {
	if len(s.ready) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(s.ready))
	for idx := range s.ready {
		indexes = append(indexes, idx)
	}
	sortInts(indexes)
	for _, idx := range indexes {
		delete(s.ready, idx)
		s.running[idx] = struct{}{}
		s.records[idx].Status = statusRunning
	}
	return indexes
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// depsSatisfiedLocked reports whether every dependency of idx is completed.
// Caller holds s.mu.
func (s *ExecutionState) depsSatisfiedLocked(idx int) bool {
	for _, d := range s.deps[idx] {
		if _, ok := s.completed[d]; !ok {
			return false
		}
	}
	return true
}

// gatherInputs builds ctx.inputs for node idx via the edge-walk of spec
// §4.6: dotted-key-then-base fallback on the producer's output map, optional
// filter predicate, flat assignment into the consumer's input map.
func (s *ExecutionState) gatherInputs(idx int) map[string]any {
	s.mu.Lock()
	edges := s.incoming[idx]
	snapshot := make([]map[string]any, len(s.outputs))
	copy(snapshot, s.outputs)
	s.mu.Unlock()

	inputs := make(map[string]any, len(edges))
	for _, e := range edges {
		v := lookupOutputValue(snapshot[e.sourceIdx], e.sourceSlot)
		if e.filter != "" {
			ok, err := evalEdgeFilter(s.filterCache, e.filter, v)
			if err != nil || !ok {
				continue
			}
		}
		inputs[e.targetSlot] = v
	}
	return inputs
}

func lookupOutputValue(outputs map[string]any, slot string) any {
	if outputs == nil {
		return nil
	}
	if v, ok := outputs[slot]; ok {
		return v
	}
	for i := len(slot) - 1; i >= 0; i-- {
		if slot[i] == '.' {
			if v, ok := outputs[slot[:i]]; ok {
				return v
			}
			break
		}
	}
	return nil
}

// runNode executes one node to completion and reports the result on doneCh,
// grounded on the teacher's DAGExecutor.executeNode goroutine shape but
// carrying the spec's pure (ctx.inputs, ctx.variables, config) contract
// instead of the teacher's direct store access.
func (s *ExecutionState) runNode(ctx context.Context, idx int, doneCh chan<- completion) {
	nctx := executor.NodeExecContext{
		NodeID:    s.nodeIDs[idx],
		Config:    s.configs[idx],
		Inputs:    s.gatherInputs(idx),
		Variables: s.variables,
	}
	if s.nodeTypes[idx] == "user_input_node" {
		nctx.UserInput = s
	}
	result := s.executors[idx].Execute(ctx, nctx)
	doneCh <- completion{idx: idx, result: result}
}

type completion struct {
	idx    int
	result executor.Result
}

// Snapshot returns the observable Execution State of spec §3: ids, phase,
// the four frontier sets, per-node records, and timestamps, using the same
// models.ExecutionState shape the Control Surface serializes verbatim.
func (s *ExecutionState) Snapshot() models.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := models.ExecutionState{
		ExecutionID:  s.executionID,
		WorkflowName: s.workflowName,
		Phase:        s.phase,
		Pending:      setKeys(s.pending),
		Ready:        setKeys(s.ready),
		Running:      setKeys(s.running),
		Completed:    setKeys(s.completed),
		Failed:       setKeys(s.failed),
		StartedAt:    s.startedAt,
		Error:        s.reason,
	}
	if s.ended {
		endedAt := s.endedAt
		view.EndedAt = &endedAt
	}
	view.Nodes = make([]models.NodeRecord, len(s.records))
	copy(view.Nodes, s.records)
	return view
}

func setKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sortInts(out)
	return out
}
