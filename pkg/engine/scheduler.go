package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dibenedetto/meshade/pkg/backend"
	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/executor"
	"github.com/dibenedetto/meshade/pkg/models"
)

// filterCacheCapacity sizes the clock-evicted cache of compiled edge-filter predicates an
// Engine shares across every execution it drives.
const filterCacheCapacity = 256

// Engine is the Frontier Scheduler (C5): it builds an Execution Context per
// start(), drives its continuous completion-channel scheduling loop (spec
// §4.5), and answers the C4.7 control-surface queries (status/list/cancel/
// provide_user_input). Grounded on the teacher's DAGExecutor for the
// goroutine-per-node and panic-isolated-emit idioms, but replacing its
// wave/TopologicalSort batching with the single-doneCh-per-execution
// "wait for any completion" loop spec §9's Open Question #1 requires.
type Engine struct {
	mu         sync.Mutex
	manager    executor.Manager
	bus        *eventbus.Bus
	filter     *builtin.ExprCache
	executions map[string]*ExecutionState
	order      []string
}

// New creates an Engine backed by manager (the Node Kind Registry) and bus
// (the Event Bus), both passed explicitly per spec §9's "pass them
// explicitly as constructor dependencies" design note.
func New(manager executor.Manager, bus *eventbus.Bus) *Engine {
	return &Engine{
		manager:    manager,
		bus:        bus,
		filter:     builtin.NewExprCache(filterCacheCapacity),
		executions: make(map[string]*ExecutionState),
	}
}

// Start builds an Execution Context from wf and initial_data, instantiates
// every node, and spawns the scheduling loop as a background goroutine,
// returning its execution id immediately (spec §4.7 "start ... returns
// immediately").
func (e *Engine) Start(wf *models.Workflow, initialData map[string]any, handles []backend.Handles) (string, error) {
	state, err := newExecutionState(wf, initialData, e.manager, handles, e.bus, e.filter)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	state.executionID = id

	e.mu.Lock()
	e.executions[id] = state
	e.order = append(e.order, id)
	e.mu.Unlock()

	e.bus.Emit(models.NewEvent(models.EventWorkflowStarted, wf.Name, id, nil))
	go e.run(state)
	return id, nil
}

// run is the scheduling loop of spec §4.5, one goroutine per execution.
func (e *Engine) run(state *ExecutionState) {
	doneCh := make(chan completion, len(state.executors)+1)
	ctx := state.ctx

	for ctx.Err() == nil {
		state.mu.Lock()
		if len(state.ready) == 0 && len(state.running) == 0 {
			state.mu.Unlock()
			break
		}
		toStart := state.drainReadyLocked()
		state.mu.Unlock()

		for _, idx := range toStart {
			e.bus.Emit(models.NewEvent(models.EventNodeStarted, state.workflowName, state.executionID, nil).WithSourceNode(state.nodeIDs[idx]))
			go state.runNode(ctx, idx, doneCh)
		}

		select {
		case comp := <-doneCh:
			e.applyCompletion(state, comp)
			e.drainAvailable(doneCh, state)
		case <-ctx.Done():
			// Re-checked at the top of the loop: stop admitting new ready
			// nodes and fall through to the cancellation drain below.
		}
	}

	if ctx.Err() != nil {
		e.drainRunning(state, doneCh)
		e.finalizeCancelled(state)
		return
	}

	e.finalizeNormal(state)
}

// drainAvailable applies every completion already sitting in doneCh without
// blocking, so a batch of simultaneous finishers is processed in one pass
// before the loop looks for more ready work.
func (e *Engine) drainAvailable(doneCh chan completion, state *ExecutionState) {
	for {
		select {
		case comp := <-doneCh:
			e.applyCompletion(state, comp)
		default:
			return
		}
	}
}

// drainRunning awaits every currently running node to completion, per spec
// §4.5's cancellation contract: "awaits the currently running nodes until
// they return" before the execution is marked cancelled.
func (e *Engine) drainRunning(state *ExecutionState, doneCh chan completion) {
	for {
		state.mu.Lock()
		remaining := len(state.running)
		state.mu.Unlock()
		if remaining == 0 {
			return
		}
		comp := <-doneCh
		e.applyCompletion(state, comp)
	}
}

// applyCompletion records one finished node's result and advances the
// frontier (spec §4.5 step 3): on success, write outputs, move to
// completed, and promote any downstream node whose deps are now all
// completed from pending to ready; on failure, move to failed without
// cascading — dependents stay in pending.
func (e *Engine) applyCompletion(state *ExecutionState, comp completion) {
	state.mu.Lock()
	idx := comp.idx
	delete(state.running, idx)

	if comp.result.Err != nil || !comp.result.OK {
		state.failed[idx] = struct{}{}
		state.records[idx] = models.NodeRecord{NodeID: state.nodeIDs[idx], Status: statusFailed, Error: errString(comp.result.Err)}
		state.mu.Unlock()
		e.bus.Emit(models.NewEvent(models.EventNodeFailed, state.workflowName, state.executionID, nil).
			WithSourceNode(state.nodeIDs[idx]).WithError(comp.result.Err))
		return
	}

	state.completed[idx] = struct{}{}
	state.outputs[idx] = comp.result.Outputs
	state.records[idx] = models.NodeRecord{NodeID: state.nodeIDs[idx], Status: statusCompleted, Output: comp.result.Outputs}

	for _, m := range state.fanout[idx] {
		if _, ok := state.pending[m]; !ok {
			continue
		}
		if state.depsSatisfiedLocked(m) {
			delete(state.pending, m)
			state.ready[m] = struct{}{}
			state.records[m].Status = statusReady
		}
	}
	state.mu.Unlock()

	eventData := map[string]any{"outputs": comp.result.Outputs}
	if comp.result.NextTarget != "" {
		eventData["next_target"] = comp.result.NextTarget
	}
	e.bus.Emit(models.NewEvent(models.EventNodeCompleted, state.workflowName, state.executionID, eventData).WithSourceNode(state.nodeIDs[idx]))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// finalizeNormal settles the terminal phase once ready and running are both
// empty without cancellation, per spec §4.5 step 4: pending nodes left over
// mean a deadlock; otherwise any failed node still fails the workflow.
func (e *Engine) finalizeNormal(state *ExecutionState) {
	state.mu.Lock()
	switch {
	case len(state.pending) > 0:
		state.phase = models.PhaseFailed
		state.reason = "deadlock / failed dependency"
	case len(state.failed) > 0:
		state.phase = models.PhaseFailed
		state.reason = "node failure"
	default:
		state.phase = models.PhaseCompleted
	}
	state.endedAt = time.Now()
	state.ended = true
	phase, reason := state.phase, state.reason
	state.mu.Unlock()

	if phase == models.PhaseCompleted {
		e.bus.Emit(models.NewEvent(models.EventWorkflowCompleted, state.workflowName, state.executionID, nil))
		return
	}
	e.bus.Emit(models.NewEvent(models.EventWorkflowFailed, state.workflowName, state.executionID, nil).WithError(fmt.Errorf("%s", reason)))
}

func (e *Engine) finalizeCancelled(state *ExecutionState) {
	state.mu.Lock()
	state.phase = models.PhaseCancelled
	state.reason = "cancelled"
	state.endedAt = time.Now()
	state.ended = true
	state.mu.Unlock()
	e.bus.Emit(models.NewEvent(models.EventWorkflowCancelled, state.workflowName, state.executionID, nil))
}

// Cancel sets the cancellation signal for executionID. Idempotent per spec
// §4.7/P5: context.CancelFunc may be called any number of times.
func (e *Engine) Cancel(executionID string) (models.ExecutionState, error) {
	state, err := e.find(executionID)
	if err != nil {
		return models.ExecutionState{}, err
	}
	state.cancel()
	return state.Snapshot(), nil
}

// Status returns the current Execution State for executionID.
func (e *Engine) Status(executionID string) (models.ExecutionState, error) {
	state, err := e.find(executionID)
	if err != nil {
		return models.ExecutionState{}, err
	}
	return state.Snapshot(), nil
}

// List returns every known execution id, insertion order.
func (e *Engine) List() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	return ids
}

// States returns the Execution State of every known execution.
func (e *Engine) States() []models.ExecutionState {
	e.mu.Lock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	e.mu.Unlock()

	views := make([]models.ExecutionState, 0, len(ids))
	for _, id := range ids {
		if state, err := e.find(id); err == nil {
			views = append(views, state.Snapshot())
		}
	}
	return views
}

// ProvideUserInput resolves the pending promise for (executionID, nodeID)
// with value, per spec §4.7.
func (e *Engine) ProvideUserInput(executionID, nodeID string, value any) error {
	state, err := e.find(executionID)
	if err != nil {
		return err
	}
	return state.ProvideUserInput(nodeID, value)
}

func (e *Engine) find(executionID string) (*ExecutionState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutionNotFound, executionID)
	}
	return state, nil
}
