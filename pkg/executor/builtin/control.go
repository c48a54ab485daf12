package builtin

import (
	"context"

	"github.com/dibenedetto/meshade/pkg/executor"
)

// StartExecutor is spec §4.1's start_node: no inputs, emits the execution's
// variables on its "start" output slot. No teacher equivalent exists; written
// in the teacher's BaseExecutor idiom.
type StartExecutor struct {
	*executor.BaseExecutor
}

func NewStartExecutor() *StartExecutor {
	return &StartExecutor{BaseExecutor: executor.NewBaseExecutor("start_node")}
}

func (e *StartExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	return executor.Result{OK: true, Outputs: map[string]any{"start": nctx.Variables}}
}

func (e *StartExecutor) Validate(config map[string]any) error {
	return nil
}

// EndExecutor is spec §4.1's end_node: collects whatever arrives on its
// "end" input slot and returns it unchanged, giving the terminal node a
// stable place for the engine to read a workflow's final output from.
type EndExecutor struct {
	*executor.BaseExecutor
}

func NewEndExecutor() *EndExecutor {
	return &EndExecutor{BaseExecutor: executor.NewBaseExecutor("end_node")}
}

func (e *EndExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	return executor.Result{OK: true, Outputs: map[string]any{"end": nctx.Inputs["end"]}}
}

func (e *EndExecutor) Validate(config map[string]any) error {
	return nil
}

// SinkExecutor is spec §4.1's sink_node: discards whatever it receives.
// Useful for terminating branches whose output nobody needs, without
// leaving the node perpetually pending.
type SinkExecutor struct {
	*executor.BaseExecutor
}

func NewSinkExecutor() *SinkExecutor {
	return &SinkExecutor{BaseExecutor: executor.NewBaseExecutor("sink_node")}
}

func (e *SinkExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	return executor.Result{OK: true, Outputs: map[string]any{}}
}

func (e *SinkExecutor) Validate(config map[string]any) error {
	return nil
}

// PassthroughExecutor is spec §4.1's config-passthrough node kind: its only
// behavior is to return its own configuration on a "get" output slot, so a
// visual graph can reify config objects as first-class nodes wired into
// tool/agent nodes. Workflow.Link's constant-propagation pass (see
// pkg/models/workflow.go) already copies these values directly into
// consumers at link time; this executor exists so a config_node can also be
// executed directly (e.g. when nothing downstream qualified for constant
// propagation).
type PassthroughExecutor struct {
	*executor.BaseExecutor
}

func NewPassthroughExecutor() *PassthroughExecutor {
	return &PassthroughExecutor{BaseExecutor: executor.NewBaseExecutor("config_node")}
}

func (e *PassthroughExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	return executor.Result{OK: true, Outputs: map[string]any{"get": nctx.Config}}
}

func (e *PassthroughExecutor) Validate(config map[string]any) error {
	return nil
}
