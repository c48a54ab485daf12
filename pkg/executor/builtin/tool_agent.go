package builtin

import (
	"context"
	"fmt"

	"github.com/dibenedetto/meshade/pkg/backend"
	"github.com/dibenedetto/meshade/pkg/executor"
)

// ToolExecutor is spec §4.1's tool_node: receives "config", "arguments",
// "source" inputs and delegates to the injected run_tool handle (spec §4.4
// step 5, C7). Grounded on the Python source's WorkflowContext.get_tool
// functools.partial pattern (see DESIGN.md); no direct teacher equivalent,
// since the teacher calls tool/agent adapters through its own backend
// package rather than an injected handle.
type ToolExecutor struct {
	*executor.BaseExecutor
	index int
	run   backend.RunTool
}

// NewToolExecutor creates a new tool_node executor bound to the node's
// position in the workflow (the index the backend handle vector is keyed
// by) and the process's run_tool handle.
func NewToolExecutor(index int, run backend.RunTool) *ToolExecutor {
	return &ToolExecutor{
		BaseExecutor: executor.NewBaseExecutor("tool_node"),
		index:        index,
		run:          run,
	}
}

func (e *ToolExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	if e.run == nil {
		return executor.Result{Err: fmt.Errorf("tool_node %s: no run_tool handle injected", nctx.NodeID)}
	}

	args := map[string]any{
		"config":    nctx.Config,
		"arguments": nctx.Inputs["arguments"],
		"source":    nctx.Inputs["source"],
	}

	out, err := e.run(ctx, e.index, args)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("tool_node %s: %w", nctx.NodeID, err)}
	}

	return executor.Result{OK: true, Outputs: out}
}

func (e *ToolExecutor) Validate(config map[string]any) error {
	return nil
}

// AgentExecutor is spec §4.1's agent_node: receives "config", "request"
// inputs and delegates to the injected run_agent handle.
type AgentExecutor struct {
	*executor.BaseExecutor
	index int
	run   backend.RunAgent
}

// NewAgentExecutor creates a new agent_node executor bound to the node's
// backend-handle index and the process's run_agent handle.
func NewAgentExecutor(index int, run backend.RunAgent) *AgentExecutor {
	return &AgentExecutor{
		BaseExecutor: executor.NewBaseExecutor("agent_node"),
		index:        index,
		run:          run,
	}
}

func (e *AgentExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	if e.run == nil {
		return executor.Result{Err: fmt.Errorf("agent_node %s: no run_agent handle injected", nctx.NodeID)}
	}

	args := map[string]any{
		"config":  nctx.Config,
		"request": nctx.Inputs["request"],
	}

	out, err := e.run(ctx, e.index, args)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("agent_node %s: %w", nctx.NodeID, err)}
	}

	return executor.Result{OK: true, Outputs: out}
}

func (e *AgentExecutor) Validate(config map[string]any) error {
	return nil
}
