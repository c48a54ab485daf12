// Package backend defines the narrow contract the workflow execution engine
// uses to call out to external agent/tool/model adapters. Spec §1 treats
// concrete adapters as out of scope: the engine sees them only through the
// two async function handles this package names, grounded on the Python
// original's WorkflowContext.get_agent/get_tool
// (functools.partial(run_agent/run_tool, apps[app_idx], local_idx)).
package backend

import "context"

// RunAgent invokes the agent at the given registry index with the supplied
// arguments and returns its result fields, or an error.
type RunAgent func(ctx context.Context, index int, args map[string]any) (map[string]any, error)

// RunTool invokes the tool at the given registry index with the supplied
// arguments and returns its result fields, or an error.
type RunTool func(ctx context.Context, index int, args map[string]any) (map[string]any, error)

// Handles bundles the two backend handle contracts a single execution
// injects into its tool_node/agent_node instances (spec §4.4 step 5).
type Handles struct {
	RunAgent RunAgent
	RunTool  RunTool
}

// NoopHandles returns Handles whose calls always fail with "not configured",
// useful for engines that do not wire a real backend (e.g. unit tests that
// never exercise tool_node/agent_node).
func NoopHandles() Handles {
	return Handles{
		RunAgent: func(ctx context.Context, index int, args map[string]any) (map[string]any, error) {
			return nil, errNotConfigured
		},
		RunTool: func(ctx context.Context, index int, args map[string]any) (map[string]any, error) {
			return nil, errNotConfigured
		},
	}
}

var errNotConfigured = errBackendNotConfigured{}

type errBackendNotConfigured struct{}

func (errBackendNotConfigured) Error() string { return "backend: no run_agent/run_tool handle configured" }
