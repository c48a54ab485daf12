// Package executor is the Node Kind Registry (spec §4.1): a process-wide
// mapping from node type tag to constructor, and the Executor contract every
// node kind implements. Grounded on the teacher's pkg/executor/executor.go +
// registry.go (Executor/Manager interfaces, BaseExecutor config-accessor
// helpers), generalized so Execute returns the spec's (ok, outputs_map,
// error?, next_target?) 4-tuple instead of the teacher's bare (any, error).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/dibenedetto/meshade/pkg/backend"
)

// UserInputWaiter is the narrow contract user_input_node uses to suspend on
// an out-of-band value (spec §4.4 "pending user-input promises", §5). The
// engine implements it per execution (pkg/engine) and injects it into
// NodeExecContext only for user_input_node instances, so the executor
// package itself stays free of any dependency on the scheduler.
type UserInputWaiter interface {
	// Await blocks until provide_user_input resolves the node's promise, the
	// timeout elapses, or ctx is cancelled (including execution cancellation).
	Await(ctx context.Context, nodeID string, timeout time.Duration) (any, error)
}

// NodeExecContext is what the engine hands to a node's Execute call: the
// inputs gathered by the edge-walk (§4.6), the workflow's merged variables,
// and the node's own (already constant-propagated) configuration. Execute
// must be a pure function over exactly these three inputs — spec §4.1
// forbids a node from reading or writing another node's output directly.
// UserInput is non-nil only for user_input_node executions.
type NodeExecContext struct {
	NodeID    string
	Config    map[string]any
	Inputs    map[string]any
	Variables map[string]any
	UserInput UserInputWaiter
}

// Result is the node execution result 4-tuple from spec §4.1: whether the
// node succeeded, its output slot values, an error when it did not, and an
// optional NextTarget hint used only by switch-style nodes for
// observability (the scheduler never uses it to alter the graph).
type Result struct {
	OK         bool
	Outputs    map[string]any
	Err        error
	NextTarget string
}

// Executor is the interface every node kind implements.
type Executor interface {
	// Execute runs the node to completion. It must not block on anything
	// but ctx cancellation and whatever I/O the node kind itself performs.
	Execute(ctx context.Context, nctx NodeExecContext) Result

	// Validate checks a node's configuration at link time.
	Validate(config map[string]any) error
}

// Constructor builds a fresh Executor for one node instantiation, given the
// node's position in the workflow and the process's backend handles (spec
// §4.4 step 5: "Instantiate every node through C1, injecting run_agent /
// run_tool handles for tool/agent kinds"). Most kinds ignore both arguments;
// only tool_node/agent_node use index to pick their backend.RunTool/RunAgent
// handle.
type Constructor func(index int, handles backend.Handles) Executor

// Manager manages the registration and retrieval of node kind constructors —
// the Node Kind Registry's public contract. Generalized from the teacher's
// Manager (a bare string -> Executor map) to a string -> Constructor map so
// that tool_node/agent_node instantiation can be parameterized per node
// without a shared mutable Executor instance.
type Manager interface {
	Register(nodeType string, ctor Constructor) error
	New(nodeType string, index int, handles backend.Handles) (Executor, error)
	Has(nodeType string) bool
	List() []string
	Unregister(nodeType string) error
}

// ExecutorFunc adapts a pair of plain functions to the Executor interface.
type ExecutorFunc struct {
	ExecuteFn  func(ctx context.Context, nctx NodeExecContext) Result
	ValidateFn func(config map[string]any) error
}

func (f *ExecutorFunc) Execute(ctx context.Context, nctx NodeExecContext) Result {
	return f.ExecuteFn(ctx, nctx)
}

func (f *ExecutorFunc) Validate(config map[string]any) error {
	if f.ValidateFn == nil {
		return nil
	}
	return f.ValidateFn(config)
}

// NewExecutorFunc builds an Executor from a pair of plain functions.
func NewExecutorFunc(
	executeFn func(ctx context.Context, nctx NodeExecContext) Result,
	validateFn func(config map[string]any) error,
) Executor {
	return &ExecutorFunc{ExecuteFn: executeFn, ValidateFn: validateFn}
}

// BaseExecutor provides config-accessor helpers shared by every builtin node
// kind, kept verbatim-in-idiom from the teacher's BaseExecutor.
type BaseExecutor struct {
	NodeType string
}

// NewBaseExecutor creates a new BaseExecutor for the given node type tag.
func NewBaseExecutor(nodeType string) *BaseExecutor {
	return &BaseExecutor{NodeType: nodeType}
}

// ValidateRequired checks that every named field is present in config.
func (b *BaseExecutor) ValidateRequired(config map[string]any, fields ...string) error {
	for _, field := range fields {
		if _, ok := config[field]; !ok {
			return fmt.Errorf("required field missing: %s", field)
		}
	}
	return nil
}

// GetString retrieves a required string field.
func (b *BaseExecutor) GetString(config map[string]any, key string) (string, error) {
	val, ok := config[key]
	if !ok {
		return "", fmt.Errorf("field not found: %s", key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string", key)
	}
	return str, nil
}

// GetStringDefault retrieves an optional string field.
func (b *BaseExecutor) GetStringDefault(config map[string]any, key, defaultValue string) string {
	val, ok := config[key]
	if !ok {
		return defaultValue
	}
	str, ok := val.(string)
	if !ok {
		return defaultValue
	}
	return str
}

// GetInt retrieves a required int field (accepting JSON-decoded float64).
func (b *BaseExecutor) GetInt(config map[string]any, key string) (int, error) {
	val, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("field not found: %s", key)
	}
	switch v := val.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("field %s is not a number", key)
	}
}

// GetIntDefault retrieves an optional int field.
func (b *BaseExecutor) GetIntDefault(config map[string]any, key string, defaultValue int) int {
	val, ok := config[key]
	if !ok {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// GetBool retrieves a required bool field.
func (b *BaseExecutor) GetBool(config map[string]any, key string) (bool, error) {
	val, ok := config[key]
	if !ok {
		return false, fmt.Errorf("field not found: %s", key)
	}
	boolVal, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("field %s is not a boolean", key)
	}
	return boolVal, nil
}

// GetBoolDefault retrieves an optional bool field.
func (b *BaseExecutor) GetBoolDefault(config map[string]any, key string, defaultValue bool) bool {
	val, ok := config[key]
	if !ok {
		return defaultValue
	}
	boolVal, ok := val.(bool)
	if !ok {
		return defaultValue
	}
	return boolVal
}

// GetMap retrieves a required map field.
func (b *BaseExecutor) GetMap(config map[string]any, key string) (map[string]any, error) {
	val, ok := config[key]
	if !ok {
		return nil, fmt.Errorf("field not found: %s", key)
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s is not a map", key)
	}
	return m, nil
}
