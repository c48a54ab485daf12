package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/dibenedetto/meshade/pkg/executor"
)

// defaultInputTimeout is spec §5's "the wait must be bounded by the node's
// timeout (default 300 seconds)".
const defaultInputTimeout = 300 * time.Second

// UserInputExecutor is spec §4.1's user_input_node: awaits a value supplied
// out-of-band via provide_user_input, bounded by a per-node timeout and
// cancellation (spec §4.5 "Timeouts"). Grounded on the Python source's
// asyncio.Future-based _handle_user_input wait (see DESIGN.md); no teacher
// equivalent exists, so the promise/timeout pattern is expressed with the
// UserInputWaiter contract the engine injects into NodeExecContext.
type UserInputExecutor struct {
	*executor.BaseExecutor
}

func NewUserInputExecutor() *UserInputExecutor {
	return &UserInputExecutor{BaseExecutor: executor.NewBaseExecutor("user_input_node")}
}

func (e *UserInputExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	if nctx.UserInput == nil {
		return executor.Result{Err: fmt.Errorf("user_input_node %s: no input waiter injected", nctx.NodeID)}
	}

	timeout := defaultInputTimeout
	if seconds := e.GetIntDefault(nctx.Config, "timeout", 0); seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	value, err := nctx.UserInput.Await(ctx, nctx.NodeID, timeout)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("user_input_node %s: %w", nctx.NodeID, err)}
	}

	return executor.Result{OK: true, Outputs: map[string]any{"value": value}}
}

func (e *UserInputExecutor) Validate(config map[string]any) error {
	return nil
}

// UserOutputExecutor is spec §4.1's user_output_node: a pass-through that
// surfaces its "payload" input via events. No special event-bus access is
// needed here: the scheduler's node.completed event already carries the
// node's outputs (see pkg/engine/scheduler.go), which is how the payload is
// "surfaced via events".
type UserOutputExecutor struct {
	*executor.BaseExecutor
}

func NewUserOutputExecutor() *UserOutputExecutor {
	return &UserOutputExecutor{BaseExecutor: executor.NewBaseExecutor("user_output_node")}
}

func (e *UserOutputExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	return executor.Result{OK: true, Outputs: map[string]any{"payload": nctx.Inputs["payload"]}}
}

func (e *UserOutputExecutor) Validate(config map[string]any) error {
	return nil
}
