package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/dibenedetto/meshade/pkg/executor"
)

// TransformExecutor is spec §4.1's transform_node: one "source" input, one
// "target" output; evaluates a configured script expression in an
// (unsandboxed, per spec §9) environment. Adapted from the teacher's
// TransformExecutor (pkg/executor/builtin/transform.go), dropped down to
// the single expr-lang "expression" mode the spec names — the teacher's
// jq/template/passthrough transform sub-types do not correspond to
// anything spec §4.1 asks for (see DESIGN.md).
type TransformExecutor struct {
	*executor.BaseExecutor
	cache *ExprCache
}

// NewTransformExecutor creates a new transform_node executor, backed by the
// shared compiled-program cache.
func NewTransformExecutor(cache *ExprCache) *TransformExecutor {
	return &TransformExecutor{
		BaseExecutor: executor.NewBaseExecutor("transform_node"),
		cache:        cache,
	}
}

// Execute evaluates the configured "expression" against the node's source
// input and the execution's variables.
func (e *TransformExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	exprStr, err := e.GetString(nctx.Config, "expression")
	if err != nil {
		return executor.Result{Err: err}
	}

	env := map[string]any{
		"source":    nctx.Inputs["source"],
		"variables": nctx.Variables,
	}

	program, err := e.cache.CompileAndCache(exprStr, env)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("compile transform expression: %w", err)}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("run transform expression: %w", err)}
	}

	return executor.Result{OK: true, Outputs: map[string]any{"target": out}}
}

// Validate checks that "expression" is present and compiles.
func (e *TransformExecutor) Validate(config map[string]any) error {
	exprStr, err := e.GetString(config, "expression")
	if err != nil {
		return fmt.Errorf("transform_node requires an \"expression\" field: %w", err)
	}
	if _, err := expr.Compile(exprStr); err != nil {
		return fmt.Errorf("transform_node expression does not compile: %w", err)
	}
	return nil
}
