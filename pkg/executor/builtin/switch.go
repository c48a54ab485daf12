package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/dibenedetto/meshade/pkg/executor"
)

// SwitchExecutor is spec §4.1's switch_node: one "value" input, fanning out
// to a dynamic set of "cases.*" output slots (plus "default") chosen by a
// configured script expression. Adapted from the teacher's ConditionalExecutor
// (pkg/executor/builtin/conditional.go), generalized from a fixed true/false
// SourceHandleTrue/SourceHandleFalse split to an arbitrary case-key result,
// routed through dynamic "cases.<key>" output slots per the spec's edge-walk
// naming convention.
type SwitchExecutor struct {
	*executor.BaseExecutor
	cache *ExprCache
}

// NewSwitchExecutor creates a new switch_node executor.
func NewSwitchExecutor(cache *ExprCache) *SwitchExecutor {
	return &SwitchExecutor{
		BaseExecutor: executor.NewBaseExecutor("switch_node"),
		cache:        cache,
	}
}

// Execute evaluates "expression" against the node's "value" input and the
// execution's variables, and routes the value to the "cases.<result>" output
// slot. A non-string or empty result, or one matching none of the declared
// cases, routes to "cases.default".
func (e *SwitchExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	exprStr, err := e.GetString(nctx.Config, "expression")
	if err != nil {
		return executor.Result{Err: err}
	}

	value := nctx.Inputs["value"]
	env := map[string]any{
		"value":     value,
		"variables": nctx.Variables,
	}

	program, err := e.cache.CompileAndCache(exprStr, env)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("compile switch expression: %w", err)}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("run switch expression: %w", err)}
	}

	caseKey, ok := out.(string)
	if !ok || caseKey == "" {
		caseKey = "default"
	}

	cases, _ := e.GetMap(nctx.Config, "cases")
	if cases != nil {
		if _, declared := cases[caseKey]; !declared {
			caseKey = "default"
		}
	}

	target := "cases." + caseKey
	return executor.Result{
		OK:         true,
		Outputs:    map[string]any{target: value},
		NextTarget: target,
	}
}

// Validate checks that "expression" is present and compiles.
func (e *SwitchExecutor) Validate(config map[string]any) error {
	exprStr, err := e.GetString(config, "expression")
	if err != nil {
		return fmt.Errorf("switch_node requires an \"expression\" field: %w", err)
	}
	if _, err := expr.Compile(exprStr); err != nil {
		return fmt.Errorf("switch_node expression does not compile: %w", err)
	}
	return nil
}
