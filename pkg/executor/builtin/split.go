package builtin

import (
	"context"
	"fmt"

	"github.com/dibenedetto/meshade/pkg/executor"
)

// SplitExecutor is spec §4.1's split_node: one "source" input holding a
// record, fanned out to "targets.*" output slots per a configured
// source-sub-name -> target-sub-name mapping. No teacher equivalent exists;
// written in the teacher's BaseExecutor idiom (pkg/executor/executor.go)
// since nothing in the corpus names this exact shape.
type SplitExecutor struct {
	*executor.BaseExecutor
}

// NewSplitExecutor creates a new split_node executor.
func NewSplitExecutor() *SplitExecutor {
	return &SplitExecutor{
		BaseExecutor: executor.NewBaseExecutor("split_node"),
	}
}

// Execute reads the "source" record and, for each configured
// source-sub-name -> target-sub-name pair, copies the source field into the
// "targets.<target-sub-name>" output slot.
func (e *SplitExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	mapping, err := e.GetMap(nctx.Config, "mapping")
	if err != nil {
		return executor.Result{Err: err}
	}

	source, _ := nctx.Inputs["source"].(map[string]any)

	outputs := make(map[string]any, len(mapping))
	for sourceKey, targetKeyAny := range mapping {
		targetKey, ok := targetKeyAny.(string)
		if !ok {
			return executor.Result{Err: fmt.Errorf("split_node mapping value for %q is not a string", sourceKey)}
		}
		var val any
		if source != nil {
			val = source[sourceKey]
		}
		outputs["targets."+targetKey] = val
	}

	return executor.Result{OK: true, Outputs: outputs}
}

// Validate checks that "mapping" is present and well-formed.
func (e *SplitExecutor) Validate(config map[string]any) error {
	mapping, err := e.GetMap(config, "mapping")
	if err != nil {
		return fmt.Errorf("split_node requires a \"mapping\" field: %w", err)
	}
	for sourceKey, targetKeyAny := range mapping {
		if _, ok := targetKeyAny.(string); !ok {
			return fmt.Errorf("split_node mapping value for %q must be a string", sourceKey)
		}
	}
	return nil
}
