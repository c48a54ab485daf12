package builtin

import (
	"fmt"
	"sort"
	"strings"

	"context"

	"github.com/dibenedetto/meshade/pkg/executor"
)

// mergeStrategies is the exact, closed set spec §4.1 pins merge_node to;
// anything else is rejected at Validate (i.e. link) time per §9's open
// question resolution (documented in DESIGN.md).
var mergeStrategies = map[string]bool{
	"first":  true,
	"last":   true,
	"concat": true,
	"all":    true,
}

// MergeExecutor is spec §4.1's merge_node: multi-input "sources.*", one
// "target" output. Adapted from the teacher's MergeExecutor
// (pkg/executor/builtin/merge.go), which only recognized "all"/"any" and
// treated both as a bare passthrough of a pre-merged input. The spec instead
// requires the executor itself to reduce the dotted "sources.*" entries
// gathered by the edge-walk (§4.6) under one of four named strategies.
type MergeExecutor struct {
	*executor.BaseExecutor
}

// NewMergeExecutor creates a new merge_node executor.
func NewMergeExecutor() *MergeExecutor {
	return &MergeExecutor{
		BaseExecutor: executor.NewBaseExecutor("merge_node"),
	}
}

// sourceValues extracts the "sources.*" entries from gathered inputs, sorted
// by ascending sub-name (the only deterministic order available once the
// edge-walk has flattened inputs into a map — workflow authors name
// "sources.a", "sources.b", … in the order they want merged).
func sourceValues(inputs map[string]any) []any {
	type kv struct {
		key string
		val any
	}
	var entries []kv
	for k, v := range inputs {
		if strings.HasPrefix(k, "sources.") {
			entries = append(entries, kv{k, v})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	values := make([]any, 0, len(entries))
	for _, e := range entries {
		values = append(values, e.val)
	}
	return values
}

// Execute reduces the gathered "sources.*" inputs under the configured
// merge_strategy and writes the result to the "target" output slot.
func (e *MergeExecutor) Execute(ctx context.Context, nctx executor.NodeExecContext) executor.Result {
	strategy := e.GetStringDefault(nctx.Config, "merge_strategy", "all")
	if !mergeStrategies[strategy] {
		return executor.Result{Err: fmt.Errorf("unknown merge strategy: %s", strategy)}
	}

	values := sourceValues(nctx.Inputs)

	var result any
	switch strategy {
	case "first":
		if len(values) > 0 {
			result = values[0]
		}
	case "last":
		if len(values) > 0 {
			result = values[len(values)-1]
		}
	case "all":
		result = values
	case "concat":
		concatenated := make([]any, 0, len(values))
		for _, v := range values {
			if list, ok := v.([]any); ok {
				concatenated = append(concatenated, list...)
				continue
			}
			concatenated = append(concatenated, v)
		}
		result = concatenated
	}

	return executor.Result{OK: true, Outputs: map[string]any{"target": result}}
}

// Validate rejects any merge_strategy outside the closed four-strategy set.
func (e *MergeExecutor) Validate(config map[string]any) error {
	strategy := e.GetStringDefault(config, "merge_strategy", "all")
	if !mergeStrategies[strategy] {
		return fmt.Errorf("invalid merge strategy: %s", strategy)
	}
	return nil
}
