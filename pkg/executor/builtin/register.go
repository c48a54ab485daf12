package builtin

import (
	"github.com/dibenedetto/meshade/pkg/backend"
	"github.com/dibenedetto/meshade/pkg/executor"
)

// RegisterBuiltins registers every required node kind from spec §4.1 with
// the given manager. exprCacheCapacity sizes the shared compiled-expression
// cache used by transform_node and switch_node.
func RegisterBuiltins(manager executor.Manager, exprCacheCapacity int) error {
	cache := NewExprCache(exprCacheCapacity)

	ctors := map[string]executor.Constructor{
		// Control
		"start_node": func(index int, handles backend.Handles) executor.Executor {
			return NewStartExecutor()
		},
		"end_node": func(index int, handles backend.Handles) executor.Executor {
			return NewEndExecutor()
		},
		"sink_node": func(index int, handles backend.Handles) executor.Executor {
			return NewSinkExecutor()
		},

		// Script
		"transform_node": func(index int, handles backend.Handles) executor.Executor {
			return NewTransformExecutor(cache)
		},
		"switch_node": func(index int, handles backend.Handles) executor.Executor {
			return NewSwitchExecutor(cache)
		},
		"split_node": func(index int, handles backend.Handles) executor.Executor {
			return NewSplitExecutor()
		},
		"merge_node": func(index int, handles backend.Handles) executor.Executor {
			return NewMergeExecutor()
		},

		// Tool/Agent
		"tool_node": func(index int, handles backend.Handles) executor.Executor {
			return NewToolExecutor(index, handles.RunTool)
		},
		"agent_node": func(index int, handles backend.Handles) executor.Executor {
			return NewAgentExecutor(index, handles.RunAgent)
		},

		// User
		"user_input_node": func(index int, handles backend.Handles) executor.Executor {
			return NewUserInputExecutor()
		},
		"user_output_node": func(index int, handles backend.Handles) executor.Executor {
			return NewUserOutputExecutor()
		},

		// Config-passthrough
		"config_node": func(index int, handles backend.Handles) executor.Executor {
			return NewPassthroughExecutor()
		},
	}

	for name, ctor := range ctors {
		if err := manager.Register(name, ctor); err != nil {
			return err
		}
	}

	return nil
}

// KnownKinds returns the set of node type tags RegisterBuiltins wires, for
// use by Workflow.Link's unknown-type-tag rejection (spec §4.1 "Unknown type
// tags must be rejected at link time").
func KnownKinds() map[string]struct{} {
	return map[string]struct{}{
		"start_node":       {},
		"end_node":         {},
		"sink_node":        {},
		"transform_node":   {},
		"switch_node":      {},
		"split_node":       {},
		"merge_node":       {},
		"tool_node":        {},
		"agent_node":       {},
		"user_input_node":  {},
		"user_output_node": {},
		"config_node":      {},
	}
}
