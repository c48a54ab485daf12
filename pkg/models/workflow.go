// Package models defines the public domain types for the workflow execution
// engine: the node/edge/workflow data model, execution state snapshots, and
// the event and error vocabularies the rest of the engine shares.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Node is a tagged record: a stable id, a kind tag selecting a constructor
// in the node kind registry, and a typed payload of configuration fields.
// Input/output slot names may be simple ("source") or dotted ("cases.ok");
// a dotted slot is multi-valued, keyed by the sub-name after the dot.
type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Type        string         `json:"type" yaml:"type"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	InputSlots  []string       `json:"input_slots,omitempty" yaml:"input_slots,omitempty"`
	OutputSlots []string       `json:"output_slots,omitempty" yaml:"output_slots,omitempty"`
}

// LoopConfig marks an edge as a loop-back edge, bounding how many times the
// cycle it closes may be re-entered.
type LoopConfig struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
}

// Edge is the ordered 4-tuple (source_node_idx, source_slot, target_node_idx,
// target_slot) from spec §3. Nodes are referenced by their zero-based index
// in the workflow's node list, never by id — this is the arena-with-indices
// addressing spec §9 requires, deliberately different from an ID-keyed edge.
type Edge struct {
	SourceNodeIdx int         `json:"source_node_idx" yaml:"source_node_idx"`
	SourceSlot    string      `json:"source_slot" yaml:"source_slot"`
	TargetNodeIdx int         `json:"target_node_idx" yaml:"target_node_idx"`
	TargetSlot    string      `json:"target_slot" yaml:"target_slot"`
	Filter        string      `json:"filter,omitempty" yaml:"filter,omitempty"`
	Loop          *LoopConfig `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// IsLoop reports whether this edge closes a loop (re-enters an earlier node).
func (e Edge) IsLoop() bool {
	return e.Loop != nil
}

// Workflow is an immutable-after-linking record: descriptive info, options
// (seed, tag), the ordered node list, and the edge list.
type Workflow struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Seed        int64          `json:"seed,omitempty" yaml:"seed,omitempty"`
	Tag         string         `json:"tag,omitempty" yaml:"tag,omitempty"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges" yaml:"edges"`
	Variables   map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`

	linked bool
}

// GetNode returns the node at idx, or false if out of range.
func (w *Workflow) GetNode(idx int) (Node, bool) {
	if idx < 0 || idx >= len(w.Nodes) {
		return Node{}, false
	}
	return w.Nodes[idx], true
}

// Validate checks structural well-formedness: non-empty name, at least one
// node, and every edge index in range. It does not perform the kind-tag or
// merge-strategy checks that belong to Link (those require the node kind
// registry / strategy vocabulary and are link-time, not structural).
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return &ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(w.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "workflow must have at least one node"}
	}
	seen := make(map[string]struct{}, len(w.Nodes))
	for i, n := range w.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].id", i), Message: "node id is required"}
		}
		if _, dup := seen[n.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].id", i), Message: "duplicate node id: " + n.ID}
		}
		seen[n.ID] = struct{}{}
		if strings.TrimSpace(n.Type) == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].type", i), Message: "node type is required"}
		}
	}
	for i, e := range w.Edges {
		if err := e.validateIndices(len(w.Nodes)); err != nil {
			return &ValidationError{Field: fmt.Sprintf("edges[%d]", i), Message: err.Error()}
		}
	}
	return nil
}

func (e Edge) validateIndices(nodeCount int) error {
	if e.SourceNodeIdx < 0 || e.SourceNodeIdx >= nodeCount {
		return fmt.Errorf("source_node_idx %d out of range", e.SourceNodeIdx)
	}
	if e.TargetNodeIdx < 0 || e.TargetNodeIdx >= nodeCount {
		return fmt.Errorf("target_node_idx %d out of range", e.TargetNodeIdx)
	}
	if e.SourceSlot == "" {
		return fmt.Errorf("source_slot is required")
	}
	if e.TargetSlot == "" {
		return fmt.Errorf("target_slot is required")
	}
	if e.SourceNodeIdx == e.TargetNodeIdx && e.Loop == nil {
		return fmt.Errorf("self-loop edge must declare a loop config")
	}
	if e.Loop != nil && e.Loop.MaxIterations <= 0 {
		return fmt.Errorf("loop edge must have max_iterations > 0")
	}
	return nil
}

// Link prepares the workflow for execution. Its one graph transformation is
// constant propagation: for every edge whose source node's slot holds a
// literal config value rather than a runtime result, that value is copied
// directly into the target node's config under the target slot name, so the
// scheduler need not execute the producer to obtain it. Link does not
// convert list-declared multi-slots (InputSlots/OutputSlots) into sub-name
// mappings; both stay as declared.
//
// Link also performs the kind-tag and merge-strategy rejection spec §4.1 and
// §9 require: unknown node types and unknown merge strategies are
// invalid_workflow errors raised here, not at runtime.
func (w *Workflow) Link(knownKinds map[string]struct{}) error {
	if err := w.Validate(); err != nil {
		return err
	}
	for i, n := range w.Nodes {
		if _, ok := knownKinds[n.Type]; !ok {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].type", i), Message: "unknown node type: " + n.Type}
		}
		if n.Type == "merge_node" {
			strategy, ok := n.Config["merge_strategy"].(string)
			if !ok {
				strategy = "all"
			}
			switch strategy {
			case "first", "last", "concat", "all":
			default:
				return &ValidationError{Field: fmt.Sprintf("nodes[%d].config.merge_strategy", i), Message: "unsupported merge strategy: " + strategy}
			}
		}
	}
	for ei, e := range w.Edges {
		srcNode := w.Nodes[e.SourceNodeIdx]
		if val, isConst := constValueForSlot(srcNode, e.SourceSlot); isConst {
			dst := &w.Nodes[e.TargetNodeIdx]
			if dst.Config == nil {
				dst.Config = make(map[string]any)
			}
			dst.Config[e.TargetSlot] = val
		}
		_ = ei
	}
	w.linked = true
	return nil
}

// constValueForSlot returns a node's config value for a producer slot when
// that node is a pure configuration source (config-passthrough) rather than
// a runtime producer, enabling constant propagation per spec §3 step 2.
func constValueForSlot(n Node, slot string) (any, bool) {
	if n.Type != "config_node" {
		return nil, false
	}
	v, ok := n.Config[slot]
	return v, ok
}

// Linked reports whether Link has been applied.
func (w *Workflow) Linked() bool { return w.linked }

// Clone deep-copies the workflow via a JSON round-trip, matching the
// teacher's own idiom for defensive copies (used by the registry's
// get/list contract in spec §4.3).
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("clone marshal: %w", err)
	}
	var out Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone unmarshal: %w", err)
	}
	out.linked = w.linked
	return &out, nil
}
