// Package registry is the Workflow Registry (spec §4.3, C3): name-keyed
// storage of workflow definitions with create/add/get/list/remove and
// link-time preparation. Structurally grounded on the teacher's
// pkg/executor/registry.go mutex-map shape, applied here to *models.Workflow
// instead of node executors — the teacher itself has no in-memory workflow
// registry (its workflow storage is a Postgres table via uptrace/bun,
// dropped per spec's Non-goals on transactional persistence; see
// DESIGN.md).
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/dibenedetto/meshade/pkg/backend"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/models"
)

// HandleProvider builds the per-node backend resource vector for a linked
// workflow (spec §4.3 impl's "handles" result, §4.4 step 5). A nil provider
// falls back to backend.NoopHandles() for every node — suitable for tests
// and for workflows with no tool_node/agent_node.
type HandleProvider func(workflow *models.Workflow) []backend.Handles

// Registry is an in-memory, name-keyed workflow store.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	order     []string // insertion order, for list()
	counter   uint64

	knownKinds map[string]struct{}
	bus        *eventbus.Bus
	handles    HandleProvider
}

// New creates an empty registry. knownKinds is the node-kind vocabulary
// Link rejects unknown type tags against (see pkg/executor/builtin.KnownKinds).
func New(knownKinds map[string]struct{}, bus *eventbus.Bus, handles HandleProvider) *Registry {
	return &Registry{
		workflows:  make(map[string]*models.Workflow),
		knownKinds: knownKinds,
		bus:        bus,
		handles:    handles,
	}
}

func (r *Registry) emit(eventType, name string) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(models.NewEvent(eventType, name, "", nil))
}

// Create stores a new empty workflow under name. Duplicate names are the
// caller's policy to decide (spec §4.3): Create returns an error if name is
// already registered, leaving the existing workflow untouched.
func (r *Registry) Create(name, description string) (*models.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[name]; exists {
		return nil, fmt.Errorf("workflow %q already exists", name)
	}

	wf := &models.Workflow{Name: name, Description: description}
	r.workflows[name] = wf
	r.order = append(r.order, name)
	r.emit(models.EventRegistryCreated, name)
	return wf, nil
}

// Add stores workflow under name (or workflow.Name if name is empty, or an
// auto-assigned "workflow_{N}" if both are empty), per spec §4.3. Add links
// the workflow before storing it, surfacing invalid_workflow errors
// synchronously to the caller (spec §7).
func (r *Registry) Add(workflow *models.Workflow, name string) (string, error) {
	if workflow == nil {
		return "", fmt.Errorf("workflow is nil")
	}

	resolved := name
	if resolved == "" {
		resolved = workflow.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if resolved == "" {
		n := atomic.AddUint64(&r.counter, 1)
		resolved = fmt.Sprintf("workflow_%d", n)
	}

	workflow.Name = resolved
	if err := workflow.Link(r.knownKinds); err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrInvalidWorkflow, err)
	}

	if _, exists := r.workflows[resolved]; !exists {
		r.order = append(r.order, resolved)
	}
	r.workflows[resolved] = workflow
	r.emit(models.EventRegistryAdded, resolved)
	return resolved, nil
}

// Get returns a defensive copy of the named workflow, or
// models.ErrWorkflowNotFound.
func (r *Registry) Get(name string) (*models.Workflow, error) {
	r.mu.RLock()
	wf, ok := r.workflows[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrWorkflowNotFound, name)
	}

	clone, err := wf.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone workflow %q: %w", name, err)
	}
	r.emit(models.EventRegistryGot, name)
	return clone, nil
}

// List returns workflow names sorted by insertion order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	r.emit(models.EventRegistryListed, "")
	return names
}

// Remove removes the named workflow (true if it existed), or clears every
// workflow when name is empty.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		cleared := len(r.workflows) > 0
		r.workflows = make(map[string]*models.Workflow)
		r.order = nil
		r.emit(models.EventRegistryCleared, "")
		return cleared
	}

	if _, ok := r.workflows[name]; !ok {
		return false
	}
	delete(r.workflows, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(models.EventRegistryRemoved, name)
	return true
}

// ImplResult is the triple spec §4.3's impl(name) returns: the linked
// workflow ready to execute ("backend" is this prepared execution plan, per
// §4.7), and the per-node backend resource vector.
type ImplResult struct {
	Workflow *models.Workflow
	Handles  []backend.Handles
}

// Impl resolves name to its prepared execution plan: a defensively-copied,
// already-linked workflow plus the per-node backend.Handles vector the
// engine injects into tool_node/agent_node instances (spec §4.4 step 5).
func (r *Registry) Impl(name string) (*ImplResult, error) {
	wf, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if !wf.Linked() {
		if err := wf.Link(r.knownKinds); err != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidWorkflow, err)
		}
	}

	var handles []backend.Handles
	if r.handles != nil {
		handles = r.handles(wf)
	}
	if handles == nil {
		handles = make([]backend.Handles, len(wf.Nodes))
		for i := range handles {
			handles[i] = backend.NoopHandles()
		}
	}

	return &ImplResult{Workflow: wf, Handles: handles}, nil
}

// ImportYAML parses a YAML workflow document and adds it to the registry,
// grounded on the teacher's backend/internal/application/importer
// YAMLImporter (structure kept: metadata/variables/nodes/edges), re-shaped
// onto this module's index-addressed Node/Edge model instead of the
// teacher's id-addressed one.
func (r *Registry) ImportYAML(data []byte) (string, error) {
	var doc yamlWorkflow
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse yaml workflow: %w", err)
	}

	wf := &models.Workflow{
		Name:        doc.Metadata.Name,
		Description: doc.Metadata.Description,
		Variables:   doc.Variables,
		Nodes:       make([]models.Node, len(doc.Nodes)),
		Edges:       make([]models.Edge, len(doc.Edges)),
	}
	for i, n := range doc.Nodes {
		wf.Nodes[i] = models.Node{ID: n.ID, Type: n.Type, Config: n.Config}
	}
	for i, e := range doc.Edges {
		wf.Edges[i] = models.Edge{
			SourceNodeIdx: e.SourceNodeIdx,
			SourceSlot:    e.SourceSlot,
			TargetNodeIdx: e.TargetNodeIdx,
			TargetSlot:    e.TargetSlot,
			Filter:        e.Filter,
		}
	}

	return r.Add(wf, "")
}

type yamlWorkflow struct {
	Metadata struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"metadata"`
	Variables map[string]any `yaml:"variables"`
	Nodes     []struct {
		ID     string         `yaml:"id"`
		Type   string         `yaml:"type"`
		Config map[string]any `yaml:"config"`
	} `yaml:"nodes"`
	Edges []struct {
		SourceNodeIdx int    `yaml:"source_node_idx"`
		SourceSlot    string `yaml:"source_slot"`
		TargetNodeIdx int    `yaml:"target_node_idx"`
		TargetSlot    string `yaml:"target_slot"`
		Filter        string `yaml:"filter,omitempty"`
	} `yaml:"edges"`
}
