package executor

import (
	"fmt"
	"sync"

	"github.com/dibenedetto/meshade/pkg/backend"
	"github.com/dibenedetto/meshade/pkg/models"
)

// Registry implements the Manager interface with thread-safe constructor
// registration. Kept structurally identical to the teacher's Registry
// (mutex-guarded map, same error wrapping) with Executor values replaced by
// Constructor values.
type Registry struct {
	mu   sync.RWMutex
	ctor map[string]Constructor
}

// NewRegistry creates a new executor registry.
func NewRegistry() *Registry {
	return &Registry{
		ctor: make(map[string]Constructor),
	}
}

// NewManager creates a new executor manager.
// Built-in executors should be registered separately using RegisterBuiltins function
// from pkg/executor/builtin package to avoid import cycles.
func NewManager() Manager {
	return NewRegistry()
}

// Register registers a constructor for a specific node type.
func (r *Registry) Register(nodeType string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nodeType == "" {
		return fmt.Errorf("node type cannot be empty")
	}

	if ctor == nil {
		return fmt.Errorf("constructor cannot be nil")
	}

	r.ctor[nodeType] = ctor
	return nil
}

// New instantiates an executor for the given node type, node index and
// backend handles.
func (r *Registry) New(nodeType string, index int, handles backend.Handles) (Executor, error) {
	r.mu.RLock()
	ctor, ok := r.ctor[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}

	return ctor(index, handles), nil
}

// Has checks if a constructor is registered for the given node type.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.ctor[nodeType]
	return ok
}

// List returns a list of all registered node type tags.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.ctor))
	for nodeType := range r.ctor {
		types = append(types, nodeType)
	}

	return types
}

// Unregister removes a constructor for a specific node type.
func (r *Registry) Unregister(nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ctor[nodeType]; !ok {
		return fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}

	delete(r.ctor, nodeType)
	return nil
}
