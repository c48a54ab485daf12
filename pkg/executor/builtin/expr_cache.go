package builtin

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprCache is a thread-safe bounded cache of compiled expr-lang programs,
// shared by every builtin executor that evaluates a configured script
// expression (transform_node, switch_node, edge filters). Unlike the
// teacher's pkg/engine/condition_cache.go ConditionCache — a strict LRU
// backed by container/list — this cache evicts by clock (second-chance):
// a fixed ring of slots is scanned in order, each slot's "referenced" bit
// is cleared on a first pass and the slot is only evicted on a later pass
// if still unreferenced. This trades strict recency ordering (no
// MoveToFront on every Get) for a single bit flip on the hot path, which
// suits this cache's read-heavy pattern: a node's expression is looked up
// once per execution of that node, many times more often than it is
// inserted.
type ExprCache struct {
	capacity int
	index    map[string]int // source -> slot
	slots    []exprSlot
	hand     int
	mu       sync.Mutex
}

type exprSlot struct {
	key        string
	program    *vm.Program
	referenced bool
	used       bool
}

// NewExprCache creates a new expression cache with the given capacity.
func NewExprCache(capacity int) *ExprCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ExprCache{
		capacity: capacity,
		index:    make(map[string]int, capacity),
		slots:    make([]exprSlot, capacity),
	}
}

// Get retrieves a compiled program from cache, marking it referenced so a
// subsequent clock sweep gives it a second chance before eviction.
func (c *ExprCache) Get(source string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, found := c.index[source]
	if !found {
		return nil, false
	}
	c.slots[slot].referenced = true
	return c.slots[slot].program, true
}

// Put stores a compiled program in cache, evicting by clock sweep once
// capacity is reached.
func (c *ExprCache) Put(source string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, found := c.index[source]; found {
		c.slots[slot].program = program
		c.slots[slot].referenced = true
		return
	}

	slot := c.findFreeSlot()
	if c.slots[slot].used {
		delete(c.index, c.slots[slot].key)
	}
	c.slots[slot] = exprSlot{key: source, program: program, referenced: true, used: true}
	c.index[source] = slot
}

// findFreeSlot returns an empty slot if one exists, otherwise advances the
// clock hand past referenced slots (clearing their bit) until it lands on
// one that was already unreferenced, and returns that slot for reuse.
func (c *ExprCache) findFreeSlot() int {
	for i, s := range c.slots {
		if !s.used {
			return i
		}
	}
	for {
		s := &c.slots[c.hand]
		if !s.referenced {
			victim := c.hand
			c.hand = (c.hand + 1) % len(c.slots)
			return victim
		}
		s.referenced = false
		c.hand = (c.hand + 1) % len(c.slots)
	}
}

// Len returns the current number of cached programs.
func (c *ExprCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Clear removes all cached programs.
func (c *ExprCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]int, c.capacity)
	c.slots = make([]exprSlot, c.capacity)
	c.hand = 0
}

// CompileAndCache compiles source against env's shape if not already cached,
// keyed on the source text alone (spec's node configs reuse the same
// expression across many executions of the same node; env shape does not
// vary between calls for a given node).
func (c *ExprCache) CompileAndCache(source string, env any) (*vm.Program, error) {
	if program, found := c.Get(source); found {
		return program, nil
	}

	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, err
	}

	c.Put(source, program)
	return program, nil
}

// CompileBoolAndCache is like CompileAndCache but requires the expression to
// evaluate to a boolean, used for edge filters. (switch_node compiles through
// CompileAndCache, since its result is a case key, not a boolean.)
func (c *ExprCache) CompileBoolAndCache(source string, env any) (*vm.Program, error) {
	cacheKey := "bool:" + source
	if program, found := c.Get(cacheKey); found {
		return program, nil
	}

	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}

	c.Put(cacheKey, program)
	return program, nil
}
