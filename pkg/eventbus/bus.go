// Package eventbus is the Event Bus (spec §4.2): publish/subscribe for
// lifecycle events, fan-out to in-process handlers and to streaming clients,
// bounded history. Grounded on the teacher's pkg/eventbus ObserverManager
// (internal/infrastructure/observer/manager.go) for the panic-isolated
// dispatch idiom, but restructured from the teacher's async
// one-goroutine-per-observer model to the spec's synchronous,
// at-most-once-per-subscriber delivery (§4.2 "emit ... delivers
// synchronously to all matching handlers").
package eventbus

import (
	"sync"

	"github.com/dibenedetto/meshade/internal/logger"
	"github.com/dibenedetto/meshade/pkg/models"
)

// HandlerFunc is an in-process event subscriber.
type HandlerFunc func(event models.Event)

// StreamingClient is a network consumer of events (spec §4.2
// add_streaming_client). A failed Send removes the client from the bus.
type StreamingClient interface {
	Send(event models.Event) error
}

type subscription struct {
	id      uint64
	topic   string
	handler HandlerFunc
}

// HistoryFilter narrows History results by workflow name, execution id,
// and/or event type (spec §4.2 "history(filter, limit)"). A zero-valued
// field imposes no constraint on that dimension.
type HistoryFilter struct {
	WorkflowName string
	ExecutionID  string
	Type         string
}

func (f HistoryFilter) matches(e models.Event) bool {
	if f.WorkflowName != "" && e.WorkflowName != f.WorkflowName {
		return false
	}
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

// Bus is the process-wide event bus. Its internal state (subscriber table,
// history ring, streaming client set) is guarded by a single mutex per spec
// §5 "Shared resources": all state transitions are serialized.
type Bus struct {
	mu   sync.Mutex
	subs []subscription
	next uint64

	history  []models.Event
	head     int
	count    int
	capacity int

	clients map[StreamingClient]struct{}
	log     *logger.Logger
}

// New creates an event bus with a fixed-capacity ring history.
func New(historyCapacity int, log *logger.Logger) *Bus {
	if historyCapacity <= 0 {
		historyCapacity = 1000
	}
	if log == nil {
		log = logger.Default()
	}
	return &Bus{
		history:  make([]models.Event, historyCapacity),
		capacity: historyCapacity,
		clients:  make(map[StreamingClient]struct{}),
		log:      log,
	}
}

// Subscribe registers handler for topic ("*" matches every event type) and
// returns a subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(topic string, handler HandlerFunc) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	return id
}

// Unsubscribe removes a previously registered subscription.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// AddStreamingClient registers a streaming sink.
func (b *Bus) AddStreamingClient(client StreamingClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
}

// RemoveStreamingClient unregisters a streaming sink.
func (b *Bus) RemoveStreamingClient(client StreamingClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
}

// Emit delivers event synchronously to every matching in-process subscriber
// and every streaming client, then appends it to the ring history. A
// handler panic is recovered and logged; it does not block or affect other
// handlers (spec §4.2). A streaming client whose Send fails is removed.
func (b *Bus) Emit(event models.Event) {
	b.mu.Lock()
	subsCopy := make([]subscription, len(b.subs))
	copy(subsCopy, b.subs)
	clientsCopy := make([]StreamingClient, 0, len(b.clients))
	for c := range b.clients {
		clientsCopy = append(clientsCopy, c)
	}
	b.appendHistoryLocked(event)
	b.mu.Unlock()

	elog := b.log.WithExecution(event.WorkflowName, event.ExecutionID)

	for _, s := range subsCopy {
		if s.topic != "*" && s.topic != event.Type {
			continue
		}
		b.dispatch(elog, s, event)
	}

	var failed []StreamingClient
	for _, c := range clientsCopy {
		if err := c.Send(event); err != nil {
			elog.Warn("removing streaming client after failed send", "error", err)
			failed = append(failed, c)
		}
	}
	if len(failed) > 0 {
		b.mu.Lock()
		for _, c := range failed {
			delete(b.clients, c)
		}
		b.mu.Unlock()
	}
}

// dispatch invokes one subscriber's handler with panic isolation, grounded
// on the teacher's notifyObserver recover-and-log idiom.
func (b *Bus) dispatch(elog *logger.Logger, s subscription, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			elog.Error("event subscriber panicked", "topic", s.topic, "panic", r)
		}
	}()
	s.handler(event)
}

func (b *Bus) appendHistoryLocked(event models.Event) {
	idx := (b.head + b.count) % b.capacity
	if b.count < b.capacity {
		b.count++
	} else {
		b.head = (b.head + 1) % b.capacity
	}
	b.history[idx] = event
}

// History returns up to limit events matching filter, oldest first. limit
// <= 0 means unlimited.
func (b *Bus) History(filter HistoryFilter, limit int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Event
	for i := 0; i < b.count; i++ {
		e := b.history[(b.head+i)%b.capacity]
		if filter.matches(e) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// ClearHistory empties the ring history.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.count = 0, 0
}
