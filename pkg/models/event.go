package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is the (id, type, timestamp, workflow_id, execution_id,
// source_node_id?, data, error?) tuple of spec §3. Types partition into
// workflow lifecycle, node lifecycle, user-interaction, and registry
// events, matching the teacher's dot-notation idiom
// (backend/pkg/engine/event.go) but renamed to the exact vocabulary §3
// names instead of the teacher's wave/retry-oriented set.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	WorkflowName  string         `json:"workflow_name,omitempty"`
	ExecutionID   string         `json:"execution_id,omitempty"`
	SourceNodeID  string         `json:"source_node_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Event type constants, exactly the vocabulary spec §3 enumerates.
const (
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventWorkflowCancelled = "workflow.cancelled"

	EventNodeStarted   = "node.started"
	EventNodeCompleted = "node.completed"
	EventNodeFailed    = "node.failed"

	EventUserInputRequested = "user.input_requested"
	EventUserInputReceived  = "user.input_received"

	EventRegistryAdded   = "workflow.added"
	EventRegistryRemoved = "workflow.removed"
	EventRegistryGot     = "workflow.got"
	EventRegistryListed  = "workflow.listed"
	EventRegistryCleared = "workflow.cleared"
	EventRegistryCreated = "workflow.created"
)

// NewEvent builds an Event with a fresh id and the current timestamp.
func NewEvent(eventType, workflowName, executionID string, data map[string]any) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		Timestamp:    time.Now(),
		WorkflowName: workflowName,
		ExecutionID:  executionID,
		Data:         data,
	}
}

// WithSourceNode sets the event's source node id and returns it for chaining.
func (e Event) WithSourceNode(nodeID string) Event {
	e.SourceNodeID = nodeID
	return e
}

// WithError attaches an error message and returns the event for chaining.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsWorkflowEvent reports whether the event is a workflow-lifecycle event.
func (e Event) IsWorkflowEvent() bool {
	switch e.Type {
	case EventWorkflowStarted, EventWorkflowCompleted, EventWorkflowFailed, EventWorkflowCancelled:
		return true
	}
	return false
}

// IsNodeEvent reports whether the event is a node-lifecycle event.
func (e Event) IsNodeEvent() bool {
	switch e.Type {
	case EventNodeStarted, EventNodeCompleted, EventNodeFailed:
		return true
	}
	return false
}
