// Package events defines the lifecycle events published for trigger instances.
package events

import (
	"time"
)

type EventType string

// Topic is the topic every lifecycle event is published to.
const Topic = "notiflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceSubmittedEvent      EventType = "instance.submitted"
	InstanceClaimedEvent        EventType = "instance.claimed"
	NodeExecutedEvent           EventType = "node.executed"
	InstanceCompletedEvent      EventType = "instance.completed"
	InstanceRetryScheduledEvent EventType = "instance.retry_scheduled"
	InstanceFailedEvent         EventType = "instance.failed"
)

// Types lists every lifecycle event type in publishing order.
func Types() []EventType {
	return []EventType{
		InstanceSubmittedEvent,
		InstanceClaimedEvent,
		NodeExecutedEvent,
		InstanceCompletedEvent,
		InstanceRetryScheduledEvent,
		InstanceFailedEvent,
	}
}

func (t EventType) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}

	return false
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	InstanceID string    `json:"instance_id"`
	WorkerID   string    `json:"worker_id,omitempty"`
}

// NewBase fills the common fields of an event.
func NewBase(id string, eventType EventType, workflowID, instanceID, workerID string) BaseEvent {
	return BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		InstanceID: instanceID,
		WorkerID:   workerID,
	}
}

type InstanceSubmitted struct {
	BaseEvent

	IdempotencyKey string `json:"idempotency_key"`
}

func (e InstanceSubmitted) GetType() EventType {
	return InstanceSubmittedEvent
}

type InstanceClaimed struct {
	BaseEvent

	Attempt int `json:"attempt"`
}

func (e InstanceClaimed) GetType() EventType {
	return InstanceClaimedEvent
}

// NodeExecuted reports one executor invocation.
type NodeExecuted struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	NodeType   string `json:"node_type"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (e NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

type InstanceCompleted struct {
	BaseEvent

	Attempts int `json:"attempts"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceRetryScheduled struct {
	BaseEvent

	Attempt     int       `json:"attempt"`
	AvailableAt time.Time `json:"available_at"`
	Error       string    `json:"error"`
}

func (e InstanceRetryScheduled) GetType() EventType {
	return InstanceRetryScheduledEvent
}

type InstanceFailed struct {
	BaseEvent

	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}
