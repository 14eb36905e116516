package models

import (
	"encoding/json"
	"time"
)

// InstanceStatus is the lifecycle state of a trigger instance.
type InstanceStatus string

const (
	InstanceStatusEnqueued   InstanceStatus = "enqueued"
	InstanceStatusProcessing InstanceStatus = "processing"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusFailed     InstanceStatus = "failed"
)

// Valid reports whether s is a known status.
func (s InstanceStatus) Valid() bool {
	switch s {
	case InstanceStatusEnqueued, InstanceStatusProcessing, InstanceStatusCompleted, InstanceStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can leave s.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed
}

// TriggerInstance is one submitted execution of a workflow against a payload.
type TriggerInstance struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	Status         InstanceStatus  `json:"status"`
	Attempts       int             `json:"attempts"`
	AvailableAt    time.Time       `json:"available_at"`
	CursorNodeID   *string         `json:"cursor_node_id,omitempty"` // Next node to run; nil starts at the entry node
	ClaimedBy      string          `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// Ready reports whether the instance may be claimed at now.
func (i *TriggerInstance) Ready(now time.Time) bool {
	return i.Status == InstanceStatusEnqueued && !now.Before(i.AvailableAt)
}

// Clone returns a deep copy so callers can prepare a transition without
// touching the stored value.
func (i *TriggerInstance) Clone() *TriggerInstance {
	clone := *i

	if i.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), i.Payload...)
	}

	if i.CursorNodeID != nil {
		cursor := *i.CursorNodeID
		clone.CursorNodeID = &cursor
	}

	if i.ClaimedAt != nil {
		claimedAt := *i.ClaimedAt
		clone.ClaimedAt = &claimedAt
	}

	if i.FinishedAt != nil {
		finishedAt := *i.FinishedAt
		clone.FinishedAt = &finishedAt
	}

	return &clone
}
