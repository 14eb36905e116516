// Package execution implements the trigger instance lifecycle:
//
//	enqueued   --claim-->                      processing (attempts+1)
//	processing --success-->                    completed
//	processing --recoverable, attempts<max-->  enqueued (available_at = now + backoff)
//	processing --recoverable, attempts>=max--> failed
//	processing --fatal-->                      failed
//	processing --renew-->                      processing (claimed_at = now)
//
// Every transition returns a new value; the caller persists it with a
// compare-and-swap on the previous (status, attempts).
package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/notiflow/pkg/config"
	"github.com/dukex/notiflow/pkg/models"
)

// ErrInvalidTransition is returned for an event the current status does not accept.
var ErrInvalidTransition = errors.New("invalid state transition")

// Event drives a transition.
type Event string

const (
	EventClaim       Event = "claim"
	EventSuccess     Event = "success"
	EventRecoverable Event = "recoverable"
	EventFatal       Event = "fatal"
	EventRenew       Event = "renew"
)

// TransitionError reports a rejected event.
type TransitionError struct {
	From  models.InstanceStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s on %s", ErrInvalidTransition, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Machine applies lifecycle events under a retry policy.
type Machine struct {
	policy config.Retry
	now    func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(policy config.Retry, opts ...Option) *Machine {
	m := &Machine{
		policy: policy,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Policy returns the retry policy in use.
func (m *Machine) Policy() config.Retry {
	return m.policy
}

// Claim moves an enqueued instance to processing on behalf of workerID.
func (m *Machine) Claim(instance *models.TriggerInstance, workerID string) (*models.TriggerInstance, error) {
	if instance.Status != models.InstanceStatusEnqueued {
		return nil, &TransitionError{From: instance.Status, Event: EventClaim}
	}

	now := m.now().UTC()
	next := instance.Clone()
	next.Status = models.InstanceStatusProcessing
	next.Attempts++
	next.ClaimedBy = workerID
	next.ClaimedAt = &now

	return next, nil
}

// Renew restarts the lease of a processing instance still held by workerID.
func (m *Machine) Renew(instance *models.TriggerInstance, workerID string) (*models.TriggerInstance, error) {
	if instance.Status != models.InstanceStatusProcessing || instance.ClaimedBy != workerID {
		return nil, &TransitionError{From: instance.Status, Event: EventRenew}
	}

	now := m.now().UTC()
	next := instance.Clone()
	next.ClaimedAt = &now

	return next, nil
}

// Complete marks a processing instance as successfully finished.
func (m *Machine) Complete(instance *models.TriggerInstance) (*models.TriggerInstance, error) {
	if instance.Status != models.InstanceStatusProcessing {
		return nil, &TransitionError{From: instance.Status, Event: EventSuccess}
	}

	now := m.now().UTC()
	next := instance.Clone()
	next.Status = models.InstanceStatusCompleted
	next.CursorNodeID = nil
	next.LastError = ""
	next.FinishedAt = &now

	return next, nil
}

// Fail records a recoverable or fatal failure of a processing instance.
// cursor is the node a retry resumes at; nil keeps the current cursor.
func (m *Machine) Fail(instance *models.TriggerInstance, event Event, cause error, cursor *string) (*models.TriggerInstance, error) {
	if instance.Status != models.InstanceStatusProcessing || (event != EventRecoverable && event != EventFatal) {
		return nil, &TransitionError{From: instance.Status, Event: event}
	}

	now := m.now().UTC()
	next := instance.Clone()

	if cause != nil {
		next.LastError = cause.Error()
	}

	if cursor != nil {
		c := *cursor
		next.CursorNodeID = &c
	}

	if event == EventRecoverable && next.Attempts < m.policy.MaxAttempts {
		next.Status = models.InstanceStatusEnqueued
		next.AvailableAt = now.Add(m.Backoff(next.Attempts))
		next.ClaimedAt = nil

		return next, nil
	}

	next.Status = models.InstanceStatusFailed
	next.FinishedAt = &now

	return next, nil
}

// Apply dispatches event to the matching transition.
func (m *Machine) Apply(instance *models.TriggerInstance, event Event, workerID string, cause error) (*models.TriggerInstance, error) {
	switch event {
	case EventClaim:
		return m.Claim(instance, workerID)
	case EventSuccess:
		return m.Complete(instance)
	case EventRecoverable, EventFatal:
		return m.Fail(instance, event, cause, nil)
	default:
		return nil, &TransitionError{From: instance.Status, Event: event}
	}
}

// EventFor returns the event that moves an instance with status from and
// attempts to status to, or false when no row of the table does.
func (m *Machine) EventFor(from, to models.InstanceStatus, attempts int) (Event, bool) {
	switch {
	case from == models.InstanceStatusEnqueued && to == models.InstanceStatusProcessing:
		return EventClaim, true
	case from == models.InstanceStatusProcessing && to == models.InstanceStatusCompleted:
		return EventSuccess, true
	case from == models.InstanceStatusProcessing && to == models.InstanceStatusEnqueued && attempts < m.policy.MaxAttempts:
		return EventRecoverable, true
	case from == models.InstanceStatusProcessing && to == models.InstanceStatusFailed:
		if attempts >= m.policy.MaxAttempts {
			return EventRecoverable, true
		}

		return EventFatal, true
	default:
		return "", false
	}
}
