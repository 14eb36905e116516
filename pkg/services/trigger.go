package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// OperatorWorkerID is recorded as the claimer when an operator moves an instance to processing.
const OperatorWorkerID = "operator"

// InstanceFilter selects trigger instances for operators.
type InstanceFilter struct {
	WorkflowID string
	Status     *models.InstanceStatus
	Limit      int
	Offset     int
}

// InstanceUpdate is a manual intervention on a trigger instance. Nil fields are left unchanged.
type InstanceUpdate struct {
	Status      *models.InstanceStatus
	Attempts    *int
	AvailableAt *time.Time
	Payload     json.RawMessage
	Reason      string
}

// Trigger submits and inspects trigger instances.
type Trigger struct {
	persistence persistence.Persistence
	machine     *execution.Machine
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewTrigger creates a new trigger service.
func NewTrigger(
	persistence persistence.Persistence,
	machine *execution.Machine,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Trigger {
	return &Trigger{
		persistence: persistence,
		machine:     machine,
		publisher:   publisher,
		logger:      logger.With("module", "trigger_service"),
		now:         time.Now,
	}
}

// Submit creates an enqueued instance of an active workflow, or returns the
// instance already stored for (workflowID, idempotencyKey) untouched.
// created reports which of the two happened.
func (t *Trigger) Submit(
	ctx context.Context,
	workflowID, idempotencyKey string,
	payload json.RawMessage,
) (instance *models.TriggerInstance, created bool, err error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, false, NewValidationError("idempotency_key", "is required")
	}

	flow, err := t.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, false, err
	}

	if !flow.IsActive {
		return nil, false, persistence.NewWorkflowError("Submit", workflowID, ErrWorkflowInactive)
	}

	payload, err = checkPayload(flow, payload)
	if err != nil {
		return nil, false, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate trigger instance ID: %w", err)
	}

	now := t.now().UTC()
	candidate := &models.TriggerInstance{
		ID:             id.String(),
		WorkflowID:     workflowID,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
		Status:         models.InstanceStatusEnqueued,
		Attempts:       0,
		AvailableAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	instance, created, err = t.persistence.TriggerInstanceRepository().CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("failed to submit trigger instance: %w", err)
	}

	if !created {
		t.logger.DebugContext(ctx, "Duplicate submission", "workflow_id", workflowID, "idempotency_key", idempotencyKey, "instance_id", instance.ID)

		return instance, false, nil
	}

	t.logger.InfoContext(ctx, "Submitted trigger instance", "workflow_id", workflowID, "instance_id", instance.ID)

	t.publish(ctx, instance.ID, events.InstanceSubmitted{
		BaseEvent:      events.NewBase(uuid.NewString(), events.InstanceSubmittedEvent, workflowID, instance.ID, ""),
		IdempotencyKey: idempotencyKey,
	})

	return instance, true, nil
}

// Get returns a trigger instance.
func (t *Trigger) Get(ctx context.Context, id string) (*models.TriggerInstance, error) {
	return t.persistence.TriggerInstanceRepository().GetByID(ctx, id)
}

// List returns trigger instances, newest first.
func (t *Trigger) List(ctx context.Context, filter InstanceFilter) ([]*models.TriggerInstance, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", *filter.Status))
	}

	return t.persistence.TriggerInstanceRepository().List(ctx, persistence.InstanceListOptions{
		WorkflowID: filter.WorkflowID,
		Status:     filter.Status,
		Limit:      persistence.NormalizeLimit(filter.Limit),
		Offset:     max(filter.Offset, 0),
	})
}

// Update applies an operator change. A status change must be a transition of
// the lifecycle table; attempts follow the machine. Keeping the status is only
// allowed on enqueued instances, to reschedule them or edit their payload.
func (t *Trigger) Update(ctx context.Context, id string, update InstanceUpdate) (*models.TriggerInstance, error) {
	current, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := current.Status
	if update.Status != nil {
		target = *update.Status
	}

	if !target.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", target))
	}

	next, err := t.transition(current, target, update.Reason)
	if err != nil {
		return nil, err
	}

	if update.Attempts != nil && *update.Attempts != next.Attempts {
		return nil, NewValidationError("attempts", fmt.Sprintf("must be %d after this change", next.Attempts))
	}

	if update.AvailableAt != nil || update.Payload != nil {
		if next.Status != models.InstanceStatusEnqueued {
			return nil, NewValidationError("status", "available_at and payload can only change on enqueued instances")
		}
	}

	if update.AvailableAt != nil {
		next.AvailableAt = update.AvailableAt.UTC()
	}

	if update.Payload != nil {
		flow, err := t.persistence.WorkflowRepository().GetByID(ctx, current.WorkflowID)
		if err != nil {
			return nil, err
		}

		next.Payload, err = checkPayload(flow, update.Payload)
		if err != nil {
			return nil, err
		}
	}

	err = t.persistence.TriggerInstanceRepository().CompareAndSwap(ctx, next, current.Status, current.Attempts)
	if err != nil {
		return nil, fmt.Errorf("failed to update trigger instance: %w", err)
	}

	t.logger.InfoContext(ctx, "Updated trigger instance",
		"instance_id", id,
		"from", current.Status,
		"to", next.Status,
		"attempts", next.Attempts,
	)

	return next, nil
}

func (t *Trigger) transition(current *models.TriggerInstance, target models.InstanceStatus, reason string) (*models.TriggerInstance, error) {
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInvalidTransition, current.ID, current.Status)
	}

	if target == current.Status {
		if current.Status != models.InstanceStatusEnqueued {
			return nil, fmt.Errorf("%w: instance %s is already %s", ErrInvalidTransition, current.ID, current.Status)
		}

		return current.Clone(), nil
	}

	event, ok := t.machine.EventFor(current.Status, target, current.Attempts)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}

	if reason == "" {
		reason = "changed by operator"
	}

	next, err := t.machine.Apply(current, event, OperatorWorkerID, errors.New(reason))
	if err != nil {
		return nil, err
	}

	return next, nil
}

func (t *Trigger) publish(ctx context.Context, key string, event eventbus.Event) {
	err := t.publisher.Publish(ctx, key, event)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// checkPayload requires a JSON object that satisfies the workflow payload
// schema, if any, and returns it without insignificant whitespace. Key order
// is kept.
func checkPayload(flow *models.Workflow, payload json.RawMessage) (json.RawMessage, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var object map[string]any

	err := json.Unmarshal(payload, &object)
	if err != nil || object == nil {
		return nil, NewValidationError("payload", "must be a JSON object")
	}

	var compacted bytes.Buffer

	err = json.Compact(&compacted, payload)
	if err != nil {
		return nil, NewValidationError("payload", err.Error())
	}

	payload = compacted.Bytes()

	if flow.PayloadSchema == nil {
		return payload, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(flow.PayloadSchema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return nil, NewValidationError("payload_schema", err.Error())
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return nil, NewValidationError("payload", strings.Join(messages, "; "))
	}

	return payload, nil
}
