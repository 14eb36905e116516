package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/protocol"
	"github.com/dukex/notiflow/pkg/services"
	"github.com/dukex/notiflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

// process walks the graph of a claimed instance from its cursor until the
// last node succeeds or a node fails. Progress is checkpointed on the
// instance after every successful node, which also renews the lease.
func (d *Dispatcher) process(ctx context.Context, instance *models.TriggerInstance) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.process_instance", instanceAttributes(instance)...)
	defer span.End()

	// Outcomes are persisted even when shutdown cancels ctx.
	persistCtx := context.WithoutCancel(ctx)

	fail := func(event execution.Event, cause error, cursor *string) {
		otelhelper.SetError(span, cause)

		_, err := d.finish(persistCtx, instance, event, cause, cursor)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to record failure", "instance_id", instance.ID, "error", err)
		}
	}

	flow, err := d.persistence.WorkflowRepository().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		event := execution.EventRecoverable
		if persistence.IsWorkflowNotFound(err) {
			event = execution.EventFatal
		}

		fail(event, fmt.Errorf("failed to load workflow: %w", err), nil)

		return
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowCodeKey, flow.Code))

	data, err := template.DecodePayload(instance.Payload)
	if err != nil {
		fail(execution.EventFatal, err, nil)

		return
	}

	current := ""

	switch {
	case instance.CursorNodeID != nil:
		current = *instance.CursorNodeID
	case flow.EntryNodeID != nil:
		current = *flow.EntryNodeID
	}

	for {
		node, ok := flow.Node(current)
		if !ok {
			fail(execution.EventFatal, fmt.Errorf("%w: %q", services.ErrUnknownNode, current), nil)

			return
		}

		cursor := node.ID
		outcome := d.executeNode(ctx, instance, node, data)

		switch outcome.Kind {
		case protocol.OutcomeSuccess:
		case protocol.OutcomeRecoverable:
			fail(execution.EventRecoverable, fmt.Errorf("node %s: %s", node.ID, outcome.Reason), &cursor)

			return
		default:
			fail(execution.EventFatal, fmt.Errorf("node %s: %s", node.ID, outcome.Reason), &cursor)

			return
		}

		next, err := successor(flow, node.ID, outcome)
		if err != nil {
			fail(execution.EventFatal, err, &cursor)

			return
		}

		if next == "" {
			_, err := d.finish(persistCtx, instance, execution.EventSuccess, nil, nil)
			if err != nil {
				otelhelper.SetError(span, err)
				d.logger.ErrorContext(ctx, "Failed to record completion", "instance_id", instance.ID, "error", err)

				return
			}

			otelhelper.SetOK(span)

			return
		}

		instance, err = d.checkpoint(persistCtx, instance, next)
		if err != nil {
			otelhelper.SetError(span, err)
			d.logger.ErrorContext(ctx, "Stopped processing instance", "instance_id", instance.ID, "error", err)

			return
		}

		if ctx.Err() != nil {
			// Resumes from the checkpoint once the lease expires.
			return
		}

		current = next
	}
}

// checkpoint stores the next node to run on the processing instance and
// renews its lease, so every node starts with a full LeaseTimeout ahead.
func (d *Dispatcher) checkpoint(ctx context.Context, instance *models.TriggerInstance, next string) (*models.TriggerInstance, error) {
	updated, err := d.machine.Renew(instance, d.config.WorkerID)
	if err != nil {
		return instance, fmt.Errorf("%w: %w", errLeaseLost, err)
	}

	updated.CursorNodeID = &next

	err = d.persistence.TriggerInstanceRepository().CompareAndSwap(ctx, updated, instance.Status, instance.Attempts)
	if err != nil {
		if persistence.IsStaleInstance(err) {
			return instance, fmt.Errorf("%w: %w", errLeaseLost, err)
		}

		return instance, fmt.Errorf("failed to checkpoint instance: %w", err)
	}

	return updated, nil
}

// executeNode renders the bindings of node and invokes its executor, bounded
// by ExecutionTimeout. Executor errors and timeouts are recoverable; bindings
// that cannot render are fatal.
func (d *Dispatcher) executeNode(
	ctx context.Context,
	instance *models.TriggerInstance,
	node *models.WorkflowNode,
	data map[string]any,
) protocol.Outcome {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.execute_node",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.WorkerIDKey, d.config.WorkerID),
	)
	defer span.End()

	started := time.Now()
	outcome := d.invoke(ctx, instance, node, data)

	span.SetAttributes(attribute.String(otelhelper.OutcomeKey, string(outcome.Kind)))

	if outcome.Kind == protocol.OutcomeSuccess {
		otelhelper.SetOK(span)
	} else {
		otelhelper.SetError(span, errors.New(outcome.Reason))
	}

	d.logger.DebugContext(ctx, "Executed node",
		"instance_id", instance.ID,
		"node_id", node.ID,
		"node_type", node.Type,
		"outcome", outcome.Kind,
	)

	d.publish(ctx, instance.ID, events.NodeExecuted{
		BaseEvent:  d.base(events.NodeExecutedEvent, instance),
		NodeID:     node.ID,
		NodeType:   string(node.Type),
		Outcome:    string(outcome.Kind),
		Error:      outcome.Reason,
		DurationMs: time.Since(started).Milliseconds(),
	})

	return outcome
}

type invocation struct {
	outcome protocol.Outcome
	err     error
}

func (d *Dispatcher) invoke(
	ctx context.Context,
	instance *models.TriggerInstance,
	node *models.WorkflowNode,
	data map[string]any,
) protocol.Outcome {
	if node.Bindings == nil {
		return protocol.Fatal(fmt.Sprintf("node %s has no bindings", node.ID))
	}

	fields, err := template.RenderBindings(node.Bindings, data)
	if err != nil {
		return protocol.Fatal(err.Error())
	}

	executor, err := d.executors.Get(node.Type)
	if err != nil {
		return protocol.Recoverable(err.Error())
	}

	payload := protocol.ResolvedPayload{
		InstanceID: instance.ID,
		WorkflowID: instance.WorkflowID,
		Attempt:    instance.Attempts,
		Payload:    instance.Payload,
		Data:       data,
		Fields:     fields,
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.ExecutionTimeout)
	defer cancel()

	done := make(chan invocation, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("executor panicked: %v", r)}
			}
		}()

		outcome, err := executor.Execute(ctx, node, payload)
		done <- invocation{outcome: outcome, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return protocol.Recoverable(result.err.Error())
		}

		switch result.outcome.Kind {
		case protocol.OutcomeSuccess, protocol.OutcomeRecoverable, protocol.OutcomeFatal:
			return result.outcome
		default:
			return protocol.Fatal(fmt.Sprintf("executor returned unknown outcome %q", result.outcome.Kind))
		}
	case <-ctx.Done():
		return protocol.Recoverable(fmt.Sprintf("node execution timed out after %s", d.config.ExecutionTimeout))
	}
}

// successor picks the node that follows nodeID. With several out-edges the
// executor must name one of them in outcome.Next.
func successor(flow *models.Workflow, nodeID string, outcome protocol.Outcome) (string, error) {
	edges := flow.OutEdges(nodeID)

	if outcome.Next != "" {
		for _, edge := range edges {
			if edge.ToNodeID == outcome.Next {
				return outcome.Next, nil
			}
		}

		return "", fmt.Errorf("%w: node %s has no edge to %s", services.ErrUnknownNode, nodeID, outcome.Next)
	}

	switch len(edges) {
	case 0:
		return "", nil
	case 1:
		return edges[0].ToNodeID, nil
	default:
		return "", fmt.Errorf("%w: node %s has %d successors", services.ErrAmbiguousBranch, nodeID, len(edges))
	}
}
