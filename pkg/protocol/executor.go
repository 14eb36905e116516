// Package protocol defines the contract between the dispatcher and node executors.
package protocol

import (
	"context"
	"encoding/json"

	"github.com/dukex/notiflow/pkg/models"
)

// OutcomeKind classifies an executor result.
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeRecoverable OutcomeKind = "recoverable"
	OutcomeFatal       OutcomeKind = "fatal"
)

// Outcome is what an executor reports for one node invocation.
type Outcome struct {
	Kind OutcomeKind
	// Next names the successor to follow when the node has several out-edges.
	Next string
	// Reason describes a failure.
	Reason string
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// SuccessTo selects the branch to follow after a successful node.
func SuccessTo(next string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Next: next}
}

func Recoverable(reason string) Outcome {
	return Outcome{Kind: OutcomeRecoverable, Reason: reason}
}

func Fatal(reason string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason}
}

// ResolvedPayload is the input handed to an executor: the trigger payload and
// the node bindings rendered against it.
type ResolvedPayload struct {
	InstanceID string
	WorkflowID string
	Attempt    int
	Payload    json.RawMessage
	Data       map[string]any
	// Fields holds the rendered bindings, keyed by field name ("to", "subject", "body").
	Fields map[string]string
}

// NodeExecutor performs the side effect of one node type. A returned error is
// treated as a recoverable failure.
type NodeExecutor interface {
	Execute(ctx context.Context, node *models.WorkflowNode, payload ResolvedPayload) (Outcome, error)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, node *models.WorkflowNode, payload ResolvedPayload) (Outcome, error)

func (f NodeExecutorFunc) Execute(ctx context.Context, node *models.WorkflowNode, payload ResolvedPayload) (Outcome, error) {
	return f(ctx, node, payload)
}
