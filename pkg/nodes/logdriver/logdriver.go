// Package logdriver provides node executors that log the rendered message
// instead of delivering it. Real delivery plugs in through protocol.NodeExecutor.
package logdriver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/protocol"
)

// Email logs the rendered email fields.
type Email struct {
	logger *slog.Logger
}

func NewEmail(logger *slog.Logger) *Email {
	return &Email{logger: logger.With("node_type", models.NodeTypeEmail)}
}

func (e *Email) Execute(ctx context.Context, node *models.WorkflowNode, payload protocol.ResolvedPayload) (protocol.Outcome, error) {
	if payload.Fields["to"] == "" {
		return protocol.Fatal("email recipient rendered empty"), nil
	}

	e.logger.InfoContext(ctx, "Sending email",
		"node_id", node.ID,
		"instance_id", payload.InstanceID,
		"attempt", payload.Attempt,
		"to", payload.Fields["to"],
		"subject", payload.Fields["subject"],
		"body", payload.Fields["body"],
	)

	return protocol.Success(), nil
}

// SMS logs the rendered sms fields.
type SMS struct {
	logger *slog.Logger
}

func NewSMS(logger *slog.Logger) *SMS {
	return &SMS{logger: logger.With("node_type", models.NodeTypeSMS)}
}

func (s *SMS) Execute(ctx context.Context, node *models.WorkflowNode, payload protocol.ResolvedPayload) (protocol.Outcome, error) {
	if payload.Fields["to"] == "" {
		return protocol.Fatal("sms recipient rendered empty"), nil
	}

	s.logger.InfoContext(ctx, "Sending sms",
		"node_id", node.ID,
		"instance_id", payload.InstanceID,
		"attempt", payload.Attempt,
		"to", payload.Fields["to"],
		"body", payload.Fields["body"],
	)

	return protocol.Success(), nil
}

// Delay records the configured wait without sleeping.
type Delay struct {
	logger *slog.Logger
}

func NewDelay(logger *slog.Logger) *Delay {
	return &Delay{logger: logger.With("node_type", models.NodeTypeDelay)}
}

func (d *Delay) Execute(ctx context.Context, node *models.WorkflowNode, payload protocol.ResolvedPayload) (protocol.Outcome, error) {
	bindings, ok := node.Bindings.(models.DelayBindings)
	if !ok {
		return protocol.Outcome{}, errors.New("delay node without delay bindings")
	}

	d.logger.InfoContext(ctx, "Delay reached",
		"node_id", node.ID,
		"instance_id", payload.InstanceID,
		"duration", bindings.Duration.Std().String(),
	)

	return protocol.Success(), nil
}
