package logdriver

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail_Execute(t *testing.T) {
	var buf bytes.Buffer

	executor := NewEmail(log.New(&buf, "info", "json"))
	node := &models.WorkflowNode{ID: "a", Type: models.NodeTypeEmail}

	outcome, err := executor.Execute(context.Background(), node, protocol.ResolvedPayload{
		InstanceID: "inst-1",
		Attempt:    1,
		Fields:     map[string]string{"to": "ana@example.com", "subject": "Order 42", "body": "Shipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeSuccess, outcome.Kind)
	assert.Contains(t, buf.String(), `"to":"ana@example.com"`)
	assert.Contains(t, buf.String(), `"node_type":"email"`)

	outcome, err = executor.Execute(context.Background(), node, protocol.ResolvedPayload{Fields: map[string]string{"body": "x"}})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeFatal, outcome.Kind)
}

func TestSMS_Execute(t *testing.T) {
	var buf bytes.Buffer

	executor := NewSMS(log.New(&buf, "info", "json"))
	node := &models.WorkflowNode{ID: "c", Type: models.NodeTypeSMS}

	outcome, err := executor.Execute(context.Background(), node, protocol.ResolvedPayload{
		Fields: map[string]string{"to": "+5511999999999", "body": "Shipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeSuccess, outcome.Kind)
	assert.Contains(t, buf.String(), "+5511999999999")

	outcome, err = executor.Execute(context.Background(), node, protocol.ResolvedPayload{})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeFatal, outcome.Kind)
}

func TestDelay_Execute(t *testing.T) {
	var buf bytes.Buffer

	executor := NewDelay(log.New(&buf, "info", "json"))
	node := &models.WorkflowNode{
		ID:       "b",
		Type:     models.NodeTypeDelay,
		Bindings: models.DelayBindings{Duration: models.Duration(2 * time.Hour)},
	}

	outcome, err := executor.Execute(context.Background(), node, protocol.ResolvedPayload{})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeSuccess, outcome.Kind)
	assert.Contains(t, buf.String(), `"duration":"2h0m0s"`)

	_, err = executor.Execute(context.Background(), &models.WorkflowNode{ID: "b"}, protocol.ResolvedPayload{})
	require.Error(t, err)
}
