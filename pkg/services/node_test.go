package services

import (
	"testing"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_AddNode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	flow, err := f.workflows.CreateWorkflow(ctx, CreateWorkflowRequest{Code: "nodes", Name: "Nodes"})
	require.NoError(t, err)

	node, err := f.nodes.AddNode(ctx, flow.ID, NodeSpec{
		ID:   "a",
		Type: models.NodeTypeEmail,
		Name: "Welcome",
		Config: map[string]any{
			"email_to_template":   "{{.email}}",
			"email_body_template": "Hi",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ID, node.WorkflowID)
	assert.Equal(t, models.EmailBindings{ToTemplate: "{{.email}}", BodyTemplate: "Hi"}, node.Bindings)

	generated, err := f.nodes.AddNode(ctx, flow.ID, NodeSpec{
		Type:   models.NodeTypeDelay,
		Name:   "Wait",
		Config: map[string]any{"delay_duration": "30m"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)

	_, err = f.nodes.AddNode(ctx, flow.ID, NodeSpec{
		ID:     "a",
		Type:   models.NodeTypeDelay,
		Name:   "Again",
		Config: map[string]any{"delay_duration": "30m"},
	})
	require.ErrorIs(t, err, persistence.ErrNodeAlreadyExists)

	nodes, err := f.nodes.ListNodes(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestNode_AddNodeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	flow, err := f.workflows.CreateWorkflow(ctx, CreateWorkflowRequest{Code: "nodes", Name: "Nodes"})
	require.NoError(t, err)

	testCases := []struct {
		name  string
		spec  NodeSpec
		field string
	}{
		{
			name:  "unknown type",
			spec:  NodeSpec{Type: models.NodeType("push"), Name: "Push"},
			field: "type",
		},
		{
			name:  "missing name",
			spec:  NodeSpec{Type: models.NodeTypeDelay, Config: map[string]any{"delay_duration": "1m"}},
			field: "name",
		},
		{
			name:  "email without recipient",
			spec:  NodeSpec{Type: models.NodeTypeEmail, Name: "Email", Config: map[string]any{"email_body_template": "x"}},
			field: "email_to_template",
		},
		{
			name:  "sms with email field",
			spec:  NodeSpec{Type: models.NodeTypeSMS, Name: "SMS", Config: map[string]any{"email_to_template": "x"}},
			field: "config",
		},
		{
			name:  "delay without duration",
			spec:  NodeSpec{Type: models.NodeTypeDelay, Name: "Wait"},
			field: "delay_duration",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.nodes.AddNode(ctx, flow.ID, tc.spec)
			require.ErrorIs(t, err, ErrValidation)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.field, validationErr.Field)
		})
	}

	stored, err := f.workflows.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Nodes)

	_, err = f.nodes.AddNode(ctx, "missing", NodeSpec{Type: models.NodeTypeDelay, Name: "Wait", Config: map[string]any{"delay_duration": "1m"}})
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestNode_AddNodeFromTemplate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	require.NoError(t, f.templates.Register(ctx, &models.NodeTemplate{
		Code: "shipping-sms",
		Name: "Order shipped",
		Type: models.NodeTypeSMS,
		Config: map[string]any{
			"sms_to_template":   "{{.phone}}",
			"sms_body_template": "Your order shipped",
		},
	}))

	flow, err := f.workflows.CreateWorkflow(ctx, CreateWorkflowRequest{Code: "templated", Name: "Templated"})
	require.NoError(t, err)

	node, err := f.nodes.AddNode(ctx, flow.ID, NodeSpec{
		ID:           "c",
		Name:         "SMS",
		TemplateCode: "shipping-sms",
		Config:       map[string]any{"sms_body_template": "Order {{.order_id}} shipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeSMS, node.Type)
	assert.Equal(t, "shipping-sms", *node.TemplateCode)
	assert.Equal(t, models.SMSBindings{ToTemplate: "{{.phone}}", BodyTemplate: "Order {{.order_id}} shipped"}, node.Bindings)

	// Later catalog edits do not reach existing nodes.
	require.NoError(t, f.templates.Register(ctx, &models.NodeTemplate{
		Code:   "shipping-sms",
		Name:   "Order shipped",
		Type:   models.NodeTypeSMS,
		Config: map[string]any{"sms_to_template": "{{.mobile}}", "sms_body_template": "changed"},
	}))

	stored, err := f.workflows.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "{{.phone}}", stored.Nodes[0].Bindings.(models.SMSBindings).ToTemplate)

	_, err = f.nodes.AddNode(ctx, flow.ID, NodeSpec{
		ID:           "d",
		Type:         models.NodeTypeEmail,
		Name:         "Mismatch",
		TemplateCode: "shipping-sms",
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.nodes.AddNode(ctx, flow.ID, NodeSpec{ID: "e", Name: "Missing", TemplateCode: "nope"})
	require.ErrorIs(t, err, ErrTemplateNotFound)
}
