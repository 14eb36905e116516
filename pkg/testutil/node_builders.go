// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/google/uuid"
)

// CreateEmailNode creates an email node with default bindings that can be overridden.
func CreateEmailNode(id string, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	return build(&models.WorkflowNode{
		ID:   id,
		Type: models.NodeTypeEmail,
		Name: "Email " + id,
		Bindings: models.EmailBindings{
			ToTemplate:      "{{.email}}",
			SubjectTemplate: "Order {{.order_id}}",
			BodyTemplate:    "Hello {{.name}}",
		},
	}, overrides)
}

// CreateSMSNode creates an sms node with default bindings that can be overridden.
func CreateSMSNode(id string, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	return build(&models.WorkflowNode{
		ID:   id,
		Type: models.NodeTypeSMS,
		Name: "SMS " + id,
		Bindings: models.SMSBindings{
			ToTemplate:   "{{.phone}}",
			BodyTemplate: "Order {{.order_id}} shipped",
		},
	}, overrides)
}

// CreateDelayNode creates a delay node waiting for d.
func CreateDelayNode(id string, d time.Duration, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	return build(&models.WorkflowNode{
		ID:       id,
		Type:     models.NodeTypeDelay,
		Name:     "Delay " + id,
		Bindings: models.DelayBindings{Duration: models.Duration(d)},
	}, overrides)
}

// WithBindings replaces the node bindings.
func WithBindings(bindings models.Bindings) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Bindings = bindings
	}
}

// CreateEdge connects from to to.
func CreateEdge(from, to string) *models.WorkflowEdge {
	return &models.WorkflowEdge{
		ID:         uuid.NewString(),
		FromNodeID: from,
		ToNodeID:   to,
		CreatedAt:  time.Now().UTC(),
	}
}

// CreateWorkflow creates an active workflow version holding nodes and edges,
// entering at the first node.
func CreateWorkflow(code string, nodes []*models.WorkflowNode, edges []*models.WorkflowEdge) *models.Workflow {
	workflow := &models.Workflow{
		Code:     code,
		Name:     "Workflow " + code,
		Version:  1,
		IsActive: true,
		Owner:    "tester",
		Nodes:    nodes,
		Edges:    edges,
	}

	if len(nodes) > 0 {
		entry := nodes[0].ID
		workflow.EntryNodeID = &entry
	}

	return workflow
}

func build(node *models.WorkflowNode, overrides []func(*models.WorkflowNode)) *models.WorkflowNode {
	node.CreatedAt = time.Now().UTC()

	for _, override := range overrides {
		override(node)
	}

	return node
}
