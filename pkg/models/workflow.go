// Package models defines the core domain models for notification workflows.
package models

import "time"

// Workflow is one immutable version of a notification workflow graph.
type Workflow struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Code          string          `json:"code"                     validate:"required,max=255"`
	Name          string          `json:"name"                     validate:"required,min=3"`
	Version       int             `json:"version"                  validate:"gte=1"`
	IsActive      bool            `json:"is_active"`
	EntryNodeID   *string         `json:"entry_node_id,omitempty"` // May reference a node that does not exist yet
	PayloadSchema map[string]any  `json:"payload_schema,omitempty"`
	Owner         string          `json:"owner"`
	Nodes         []*WorkflowNode `json:"nodes,omitempty"`
	Edges         []*WorkflowEdge `json:"edges,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Node returns the node with the given id, if it belongs to the workflow.
func (w *Workflow) Node(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// EntryNode returns the resolved entry node. It reports false while the
// entry reference is unset or still points at a node that was never created.
func (w *Workflow) EntryNode() (*WorkflowNode, bool) {
	if w.EntryNodeID == nil || *w.EntryNodeID == "" {
		return nil, false
	}

	return w.Node(*w.EntryNodeID)
}

// OutEdges returns the edges leaving nodeID in creation order.
func (w *Workflow) OutEdges(nodeID string) []*WorkflowEdge {
	out := make([]*WorkflowEdge, 0)

	for _, edge := range w.Edges {
		if edge.FromNodeID == nodeID {
			out = append(out, edge)
		}
	}

	return out
}

// WorkflowEdge is a directed edge between two nodes of the same workflow.
type WorkflowEdge struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	FromNodeID string    `json:"from_node_id" validate:"required"`
	ToNodeID   string    `json:"to_node_id"   validate:"required"`
	CreatedAt  time.Time `json:"created_at"`
}
