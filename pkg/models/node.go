package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType is the closed set of node kinds a workflow can contain.
type NodeType string

const (
	NodeTypeEmail NodeType = "email"
	NodeTypeSMS   NodeType = "sms"
	NodeTypeDelay NodeType = "delay"
)

// NodeTypes lists every supported node type.
func NodeTypes() []NodeType {
	return []NodeType{NodeTypeEmail, NodeTypeSMS, NodeTypeDelay}
}

// Valid reports whether t is one of the supported node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeEmail, NodeTypeSMS, NodeTypeDelay:
		return true
	default:
		return false
	}
}

// WorkflowNode is a node instance owned by a single workflow version.
type WorkflowNode struct {
	ID           string    `json:"id"                      validate:"required"`
	WorkflowID   string    `json:"workflow_id"`
	Type         NodeType  `json:"type"                    validate:"required"`
	Name         string    `json:"name"                    validate:"required,min=1"`
	TemplateCode *string   `json:"template_code,omitempty"`
	Bindings     Bindings  `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type workflowNodeJSON struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	Type         NodeType       `json:"type"`
	Name         string         `json:"name"`
	TemplateCode *string        `json:"template_code,omitempty"`
	Config       map[string]any `json:"config"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MarshalJSON writes the bindings under "config".
func (n WorkflowNode) MarshalJSON() ([]byte, error) {
	config := map[string]any{}

	if n.Bindings != nil {
		var err error

		config, err = BindingsToConfig(n.Bindings)
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(workflowNodeJSON{
		ID:           n.ID,
		WorkflowID:   n.WorkflowID,
		Type:         n.Type,
		Name:         n.Name,
		TemplateCode: n.TemplateCode,
		Config:       config,
		CreatedAt:    n.CreatedAt,
	})
}

// UnmarshalJSON decodes "config" into the bindings variant selected by "type".
func (n *WorkflowNode) UnmarshalJSON(data []byte) error {
	var raw workflowNodeJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	bindings, err := DecodeBindings(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	*n = WorkflowNode{
		ID:           raw.ID,
		WorkflowID:   raw.WorkflowID,
		Type:         raw.Type,
		Name:         raw.Name,
		TemplateCode: raw.TemplateCode,
		Bindings:     bindings,
		CreatedAt:    raw.CreatedAt,
	}

	return nil
}
