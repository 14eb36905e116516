package models

import "time"

// NodeTemplate is a reusable, parameterized node definition from the catalog.
// Nodes copy its bindings when they are authored; later template edits never
// reach existing nodes.
type NodeTemplate struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"                  validate:"required,max=255" yaml:"code"`
	Name        string         `json:"name"                  validate:"required"         yaml:"name"`
	Type        NodeType       `json:"type"                  validate:"required"         yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Config      map[string]any `json:"config"                yaml:"config"`
	CreatedAt   time.Time      `json:"created_at"            yaml:"-"`
}
