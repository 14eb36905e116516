// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyExists indicates the (tenant, code, version) triple is taken.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeAlreadyExists indicates a node id is already used in the workflow.
	ErrNodeAlreadyExists = errors.New("node already exists")

	// ErrEdgeAlreadyExists indicates an edge with the same endpoints exists.
	ErrEdgeAlreadyExists = errors.New("edge already exists")

	// ErrTemplateNotFound indicates no template has the given code.
	ErrTemplateNotFound = errors.New("node template not found")

	// ErrTriggerInstanceNotFound indicates a trigger instance was not found.
	ErrTriggerInstanceNotFound = errors.New("trigger instance not found")

	// ErrStaleInstance indicates a conditional update lost against a concurrent writer.
	ErrStaleInstance = errors.New("trigger instance was modified concurrently")

	// ErrInvalidSortField indicates an unsupported sort field.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Create")
	WorkflowID string // Workflow ID if applicable
	Code       string // Workflow code if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	target := e.WorkflowID
	if e.Code != "" {
		target = fmt.Sprintf("code %s", e.Code)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, target, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// NewWorkflowCodeError creates a new workflow error for lookups by code.
func NewWorkflowCodeError(op, code string, err error) *WorkflowError {
	return &WorkflowError{
		Op:   op,
		Code: code,
		Err:  err,
	}
}

// NodeError wraps node-related errors with additional context.
type NodeError struct {
	Op         string // Operation being performed
	WorkflowID string // Workflow ID
	NodeID     string // Node ID
	Err        error  // Underlying error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s in workflow %s: %v", e.Op, e.NodeID, e.WorkflowID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// InstanceError wraps trigger instance errors with additional context.
type InstanceError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for trigger instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsTriggerInstanceNotFound checks if an error indicates a trigger instance was not found.
func IsTriggerInstanceNotFound(err error) bool {
	return errors.Is(err, ErrTriggerInstanceNotFound)
}

// IsStaleInstance checks if a conditional update lost a race.
func IsStaleInstance(err error) bool {
	return errors.Is(err, ErrStaleInstance)
}

// IsNotFound checks for any of the not-found errors.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) || IsNodeNotFound(err) || IsTemplateNotFound(err) || IsTriggerInstanceNotFound(err)
}
