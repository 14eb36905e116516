// Package services provides the workflow authoring and trigger submission operations.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Business logic errors.
var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrUnknownNode   = errors.New("unknown node")
	ErrCycleDetected = errors.New("edge would create a cycle")
	ErrDuplicateEdge = errors.New("edge already exists")

	// ErrInvalidTransition is returned when a status change is not a row of the lifecycle table.
	ErrInvalidTransition = execution.ErrInvalidTransition

	// ErrWorkflowImmutable is returned when authoring a workflow that trigger instances reference.
	ErrWorkflowImmutable = errors.New("workflow is referenced by trigger instances")
	ErrWorkflowInactive  = errors.New("workflow is not active")
	ErrWorkflowInvalid   = errors.New("workflow graph is invalid")
	ErrVersionConflict   = errors.New("workflow version conflict")

	// ErrAmbiguousBranch is recorded when a node has several successors and its executor picked none of them.
	ErrAmbiguousBranch = errors.New("ambiguous branch")

	ErrWorkflowNotFound        = persistence.ErrWorkflowNotFound
	ErrNodeNotFound            = persistence.ErrNodeNotFound
	ErrTemplateNotFound        = persistence.ErrTemplateNotFound
	ErrTriggerInstanceNotFound = persistence.ErrTriggerInstanceNotFound
	ErrStaleInstance           = persistence.ErrStaleInstance
)

// ValidationError reports an invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Message)
	}

	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// fromValidator converts validator failures into a ValidationError naming the first bad field.
func fromValidator(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return NewValidationError("", err.Error())
	}

	first := validationErrors[0]

	return NewValidationError(
		first.Field(),
		fmt.Sprintf("failed on the '%s' rule", first.Tag()),
	)
}

// EdgeError wraps edge authoring errors with the rejected endpoints.
type EdgeError struct {
	WorkflowID string
	From       string
	To         string
	Err        error
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %s -> %s in workflow %s: %v", e.From, e.To, e.WorkflowID, e.Err)
}

func (e *EdgeError) Unwrap() error {
	return e.Err
}

func (e *EdgeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// InvalidWorkflowError carries the report that blocked activation.
type InvalidWorkflowError struct {
	Report *ValidationReport
}

func (e *InvalidWorkflowError) Error() string {
	messages := make([]string, 0, len(e.Report.Errors))
	for _, issue := range e.Report.Errors {
		messages = append(messages, issue.Message)
	}

	return fmt.Sprintf("%v: %s", ErrWorkflowInvalid, strings.Join(messages, "; "))
}

func (e *InvalidWorkflowError) Unwrap() error {
	return ErrWorkflowInvalid
}

// IsValidationError checks if an error was caused by caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrWorkflowInvalid)
}

// IsConflictError checks if an error is a conflict with the stored state.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateEdge) ||
		errors.Is(err, ErrWorkflowImmutable) ||
		errors.Is(err, ErrWorkflowInactive) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrStaleInstance) ||
		errors.Is(err, persistence.ErrNodeAlreadyExists)
}

// IsNotFound checks for any of the not-found errors.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}
