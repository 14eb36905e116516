package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		codeErr := persistence.NewWorkflowCodeError("LatestByCode", "welcome", persistence.ErrWorkflowNotFound)
		instanceErr := &persistence.InstanceError{Op: "CompareAndSwap", InstanceID: "i-1", Err: persistence.ErrStaleInstance}

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsWorkflowNotFound(codeErr))
		assert.True(t, persistence.IsStaleInstance(instanceErr))
		assert.False(t, persistence.IsNotFound(instanceErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", instanceErr), persistence.ErrStaleInstance))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Update", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("code error names the code", func(t *testing.T) {
		err := persistence.NewWorkflowCodeError("Create", "welcome", persistence.ErrWorkflowAlreadyExists)

		assert.Contains(t, err.Error(), "code welcome")
	})

	t.Run("node error unwraps", func(t *testing.T) {
		err := &persistence.NodeError{Op: "GetByWorkflow", WorkflowID: "wf", NodeID: "a", Err: persistence.ErrNodeNotFound}

		assert.True(t, persistence.IsNodeNotFound(err))
		assert.True(t, persistence.IsNotFound(err))
		assert.Contains(t, err.Error(), "node a in workflow wf")
	})
}

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, persistence.DefaultPageLimit, persistence.NormalizeLimit(0))
	assert.Equal(t, persistence.DefaultPageLimit, persistence.NormalizeLimit(-3))
	assert.Equal(t, persistence.DefaultPageLimit, persistence.NormalizeLimit(persistence.MaxPageLimit+1))
	assert.Equal(t, 7, persistence.NormalizeLimit(7))
	assert.Equal(t, persistence.MaxPageLimit, persistence.NormalizeLimit(persistence.MaxPageLimit))
}
