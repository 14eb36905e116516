package mocks

import (
	"context"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockNodeExecutor is a mock implementation of protocol.NodeExecutor interface.
type MockNodeExecutor struct {
	mock.Mock
}

func (m *MockNodeExecutor) Execute(ctx context.Context, node *models.WorkflowNode, payload protocol.ResolvedPayload) (protocol.Outcome, error) {
	args := m.Called(ctx, node, payload)

	return args.Get(0).(protocol.Outcome), args.Error(1)
}
