package mocks

import (
	"context"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockTriggerInstanceRepository is a mock implementation of persistence.TriggerInstanceRepository interface.
type MockTriggerInstanceRepository struct {
	mock.Mock
}

func (m *MockTriggerInstanceRepository) CreateIfAbsent(ctx context.Context, instance *models.TriggerInstance) (*models.TriggerInstance, bool, error) {
	args := m.Called(ctx, instance)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}

	return args.Get(0).(*models.TriggerInstance), args.Bool(1), args.Error(2)
}

func (m *MockTriggerInstanceRepository) GetByID(ctx context.Context, id string) (*models.TriggerInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TriggerInstance), args.Error(1)
}

func (m *MockTriggerInstanceRepository) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.TriggerInstance, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerInstance), args.Error(1)
}

func (m *MockTriggerInstanceRepository) FindReady(ctx context.Context, now time.Time, limit int) ([]*models.TriggerInstance, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerInstance), args.Error(1)
}

func (m *MockTriggerInstanceRepository) FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.TriggerInstance, error) {
	args := m.Called(ctx, claimedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerInstance), args.Error(1)
}

func (m *MockTriggerInstanceRepository) CompareAndSwap(
	ctx context.Context,
	next *models.TriggerInstance,
	expectedStatus models.InstanceStatus,
	expectedAttempts int,
) error {
	args := m.Called(ctx, next, expectedStatus, expectedAttempts)

	return args.Error(0)
}

func (m *MockTriggerInstanceRepository) ExpireClaim(
	ctx context.Context,
	next *models.TriggerInstance,
	expectedAttempts int,
	claimedBefore time.Time,
) error {
	args := m.Called(ctx, next, expectedAttempts, claimedBefore)

	return args.Error(0)
}

func (m *MockTriggerInstanceRepository) CountByWorkflow(ctx context.Context, workflowID string) (int, error) {
	args := m.Called(ctx, workflowID)

	return args.Int(0), args.Error(1)
}
