package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/notiflow/pkg/locker"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/workflow"
	"github.com/google/uuid"
)

// Edge handles edge authoring. Insertions into one workflow are serialized
// and checked against the graph read while holding the lock.
type Edge struct {
	persistence persistence.Persistence
	locker      locker.Locker
	logger      *slog.Logger
}

// NewEdge creates a new edge service.
func NewEdge(persistence persistence.Persistence, locker locker.Locker, logger *slog.Logger) *Edge {
	return &Edge{
		persistence: persistence,
		locker:      locker,
		logger:      logger.With("module", "edge_service"),
	}
}

// AddEdge connects two nodes of a workflow. It fails with ErrUnknownNode,
// ErrDuplicateEdge or ErrCycleDetected, leaving the graph unchanged.
func (e *Edge) AddEdge(ctx context.Context, workflowID, from, to string) (*models.WorkflowEdge, error) {
	unlock, err := e.locker.Lock(ctx, workflowLockKey(workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock workflow %s: %w", workflowID, err)
	}
	defer unlock()

	flow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = ensureMutable(ctx, e.persistence, workflowID)
	if err != nil {
		return nil, err
	}

	edgeErr := func(cause error) error {
		return &EdgeError{WorkflowID: workflowID, From: from, To: to, Err: cause}
	}

	graph := workflow.FromWorkflow(flow)

	for _, id := range []string{from, to} {
		if !graph.HasNode(id) {
			return nil, edgeErr(fmt.Errorf("%w: %s", ErrUnknownNode, id))
		}
	}

	if graph.HasEdge(from, to) {
		return nil, edgeErr(ErrDuplicateEdge)
	}

	if graph.WouldCycle(from, to) {
		return nil, edgeErr(ErrCycleDetected)
	}

	edge := &models.WorkflowEdge{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		FromNodeID: from,
		ToNodeID:   to,
		CreatedAt:  time.Now().UTC(),
	}

	err = e.persistence.EdgeRepository().Create(ctx, edge)
	if err != nil {
		if errors.Is(err, persistence.ErrEdgeAlreadyExists) {
			return nil, edgeErr(ErrDuplicateEdge)
		}

		return nil, fmt.Errorf("failed to create edge: %w", err)
	}

	e.logger.InfoContext(ctx, "Added edge", "workflow_id", workflowID, "from", from, "to", to)

	return edge, nil
}

// ListEdges returns the edges of a workflow.
func (e *Edge) ListEdges(ctx context.Context, workflowID string) ([]*models.WorkflowEdge, error) {
	return e.persistence.EdgeRepository().ListByWorkflow(ctx, workflowID)
}
