package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

// NodeRepository stores nodes inside their workflow file.
type NodeRepository struct {
	store *Persistence
}

func (nr *NodeRepository) Create(_ context.Context, node *models.WorkflowNode) error {
	nr.store.mu.Lock()
	defer nr.store.mu.Unlock()

	workflow, err := nr.store.workflowRepo.load(node.WorkflowID)
	if err != nil {
		return err
	}

	if _, exists := workflow.Node(node.ID); exists {
		return &persistence.NodeError{Op: "Create", WorkflowID: node.WorkflowID, NodeID: node.ID, Err: persistence.ErrNodeAlreadyExists}
	}

	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	workflow.Nodes = append(workflow.Nodes, node)
	workflow.UpdatedAt = time.Now().UTC()

	return nr.store.writeJSON(workflowsDir, workflow.ID, workflow)
}

func (nr *NodeRepository) GetByWorkflow(_ context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	nr.store.mu.RLock()
	defer nr.store.mu.RUnlock()

	workflow, err := nr.store.workflowRepo.load(workflowID)
	if err != nil {
		return nil, err
	}

	node, ok := workflow.Node(nodeID)
	if !ok {
		return nil, &persistence.NodeError{Op: "GetByWorkflow", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeNotFound}
	}

	return node, nil
}

func (nr *NodeRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	nr.store.mu.RLock()
	defer nr.store.mu.RUnlock()

	workflow, err := nr.store.workflowRepo.load(workflowID)
	if err != nil {
		return nil, err
	}

	return workflow.Nodes, nil
}

// EdgeRepository stores edges inside their workflow file.
type EdgeRepository struct {
	store *Persistence
}

func (er *EdgeRepository) Create(_ context.Context, edge *models.WorkflowEdge) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	workflow, err := er.store.workflowRepo.load(edge.WorkflowID)
	if err != nil {
		return err
	}

	for _, existing := range workflow.Edges {
		if existing.FromNodeID == edge.FromNodeID && existing.ToNodeID == edge.ToNodeID {
			return fmt.Errorf("edge %s -> %s: %w", edge.FromNodeID, edge.ToNodeID, persistence.ErrEdgeAlreadyExists)
		}
	}

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}

	workflow.Edges = append(workflow.Edges, edge)
	workflow.UpdatedAt = time.Now().UTC()

	return er.store.writeJSON(workflowsDir, workflow.ID, workflow)
}

func (er *EdgeRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowEdge, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	workflow, err := er.store.workflowRepo.load(workflowID)
	if err != nil {
		return nil, err
	}

	return workflow.Edges, nil
}
