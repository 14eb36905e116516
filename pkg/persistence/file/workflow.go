package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow-related file operations. A workflow
// file embeds its nodes and edges.
type WorkflowRepository struct {
	store *Persistence
}

// Create writes a new workflow version with its nodes and edges.
func (wr *WorkflowRepository) Create(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	all, err := wr.loadAll()
	if err != nil {
		return err
	}

	for _, existing := range all {
		if existing.TenantID == workflow.TenantID && existing.Code == workflow.Code && existing.Version == workflow.Version {
			return persistence.NewWorkflowCodeError("Create", workflow.Code, persistence.ErrWorkflowAlreadyExists)
		}
	}

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	for _, node := range workflow.Nodes {
		node.WorkflowID = workflow.ID
	}

	for _, edge := range workflow.Edges {
		edge.WorkflowID = workflow.ID
	}

	return wr.store.writeJSON(workflowsDir, workflow.ID, workflow)
}

// Update rewrites the header fields of an existing workflow.
func (wr *WorkflowRepository) Update(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	stored, err := wr.load(workflow.ID)
	if err != nil {
		return err
	}

	stored.Name = workflow.Name
	stored.EntryNodeID = workflow.EntryNodeID
	stored.PayloadSchema = workflow.PayloadSchema
	stored.IsActive = workflow.IsActive
	stored.UpdatedAt = time.Now().UTC()
	workflow.UpdatedAt = stored.UpdatedAt

	return wr.store.writeJSON(workflowsDir, stored.ID, stored)
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	return wr.load(id)
}

func (wr *WorkflowRepository) LatestByCode(_ context.Context, tenantID, code string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	versions, err := wr.versions(tenantID, code)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.NewWorkflowCodeError("LatestByCode", code, persistence.ErrWorkflowNotFound)
	}

	return versions[0], nil
}

func (wr *WorkflowRepository) MaxVersion(_ context.Context, tenantID, code string) (int, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	versions, err := wr.versions(tenantID, code)
	if err != nil {
		return 0, err
	}

	if len(versions) == 0 {
		return 0, nil
	}

	return versions[0].Version, nil
}

func (wr *WorkflowRepository) ListVersions(_ context.Context, tenantID, code string) ([]*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	versions, err := wr.versions(tenantID, code)
	if err != nil {
		return nil, err
	}

	for _, version := range versions {
		version.Nodes = nil
		version.Edges = nil
	}

	return versions, nil
}

// versions returns the workflows for tenant and code, newest version first. Callers hold the lock.
func (wr *WorkflowRepository) versions(tenantID, code string) ([]*models.Workflow, error) {
	all, err := wr.loadAll()
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.TenantID == tenantID && workflow.Code == code {
			matches = append(matches, workflow)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Version > matches[j].Version
	})

	return matches, nil
}

// load reads one workflow. Callers hold the lock.
func (wr *WorkflowRepository) load(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := wr.store.readJSON(workflowsDir, id, &workflow)
	if err != nil {
		if isNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	if workflow.Nodes == nil {
		workflow.Nodes = make([]*models.WorkflowNode, 0)
	}

	if workflow.Edges == nil {
		workflow.Edges = make([]*models.WorkflowEdge, 0)
	}

	return &workflow, nil
}

// loadAll reads every workflow. Callers hold the lock.
func (wr *WorkflowRepository) loadAll() ([]*models.Workflow, error) {
	ids, err := wr.store.listIDs(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := wr.load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}
