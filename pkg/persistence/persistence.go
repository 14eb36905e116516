// Package persistence provides the storage contracts for workflows, templates and trigger instances.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/notiflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	NodeRepository() NodeRepository
	EdgeRepository() EdgeRepository
	TemplateRepository() TemplateRepository
	TriggerInstanceRepository() TriggerInstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow versions.
type WorkflowRepository interface {
	// Create inserts a new workflow version together with its nodes and edges.
	// It fails with ErrWorkflowAlreadyExists when (tenant, code, version) is taken.
	Create(ctx context.Context, workflow *models.Workflow) error
	// Update persists the mutable header fields: name, entry node, schema, activation.
	Update(ctx context.Context, workflow *models.Workflow) error
	// GetByID returns the workflow with its nodes and edges.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// LatestByCode returns the highest version for tenant and code.
	LatestByCode(ctx context.Context, tenantID, code string) (*models.Workflow, error)
	// MaxVersion returns the highest version for tenant and code, 0 when none exists.
	MaxVersion(ctx context.Context, tenantID, code string) (int, error)
	// ListVersions returns every version of a code, newest first, without nodes and edges.
	ListVersions(ctx context.Context, tenantID, code string) ([]*models.Workflow, error)
}

type NodeRepository interface {
	Create(ctx context.Context, node *models.WorkflowNode) error
	GetByWorkflow(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error)
}

type EdgeRepository interface {
	Create(ctx context.Context, edge *models.WorkflowEdge) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowEdge, error)
}

type TemplateRepository interface {
	// Save inserts or replaces the template identified by its code.
	Save(ctx context.Context, template *models.NodeTemplate) error
	GetByCode(ctx context.Context, code string) (*models.NodeTemplate, error)
	Search(ctx context.Context, opts TemplateSearchOptions) (*TemplateListResult, error)
}

// TriggerInstanceRepository stores trigger instances. Implementations must make
// CreateIfAbsent and CompareAndSwap atomic with respect to concurrent callers.
type TriggerInstanceRepository interface {
	// CreateIfAbsent stores instance unless one already exists for its
	// (workflow, idempotency key). The stored instance is returned in both
	// cases; created reports which one happened.
	CreateIfAbsent(ctx context.Context, instance *models.TriggerInstance) (stored *models.TriggerInstance, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.TriggerInstance, error)
	List(ctx context.Context, opts InstanceListOptions) ([]*models.TriggerInstance, error)
	// FindReady returns enqueued instances whose available_at is not after now, oldest first.
	FindReady(ctx context.Context, now time.Time, limit int) ([]*models.TriggerInstance, error)
	// FindStale returns processing instances claimed before claimedBefore.
	FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.TriggerInstance, error)
	// CompareAndSwap replaces the stored instance with next only if the stored
	// status and attempts still equal the expected values. A lost race returns ErrStaleInstance.
	CompareAndSwap(ctx context.Context, next *models.TriggerInstance, expectedStatus models.InstanceStatus, expectedAttempts int) error
	// ExpireClaim replaces a processing instance with next only if its
	// attempts still equal expectedAttempts and its claim is older than
	// claimedBefore. A claim renewed in between returns ErrStaleInstance.
	ExpireClaim(ctx context.Context, next *models.TriggerInstance, expectedAttempts int, claimedBefore time.Time) error
	CountByWorkflow(ctx context.Context, workflowID string) (int, error)
}

// TemplateSearchOptions filters and paginates the template catalog.
type TemplateSearchOptions struct {
	Type   *models.NodeType
	Text   string // Case-insensitive substring of code or name
	Limit  int
	Offset int
}

// TemplateListResult is one page of templates.
type TemplateListResult struct {
	Templates   []*models.NodeTemplate `json:"templates"`
	TotalCount  int64                  `json:"total_count"`
	HasNextPage bool                   `json:"has_next_page"`
}

// InstanceListOptions filters trigger instances for operators.
type InstanceListOptions struct {
	WorkflowID string
	Status     *models.InstanceStatus
	Limit      int
	Offset     int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NormalizeLimit applies the default and maximum page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxPageLimit {
		return DefaultPageLimit
	}

	return limit
}
