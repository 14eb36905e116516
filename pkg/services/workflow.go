package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

var validate = newValidator()

// newValidator reports fields by their JSON name, falling back to the lowercased Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(field.Name)
		}

		return name
	})

	return v
}

// CreateWorkflowRequest describes a new workflow version. Version 0 asks for
// the next free version of the code.
type CreateWorkflowRequest struct {
	TenantID      string
	Code          string `validate:"required,max=255"`
	Name          string `validate:"required,min=3"`
	EntryNodeID   *string
	Version       int `validate:"gte=0"`
	PayloadSchema map[string]any
	Owner         string
}

// IssueKind classifies a graph validation problem.
type IssueKind string

const (
	IssueMissingEntry    IssueKind = "missing_entry"
	IssueEntryNotInGraph IssueKind = "entry_not_in_graph"
	IssueCycle           IssueKind = "cycle"
	IssueUnreachable     IssueKind = "unreachable"
)

// GraphIssue is one problem found by Validate.
type GraphIssue struct {
	Kind    IssueKind `json:"kind"`
	NodeIDs []string  `json:"node_ids,omitempty"`
	Message string    `json:"message"`
}

// ValidationReport lists every problem of a workflow graph.
type ValidationReport struct {
	WorkflowID string       `json:"workflow_id"`
	Errors     []GraphIssue `json:"errors"`
}

// Valid reports whether the graph has no issues.
func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

// Workflow handles workflow versions and their validation.
type Workflow struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateWorkflow stores a new, inactive workflow version without nodes. The
// entry node may name a node that is added later.
func (w *Workflow) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	err := validate.Struct(req)
	if err != nil {
		return nil, fromValidator(err)
	}

	if req.PayloadSchema != nil {
		_, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(req.PayloadSchema))
		if err != nil {
			return nil, NewValidationError("payload_schema", err.Error())
		}
	}

	current, err := w.persistence.WorkflowRepository().MaxVersion(ctx, req.TenantID, req.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow versions: %w", err)
	}

	version := req.Version
	if version == 0 {
		version = current + 1
	} else if version <= current {
		return nil, fmt.Errorf("%w: version %d of %s is not greater than %d", ErrVersionConflict, version, req.Code, current)
	}

	now := time.Now().UTC()
	created := &models.Workflow{
		TenantID:      req.TenantID,
		Code:          req.Code,
		Name:          req.Name,
		Version:       version,
		EntryNodeID:   req.EntryNodeID,
		PayloadSchema: req.PayloadSchema,
		Owner:         req.Owner,
		Nodes:         make([]*models.WorkflowNode, 0),
		Edges:         make([]*models.WorkflowEdge, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = w.persistence.WorkflowRepository().Create(ctx, created)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowAlreadyExists) {
			return nil, fmt.Errorf("%w: %w", ErrVersionConflict, err)
		}

		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Created workflow", "workflow_id", created.ID, "code", created.Code, "version", created.Version)

	return created, nil
}

// Get returns a workflow with its nodes and edges.
func (w *Workflow) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Latest returns the highest version of a code.
func (w *Workflow) Latest(ctx context.Context, tenantID, code string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().LatestByCode(ctx, tenantID, code)
}

// Versions lists every version of a code, newest first.
func (w *Workflow) Versions(ctx context.Context, tenantID, code string) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().ListVersions(ctx, tenantID, code)
}

// NewVersion copies a workflow, nodes and edges included, into the next
// version of its code. The copy starts inactive and has no trigger instances.
func (w *Workflow) NewVersion(ctx context.Context, workflowID, owner string) (*models.Workflow, error) {
	source, err := w.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	current, err := w.persistence.WorkflowRepository().MaxVersion(ctx, source.TenantID, source.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow versions: %w", err)
	}

	if owner == "" {
		owner = source.Owner
	}

	now := time.Now().UTC()
	next := &models.Workflow{
		TenantID:      source.TenantID,
		Code:          source.Code,
		Name:          source.Name,
		Version:       current + 1,
		EntryNodeID:   source.EntryNodeID,
		PayloadSchema: source.PayloadSchema,
		Owner:         owner,
		Nodes:         make([]*models.WorkflowNode, 0, len(source.Nodes)),
		Edges:         make([]*models.WorkflowEdge, 0, len(source.Edges)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, node := range source.Nodes {
		clone := *node
		clone.WorkflowID = ""
		clone.CreatedAt = now
		next.Nodes = append(next.Nodes, &clone)
	}

	for _, edge := range source.Edges {
		next.Edges = append(next.Edges, &models.WorkflowEdge{
			ID:         uuid.NewString(),
			FromNodeID: edge.FromNodeID,
			ToNodeID:   edge.ToNodeID,
			CreatedAt:  now,
		})
	}

	err = w.persistence.WorkflowRepository().Create(ctx, next)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowAlreadyExists) {
			return nil, fmt.Errorf("%w: %w", ErrVersionConflict, err)
		}

		return nil, fmt.Errorf("failed to create workflow version: %w", err)
	}

	w.logger.InfoContext(ctx, "Created workflow version",
		"workflow_id", next.ID,
		"source_workflow_id", source.ID,
		"code", next.Code,
		"version", next.Version,
	)

	return next, nil
}

// Validate reports every problem of the workflow graph: missing or foreign
// entry node, cycles and nodes unreachable from the entry.
func (w *Workflow) Validate(ctx context.Context, workflowID string) (*ValidationReport, error) {
	flow, err := w.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return validateGraph(flow), nil
}

// Activate validates the graph and marks the workflow as accepting trigger submissions.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	flow, err := w.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	report := validateGraph(flow)
	if !report.Valid() {
		return nil, &InvalidWorkflowError{Report: report}
	}

	return w.setActive(ctx, flow, true)
}

// Deactivate stops new submissions. Instances already enqueued still run.
func (w *Workflow) Deactivate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	flow, err := w.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return w.setActive(ctx, flow, false)
}

func (w *Workflow) setActive(ctx context.Context, flow *models.Workflow, active bool) (*models.Workflow, error) {
	if flow.IsActive == active {
		return flow, nil
	}

	flow.IsActive = active

	err := w.persistence.WorkflowRepository().Update(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Changed workflow activation", "workflow_id", flow.ID, "active", active)

	return flow, nil
}

func validateGraph(flow *models.Workflow) *ValidationReport {
	report := &ValidationReport{
		WorkflowID: flow.ID,
		Errors:     make([]GraphIssue, 0),
	}

	graph := workflow.FromWorkflow(flow)

	if cycle := graph.FindCycle(); cycle != nil {
		report.Errors = append(report.Errors, GraphIssue{
			Kind:    IssueCycle,
			NodeIDs: cycle,
			Message: fmt.Sprintf("cycle detected through %v", cycle),
		})
	}

	if flow.EntryNodeID == nil || *flow.EntryNodeID == "" {
		report.Errors = append(report.Errors, GraphIssue{
			Kind:    IssueMissingEntry,
			Message: "entry node is not set",
		})

		return report
	}

	entry := *flow.EntryNodeID
	if !graph.HasNode(entry) {
		report.Errors = append(report.Errors, GraphIssue{
			Kind:    IssueEntryNotInGraph,
			NodeIDs: []string{entry},
			Message: fmt.Sprintf("entry node %s is not part of the workflow", entry),
		})

		return report
	}

	for _, id := range graph.Unreachable(entry) {
		report.Errors = append(report.Errors, GraphIssue{
			Kind:    IssueUnreachable,
			NodeIDs: []string{id},
			Message: fmt.Sprintf("node %s is unreachable from entry node %s", id, entry),
		})
	}

	return report
}

// ensureMutable rejects authoring on a workflow that trigger instances reference.
func ensureMutable(ctx context.Context, store persistence.Persistence, workflowID string) error {
	count, err := store.TriggerInstanceRepository().CountByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to count trigger instances: %w", err)
	}

	if count > 0 {
		return persistence.NewWorkflowError("Modify", workflowID, ErrWorkflowImmutable)
	}

	return nil
}

func workflowLockKey(workflowID string) string {
	return "workflow:" + workflowID
}
