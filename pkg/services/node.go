package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/notiflow/pkg/locker"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

// TemplateSource resolves template defaults for node authoring.
type TemplateSource interface {
	Instantiate(ctx context.Context, code string) (models.NodeType, map[string]any, error)
}

// NodeSpec describes a node to add. With TemplateCode set, Type may be left
// empty and Config only lists the fields that override the template.
type NodeSpec struct {
	ID           string
	Type         models.NodeType
	Name         string `validate:"required"`
	TemplateCode string
	Config       map[string]any
}

// Node handles node authoring.
type Node struct {
	persistence persistence.Persistence
	templates   TemplateSource
	locker      locker.Locker
	logger      *slog.Logger
}

// NewNode creates a new node service.
func NewNode(persistence persistence.Persistence, templates TemplateSource, locker locker.Locker, logger *slog.Logger) *Node {
	return &Node{
		persistence: persistence,
		templates:   templates,
		locker:      locker,
		logger:      logger.With("module", "node_service"),
	}
}

// AddNode adds a node to a workflow that no trigger instance references yet.
func (n *Node) AddNode(ctx context.Context, workflowID string, spec NodeSpec) (*models.WorkflowNode, error) {
	err := validate.Struct(spec)
	if err != nil {
		return nil, fromValidator(err)
	}

	nodeType, config, err := n.resolveConfig(ctx, spec)
	if err != nil {
		return nil, err
	}

	bindings, err := models.DecodeBindings(nodeType, config)
	if err != nil {
		return nil, NewValidationError("config", err.Error())
	}

	err = validate.Struct(bindings)
	if err != nil {
		return nil, fromValidator(err)
	}

	node := &models.WorkflowNode{
		ID:         spec.ID,
		WorkflowID: workflowID,
		Type:       nodeType,
		Name:       spec.Name,
		Bindings:   bindings,
		CreatedAt:  time.Now().UTC(),
	}

	if node.ID == "" {
		node.ID = uuid.NewString()
	}

	if spec.TemplateCode != "" {
		code := spec.TemplateCode
		node.TemplateCode = &code
	}

	unlock, err := n.locker.Lock(ctx, workflowLockKey(workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock workflow %s: %w", workflowID, err)
	}
	defer unlock()

	_, err = n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = ensureMutable(ctx, n.persistence, workflowID)
	if err != nil {
		return nil, err
	}

	err = n.persistence.NodeRepository().Create(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	n.logger.InfoContext(ctx, "Added node", "workflow_id", workflowID, "node_id", node.ID, "node_type", node.Type)

	return node, nil
}

// ListNodes returns the nodes of a workflow.
func (n *Node) ListNodes(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	return n.persistence.NodeRepository().ListByWorkflow(ctx, workflowID)
}

// resolveConfig merges template defaults under the explicit config.
func (n *Node) resolveConfig(ctx context.Context, spec NodeSpec) (models.NodeType, map[string]any, error) {
	if spec.TemplateCode == "" {
		if !spec.Type.Valid() {
			return "", nil, NewValidationError("type", fmt.Sprintf("unsupported node type %q", spec.Type))
		}

		return spec.Type, spec.Config, nil
	}

	templateType, defaults, err := n.templates.Instantiate(ctx, spec.TemplateCode)
	if err != nil {
		return "", nil, err
	}

	if spec.Type != "" && spec.Type != templateType {
		return "", nil, NewValidationError("type", fmt.Sprintf("template %s is of type %s", spec.TemplateCode, templateType))
	}

	return templateType, models.MergeConfig(defaults, spec.Config), nil
}
