package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NodeRepository handles workflow node database operations.
type NodeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeRepository creates a new node repository.
func NewNodeRepository(db *sql.DB, logger *slog.Logger) *NodeRepository {
	return &NodeRepository{db: db, logger: logger}
}

func (nr *NodeRepository) Create(ctx context.Context, node *models.WorkflowNode) error {
	return insertNode(ctx, nr.db, node)
}

func (nr *NodeRepository) GetByWorkflow(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	row := nr.db.QueryRowContext(ctx, `
		SELECT workflow_id, id, node_type, name, template_code, config, created_at
		FROM workflow_nodes
		WHERE workflow_id = $1 AND id = $2
	`, workflowID, nodeID)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.NodeError{Op: "GetByWorkflow", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeNotFound}
		}

		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	return node, nil
}

func (nr *NodeRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	return listNodes(ctx, nr.db, nr.logger, workflowID)
}

// EdgeRepository handles workflow edge database operations.
type EdgeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEdgeRepository creates a new edge repository.
func NewEdgeRepository(db *sql.DB, logger *slog.Logger) *EdgeRepository {
	return &EdgeRepository{db: db, logger: logger}
}

func (er *EdgeRepository) Create(ctx context.Context, edge *models.WorkflowEdge) error {
	return insertEdge(ctx, er.db, edge)
}

func (er *EdgeRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowEdge, error) {
	return listEdges(ctx, er.db, er.logger, workflowID)
}

func insertNode(ctx context.Context, db execer, node *models.WorkflowNode) error {
	config := map[string]any{}

	if node.Bindings != nil {
		var err error

		config, err = models.BindingsToConfig(node.Bindings)
		if err != nil {
			return err
		}
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal node config: %w", err)
	}

	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO workflow_nodes (workflow_id, id, node_type, name, template_code, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, node.WorkflowID, node.ID, node.Type, node.Name, node.TemplateCode, configJSON, node.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &persistence.NodeError{Op: "Create", WorkflowID: node.WorkflowID, NodeID: node.ID, Err: persistence.ErrNodeAlreadyExists}
		}

		return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
	}

	return nil
}

func insertEdge(ctx context.Context, db execer, edge *models.WorkflowEdge) error {
	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO workflow_edges (workflow_id, id, from_node_id, to_node_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, edge.WorkflowID, edge.ID, edge.FromNodeID, edge.ToNodeID, edge.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("edge %s -> %s: %w", edge.FromNodeID, edge.ToNodeID, persistence.ErrEdgeAlreadyExists)
		}

		return fmt.Errorf("failed to insert edge: %w", err)
	}

	return nil
}

func listNodes(ctx context.Context, db querier, logger *slog.Logger, workflowID string) ([]*models.WorkflowNode, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT workflow_id, id, node_type, name, template_code, config, created_at
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}

	defer closeRows(ctx, logger, rows)

	nodes := make([]*models.WorkflowNode, 0)

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		nodes = append(nodes, node)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func listEdges(ctx context.Context, db querier, logger *slog.Logger, workflowID string) ([]*models.WorkflowEdge, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT workflow_id, id, from_node_id, to_node_id, created_at
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}

	defer closeRows(ctx, logger, rows)

	edges := make([]*models.WorkflowEdge, 0)

	for rows.Next() {
		var edge models.WorkflowEdge

		err := rows.Scan(&edge.WorkflowID, &edge.ID, &edge.FromNodeID, &edge.ToNodeID, &edge.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}

		edges = append(edges, &edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

func scanNode(scanner rowScanner) (*models.WorkflowNode, error) {
	var (
		node         models.WorkflowNode
		templateCode sql.NullString
		configJSON   []byte
	)

	err := scanner.Scan(&node.WorkflowID, &node.ID, &node.Type, &node.Name, &templateCode, &configJSON, &node.CreatedAt)
	if err != nil {
		return nil, err
	}

	if templateCode.Valid {
		node.TemplateCode = &templateCode.String
	}

	config := map[string]any{}

	err = json.Unmarshal(configJSON, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node config: %w", err)
	}

	node.Bindings, err = models.DecodeBindings(node.Type, config)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	return &node, nil
}
