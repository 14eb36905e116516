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

const workflowColumns = `
	id
  , tenant_id
  , code
  , name
  , version
  , is_active
  , entry_node_id
  , payload_schema
  , owner
  , created_at
  , updated_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Create inserts the workflow with its nodes and edges in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) (err error) {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	schemaJSON, err := marshalNullableJSON(workflow.PayloadSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal payload schema: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, tenant_id, code, name, version, is_active, entry_node_id, payload_schema, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		workflow.ID,
		workflow.TenantID,
		workflow.Code,
		workflow.Name,
		workflow.Version,
		workflow.IsActive,
		workflow.EntryNodeID,
		schemaJSON,
		workflow.Owner,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowCodeError("Create", workflow.Code, persistence.ErrWorkflowAlreadyExists)
		}

		return fmt.Errorf("failed to insert workflow: %w", err)
	}

	for _, node := range workflow.Nodes {
		node.WorkflowID = workflow.ID

		err = insertNode(ctx, tx, node)
		if err != nil {
			return err
		}
	}

	for _, edge := range workflow.Edges {
		edge.WorkflowID = workflow.ID

		err = insertEdge(ctx, tx, edge)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

// Update persists the mutable header fields.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	schemaJSON, err := marshalNullableJSON(workflow.PayloadSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal payload schema: %w", err)
	}

	workflow.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows
		SET name = $2, entry_node_id = $3, payload_schema = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`, workflow.ID, workflow.Name, workflow.EntryNodeID, schemaJSON, workflow.IsActive, workflow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	row := r.db.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) LatestByCode(ctx context.Context, tenantID, code string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+workflowColumns+`
		FROM workflows
		WHERE tenant_id = $1 AND code = $2
		ORDER BY version DESC
		LIMIT 1
	`, tenantID, code)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowCodeError("LatestByCode", code, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) MaxVersion(ctx context.Context, tenantID, code string) (int, error) {
	var version int

	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM workflows WHERE tenant_id = $1 AND code = $2",
		tenantID, code,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query max version: %w", err)
	}

	return version, nil
}

func (r *WorkflowRepository) ListVersions(ctx context.Context, tenantID, code string) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+workflowColumns+`
		FROM workflows
		WHERE tenant_id = $1 AND code = $2
		ORDER BY version DESC
	`, tenantID, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow versions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := listNodes(ctx, r.db, r.logger, workflow.ID)
	if err != nil {
		return err
	}

	edges, err := listEdges(ctx, r.db, r.logger, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Nodes = nodes
	workflow.Edges = edges

	return nil
}

func scanWorkflow(scanner rowScanner) (*models.Workflow, error) {
	var (
		workflow    models.Workflow
		entryNodeID sql.NullString
		schemaJSON  []byte
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Code,
		&workflow.Name,
		&workflow.Version,
		&workflow.IsActive,
		&entryNodeID,
		&schemaJSON,
		&workflow.Owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entryNodeID.Valid {
		workflow.EntryNodeID = &entryNodeID.String
	}

	if len(schemaJSON) > 0 {
		err = json.Unmarshal(schemaJSON, &workflow.PayloadSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload schema: %w", err)
		}
	}

	return &workflow, nil
}

func marshalNullableJSON(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}
