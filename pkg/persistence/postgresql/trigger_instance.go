package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

const instanceColumns = `
	id
  , workflow_id
  , idempotency_key
  , payload
  , status
  , attempts
  , available_at
  , cursor_node_id
  , claimed_by
  , claimed_at
  , last_error
  , created_at
  , updated_at
  , finished_at
`

// TriggerInstanceRepository handles trigger instance database operations.
type TriggerInstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerInstanceRepository creates a new trigger instance repository.
func NewTriggerInstanceRepository(db *sql.DB, logger *slog.Logger) *TriggerInstanceRepository {
	return &TriggerInstanceRepository{db: db, logger: logger}
}

// CreateIfAbsent relies on the unique (workflow_id, idempotency_key) index:
// a conflicting insert does nothing and the winner's row is read back.
func (ir *TriggerInstanceRepository) CreateIfAbsent(ctx context.Context, instance *models.TriggerInstance) (*models.TriggerInstance, bool, error) {
	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate trigger instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	row := ir.db.QueryRowContext(ctx, `
		INSERT INTO trigger_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (workflow_id, idempotency_key) DO NOTHING
		RETURNING `+instanceColumns,
		instanceArgs(instance)...,
	)

	stored, err := scanInstance(row)
	if err == nil {
		return stored, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert trigger instance: %w", err)
	}

	row = ir.db.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM trigger_instances WHERE workflow_id = $1 AND idempotency_key = $2",
		instance.WorkflowID, instance.IdempotencyKey,
	)

	stored, err = scanInstance(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read existing trigger instance: %w", err)
	}

	return stored, false, nil
}

func (ir *TriggerInstanceRepository) GetByID(ctx context.Context, id string) (*models.TriggerInstance, error) {
	if uuid.Validate(id) != nil {
		return nil, &persistence.InstanceError{Op: "GetByID", InstanceID: id, Err: persistence.ErrTriggerInstanceNotFound}
	}

	row := ir.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM trigger_instances WHERE id = $1", id)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.InstanceError{Op: "GetByID", InstanceID: id, Err: persistence.ErrTriggerInstanceNotFound}
		}

		return nil, fmt.Errorf("failed to scan trigger instance: %w", err)
	}

	return instance, nil
}

func (ir *TriggerInstanceRepository) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.TriggerInstance, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		conditions = append(conditions, "workflow_id = $"+strconv.Itoa(len(args)))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, persistence.NormalizeLimit(opts.Limit), max(opts.Offset, 0))

	return ir.query(ctx, "SELECT "+instanceColumns+" FROM trigger_instances "+where+
		" ORDER BY created_at DESC LIMIT $"+strconv.Itoa(len(args)-1)+" OFFSET $"+strconv.Itoa(len(args)), args...)
}

func (ir *TriggerInstanceRepository) FindReady(ctx context.Context, now time.Time, limit int) ([]*models.TriggerInstance, error) {
	return ir.query(ctx, "SELECT "+instanceColumns+`
		FROM trigger_instances
		WHERE status = 'enqueued' AND available_at <= $1
		ORDER BY available_at
		LIMIT $2
	`, now, limit)
}

func (ir *TriggerInstanceRepository) FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.TriggerInstance, error) {
	return ir.query(ctx, "SELECT "+instanceColumns+`
		FROM trigger_instances
		WHERE status = 'processing' AND claimed_at < $1
		ORDER BY claimed_at
		LIMIT $2
	`, claimedBefore, limit)
}

// CompareAndSwap is a conditional UPDATE guarded by the expected status and attempts.
func (ir *TriggerInstanceRepository) CompareAndSwap(
	ctx context.Context,
	next *models.TriggerInstance,
	expectedStatus models.InstanceStatus,
	expectedAttempts int,
) error {
	return ir.conditionalUpdate(ctx, "CompareAndSwap", next,
		"status = $12 AND attempts = $13", expectedStatus, expectedAttempts)
}

// ExpireClaim is CompareAndSwap on a processing instance that also requires
// the stored claim to predate claimedBefore.
func (ir *TriggerInstanceRepository) ExpireClaim(
	ctx context.Context,
	next *models.TriggerInstance,
	expectedAttempts int,
	claimedBefore time.Time,
) error {
	return ir.conditionalUpdate(ctx, "ExpireClaim", next,
		"status = 'processing' AND attempts = $12 AND claimed_at < $13", expectedAttempts, claimedBefore)
}

// conditionalUpdate writes next when guard holds. Guard placeholders start at $12.
func (ir *TriggerInstanceRepository) conditionalUpdate(
	ctx context.Context,
	op string,
	next *models.TriggerInstance,
	guard string,
	guardArgs ...any,
) error {
	next.UpdatedAt = time.Now().UTC()

	args := []any{
		next.ID,
		[]byte(next.Payload),
		next.Status,
		next.Attempts,
		next.AvailableAt,
		next.CursorNodeID,
		next.ClaimedBy,
		next.ClaimedAt,
		next.LastError,
		next.UpdatedAt,
		next.FinishedAt,
	}

	result, err := ir.db.ExecContext(ctx, `
		UPDATE trigger_instances
		SET payload = $2,
			status = $3,
			attempts = $4,
			available_at = $5,
			cursor_node_id = $6,
			claimed_by = $7,
			claimed_at = $8,
			last_error = $9,
			updated_at = $10,
			finished_at = $11
		WHERE id = $1 AND `+guard, append(args, guardArgs...)...)
	if err != nil {
		return fmt.Errorf("failed to update trigger instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 1 {
		return nil
	}

	_, err = ir.GetByID(ctx, next.ID)
	if err != nil {
		return err
	}

	return &persistence.InstanceError{Op: op, InstanceID: next.ID, Err: persistence.ErrStaleInstance}
}

func (ir *TriggerInstanceRepository) CountByWorkflow(ctx context.Context, workflowID string) (int, error) {
	var count int

	err := ir.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trigger_instances WHERE workflow_id = $1", workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trigger instances: %w", err)
	}

	return count, nil
}

func (ir *TriggerInstanceRepository) query(ctx context.Context, query string, args ...any) ([]*models.TriggerInstance, error) {
	rows, err := ir.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger instances: %w", err)
	}

	defer closeRows(ctx, ir.logger, rows)

	instances := make([]*models.TriggerInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating trigger instances: %w", err)
	}

	return instances, nil
}

func instanceArgs(instance *models.TriggerInstance) []any {
	return []any{
		instance.ID,
		instance.WorkflowID,
		instance.IdempotencyKey,
		[]byte(instance.Payload),
		instance.Status,
		instance.Attempts,
		instance.AvailableAt,
		instance.CursorNodeID,
		instance.ClaimedBy,
		instance.ClaimedAt,
		instance.LastError,
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.FinishedAt,
	}
}

func scanInstance(scanner rowScanner) (*models.TriggerInstance, error) {
	var (
		instance   models.TriggerInstance
		payload    []byte
		cursor     sql.NullString
		claimedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := scanner.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.IdempotencyKey,
		&payload,
		&instance.Status,
		&instance.Attempts,
		&instance.AvailableAt,
		&cursor,
		&instance.ClaimedBy,
		&claimedAt,
		&instance.LastError,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Payload = payload

	if cursor.Valid {
		instance.CursorNodeID = &cursor.String
	}

	if claimedAt.Valid {
		claimed := claimedAt.Time
		instance.ClaimedAt = &claimed
	}

	if finishedAt.Valid {
		finished := finishedAt.Time
		instance.FinishedAt = &finished
	}

	return &instance, nil
}
