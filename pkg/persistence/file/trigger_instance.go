package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerInstanceRepository stores one file per trigger instance.
type TriggerInstanceRepository struct {
	store *Persistence
}

func (ir *TriggerInstanceRepository) CreateIfAbsent(_ context.Context, instance *models.TriggerInstance) (*models.TriggerInstance, bool, error) {
	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	all, err := ir.loadAll()
	if err != nil {
		return nil, false, err
	}

	for _, existing := range all {
		if existing.WorkflowID == instance.WorkflowID && existing.IdempotencyKey == instance.IdempotencyKey {
			return existing, false, nil
		}
	}

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

	err = ir.store.writeJSON(instancesDir, instance.ID, instance)
	if err != nil {
		return nil, false, err
	}

	return instance.Clone(), true, nil
}

func (ir *TriggerInstanceRepository) GetByID(_ context.Context, id string) (*models.TriggerInstance, error) {
	ir.store.mu.RLock()
	defer ir.store.mu.RUnlock()

	return ir.load(id)
}

func (ir *TriggerInstanceRepository) List(_ context.Context, opts persistence.InstanceListOptions) ([]*models.TriggerInstance, error) {
	ir.store.mu.RLock()
	defer ir.store.mu.RUnlock()

	all, err := ir.loadAll()
	if err != nil {
		return nil, err
	}

	matches := make([]*models.TriggerInstance, 0, len(all))

	for _, instance := range all {
		if opts.WorkflowID != "" && instance.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && instance.Status != *opts.Status {
			continue
		}

		matches = append(matches, instance)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	limit := persistence.NormalizeLimit(opts.Limit)
	start := min(max(opts.Offset, 0), len(matches))
	end := min(start+limit, len(matches))

	return matches[start:end], nil
}

func (ir *TriggerInstanceRepository) FindReady(_ context.Context, now time.Time, limit int) ([]*models.TriggerInstance, error) {
	ir.store.mu.RLock()
	defer ir.store.mu.RUnlock()

	return ir.filterOldest(limit, func(instance *models.TriggerInstance) bool {
		return instance.Ready(now)
	}, func(instance *models.TriggerInstance) time.Time {
		return instance.AvailableAt
	})
}

func (ir *TriggerInstanceRepository) FindStale(_ context.Context, claimedBefore time.Time, limit int) ([]*models.TriggerInstance, error) {
	ir.store.mu.RLock()
	defer ir.store.mu.RUnlock()

	return ir.filterOldest(limit, func(instance *models.TriggerInstance) bool {
		return instance.Status == models.InstanceStatusProcessing &&
			instance.ClaimedAt != nil && instance.ClaimedAt.Before(claimedBefore)
	}, func(instance *models.TriggerInstance) time.Time {
		return *instance.ClaimedAt
	})
}

func (ir *TriggerInstanceRepository) CompareAndSwap(
	_ context.Context,
	next *models.TriggerInstance,
	expectedStatus models.InstanceStatus,
	expectedAttempts int,
) error {
	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	current, err := ir.load(next.ID)
	if err != nil {
		return err
	}

	if current.Status != expectedStatus || current.Attempts != expectedAttempts {
		return &persistence.InstanceError{Op: "CompareAndSwap", InstanceID: next.ID, Err: persistence.ErrStaleInstance}
	}

	next.UpdatedAt = time.Now().UTC()

	return ir.store.writeJSON(instancesDir, next.ID, next)
}

func (ir *TriggerInstanceRepository) ExpireClaim(
	_ context.Context,
	next *models.TriggerInstance,
	expectedAttempts int,
	claimedBefore time.Time,
) error {
	ir.store.mu.Lock()
	defer ir.store.mu.Unlock()

	current, err := ir.load(next.ID)
	if err != nil {
		return err
	}

	if current.Status != models.InstanceStatusProcessing || current.Attempts != expectedAttempts ||
		current.ClaimedAt == nil || !current.ClaimedAt.Before(claimedBefore) {
		return &persistence.InstanceError{Op: "ExpireClaim", InstanceID: next.ID, Err: persistence.ErrStaleInstance}
	}

	next.UpdatedAt = time.Now().UTC()

	return ir.store.writeJSON(instancesDir, next.ID, next)
}

func (ir *TriggerInstanceRepository) CountByWorkflow(_ context.Context, workflowID string) (int, error) {
	ir.store.mu.RLock()
	defer ir.store.mu.RUnlock()

	all, err := ir.loadAll()
	if err != nil {
		return 0, err
	}

	count := 0

	for _, instance := range all {
		if instance.WorkflowID == workflowID {
			count++
		}
	}

	return count, nil
}

func (ir *TriggerInstanceRepository) filterOldest(
	limit int,
	keep func(*models.TriggerInstance) bool,
	orderBy func(*models.TriggerInstance) time.Time,
) ([]*models.TriggerInstance, error) {
	all, err := ir.loadAll()
	if err != nil {
		return nil, err
	}

	matches := make([]*models.TriggerInstance, 0)

	for _, instance := range all {
		if keep(instance) {
			matches = append(matches, instance)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return orderBy(matches[i]).Before(orderBy(matches[j]))
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

func (ir *TriggerInstanceRepository) load(id string) (*models.TriggerInstance, error) {
	var instance models.TriggerInstance

	err := ir.store.readJSON(instancesDir, id, &instance)
	if err != nil {
		if isNotExist(err) {
			return nil, &persistence.InstanceError{Op: "GetByID", InstanceID: id, Err: persistence.ErrTriggerInstanceNotFound}
		}

		return nil, fmt.Errorf("failed to read trigger instance %s: %w", id, err)
	}

	// Undo the indentation writeJSON applies to the raw payload.
	if len(instance.Payload) > 0 {
		var compacted bytes.Buffer

		err = json.Compact(&compacted, instance.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to read trigger instance %s payload: %w", id, err)
		}

		instance.Payload = compacted.Bytes()
	}

	return &instance, nil
}

func (ir *TriggerInstanceRepository) loadAll() ([]*models.TriggerInstance, error) {
	ids, err := ir.store.listIDs(instancesDir)
	if err != nil {
		return nil, err
	}

	instances := make([]*models.TriggerInstance, 0, len(ids))

	for _, id := range ids {
		instance, err := ir.load(id)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	return instances, nil
}
