// Package dispatcher claims ready trigger instances and walks their workflow
// graph through the node executors.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/notiflow/pkg/config"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/registry"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Dispatcher polls for ready instances and runs them. Several dispatchers,
// in one process or many, may share a store: claims are compare-and-swap
// updates and a lost race is skipped.
type Dispatcher struct {
	persistence persistence.Persistence
	executors   *registry.Executors
	machine     *execution.Machine
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	config      config.Dispatcher
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(d *Dispatcher) {
		d.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// WithClock replaces time.Now when selecting ready and stale instances.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func New(
	persistence persistence.Persistence,
	executors *registry.Executors,
	machine *execution.Machine,
	cfg config.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "dispatcher-" + uuid.NewString()[:8]
	}

	d := &Dispatcher{
		persistence: persistence,
		executors:   executors,
		machine:     machine,
		publisher:   eventbus.NopPublisher{},
		tracer:      otelhelper.NoopTracer(),
		config:      cfg,
		logger:      logger.With("module", "dispatcher", "worker_id", cfg.WorkerID),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// WorkerID identifies this dispatcher in claims and events.
func (d *Dispatcher) WorkerID() string {
	return d.config.WorkerID
}

// Run starts the polling workers and the reaper, and blocks until ctx is
// cancelled or a worker fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := scheduler.AddFunc(d.config.ReapSchedule, func() {
		_, err := d.Reap(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.ErrorContext(ctx, "Reaper run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reap schedule %q: %w", d.config.ReapSchedule, err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	d.logger.InfoContext(ctx, "Dispatcher started",
		"workers", d.config.Workers,
		"poll_interval", d.config.PollInterval,
		"reap_schedule", d.config.ReapSchedule,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for worker := range d.config.Workers {
		group.Go(func() error {
			return d.poll(groupCtx, worker)
		})
	}

	err = group.Wait()

	d.logger.InfoContext(ctx, "Dispatcher stopped")

	return err
}

func (d *Dispatcher) poll(ctx context.Context, worker int) error {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		_, err := d.DispatchOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.ErrorContext(ctx, "Dispatch failed", "worker", worker, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims and runs the instances ready now, up to BatchSize.
// It returns how many instances this call claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	ready, err := d.persistence.TriggerInstanceRepository().FindReady(ctx, d.now().UTC(), d.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find ready instances: %w", err)
	}

	claimed := 0

	for _, instance := range ready {
		if ctx.Err() != nil {
			break
		}

		running, err := d.claim(ctx, instance)
		if err != nil {
			if persistence.IsStaleInstance(err) {
				d.logger.DebugContext(ctx, "Instance claimed elsewhere", "instance_id", instance.ID)

				continue
			}

			d.logger.ErrorContext(ctx, "Failed to claim instance", "instance_id", instance.ID, "error", err)

			continue
		}

		claimed++

		d.process(ctx, running)
	}

	return claimed, nil
}

func (d *Dispatcher) claim(ctx context.Context, instance *models.TriggerInstance) (*models.TriggerInstance, error) {
	next, err := d.machine.Claim(instance, d.config.WorkerID)
	if err != nil {
		return nil, err
	}

	err = d.persistence.TriggerInstanceRepository().CompareAndSwap(ctx, next, instance.Status, instance.Attempts)
	if err != nil {
		return nil, err
	}

	d.logger.InfoContext(ctx, "Claimed instance", "instance_id", next.ID, "attempt", next.Attempts)

	d.publish(ctx, next.ID, events.InstanceClaimed{
		BaseEvent: d.base(events.InstanceClaimedEvent, next),
		Attempt:   next.Attempts,
	})

	return next, nil
}

// Reap turns processing instances whose claim is older than LeaseTimeout
// into recoverable failures, so instances held by a crashed worker run again.
func (d *Dispatcher) Reap(ctx context.Context) (int, error) {
	cutoff := d.now().UTC().Add(-d.config.LeaseTimeout)

	stale, err := d.persistence.TriggerInstanceRepository().FindStale(ctx, cutoff, d.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale instances: %w", err)
	}

	reaped := 0

	for _, instance := range stale {
		cause := fmt.Errorf("lease of %s expired", instance.ClaimedBy)

		next, err := d.machine.Fail(instance, execution.EventRecoverable, cause, nil)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to reap instance", "instance_id", instance.ID, "error", err)

			continue
		}

		// The claim may have been renewed since FindStale read it.
		err = d.persistence.TriggerInstanceRepository().ExpireClaim(ctx, next, instance.Attempts, cutoff)
		if err != nil {
			if !persistence.IsStaleInstance(err) {
				d.logger.ErrorContext(ctx, "Failed to reap instance", "instance_id", instance.ID, "error", err)
			}

			continue
		}

		d.announce(ctx, next)

		reaped++
	}

	if reaped > 0 {
		d.logger.InfoContext(ctx, "Reaped stale instances", "count", reaped)
	}

	return reaped, nil
}

// finish applies a terminal or retry transition to a processing instance and
// persists it against the attempts it was claimed with.
func (d *Dispatcher) finish(
	ctx context.Context,
	instance *models.TriggerInstance,
	event execution.Event,
	cause error,
	cursor *string,
) (*models.TriggerInstance, error) {
	var (
		next *models.TriggerInstance
		err  error
	)

	if event == execution.EventSuccess {
		next, err = d.machine.Complete(instance)
	} else {
		next, err = d.machine.Fail(instance, event, cause, cursor)
	}

	if err != nil {
		return nil, err
	}

	err = d.persistence.TriggerInstanceRepository().CompareAndSwap(ctx, next, instance.Status, instance.Attempts)
	if err != nil {
		return nil, err
	}

	d.announce(ctx, next)

	return next, nil
}

// announce logs and publishes the outcome of a stored transition.
func (d *Dispatcher) announce(ctx context.Context, next *models.TriggerInstance) {
	switch next.Status {
	case models.InstanceStatusCompleted:
		d.logger.InfoContext(ctx, "Instance completed", "instance_id", next.ID, "attempts", next.Attempts)
		d.publish(ctx, next.ID, events.InstanceCompleted{
			BaseEvent: d.base(events.InstanceCompletedEvent, next),
			Attempts:  next.Attempts,
		})
	case models.InstanceStatusEnqueued:
		d.logger.WarnContext(ctx, "Instance scheduled for retry",
			"instance_id", next.ID,
			"attempts", next.Attempts,
			"available_at", next.AvailableAt,
			"error", next.LastError,
		)
		d.publish(ctx, next.ID, events.InstanceRetryScheduled{
			BaseEvent:   d.base(events.InstanceRetryScheduledEvent, next),
			Attempt:     next.Attempts,
			AvailableAt: next.AvailableAt,
			Error:       next.LastError,
		})
	case models.InstanceStatusFailed:
		d.logger.ErrorContext(ctx, "Instance failed", "instance_id", next.ID, "attempts", next.Attempts, "error", next.LastError)
		d.publish(ctx, next.ID, events.InstanceFailed{
			BaseEvent: d.base(events.InstanceFailedEvent, next),
			Attempts:  next.Attempts,
			Error:     next.LastError,
		})
	}
}

func (d *Dispatcher) base(eventType events.EventType, instance *models.TriggerInstance) events.BaseEvent {
	return events.NewBase(uuid.NewString(), eventType, instance.WorkflowID, instance.ID, d.config.WorkerID)
}

func (d *Dispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	err := d.publisher.Publish(ctx, key, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func instanceAttributes(instance *models.TriggerInstance) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.WorkflowIDKey, instance.WorkflowID),
		attribute.Int(otelhelper.AttemptKey, instance.Attempts),
	}
}

var errLeaseLost = errors.New("instance was taken over while running")
