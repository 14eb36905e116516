package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dukex/notiflow/pkg/cmd"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Follow trigger instance lifecycle events",
		Commands: []*cli.Command{
			{
				Name:        "watch",
				Usage:       "Print lifecycle events as dispatchers publish them",
				Description: "Other processes' events arrive only through the kafka event bus; " +
					"the gochannel bus is local to this process.",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "type",
						Usage: "Only print these event types (repeatable); all types when unset",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop after this many events; 0 watches until interrupted",
					},
					&cli.StringFlag{
						Name:  "consumer",
						Usage: "Consumer name; watchers sharing a name split the Kafka partitions",
						Value: "notiflow-watch",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					types, err := parseEventTypes(command.StringSlice("type"))
					if err != nil {
						return err
					}

					log.Setup(command.String("log-level"), command.String("log-format"))
					logger := log.WithModule("notiflow-watch")

					bus, err := cmd.NewEventBus(
						command.String("event-bus"),
						command.String("kafka-brokers"),
						command.String("consumer"),
						logger,
					)
					if err != nil {
						return err
					}

					defer func() {
						if err := bus.Close(); err != nil {
							logger.Error("Failed to close event bus", "error", err)
						}
					}()

					ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					w := newWatcher(command.Root().Writer, command.Int("limit"))

					err = w.Start(ctx, bus, types)
					if err != nil {
						return err
					}

					logger.InfoContext(ctx, "Watching lifecycle events", "types", types)

					w.Wait(ctx)

					return nil
				},
			},
		},
	}
}

// parseEventTypes returns every lifecycle event type when names is empty.
func parseEventTypes(names []string) ([]events.EventType, error) {
	if len(names) == 0 {
		return events.Types(), nil
	}

	types := make([]events.EventType, 0, len(names))

	for _, name := range names {
		eventType := events.EventType(name)
		if !eventType.Valid() {
			return nil, fmt.Errorf("unknown event type %q", name)
		}

		types = append(types, eventType)
	}

	return types, nil
}

// watcher prints one line per received event.
type watcher struct {
	out   io.Writer
	limit int

	mu   sync.Mutex
	seen int
	done chan struct{}
	once sync.Once
}

func newWatcher(out io.Writer, limit int) *watcher {
	return &watcher{
		out:   out,
		limit: limit,
		done:  make(chan struct{}),
	}
}

// Start registers a handler for each type and subscribes to the bus.
func (w *watcher) Start(ctx context.Context, bus eventbus.EventSubscriber, types []events.EventType) error {
	for _, eventType := range types {
		err := bus.Handle(eventType, w.print)
		if err != nil {
			return fmt.Errorf("failed to handle %s: %w", eventType, err)
		}
	}

	err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
	}

	return nil
}

// Wait blocks until ctx ends or the limit is reached.
func (w *watcher) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *watcher) print(_ context.Context, event any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limit > 0 && w.seen >= w.limit {
		return nil
	}

	_, err := fmt.Fprintln(w.out, describeEvent(event))
	if err != nil {
		return err
	}

	w.seen++

	if w.limit > 0 && w.seen >= w.limit {
		w.once.Do(func() { close(w.done) })
	}

	return nil
}

func describeEvent(event any) string {
	var (
		base    events.BaseEvent
		details []string
	)

	switch e := event.(type) {
	case *events.InstanceSubmitted:
		base = e.BaseEvent
		details = append(details, "key="+e.IdempotencyKey)
	case *events.InstanceClaimed:
		base = e.BaseEvent
		details = append(details, fmt.Sprintf("attempt=%d", e.Attempt))
	case *events.NodeExecuted:
		base = e.BaseEvent
		details = append(details,
			"node="+e.NodeID,
			"node_type="+e.NodeType,
			"outcome="+e.Outcome,
			fmt.Sprintf("duration=%dms", e.DurationMs),
		)

		if e.Error != "" {
			details = append(details, fmt.Sprintf("error=%q", e.Error))
		}
	case *events.InstanceCompleted:
		base = e.BaseEvent
		details = append(details, fmt.Sprintf("attempts=%d", e.Attempts))
	case *events.InstanceRetryScheduled:
		base = e.BaseEvent
		details = append(details,
			fmt.Sprintf("attempt=%d", e.Attempt),
			"available_at="+e.AvailableAt.UTC().Format(time.RFC3339),
			fmt.Sprintf("error=%q", e.Error),
		)
	case *events.InstanceFailed:
		base = e.BaseEvent
		details = append(details, fmt.Sprintf("attempts=%d", e.Attempts), fmt.Sprintf("error=%q", e.Error))
	default:
		return fmt.Sprintf("unknown event %T", event)
	}

	line := []string{
		base.Timestamp.UTC().Format(time.RFC3339),
		string(base.Type),
		"instance=" + base.InstanceID,
		"workflow=" + base.WorkflowID,
	}

	if base.WorkerID != "" {
		line = append(line, "worker="+base.WorkerID)
	}

	return strings.Join(append(line, details...), " ")
}
