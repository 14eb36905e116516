package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/notiflow/pkg/cmd"
	"github.com/dukex/notiflow/pkg/config"
	"github.com/dukex/notiflow/pkg/dispatcher"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

var defaults = config.DefaultDispatcher()

func configFromCommand(command *cli.Command) (config.Dispatcher, config.Retry, error) {
	retry, err := cmd.RetryFromCommand(command)
	if err != nil {
		return config.Dispatcher{}, retry, err
	}

	cfg := config.Dispatcher{
		WorkerID:         command.String("dispatcher-id"),
		Workers:          command.Int("workers"),
		PollInterval:     command.Duration("poll-interval"),
		BatchSize:        command.Int("batch-size"),
		ExecutionTimeout: command.Duration("execution-timeout"),
		LeaseTimeout:     command.Duration("lease-timeout"),
		ReapSchedule:     command.String("reap-schedule"),
	}

	return cfg, retry, cfg.Validate()
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the dispatcher",
		Flags:   dispatcherFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			cfg, retry, err := configFromCommand(command)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := log.WithModule("notiflow-dispatcher")

			opts := make([]dispatcher.Option, 0, 2)

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, "notiflow-dispatcher")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
				defer func() {
					if err := shutdown(context.WithoutCancel(ctx)); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()

				opts = append(opts, dispatcher.WithTracer(tracer))
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "notiflow-dispatcher", logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			executors, err := cmd.NewExecutors(logger)
			if err != nil {
				return err
			}

			opts = append(opts, dispatcher.WithPublisher(eventBus))

			d := dispatcher.New(store, executors, execution.NewMachine(retry), cfg, logger, opts...)

			logger.Info("Initializing dispatcher", "dispatcher_id", d.WorkerID(), "node_types", executors.Types())

			return d.Run(ctx)
		},
	}
}
