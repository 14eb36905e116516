package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/notiflow/pkg/cmd"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

// app holds what one CLI invocation opened.
type app struct {
	*cmd.Services

	store       persistence.Persistence
	bus         eventbus.EventBus
	closeLocker func() error
	logger      *slog.Logger
}

func openApp(ctx context.Context, command *cli.Command) (*app, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule("notiflow")

	retry, err := cmd.RetryFromCommand(command)
	if err != nil {
		return nil, err
	}

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "notiflow", logger)
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	lock, closeLocker, err := cmd.NewLocker(ctx, command.String("redis-url"), command.Duration("lock-ttl"), logger)
	if err != nil {
		_ = bus.Close()
		_ = store.Close(ctx)

		return nil, err
	}

	return &app{
		Services:    cmd.NewServices(store, lock, execution.NewMachine(retry), bus, logger),
		store:       store,
		bus:         bus,
		closeLocker: closeLocker,
		logger:      logger,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.closeLocker(); err != nil {
		a.logger.Error("Failed to close locker", "error", err)
	}

	if err := a.bus.Close(); err != nil {
		a.logger.Error("Failed to close event bus", "error", err)
	}

	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("Failed to close persistence", "error", err)
	}
}

// withApp opens the app around action.
func withApp(action func(context.Context, *cli.Command, *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := openApp(ctx, command)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return action(ctx, command, a)
	}
}

func printJSON(command *cli.Command, value any) error {
	encoder := json.NewEncoder(command.Root().Writer)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	return nil
}

// requireArg returns the positional argument at index or a usage error.
func requireArg(command *cli.Command, index int, name string) (string, error) {
	value := command.Args().Get(index)
	if value == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}

	return value, nil
}
