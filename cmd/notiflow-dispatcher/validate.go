package main

import (
	"context"
	"fmt"

	"github.com/dukex/notiflow/pkg/cmd"
	"github.com/dukex/notiflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check the dispatcher configuration and the store connection",
		Flags:   dispatcherFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))
			logger := log.WithModule("notiflow-dispatcher").With("action", "validate")

			cfg, retry, err := configFromCommand(command)
			if err != nil {
				return err
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close(ctx)
			}()

			err = store.HealthCheck(ctx)
			if err != nil {
				return fmt.Errorf("persistence is unhealthy: %w", err)
			}

			out := command.Root().Writer
			fmt.Fprintf(out, "workers=%d poll_interval=%s batch_size=%d\n", cfg.Workers, cfg.PollInterval, cfg.BatchSize)
			fmt.Fprintf(out, "execution_timeout=%s lease_timeout=%s reap_schedule=%q\n", cfg.ExecutionTimeout, cfg.LeaseTimeout, cfg.ReapSchedule)
			fmt.Fprintf(out, "retry base=%s ceiling=%s max_attempts=%d jitter=%.2f\n", retry.Base, retry.Ceiling, retry.MaxAttempts, retry.Jitter)
			fmt.Fprintln(out, "configuration is valid")

			return nil
		},
	}
}
