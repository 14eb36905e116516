package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/dukex/notiflow/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "notiflow-dispatcher",
		Usage:                 "Claim ready trigger instances and run their workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func dispatcherFlags() []cli.Flag {
	return slices.Concat(cmd.CommonFlags(), cmd.RetryFlags(), []cli.Flag{
		&cli.StringFlag{
			Name:    "dispatcher-id",
			Aliases: []string{"id"},
			Usage:   "Custom dispatcher ID (auto-generated if not provided)",
			Sources: cli.EnvVars("DISPATCHER_ID"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent polling workers",
			Value:   defaults.Workers,
			Sources: cli.EnvVars("DISPATCHER_WORKERS"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Delay between polls of one worker",
			Value:   defaults.PollInterval,
			Sources: cli.EnvVars("DISPATCHER_POLL_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Ready instances read per poll",
			Value:   defaults.BatchSize,
			Sources: cli.EnvVars("DISPATCHER_BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "execution-timeout",
			Usage:   "Bound of one node execution",
			Value:   defaults.ExecutionTimeout,
			Sources: cli.EnvVars("DISPATCHER_EXECUTION_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "lease-timeout",
			Usage:   "Age of a claim after which the reaper retries the instance",
			Value:   defaults.LeaseTimeout,
			Sources: cli.EnvVars("DISPATCHER_LEASE_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "reap-schedule",
			Usage:   "Cron schedule of the stale claim reaper",
			Value:   defaults.ReapSchedule,
			Sources: cli.EnvVars("DISPATCHER_REAP_SCHEDULE"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export spans over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	})
}
