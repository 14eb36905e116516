package cmd

import (
	"time"

	"github.com/dukex/notiflow/pkg/config"
	"github.com/urfave/cli/v3"
)

// CommonFlags configures logging, persistence and the event bus.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Persistence URL (file://path or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// RetryFlags configures the retry policy.
func RetryFlags() []cli.Flag {
	defaults := config.DefaultRetry()

	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "retry-base",
			Usage:   "Delay before the first retry",
			Value:   defaults.Base,
			Sources: cli.EnvVars("RETRY_BASE"),
		},
		&cli.DurationFlag{
			Name:    "retry-ceiling",
			Usage:   "Upper bound of the retry delay",
			Value:   defaults.Ceiling,
			Sources: cli.EnvVars("RETRY_CEILING"),
		},
		&cli.IntFlag{
			Name:    "retry-max-attempts",
			Usage:   "Attempts before an instance fails",
			Value:   defaults.MaxAttempts,
			Sources: cli.EnvVars("RETRY_MAX_ATTEMPTS"),
		},
		&cli.FloatFlag{
			Name:    "retry-jitter",
			Usage:   "Randomization fraction applied to retry delays",
			Value:   defaults.Jitter,
			Sources: cli.EnvVars("RETRY_JITTER"),
		},
	}
}

// RetryFromCommand reads the retry flags and validates the policy.
func RetryFromCommand(command *cli.Command) (config.Retry, error) {
	retry := config.Retry{
		Base:        command.Duration("retry-base"),
		Ceiling:     command.Duration("retry-ceiling"),
		MaxAttempts: command.Int("retry-max-attempts"),
		Jitter:      command.Float("retry-jitter"),
	}

	return retry, retry.Validate()
}

// LockerFlags configures the authoring lock.
func LockerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for locks shared between processes; empty locks in-process",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.DurationFlag{
			Name:    "lock-ttl",
			Usage:   "Expiry of a Redis lock whose holder died",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("LOCK_TTL"),
		},
	}
}
