// Package config holds the typed runtime configuration of the dispatcher and retry policy.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Retry is the retry policy applied to recoverable failures.
type Retry struct {
	Base        time.Duration `validate:"gt=0"`
	Ceiling     time.Duration `validate:"gtefield=Base"`
	MaxAttempts int           `validate:"gte=1"`
	Jitter      float64       `validate:"gte=0,lte=1"` // Randomization fraction; 0 gives exact exponential delays
}

// Dispatcher configures polling, claiming and executor invocation. The lease
// of a claimed instance is renewed before each node runs, so LeaseTimeout
// only has to outlast one node execution.
type Dispatcher struct {
	WorkerID         string
	Workers          int           `validate:"gte=1"`
	PollInterval     time.Duration `validate:"gt=0"`
	BatchSize        int           `validate:"gte=1"`
	ExecutionTimeout time.Duration `validate:"gt=0"`
	LeaseTimeout     time.Duration `validate:"gtfield=ExecutionTimeout"`
	ReapSchedule     string        `validate:"required"`
}

// DefaultRetry returns the retry policy used when nothing is configured.
func DefaultRetry() Retry {
	return Retry{
		Base:        30 * time.Second,
		Ceiling:     time.Hour,
		MaxAttempts: 5,
		Jitter:      0.2,
	}
}

// DefaultDispatcher returns the dispatcher settings used when nothing is configured.
func DefaultDispatcher() Dispatcher {
	return Dispatcher{
		Workers:          4,
		PollInterval:     time.Second,
		BatchSize:        50,
		ExecutionTimeout: 30 * time.Second,
		LeaseTimeout:     5 * time.Minute,
		ReapSchedule:     "@every 1m",
	}
}

var validate = validator.New()

// Validate checks the retry policy.
func (r Retry) Validate() error {
	err := validate.Struct(r)
	if err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	return nil
}

// Validate checks the dispatcher settings.
func (d Dispatcher) Validate() error {
	err := validate.Struct(d)
	if err != nil {
		return fmt.Errorf("invalid dispatcher config: %w", err)
	}

	_, err = cron.ParseStandard(d.ReapSchedule)
	if err != nil {
		return fmt.Errorf("invalid dispatcher config: reap schedule: %w", err)
	}

	return nil
}
