package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, DefaultRetry().Validate())
	assert.NoError(t, DefaultDispatcher().Validate())
}

func TestRetry_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Retry)
	}{
		{"zero base", func(r *Retry) { r.Base = 0 }},
		{"ceiling below base", func(r *Retry) { r.Ceiling = r.Base - time.Second }},
		{"no attempts", func(r *Retry) { r.MaxAttempts = 0 }},
		{"jitter above one", func(r *Retry) { r.Jitter = 1.5 }},
		{"negative jitter", func(r *Retry) { r.Jitter = -0.1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			retry := DefaultRetry()
			tc.mutate(&retry)

			assert.Error(t, retry.Validate())
		})
	}
}

func TestDispatcher_Validate(t *testing.T) {
	d := DefaultDispatcher()
	d.Workers = 0
	assert.Error(t, d.Validate())

	d = DefaultDispatcher()
	d.LeaseTimeout = d.ExecutionTimeout
	assert.Error(t, d.Validate())

	d = DefaultDispatcher()
	d.ReapSchedule = ""
	assert.Error(t, d.Validate())
}

func TestDispatcher_ValidateReapSchedule(t *testing.T) {
	d := DefaultDispatcher()
	d.ReapSchedule = "*/5 * * * *"
	assert.NoError(t, d.Validate())

	d.ReapSchedule = "every minute"
	assert.Error(t, d.Validate())
}
