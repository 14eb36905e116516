package execution

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff returns the delay before retry number attempts: base * 2^(attempts-1),
// randomized by the policy jitter and never above the ceiling.
func (m *Machine) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.policy.Base
	b.Multiplier = 2
	b.RandomizationFactor = m.policy.Jitter
	b.MaxInterval = m.policy.Ceiling
	b.MaxElapsedTime = 0
	b.Reset()

	var delay time.Duration
	for range attempts {
		delay = b.NextBackOff()
	}

	return min(delay, m.policy.Ceiling)
}
