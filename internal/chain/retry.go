package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultRetries is the extra attempts after the first call.
	DefaultRetries = 5
	// DefaultBaseDelay seeds the exponential backoff schedule
	// (base, 2*base, 4*base, ...).
	DefaultBaseDelay = 750 * time.Millisecond
)

// RetryConfig bounds one resilient call. Every read and write against the
// ledger gets its own independent attempt budget.
type RetryConfig struct {
	Retries   int
	BaseDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	return c
}

// WithRetry executes op, retrying with exponential backoff while it fails
// with a transient transport error. Permanent errors propagate on the
// first occurrence; retrying them wastes time and can duplicate side
// effects.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.BaseDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = cfg.BaseDelay * 64

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(cfg.Retries)+1))
}
