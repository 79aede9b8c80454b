// internal/services/retry.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/ledger"
)

// RetryPolicy bounds how often an operation re-reads and recomputes after losing a
// compare-and-swap on the ledger version.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func RetryPolicyFromConfig(cfg config.LedgerConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}
}

// withLedgerRetry runs op until it succeeds, fails with anything other than
// ledger.ErrConcurrentModification, or the policy's attempts run out. Exhaustion is
// reported as a *ledger.ConflictError.
func withLedgerRetry[T any](ctx context.Context, policy RetryPolicy, operation string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	tries := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		v, err := op()
		if err == nil || errors.Is(err, ledger.ErrConcurrentModification) {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			ledgerRetries.WithLabelValues(operation).Inc()
			logrus.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   tries,
				"backoff":   next,
			}).Debug("Ledger changed underneath operation, retrying")
		}),
	)
	if err == nil {
		return result, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if errors.Is(err, ledger.ErrConcurrentModification) {
		ledgerConflicts.WithLabelValues(operation).Inc()
		var zero T
		return zero, &ledger.ConflictError{
			Reason: fmt.Sprintf("%s: ledger kept changing after %d attempts", operation, tries),
			Err:    err,
		}
	}
	return result, err
}
