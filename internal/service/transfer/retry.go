package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
)

// withOptimisticRetry reruns op while it fails with a wallet version
// conflict, waiting base, 2*base, 4*base between attempts. Any other error
// ends the loop immediately.
func withOptimisticRetry[T any](ctx context.Context, maxRetries int, base time.Duration, op func() (T, error)) (T, error) {
	log := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << 10
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(maxRetries, 0))), ctx)

	var result T
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		v, err := op()
		if err == nil {
			result = v
			return nil
		}
		if errors.Is(err, domain.ErrOptimisticLock) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		metrics.OptimisticRetriesTotal.Inc()
		log.Warn("wallet version conflict, retrying",
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	return result, err
}
