package market

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"marketScope/internal/chain"
)

// retryable reports whether a failed ledger fetch is worth repeating.
// Missing accounts and shape violations stay wrong on retry; only
// transport-level failures are transient.
func retryable(err error) bool {
	var notFound chain.NotFoundError
	var badOwner chain.InvalidOwnerError
	var badSize chain.InvalidSizeError
	switch {
	case errors.As(err, &notFound), errors.As(err, &badOwner), errors.As(err, &badSize):
		return false
	}
	return true
}

// withRetry repeats fn with exponential backoff up to the configured
// attempt budget, logging each failed attempt. Hard errors return
// immediately.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context) error) error {
	maxRetries := e.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := e.cfg.RetryBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= maxRetries {
			return err
		}
		e.logger.Warn("ledger fetch failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
