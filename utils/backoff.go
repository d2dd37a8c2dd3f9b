package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BackoffConfig bounds an exponential backoff: the n-th wait (from zero) is
// min(BaseDelay*2^n, MaxDelay), and at most MaxAttempts operations run.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts uint64
}

// NewBackOff returns a deterministic capped exponential backoff bound to ctx.
func NewBackOff(ctx context.Context, cfg BackoffConfig) backoff.BackOff {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.BaseDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(cfg.MaxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	var b backoff.BackOff = expBackOff
	if cfg.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, cfg.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// WithBackoffLog runs the operation until it succeeds, returns a permanent
// error, or the backoff stops. Each retry is logged at warn level and
// returns the number of attempts made.
func WithBackoffLog(
	operation backoff.Operation,
	b backoff.BackOff,
	logger *zap.Logger,
	msg string,
	fields ...zapcore.Field,
) (uint64, error) {
	attempt := uint64(1)
	notify := func(err error, duration time.Duration) {
		if logger != nil {
			fields := append(fields, zap.Uint64("attempt", attempt), zap.Error(err), zap.Duration("backoff", duration))
			logger.Warn(msg, fields...)
		}
		attempt++
	}
	err := backoff.RetryNotify(operation, b, notify)
	if err != nil && logger != nil {
		fields := append(fields, zap.Uint64("attempts", attempt), zap.Error(err))
		logger.Error(msg, fields...)
	}
	return attempt, err
}

// WithMaxRetries runs the operation until it succeeds or max retries has been
// reached, using the library's default exponential backoff.
func WithMaxRetries(operation backoff.Operation, max uint64, logger *zap.Logger) error {
	_, err := WithBackoffLog(
		operation,
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), max),
		logger,
		"operation failed, retrying",
	)
	return err
}
