// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/cache"
	"github.com/luxfi/messenger/utils"
	"go.uber.org/zap"
)

const (
	DefaultVerifyBaseDelay   = time.Second
	DefaultVerifyMaxDelay    = 32 * time.Second
	DefaultVerifyMaxAttempts = 10
	DefaultVerifyCacheSize   = 4096
)

var (
	errNotRelayed   = errors.New("message not yet relayed")
	errZeroAttempts = errors.New("max attempts must be positive")
)

// StatusReader answers whether a message has been relayed on a destination
// chain. Both a local messenger and the HTTP client satisfy it.
type StatusReader interface {
	IsDepositMessageRelayed(ctx context.Context, hash common.Hash) (bool, error)
}

// VerifierConfig bounds the polling schedule.
type VerifierConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts uint64
	CacheSize   int
}

func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		BaseDelay:   DefaultVerifyBaseDelay,
		MaxDelay:    DefaultVerifyMaxDelay,
		MaxAttempts: DefaultVerifyMaxAttempts,
		CacheSize:   DefaultVerifyCacheSize,
	}
}

// VerificationClient polls a StatusReader until a message is relayed. A read
// of false and a failed read are treated alike: both are retried with a
// capped exponential backoff.
type VerificationClient struct {
	logger  *zap.Logger
	reader  StatusReader
	cfg     VerifierConfig
	metrics *RelayerMetrics
	// relayed holds hashes already confirmed. Relayed is terminal so entries
	// never go stale.
	relayed *cache.LRUCache[common.Hash, bool]

	lock  sync.Mutex
	waits map[common.Hash]*relayWait
}

// relayWait is a poll loop shared by every caller waiting on one hash. It is
// canceled when the last waiter leaves.
type relayWait struct {
	done    chan struct{}
	err     error
	waiters int
	cancel  context.CancelFunc
}

func NewVerificationClient(
	logger *zap.Logger,
	reader StatusReader,
	cfg VerifierConfig,
	metrics *RelayerMetrics,
) (*VerificationClient, error) {
	if cfg.MaxAttempts == 0 {
		return nil, errZeroAttempts
	}
	if cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("invalid backoff delays: base %s, max %s", cfg.BaseDelay, cfg.MaxDelay)
	}
	relayed, err := cache.NewLRUCache[common.Hash, bool](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification cache: %w", err)
	}
	return &VerificationClient{
		logger:  logger,
		reader:  reader,
		cfg:     cfg,
		metrics: metrics,
		relayed: relayed,
		waits:   make(map[common.Hash]*relayWait),
	}, nil
}

// WaitForRelay returns nil once hash is relayed. It returns
// ErrVerificationTimeout when the attempt budget is spent, or the context's
// error if ctx ends first. Concurrent waits on one hash share a poll loop;
// each waiter is bound only by its own ctx.
func (c *VerificationClient) WaitForRelay(ctx context.Context, hash common.Hash) error {
	if c.relayed.Contains(hash) {
		return nil
	}
	w := c.join(ctx, hash)
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		c.leave(w)
		return ctx.Err()
	}
}

func (c *VerificationClient) join(ctx context.Context, hash common.Hash) *relayWait {
	c.lock.Lock()
	defer c.lock.Unlock()

	prev, ok := c.waits[hash]
	if ok && prev.waiters > 0 {
		prev.waiters++
		return prev
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &relayWait{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	c.waits[hash] = w
	go func() {
		defer cancel()
		// a canceled loop for this hash may still be unwinding
		if prev != nil {
			<-prev.done
		}
		_, err := c.relayed.Get(hash, func(hash common.Hash) (bool, error) {
			return true, c.poll(pollCtx, hash)
		}, false)

		c.lock.Lock()
		if c.waits[hash] == w {
			delete(c.waits, hash)
		}
		c.lock.Unlock()
		w.err = err
		close(w.done)
	}()
	return w
}

func (c *VerificationClient) leave(w *relayWait) {
	c.lock.Lock()
	defer c.lock.Unlock()

	w.waiters--
	if w.waiters == 0 {
		w.cancel()
	}
}

func (c *VerificationClient) poll(ctx context.Context, hash common.Hash) error {
	logger := c.logger.With(zap.Stringer("messageHash", hash))
	operation := func() error {
		relayed, err := c.reader.IsDepositMessageRelayed(ctx, hash)
		if err != nil {
			return err
		}
		if !relayed {
			return errNotRelayed
		}
		return nil
	}
	b := utils.NewBackOff(ctx, utils.BackoffConfig{
		BaseDelay:   c.cfg.BaseDelay,
		MaxDelay:    c.cfg.MaxDelay,
		MaxAttempts: c.cfg.MaxAttempts,
	})
	attempts, err := utils.WithBackoffLog(operation, b, logger, "Message not yet confirmed relayed")
	outcome := "relayed"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = "canceled"
		err = ctx.Err()
	default:
		outcome = "timeout"
		err = fmt.Errorf("%w: %s not relayed after %d attempts: %v", messenger.ErrVerificationTimeout, hash, attempts, err)
	}
	if c.metrics != nil {
		c.metrics.verificationCount.WithLabelValues(outcome).Inc()
		c.metrics.verificationAttempts.WithLabelValues(outcome).Observe(float64(attempts))
	}
	if err == nil {
		logger.Info("Message confirmed relayed", zap.Uint64("attempts", attempts))
	}
	return err
}
