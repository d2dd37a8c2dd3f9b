// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

// Package relayer delivers messages sent on an origin messenger to a
// destination messenger and confirms their delivery.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/backend"
	"github.com/luxfi/messenger/bridge"
	"github.com/luxfi/messenger/database"
	"github.com/luxfi/messenger/relayer/checkpoint"
	"github.com/luxfi/messenger/tree"
	"github.com/luxfi/messenger/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	outcomeRelayed        = "relayed"
	outcomeAlreadyRelayed = "already_relayed"
	outcomeExpired        = "expired"
	outcomeFailed         = "failed"
)

// Source is the origin side of a relayer.
type Source interface {
	Address() common.Address
	Chain() backend.Chain
	RootAt(size uint64) (common.Hash, error)
	ProveInclusion(hash common.Hash, size uint64) (*tree.Proof, common.Hash, error)
}

// Destination is the messenger messages are delivered to.
type Destination interface {
	StatusReader
	Chain() backend.Chain
	RelayMessage(ctx context.Context, req *bridge.RelayRequest) (*bridge.RelayReceipt, error)
	AnchorRoot(caller common.Address, root common.Hash, size uint64) error
}

type Config struct {
	// RelayerAddress must hold the relayer role on the destination, and the
	// anchor role when AnchorRoots is set.
	RelayerAddress common.Address
	// FinalityDepth is the number of blocks a MessageSent log must be buried
	// under before it is relayed.
	FinalityDepth uint64
	PollInterval  time.Duration
	// DBWriteInterval is how often the processed nonce is flushed.
	DBWriteInterval time.Duration
	RelayBackoff    utils.BackoffConfig
	// AttachProofs sends an inclusion proof with every relay. AnchorRoots
	// additionally anchors the proving root on the destination first.
	AttachProofs        bool
	AnchorRoots         bool
	MaxConcurrentRelays int
}

func DefaultConfig() Config {
	return Config{
		FinalityDepth:   1,
		PollInterval:    time.Second,
		DBWriteInterval: 10 * time.Second,
		RelayBackoff: utils.BackoffConfig{
			BaseDelay:   time.Second,
			MaxDelay:    32 * time.Second,
			MaxAttempts: 5,
		},
		MaxConcurrentRelays: 16,
	}
}

// Relayer scans the origin event log and relays every final MessageSent.
// Delivery is at least once: a batch that fails is rescanned, and messages
// the destination already accepted come back as already relayed.
type Relayer struct {
	logger      *zap.Logger
	cfg         Config
	source      Source
	dest        Destination
	db          database.RelayerDatabase
	relayerID   database.RelayerID
	checkpoint  *checkpoint.CheckpointManager
	writeSignal chan struct{}
	verifier    *VerificationClient
	metrics     *RelayerMetrics

	sourceChainID string
	destChainID   string

	lock         sync.Mutex
	cursor       uint64
	anchoredSize uint64
}

// NewRelayer resumes from the nonce checkpointed for this source and
// destination pair. verifier may be nil, in which case relays are not
// confirmed by polling.
func NewRelayer(
	logger *zap.Logger,
	cfg Config,
	source Source,
	dest Destination,
	db database.RelayerDatabase,
	verifier *VerificationClient,
	metrics *RelayerMetrics,
) (*Relayer, error) {
	if cfg.RelayerAddress == (common.Address{}) {
		return nil, errors.New("relayer address must be set")
	}
	if cfg.MaxConcurrentRelays <= 0 {
		cfg.MaxConcurrentRelays = 1
	}
	sourceChainID := source.Chain().ChainID()
	destChainID := dest.Chain().ChainID()
	relayerID := database.NewRelayerID(sourceChainID, destChainID, source.Address())
	logger = logger.With(
		zap.String("relayerID", relayerID.ID.String()),
		zap.Stringer("sourceChainID", sourceChainID),
		zap.Stringer("destinationChainID", destChainID),
	)

	writeSignal := make(chan struct{}, 1)
	cm, err := checkpoint.NewCheckpointManager(logger, db, writeSignal, relayerID)
	if err != nil {
		return nil, err
	}
	anchoredSize, err := database.GetUint64(db, relayerID, database.AnchoredSizeKey)
	if err != nil && !database.IsKeyNotFoundError(err) {
		return nil, fmt.Errorf("failed to read anchored size: %w", err)
	}
	return &Relayer{
		logger:        logger,
		cfg:           cfg,
		source:        source,
		dest:          dest,
		db:            db,
		relayerID:     relayerID,
		checkpoint:    cm,
		writeSignal:   writeSignal,
		verifier:      verifier,
		metrics:       metrics,
		sourceChainID: sourceChainID.String(),
		destChainID:   destChainID.String(),
		anchoredSize:  anchoredSize,
	}, nil
}

// NextNonce returns the lowest origin nonce not yet confirmed processed.
func (r *Relayer) NextNonce() uint64 {
	return r.checkpoint.NextNonce()
}

// Run polls the origin chain until ctx is done.
func (r *Relayer) Run(ctx context.Context) error {
	r.checkpoint.Run()
	defer close(r.writeSignal)

	pollTicker := time.NewTicker(r.cfg.PollInterval)
	defer pollTicker.Stop()
	writeTicker := time.NewTicker(r.cfg.DBWriteInterval)
	defer writeTicker.Stop()

	r.logger.Info("Relayer started", zap.Uint64("nextNonce", r.checkpoint.NextNonce()))
	for {
		if _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Failed to process messages, retrying next poll", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("Relayer stopping")
			return r.Flush()
		case <-writeTicker.C:
			select {
			case r.writeSignal <- struct{}{}:
			default:
			}
		case <-pollTicker.C:
		}
	}
}

// Flush persists the processed nonce.
func (r *Relayer) Flush() error {
	return r.checkpoint.Flush()
}

// ProcessOnce relays every final MessageSent not yet handled and returns how
// many messages were handled. On error the scan cursor is left in place so
// the whole batch is retried.
func (r *Relayer) ProcessOnce(ctx context.Context) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	batch, next := r.finalMessages()
	if len(batch) == 0 {
		r.cursor = next
		return 0, nil
	}

	var size uint64
	if r.cfg.AttachProofs {
		// tree index equals nonce, so the highest nonce bounds the tree
		// every message of the batch is proven against
		size = batch[len(batch)-1].Nonce + 1
		if err := r.anchor(size); err != nil {
			return 0, err
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.MaxConcurrentRelays)
	for _, sent := range batch {
		eg.Go(func() error {
			req := &bridge.RelayRequest{
				Caller:  r.cfg.RelayerAddress,
				Message: sent.Message(),
			}
			if r.cfg.AttachProofs {
				p, root, err := r.source.ProveInclusion(sent.Hash, size)
				if err != nil {
					return fmt.Errorf("failed to prove %s: %w", sent.Hash, err)
				}
				req.Proof, req.Root = p, root
			}
			if err := r.relay(egCtx, sent, req); err != nil {
				return err
			}
			r.checkpoint.StageProcessedNonce(sent.Nonce)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	r.cursor = next
	return len(batch), nil
}

// finalMessages returns the unprocessed MessageSent events buried at least
// FinalityDepth blocks deep, in log order, and the cursor past them.
func (r *Relayer) finalMessages() ([]*messenger.MessageSent, uint64) {
	chain := r.source.Chain()
	head := chain.BlockNumber()
	nextNonce := r.checkpoint.NextNonce()

	next := r.cursor
	var batch []*messenger.MessageSent
	for _, log := range chain.Logs(r.cursor) {
		if log.BlockNumber+r.cfg.FinalityDepth > head {
			break
		}
		next = log.Index + 1
		sent, ok := log.Event.(*messenger.MessageSent)
		if !ok {
			continue
		}
		if sent.Nonce < nextNonce {
			r.logger.Debug(
				"Skipping message processed before restart",
				zap.Stringer("messageHash", sent.Hash),
				zap.Uint64("nonce", sent.Nonce),
			)
			continue
		}
		batch = append(batch, sent)
	}
	return batch, next
}

func (r *Relayer) anchor(size uint64) error {
	if !r.cfg.AnchorRoots || size <= r.anchoredSize {
		return nil
	}
	root, err := r.source.RootAt(size)
	if err != nil {
		return fmt.Errorf("failed to read root at size %d: %w", size, err)
	}
	if err := r.dest.AnchorRoot(r.cfg.RelayerAddress, root, size); err != nil {
		return fmt.Errorf("failed to anchor root %s: %w", root, err)
	}
	if err := database.PutUint64(r.db, r.relayerID, database.AnchoredSizeKey, size); err != nil {
		return fmt.Errorf("failed to store anchored size: %w", err)
	}
	r.anchoredSize = size
	return nil
}

// relay delivers one message. Terminal protocol outcomes are logged and
// counted; only a retryable failure that outlasts the backoff is returned.
func (r *Relayer) relay(ctx context.Context, sent *messenger.MessageSent, req *bridge.RelayRequest) error {
	logger := r.logger.With(
		zap.Stringer("messageHash", sent.Hash),
		zap.Uint64("nonce", sent.Nonce),
		zap.Stringer("messageType", sent.MessageType),
	)

	var (
		outcome string
		receipt *bridge.RelayReceipt
	)
	operation := func() error {
		var err error
		receipt, err = r.dest.RelayMessage(ctx, req)
		switch {
		case err == nil:
			outcome = outcomeRelayed
		case errors.Is(err, messenger.ErrAlreadyRelayed):
			outcome = outcomeAlreadyRelayed
		case errors.Is(err, messenger.ErrMessageExpired):
			outcome = outcomeExpired
		case messenger.IsRetryable(err):
			return err
		default:
			outcome = outcomeFailed
			return backoff.Permanent(err)
		}
		return nil
	}
	attempts, err := utils.WithBackoffLog(operation, utils.NewBackOff(ctx, r.cfg.RelayBackoff), logger, "Relay attempt failed")
	r.metrics.relayAttempts.WithLabelValues(r.destChainID, r.sourceChainID).Observe(float64(attempts))
	if err != nil && outcome != outcomeFailed {
		r.metrics.failedRelayMessageCount.WithLabelValues(r.destChainID, r.sourceChainID, "retries_exhausted").Inc()
		return fmt.Errorf("failed to relay %s: %w", sent.Hash, err)
	}

	switch outcome {
	case outcomeRelayed:
		r.metrics.successfulRelayMessageCount.WithLabelValues(r.destChainID, r.sourceChainID, sent.MessageType.String()).Inc()
		if receipt.Success {
			logger.Info("Relayed message", zap.Uint64("gasUsed", receipt.GasUsed), zap.Stringer("fee", receipt.Fee))
		} else {
			logger.Warn("Relayed message, target call failed", zap.NamedError("callError", receipt.CallErr))
		}
	case outcomeAlreadyRelayed:
		r.metrics.skippedRelayMessageCount.WithLabelValues(r.destChainID, r.sourceChainID, outcome).Inc()
		logger.Debug("Message already relayed")
	case outcomeExpired:
		r.metrics.skippedRelayMessageCount.WithLabelValues(r.destChainID, r.sourceChainID, outcome).Inc()
		logger.Warn("Message expired before relay", zap.Uint64("expiryTime", sent.ExpiryTime))
		return nil
	case outcomeFailed:
		r.metrics.failedRelayMessageCount.WithLabelValues(r.destChainID, r.sourceChainID, messenger.Reason(err)).Inc()
		logger.Error("Message rejected by destination", zap.Error(err))
		return nil
	}

	if r.verifier == nil {
		return nil
	}
	return r.verifier.WaitForRelay(ctx, sent.Hash)
}
