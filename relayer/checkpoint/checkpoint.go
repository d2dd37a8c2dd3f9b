// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"fmt"
	"sync"

	"github.com/luxfi/messenger/database"
	"github.com/luxfi/messenger/utils"
	"go.uber.org/zap"
)

//
// CheckpointManager commits processed origin nonces to the database in a thread safe manner.
//

type CheckpointManager struct {
	logger      *zap.Logger
	database    database.RelayerDatabase
	writeSignal chan struct{}
	relayerID   database.RelayerID
	// nextNonce is the lowest nonce not yet processed. Every nonce below it is done.
	nextNonce     uint64
	lock          *sync.RWMutex
	pendingNonces *utils.NonceQueue
	// Update the dirty flag when nextNonce is updated
	dirty bool
}

func NewCheckpointManager(
	logger *zap.Logger,
	db database.RelayerDatabase,
	writeSignal chan struct{},
	relayerID database.RelayerID,
) (*CheckpointManager, error) {
	logger.Info(
		"Creating checkpoint manager",
		zap.String("relayerID", relayerID.ID.String()),
	)

	storedNonce, err := database.GetNextNonce(db, relayerID)
	if err != nil && !database.IsKeyNotFoundError(err) {
		logger.Error(
			"Failed to get next nonce",
			zap.Error(err),
			zap.String("relayerID", relayerID.ID.String()),
		)
		return nil, fmt.Errorf("failed to get the next nonce: %w", err)
	}

	return &CheckpointManager{
		logger:        logger,
		database:      db,
		writeSignal:   writeSignal,
		relayerID:     relayerID,
		nextNonce:     storedNonce,
		lock:          &sync.RWMutex{},
		pendingNonces: &utils.NonceQueue{},
	}, nil
}

func (cm *CheckpointManager) Run() {
	go cm.listenForWriteSignal()
}

// NextNonce returns the lowest nonce that has not been committed.
func (cm *CheckpointManager) NextNonce() uint64 {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.nextNonce
}

// Flush writes the committed nonce if it changed since the last write.
func (cm *CheckpointManager) Flush() error {
	cm.lock.Lock()
	defer cm.lock.Unlock()
	if !cm.dirty {
		return nil
	}

	cm.logger.Debug(
		"Writing next nonce",
		zap.Uint64("nextNonce", cm.nextNonce),
		zap.String("relayerID", cm.relayerID.ID.String()),
	)
	if err := database.PutUint64(cm.database, cm.relayerID, database.NextNonceKey, cm.nextNonce); err != nil {
		cm.logger.Error(
			"Failed to write next nonce",
			zap.Error(err),
			zap.String("relayerID", cm.relayerID.ID.String()),
		)
		return err
	}

	// Reset the dirty flag after successfully write to db
	cm.dirty = false
	return nil
}

func (cm *CheckpointManager) listenForWriteSignal() {
	for range cm.writeSignal {
		// Flush logs its own failure; dirty stays set so the next signal retries.
		_ = cm.Flush()
	}
}

// StageProcessedNonce marks nonce as processed. Nonces are committed in
// sequence, so a nonce above nextNonce is held in memory until every nonce
// below it has also been staged.
func (cm *CheckpointManager) StageProcessedNonce(nonce uint64) {
	cm.lock.Lock()
	defer cm.lock.Unlock()
	if nonce < cm.nextNonce {
		cm.logger.Debug(
			"Attempting to commit nonce below the committed nonce. Skipping.",
			zap.Uint64("nonce", nonce),
			zap.Uint64("nextNonce", cm.nextNonce),
			zap.String("relayerID", cm.relayerID.ID.String()),
		)
		return
	}

	cm.pendingNonces.Push(nonce)
	if next := cm.pendingNonces.Advance(cm.nextNonce); next != cm.nextNonce {
		cm.nextNonce = next
		cm.dirty = true
	}
	cm.logger.Debug(
		"Staged nonce",
		zap.Uint64("nonce", nonce),
		zap.Uint64("nextNonce", cm.nextNonce),
		zap.Int("pending", cm.pendingNonces.Len()),
		zap.String("relayerID", cm.relayerID.ID.String()),
	)
}
