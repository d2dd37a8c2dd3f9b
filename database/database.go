// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package database persists relayer progress so a restarted relayer resumes
// from the last confirmed origin nonce.
package database

import (
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrKeyNotFound              = errors.New("key not found")
	ErrRelayerIDNotFound        = errors.New("no database entry for relayer id")
	ErrDatabaseMisconfiguration = errors.New("database misconfiguration")
)

// DataKey names a value stored per relayer.
type DataKey int

const (
	NextNonceKey DataKey = iota
	AnchoredSizeKey
)

func (k DataKey) String() string {
	switch k {
	case NextNonceKey:
		return "nextNonce"
	case AnchoredSizeKey:
		return "anchoredSize"
	}
	return "unknownKey"
}

// RelayerDatabase is a key-value store for relayer state, with each relayerID
// maintaining its own state. Implementations are thread-safe.
type RelayerDatabase interface {
	Get(relayerID common.Hash, key DataKey) ([]byte, error)
	Put(relayerID common.Hash, key DataKey, value []byte) error
}

// NewDatabase returns a Redis database if redisURL is set and a JSON file
// database rooted at storageLocation otherwise.
func NewDatabase(logger *zap.Logger, storageLocation, redisURL string, relayerIDs []RelayerID) (RelayerDatabase, error) {
	if redisURL != "" {
		db, err := NewRedisDatabase(logger, redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis database: %w", err)
		}
		logger.Info("Using Redis database")
		return db, nil
	}
	db, err := NewJSONFileStorage(logger, storageLocation, relayerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON database: %w", err)
	}
	logger.Info("Using JSON database", zap.String("storageLocation", storageLocation))
	return db, nil
}
