// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"strconv"

	"github.com/pkg/errors"
)

// IsKeyNotFoundError reports whether err means the requested key is absent.
func IsKeyNotFoundError(err error) bool {
	return errors.Is(err, ErrRelayerIDNotFound) || errors.Is(err, ErrKeyNotFound)
}

// GetUint64 reads a decimal uint64 stored under key.
func GetUint64(db RelayerDatabase, relayerID RelayerID, key DataKey) (uint64, error) {
	data, err := db.Get(relayerID.ID, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed %s", key)
	}
	return v, nil
}

// PutUint64 stores v in decimal under key.
func PutUint64(db RelayerDatabase, relayerID RelayerID, key DataKey, v uint64) error {
	return db.Put(relayerID.ID, key, []byte(strconv.FormatUint(v, 10)))
}

// GetNextNonce returns the lowest origin nonce not yet confirmed processed.
func GetNextNonce(db RelayerDatabase, relayerID RelayerID) (uint64, error) {
	return GetUint64(db, relayerID, NextNonceKey)
}
