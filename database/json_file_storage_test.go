// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func generateTestID(t *testing.T) ids.ID {
	var id ids.ID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

func createRelayerIDs(t *testing.T, n int) []RelayerID {
	relayerIDs := make([]RelayerID, 0, n)
	for i := 0; i < n; i++ {
		relayerIDs = append(relayerIDs, NewRelayerID(generateTestID(t), generateTestID(t), common.HexToAddress("0x3e55")))
	}
	return relayerIDs
}

func setupJSONStorage(t *testing.T, relayerIDs []RelayerID) *JSONFileStorage {
	storage, err := NewJSONFileStorage(zap.NewNop(), filepath.Join(t.TempDir(), "db"), relayerIDs)
	require.NoError(t, err)
	return storage
}

// Test that the JSON database can write and read to a single relayer concurrently.
func TestConcurrentWriteReadSingleRelayer(t *testing.T) {
	require := require.New(t)

	relayerIDs := createRelayerIDs(t, 1)
	jsonStorage := setupJSONStorage(t, relayerIDs)

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		idx := uint64(i)
		go func() {
			defer wg.Done()
			require.NoError(PutUint64(jsonStorage, relayerIDs[0], NextNonceKey, idx))
		}()
	}
	wg.Wait()

	finalTargetValue := uint64(11)
	require.NoError(PutUint64(jsonStorage, relayerIDs[0], NextNonceKey, finalTargetValue))

	nextNonce, err := GetNextNonce(jsonStorage, relayerIDs[0])
	require.NoError(err)
	require.Equal(finalTargetValue, nextNonce)
}

// Test that the JSON database can write and read from multiple relayers concurrently.
func TestConcurrentWriteReadMultipleRelayers(t *testing.T) {
	require := require.New(t)

	relayerIDs := createRelayerIDs(t, 3)
	jsonStorage := setupJSONStorage(t, relayerIDs)

	wg := sync.WaitGroup{}
	for i, relayerID := range relayerIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(PutUint64(jsonStorage, relayerID, NextNonceKey, uint64(i)))
		}()
	}
	wg.Wait()

	for i, relayerID := range relayerIDs {
		nextNonce, err := GetNextNonce(jsonStorage, relayerID)
		require.NoError(err)
		require.Equal(uint64(i), nextNonce)
	}
}

func TestJSONStorageReload(t *testing.T) {
	require := require.New(t)

	dir := filepath.Join(t.TempDir(), "db")
	relayerIDs := createRelayerIDs(t, 2)
	first, err := NewJSONFileStorage(zap.NewNop(), dir, relayerIDs)
	require.NoError(err)
	require.NoError(PutUint64(first, relayerIDs[0], NextNonceKey, 42))
	require.NoError(PutUint64(first, relayerIDs[0], AnchoredSizeKey, 7))

	second, err := NewJSONFileStorage(zap.NewNop(), dir, relayerIDs)
	require.NoError(err)
	nextNonce, err := GetNextNonce(second, relayerIDs[0])
	require.NoError(err)
	require.Equal(uint64(42), nextNonce)
	cursor, err := GetUint64(second, relayerIDs[0], AnchoredSizeKey)
	require.NoError(err)
	require.Equal(uint64(7), cursor)

	// writing one key keeps the others
	require.NoError(PutUint64(second, relayerIDs[0], NextNonceKey, 43))
	cursor, err = GetUint64(second, relayerIDs[0], AnchoredSizeKey)
	require.NoError(err)
	require.Equal(uint64(7), cursor)

	_, err = GetNextNonce(second, relayerIDs[1])
	require.ErrorIs(err, ErrRelayerIDNotFound)
	require.True(IsKeyNotFoundError(err))
}

func TestJSONStorageErrors(t *testing.T) {
	require := require.New(t)

	relayerIDs := createRelayerIDs(t, 1)
	jsonStorage := setupJSONStorage(t, relayerIDs)

	unknown := common.HexToHash("0x01")
	_, err := jsonStorage.Get(unknown, NextNonceKey)
	require.ErrorIs(err, ErrDatabaseMisconfiguration)
	require.ErrorIs(jsonStorage.Put(unknown, NextNonceKey, []byte("1")), ErrDatabaseMisconfiguration)

	require.NoError(PutUint64(jsonStorage, relayerIDs[0], AnchoredSizeKey, 1))
	_, err = GetNextNonce(jsonStorage, relayerIDs[0])
	require.ErrorIs(err, ErrKeyNotFound)
	require.True(IsKeyNotFoundError(err))

	require.NoError(jsonStorage.Put(relayerIDs[0].ID, NextNonceKey, []byte("not-a-number")))
	_, err = GetNextNonce(jsonStorage, relayerIDs[0])
	require.Error(err)
	require.False(IsKeyNotFoundError(err))

	// corrupt file is reported on reload
	path := filepath.Join(jsonStorage.dir, relayerIDs[0].ID.String()+".json")
	require.NoError(os.WriteFile(path, []byte("{"), 0o644))
	_, err = NewJSONFileStorage(zap.NewNop(), jsonStorage.dir, relayerIDs)
	require.Error(err)
}

func TestJSONStorageRejectsForeignRoute(t *testing.T) {
	require := require.New(t)

	dir := filepath.Join(t.TempDir(), "db")
	relayerIDs := createRelayerIDs(t, 2)
	storage, err := NewJSONFileStorage(zap.NewNop(), dir, relayerIDs[:1])
	require.NoError(err)
	require.NoError(PutUint64(storage, relayerIDs[0], NextNonceKey, 5))

	// a state file copied under another route's name
	b, err := os.ReadFile(storage.path(relayerIDs[0].ID))
	require.NoError(err)
	require.NoError(os.WriteFile(storage.path(relayerIDs[1].ID), b, 0o644))

	_, err = NewJSONFileStorage(zap.NewNop(), dir, relayerIDs)
	require.ErrorIs(err, ErrDatabaseMisconfiguration)
}
