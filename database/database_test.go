// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"path/filepath"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCalculateRelayerID(t *testing.T) {
	require := require.New(t)

	src, dst := ids.ID{1}, ids.ID{2}
	messengerAddr := common.HexToAddress("0x3e55")

	id := NewRelayerID(src, dst, messengerAddr)
	require.Equal(CalculateRelayerID(src, dst, messengerAddr), id.ID)
	require.NotEqual(id.ID, CalculateRelayerID(dst, src, messengerAddr))
	require.NotEqual(id.ID, CalculateRelayerID(src, dst, common.HexToAddress("0x3e56")))
}

func TestNewDatabase(t *testing.T) {
	require := require.New(t)

	relayerIDs := []RelayerID{NewRelayerID(ids.ID{1}, ids.ID{2}, common.Address{})}
	db, err := NewDatabase(zap.NewNop(), filepath.Join(t.TempDir(), "db"), "", relayerIDs)
	require.NoError(err)
	require.IsType(&JSONFileStorage{}, db)

	db, err = NewDatabase(zap.NewNop(), "", "redis://localhost:6379/0", relayerIDs)
	require.NoError(err)
	require.IsType(&RedisDatabase{}, db)
	require.NoError(db.(*RedisDatabase).Close())

	_, err = NewDatabase(zap.NewNop(), "", "mysql://nope", relayerIDs)
	require.Error(err)
}

func TestConstructCompositeKey(t *testing.T) {
	relayerID := common.HexToHash("0xabc")
	require.Equal(t, "messenger:"+relayerID.Hex()+":nextNonce", constructCompositeKey(relayerID, NextNonceKey))
	require.Equal(t, "messenger:"+relayerID.Hex()+":anchoredSize", constructCompositeKey(relayerID, AnchoredSizeKey))
	require.Equal(t, "unknownKey", DataKey(99).String())
}
