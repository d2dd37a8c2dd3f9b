// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// RelayerID identifies the state of one relayer route: messages sent by the
// origin messenger and delivered to the destination messenger.
type RelayerID struct {
	SourceChainID      ids.ID
	DestinationChainID ids.ID
	OriginMessenger    common.Address
	ID                 common.Hash
}

func NewRelayerID(
	sourceChainID ids.ID,
	destinationChainID ids.ID,
	originMessenger common.Address,
) RelayerID {
	return RelayerID{
		SourceChainID:      sourceChainID,
		DestinationChainID: destinationChainID,
		OriginMessenger:    originMessenger,
		ID:                 CalculateRelayerID(sourceChainID, destinationChainID, originMessenger),
	}
}

// Standalone utility to calculate a relayer ID.
func CalculateRelayerID(
	sourceChainID ids.ID,
	destinationChainID ids.ID,
	originMessenger common.Address,
) common.Hash {
	return common.Hash(crypto.Keccak256Hash(
		[]byte(strings.Join(
			[]string{
				sourceChainID.String(),
				destinationChainID.String(),
				originMessenger.String(),
			},
			"-",
		)),
	))
}
