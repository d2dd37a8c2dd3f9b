// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
)

// KiB is 1024 bytes
const KiB = 1024

var errOverflow = errors.New("addition would overflow")

// AddUint64 adds two uint64 values and returns an error if overflow
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, errOverflow
	}
	return a + b, nil
}

// messageEnvelope is the canonical RLP layout of a Message. Field order is
// part of the message hash and must not change.
type messageEnvelope struct {
	Sender               common.Address
	Target               common.Address
	MessageType          uint8
	Nonce                uint64
	Payload              []byte
	FeeRefundAddress     common.Address
	GasLimit             uint64
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	FeeCredit            *uint256.Int
	CreatedAt            uint64
	ExpiryTime           uint64
}

func encodeMessage(m *Message) []byte {
	fc := m.FeeCredit.Copy()
	payload := m.Payload
	if payload == nil {
		payload = []byte{}
	}
	// every field is a fixed RLP kind, encoding cannot fail
	b, _ := rlp.EncodeToBytes(&messageEnvelope{
		Sender:               m.Sender,
		Target:               m.Target,
		MessageType:          uint8(m.MessageType),
		Nonce:                m.Nonce,
		Payload:              payload,
		FeeRefundAddress:     m.FeeRefundAddress,
		GasLimit:             fc.DestinationGasLimit,
		MaxFeePerGas:         fc.MaxFeePerGas,
		MaxPriorityFeePerGas: fc.MaxPriorityFeePerGas,
		FeeCredit:            fc.FeeCredit,
		CreatedAt:            m.CreatedAt,
		ExpiryTime:           m.ExpiryTime,
	})
	return b
}

func decodeMessage(b []byte) (*Message, error) {
	var env messageEnvelope
	if err := rlp.DecodeBytes(b, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &Message{
		Sender:           env.Sender,
		Target:           env.Target,
		MessageType:      MessageType(env.MessageType),
		Nonce:            env.Nonce,
		Payload:          env.Payload,
		FeeRefundAddress: env.FeeRefundAddress,
		FeeCredit: FeeCreditData{
			DestinationGasLimit:  env.GasLimit,
			MaxFeePerGas:         env.MaxFeePerGas,
			MaxPriorityFeePerGas: env.MaxPriorityFeePerGas,
			FeeCredit:            env.FeeCredit,
		},
		CreatedAt:  env.CreatedAt,
		ExpiryTime: env.ExpiryTime,
	}, nil
}

func hashMessage(m *Message) common.Hash {
	return common.Hash(crypto.Keccak256Hash(encodeMessage(m)))
}
