// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

const MaxPayloadSize = 128 * KiB

var ErrInvalidMessage = errors.New("invalid message")

// MessageType discriminates how the destination decodes a payload.
type MessageType uint8

const (
	Deposit MessageType = iota
	Withdrawal
	ERC20Deposit
	ERC20Withdrawal

	numMessageTypes
)

func (t MessageType) String() string {
	switch t {
	case Deposit:
		return "Deposit"
	case Withdrawal:
		return "Withdrawal"
	case ERC20Deposit:
		return "ERC20Deposit"
	case ERC20Withdrawal:
		return "ERC20Withdrawal"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t < numMessageTypes
}

// ParseMessageType is the inverse of MessageType.String.
func ParseMessageType(s string) (MessageType, error) {
	for t := Deposit; t < numMessageTypes; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMessageType, s)
}

// FeeCreditData is the destination execution budget escrowed at send time.
type FeeCreditData struct {
	DestinationGasLimit  uint64
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	FeeCredit            *uint256.Int
}

// Copy returns a deep copy of f with nil amounts replaced by zero.
func (f FeeCreditData) Copy() FeeCreditData {
	return FeeCreditData{
		DestinationGasLimit:  f.DestinationGasLimit,
		MaxFeePerGas:         orZero(f.MaxFeePerGas),
		MaxPriorityFeePerGas: orZero(f.MaxPriorityFeePerGas),
		FeeCredit:            orZero(f.FeeCredit),
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// Message is a single cross-chain intent. Its identity is Hash, computed over
// every field.
type Message struct {
	Sender           common.Address
	Target           common.Address
	MessageType      MessageType
	Nonce            uint64
	Payload          []byte
	FeeRefundAddress common.Address
	FeeCredit        FeeCreditData
	CreatedAt        uint64
	ExpiryTime       uint64
}

// Verify checks the message is well formed. It does not check authorization,
// replay or expiry.
func (m *Message) Verify() error {
	if !m.MessageType.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMessageType, m.MessageType)
	}
	if m.Target == (common.Address{}) {
		return fmt.Errorf("%w: zero target", ErrInvalidTarget)
	}
	if m.ExpiryTime < m.CreatedAt {
		return fmt.Errorf("%w: expiry %d before creation %d", ErrMessageExpired, m.ExpiryTime, m.CreatedAt)
	}
	if len(m.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d", ErrInvalidMessage, len(m.Payload), MaxPayloadSize)
	}
	return nil
}

// Bytes returns the canonical RLP encoding of the message.
func (m *Message) Bytes() []byte {
	return encodeMessage(m)
}

// Hash returns keccak256 of the canonical encoding.
func (m *Message) Hash() common.Hash {
	return hashMessage(m)
}

// ParseMessage decodes the canonical encoding produced by Bytes.
func ParseMessage(b []byte) (*Message, error) {
	msg, err := decodeMessage(b)
	if err != nil {
		return nil, err
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// MessageState is the lifecycle state of a message as seen by one chain.
type MessageState uint8

const (
	Unsent MessageState = iota
	Sent
	Relayed
	ExpiredUnrelayed
)

func (s MessageState) String() string {
	switch s {
	case Unsent:
		return "Unsent"
	case Sent:
		return "Sent"
	case Relayed:
		return "Relayed"
	case ExpiredUnrelayed:
		return "ExpiredUnrelayed"
	default:
		return fmt.Sprintf("MessageState(%d)", uint8(s))
	}
}
