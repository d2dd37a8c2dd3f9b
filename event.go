// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"github.com/luxfi/geth/common"
)

// Event is a log entry emitted by a messenger.
type Event interface {
	EventName() string
}

// MessageSent is emitted on the origin chain for every accepted send. It
// carries every field needed to rebuild the message on the destination.
type MessageSent struct {
	Hash             common.Hash
	Nonce            uint64
	Sender           common.Address
	Target           common.Address
	MessageType      MessageType
	FeeCreditData    FeeCreditData
	CreatedAt        uint64
	ExpiryTime       uint64
	Payload          []byte
	FeeRefundAddress common.Address
}

func (*MessageSent) EventName() string { return "MessageSent" }

// Message rebuilds the message announced by e.
func (e *MessageSent) Message() *Message {
	return &Message{
		Sender:           e.Sender,
		Target:           e.Target,
		MessageType:      e.MessageType,
		Nonce:            e.Nonce,
		Payload:          e.Payload,
		FeeRefundAddress: e.FeeRefundAddress,
		FeeCredit:        e.FeeCreditData.Copy(),
		CreatedAt:        e.CreatedAt,
		ExpiryTime:       e.ExpiryTime,
	}
}

// NewMessageSent builds the event for msg.
func NewMessageSent(hash common.Hash, msg *Message) *MessageSent {
	return &MessageSent{
		Hash:             hash,
		Nonce:            msg.Nonce,
		Sender:           msg.Sender,
		Target:           msg.Target,
		MessageType:      msg.MessageType,
		FeeCreditData:    msg.FeeCredit.Copy(),
		CreatedAt:        msg.CreatedAt,
		ExpiryTime:       msg.ExpiryTime,
		Payload:          append([]byte(nil), msg.Payload...),
		FeeRefundAddress: msg.FeeRefundAddress,
	}
}

// MessageRelayed is emitted on the destination chain once a message is
// marked relayed. Success reports the outcome of the target call only.
type MessageRelayed struct {
	Hash    common.Hash
	Success bool
}

func (*MessageRelayed) EventName() string { return "MessageRelayed" }

// RootAnchored is emitted when a counterpart tree root is anchored.
type RootAnchored struct {
	Root common.Hash
	Size uint64
}

func (*RootAnchored) EventName() string { return "RootAnchored" }
