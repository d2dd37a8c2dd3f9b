// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/messenger"
)

// Ledger is the writable state of a chain: its event log and its
// native-currency balances.
type Ledger interface {
	Emit(event messenger.Event)
	Balance(addr common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	Mint(to common.Address, amount *uint256.Int)
}

// Chain is the execution environment a messenger runs against: a block
// clock, an event log, a native-currency ledger and the set of deployed
// contracts that can receive relayed messages.
//
// Writes made directly on a Chain each run as their own transaction and wait
// for any open Tx to finish.
type Chain interface {
	Ledger

	ChainID() ids.ID

	// Now returns the timestamp of the current block in unix seconds.
	Now() uint64
	BlockNumber() uint64
	BaseFee() *uint256.Int

	Logs(fromIndex uint64) []Log

	Receiver(addr common.Address) (Receiver, bool)

	// Begin opens a write transaction. Every other writer blocks until it is
	// committed.
	Begin() Tx
}

// Tx is an open write transaction. Snapshot and RevertToSnapshot make a
// group of its changes atomic. Commit keeps what was not reverted and ends
// the transaction.
type Tx interface {
	Ledger
	Snapshot() int
	RevertToSnapshot(id int)
	Commit()
}

// Receiver is a contract able to accept relayed messages. GasUsed above the
// call's gas limit is treated as running out of gas.
type Receiver interface {
	ReceiveMessage(ctx context.Context, call *Call) (gasUsed uint64, err error)
}

// Call is a relayed invocation of a Receiver.
type Call struct {
	Hash        common.Hash
	Sender      common.Address
	MessageType messenger.MessageType
	Nonce       uint64
	Payload     []byte
	GasLimit    uint64

	// Ledger is the transaction the call executes in. Receivers write
	// through it; writing to the Chain directly would wait on this call.
	Ledger Ledger
}

// Log is an event together with its position on the chain.
type Log struct {
	Index       uint64
	BlockNumber uint64
	Event       messenger.Event
}
