// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

// Package example holds an ETH deposit adapter: the origin half locks ETH and
// sends a Deposit through the messenger, the destination half credits the
// recipient when the message is relayed.
package example

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/backend"
	"github.com/luxfi/messenger/bridge"
	"go.uber.org/zap"
)

const (
	// DepositGasLimit is the destination gas requested for a deposit.
	DepositGasLimit = uint64(200_000)
	depositGasUsed  = uint64(45_000)
)

var (
	errUnexpectedMessageType = errors.New("unexpected message type")
	errUnknownCounterpart    = errors.New("message not sent by counterpart adapter")
	errZeroAmount            = errors.New("deposit amount must be positive")
)

// DepositPayload is the RLP payload of a Deposit message.
type DepositPayload struct {
	Recipient common.Address
	Amount    *uint256.Int
}

func (p *DepositPayload) Bytes() []byte {
	b, err := rlp.EncodeToBytes(p)
	if err != nil {
		panic(fmt.Sprintf("encoding deposit payload: %v", err))
	}
	return b
}

func ParseDepositPayload(b []byte) (*DepositPayload, error) {
	var p DepositPayload
	if err := rlp.DecodeBytes(b, &p); err != nil {
		return nil, fmt.Errorf("malformed deposit payload: %w", err)
	}
	if p.Amount == nil {
		p.Amount = new(uint256.Int)
	}
	return &p, nil
}

// ETHDepositAdapter is deployed at the same address on both chains.
type ETHDepositAdapter struct {
	logger    *zap.Logger
	address   common.Address
	messenger *bridge.Messenger
	chain     backend.Chain

	credited atomic.Uint64
}

func NewETHDepositAdapter(logger *zap.Logger, address common.Address, m *bridge.Messenger) *ETHDepositAdapter {
	return &ETHDepositAdapter{
		logger:    logger.With(zap.Stringer("adapter", address)),
		address:   address,
		messenger: m,
		chain:     m.Chain(),
	}
}

func (a *ETHDepositAdapter) Address() common.Address {
	return a.address
}

// Quote returns what a depositor must pay on top of amount.
func (a *ETHDepositAdapter) Quote() (*uint256.Int, error) {
	fee, err := a.messenger.ComputeFeeCredit(DepositGasLimit, nil, nil)
	if err != nil {
		return nil, err
	}
	return fee.FeeCredit, nil
}

// Deposit moves amount plus the fee credit from depositor into the adapter
// and sends a Deposit crediting recipient on the counterpart chain. The
// depositor is refunded if the send is rejected.
func (a *ETHDepositAdapter) Deposit(
	ctx context.Context,
	depositor common.Address,
	recipient common.Address,
	amount *uint256.Int,
) (common.Hash, uint64, error) {
	if amount == nil || amount.IsZero() {
		return common.Hash{}, 0, errZeroAmount
	}
	fee, err := a.Quote()
	if err != nil {
		return common.Hash{}, 0, err
	}
	total := new(uint256.Int).Add(amount, fee)
	if err := a.chain.Transfer(depositor, a.address, total); err != nil {
		return common.Hash{}, 0, fmt.Errorf("%w: %w", messenger.ErrInsufficientAttachedValue, err)
	}

	payload := &DepositPayload{Recipient: recipient, Amount: amount}
	hash, nonce, err := a.messenger.SendMessage(ctx, &bridge.SendRequest{
		Origin:           a.address,
		Target:           a.address,
		MessageType:      messenger.Deposit,
		Payload:          payload.Bytes(),
		FeeRefundAddress: depositor,
		GasLimit:         DepositGasLimit,
		Value:            amount,
		AttachedValue:    total,
	})
	if err != nil {
		if refundErr := a.chain.Transfer(a.address, depositor, total); refundErr != nil {
			a.logger.Error("Failed to refund depositor", zap.Stringer("depositor", depositor), zap.Error(refundErr))
		}
		return common.Hash{}, 0, err
	}
	a.logger.Info(
		"Deposit sent",
		zap.Stringer("messageHash", hash),
		zap.Uint64("nonce", nonce),
		zap.Stringer("recipient", recipient),
		zap.Stringer("amount", amount),
	)
	return hash, nonce, nil
}

// ReceiveMessage credits the recipient of a relayed deposit.
func (a *ETHDepositAdapter) ReceiveMessage(_ context.Context, call *backend.Call) (uint64, error) {
	if call.MessageType != messenger.Deposit {
		return depositGasUsed, fmt.Errorf("%w: %s", errUnexpectedMessageType, call.MessageType)
	}
	if call.Sender != a.address {
		return depositGasUsed, fmt.Errorf("%w: %s", errUnknownCounterpart, call.Sender)
	}
	payload, err := ParseDepositPayload(call.Payload)
	if err != nil {
		return depositGasUsed, err
	}
	call.Ledger.Mint(payload.Recipient, payload.Amount)
	a.credited.Add(1)
	a.logger.Info(
		"Deposit credited",
		zap.Stringer("messageHash", call.Hash),
		zap.Stringer("recipient", payload.Recipient),
		zap.Stringer("amount", payload.Amount),
	)
	return depositGasUsed, nil
}

// Credited returns how many deposits this adapter has credited.
func (a *ETHDepositAdapter) Credited() uint64 {
	return a.credited.Load()
}
