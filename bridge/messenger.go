// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge implements the messenger each asset adapter sends through
// and the relayer delivers to. A Messenger owns the message tree and registry
// of its chain.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/backend"
	"github.com/luxfi/messenger/feecredit"
	"github.com/luxfi/messenger/registry"
	"github.com/luxfi/messenger/tree"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var errMissingAddress = errors.New("messenger address must be set")

// Config configures a Messenger.
type Config struct {
	// Address is the messenger's own account on its chain. Escrowed value is
	// held there.
	Address common.Address
	Admin   common.Address

	MaxProcessingTime     uint64
	MaxGasLimit           uint64
	RequireInclusionProof bool

	Oracle feecredit.Config
}

// SendRequest is the input to SendMessage.
type SendRequest struct {
	// Origin is the caller. It must be an authorized bridge, or hold the
	// router role and name the bridge it forwards for in Sender.
	Origin common.Address
	Sender common.Address

	Target               common.Address
	MessageType          messenger.MessageType
	Payload              []byte
	FeeRefundAddress     common.Address
	GasLimit             uint64
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int

	// Value is the amount transferred by the message. AttachedValue must
	// cover Value plus the fee credit.
	Value         *uint256.Int
	AttachedValue *uint256.Int
}

// RelayRequest is the input to RelayMessage. Proof and Root are required
// when the messenger enforces inclusion proofs.
type RelayRequest struct {
	Caller  common.Address
	Message *messenger.Message
	Proof   *tree.Proof
	Root    common.Hash
}

// RelayReceipt describes a completed relay.
type RelayReceipt struct {
	Hash    common.Hash
	Success bool
	GasUsed uint64
	Fee     *uint256.Int
	Refund  *uint256.Int
	// CallErr is the error returned by the target, if any.
	CallErr error
}

// Messenger is a BridgeMessenger bound to one chain. Calls are serialized,
// matching the single-writer execution of a chain.
type Messenger struct {
	lock     sync.Mutex
	logger   *zap.Logger
	cfg      Config
	chain    backend.Chain
	registry *registry.Registry
	tree     *tree.Tree
	oracle   *feecredit.Oracle
	metrics  *MessengerMetrics
	chainID  string

	nonce    uint64
	anchored map[common.Hash]uint64
}

// New returns a messenger on chain. The admin in cfg holds every privileged
// role at construction.
func New(logger *zap.Logger, chain backend.Chain, cfg Config, registerer prometheus.Registerer) (*Messenger, error) {
	if cfg.Address == (common.Address{}) {
		return nil, errMissingAddress
	}
	reg := registry.New(cfg.Admin)
	oracle, err := feecredit.New(cfg.Oracle, reg)
	if err != nil {
		return nil, err
	}
	chainID := chain.ChainID().String()
	return &Messenger{
		logger:   logger.With(zap.String("chainID", chainID)),
		cfg:      cfg,
		chain:    chain,
		registry: reg,
		tree:     tree.New(),
		oracle:   oracle,
		metrics:  NewMessengerMetrics(prometheus.WrapRegistererWith(prometheus.Labels{"messenger": cfg.Address.Hex()}, registerer)),
		chainID:  chainID,
		anchored: make(map[common.Hash]uint64),
	}, nil
}

// SendMessage records a new message and escrows its value and fee credit.
func (m *Messenger) SendMessage(ctx context.Context, req *SendRequest) (common.Hash, uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	hash, nonce, err := m.sendMessage(req)
	if err != nil {
		m.metrics.rejectedSendCount.WithLabelValues(m.chainID, messenger.Reason(err)).Inc()
		m.logger.Debug(
			"Send rejected",
			zap.Stringer("origin", req.Origin),
			zap.Stringer("target", req.Target),
			zap.Error(err),
		)
		return common.Hash{}, 0, err
	}
	return hash, nonce, nil
}

func (m *Messenger) sendMessage(req *SendRequest) (common.Hash, uint64, error) {
	sender, err := m.resolveSender(req)
	if err != nil {
		return common.Hash{}, 0, err
	}
	if req.Target == (common.Address{}) {
		return common.Hash{}, 0, fmt.Errorf("%w: zero target", messenger.ErrInvalidTarget)
	}
	if !req.MessageType.Valid() {
		return common.Hash{}, 0, fmt.Errorf("%w: %d", messenger.ErrInvalidMessageType, req.MessageType)
	}
	if err := m.checkGasLimit(req.GasLimit); err != nil {
		return common.Hash{}, 0, err
	}

	feeCredit, err := m.oracle.ComputeFeeCredit(req.GasLimit, req.MaxFeePerGas, req.MaxPriorityFeePerGas)
	if err != nil {
		return common.Hash{}, 0, err
	}
	required, overflow := new(uint256.Int).AddOverflow(orZero(req.Value), feeCredit.FeeCredit)
	if overflow {
		return common.Hash{}, 0, fmt.Errorf("%w: value plus fee credit overflows", messenger.ErrInvalidFee)
	}
	attached := orZero(req.AttachedValue)
	if attached.Lt(required) {
		return common.Hash{}, 0, fmt.Errorf("%w: attached %s, required %s", messenger.ErrInsufficientAttachedValue, attached, required)
	}

	now := m.chain.Now()
	expiry, err := messenger.AddUint64(now, m.cfg.MaxProcessingTime)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("%w: expiry overflows", messenger.ErrInvalidMessage)
	}
	refundAddr := req.FeeRefundAddress
	if refundAddr == (common.Address{}) {
		refundAddr = sender
	}
	msg := &messenger.Message{
		Sender:           sender,
		Target:           req.Target,
		MessageType:      req.MessageType,
		Nonce:            m.nonce,
		Payload:          req.Payload,
		FeeRefundAddress: refundAddr,
		FeeCredit:        feeCredit,
		CreatedAt:        now,
		ExpiryTime:       expiry,
	}
	if err := msg.Verify(); err != nil {
		return common.Hash{}, 0, err
	}
	hash := msg.Hash()

	err = m.atomically(func(tx backend.Tx) error {
		if _, err := m.tree.Append(hash); err != nil {
			return err
		}
		if err := m.registry.RecordSent(hash, expiry); err != nil {
			return err
		}
		if err := tx.Transfer(req.Origin, m.cfg.Address, attached); err != nil {
			return fmt.Errorf("%w: %w", messenger.ErrInsufficientAttachedValue, err)
		}
		if excess := new(uint256.Int).Sub(attached, required); !excess.IsZero() {
			if err := tx.Transfer(m.cfg.Address, req.Origin, excess); err != nil {
				return err
			}
		}
		tx.Emit(messenger.NewMessageSent(hash, msg))
		return nil
	})
	if err != nil {
		return common.Hash{}, 0, err
	}

	m.nonce++
	m.metrics.sentMessageCount.WithLabelValues(m.chainID, msg.MessageType.String()).Inc()
	m.metrics.escrowedFeeCreditWei.WithLabelValues(m.chainID).Add(saturatingFloat(feeCredit.FeeCredit))
	m.logger.Info(
		"Message sent",
		zap.Stringer("messageHash", hash),
		zap.Uint64("nonce", msg.Nonce),
		zap.Stringer("sender", sender),
		zap.Stringer("target", msg.Target),
		zap.Stringer("messageType", msg.MessageType),
		zap.Uint64("expiryTime", expiry),
	)
	return hash, msg.Nonce, nil
}

func (m *Messenger) resolveSender(req *SendRequest) (common.Address, error) {
	if req.Sender != (common.Address{}) && req.Sender != req.Origin {
		if !m.registry.HasRole(messenger.RoleRouter, req.Origin) {
			return common.Address{}, fmt.Errorf("%w: %s may not forward for %s", messenger.ErrUnauthorized, req.Origin, req.Sender)
		}
		if !m.registry.IsAuthorisedBridge(req.Sender) {
			return common.Address{}, fmt.Errorf("%w: %s is not an authorised bridge", messenger.ErrUnauthorized, req.Sender)
		}
		return req.Sender, nil
	}
	if !m.registry.IsAuthorisedBridge(req.Origin) {
		return common.Address{}, fmt.Errorf("%w: %s is not an authorised bridge", messenger.ErrUnauthorized, req.Origin)
	}
	return req.Origin, nil
}

func (m *Messenger) checkGasLimit(gasLimit uint64) error {
	if gasLimit == 0 {
		return fmt.Errorf("%w: zero gas limit", messenger.ErrGasLimitExceeded)
	}
	if m.cfg.MaxGasLimit != 0 && gasLimit > m.cfg.MaxGasLimit {
		return fmt.Errorf("%w: %d above %d", messenger.ErrGasLimitExceeded, gasLimit, m.cfg.MaxGasLimit)
	}
	return nil
}

// RelayMessage delivers a message sent on the counterpart chain. The message
// is marked relayed even if the target call fails; a second relay of the same
// message fails with ErrAlreadyRelayed and does not call the target.
func (m *Messenger) RelayMessage(ctx context.Context, req *RelayRequest) (*RelayReceipt, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	receipt, err := m.relayMessage(ctx, req)
	if err != nil {
		m.metrics.rejectedRelayCount.WithLabelValues(m.chainID, messenger.Reason(err)).Inc()
		m.logger.Debug(
			"Relay rejected",
			zap.Stringer("relayer", req.Caller),
			zap.Error(err),
		)
		return nil, err
	}
	return receipt, nil
}

func (m *Messenger) relayMessage(ctx context.Context, req *RelayRequest) (*RelayReceipt, error) {
	msg := req.Message
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", messenger.ErrInvalidMessage)
	}
	hash := msg.Hash()
	now := m.chain.Now()
	if now > msg.ExpiryTime {
		return nil, fmt.Errorf("%w: %s expired at %d, now %d", messenger.ErrMessageExpired, hash, msg.ExpiryTime, now)
	}
	if !m.registry.HasRelayerRole(req.Caller) {
		return nil, fmt.Errorf("%w: %s is not a relayer", messenger.ErrUnauthorized, req.Caller)
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	if !m.registry.IsAuthorisedBridge(msg.Target) {
		return nil, fmt.Errorf("%w: %s is not an authorised bridge", messenger.ErrInvalidTarget, msg.Target)
	}
	receiver, ok := m.chain.Receiver(msg.Target)
	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", messenger.ErrInvalidTarget, msg.Target)
	}
	if err := m.checkGasLimit(msg.FeeCredit.DestinationGasLimit); err != nil {
		return nil, err
	}
	if err := m.checkProof(hash, req); err != nil {
		return nil, err
	}

	log := m.logger.With(
		zap.Stringer("messageHash", hash),
		zap.Uint64("nonce", msg.Nonce),
	)
	receipt := &RelayReceipt{Hash: hash}
	err := m.atomically(func(tx backend.Tx) error {
		if _, known := m.registry.Entry(hash); !known {
			if err := m.registry.RecordSent(hash, msg.ExpiryTime); err != nil {
				return err
			}
		}
		relayed, err := m.registry.MarkRelayed(hash, now)
		if err != nil {
			return err
		}
		if !relayed {
			return fmt.Errorf("%w: %s", messenger.ErrAlreadyRelayed, hash)
		}

		m.invoke(ctx, tx, receiver, hash, msg, receipt)
		m.settle(tx, req.Caller, msg, receipt)
		tx.Emit(&messenger.MessageRelayed{Hash: hash, Success: receipt.Success})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.relayedMessageCount.WithLabelValues(m.chainID, msg.MessageType.String(), strconv.FormatBool(receipt.Success)).Inc()
	if receipt.Success {
		log.Info("Message relayed", zap.Uint64("gasUsed", receipt.GasUsed))
	} else {
		log.Warn(
			"Message relayed, target call failed",
			zap.Uint64("gasUsed", receipt.GasUsed),
			zap.Error(receipt.CallErr),
		)
	}
	return receipt, nil
}

// invoke calls the target. Ledger changes made by a failing target are
// rolled back; the relay itself stands.
func (m *Messenger) invoke(ctx context.Context, tx backend.Tx, receiver backend.Receiver, hash common.Hash, msg *messenger.Message, receipt *RelayReceipt) {
	gasLimit := msg.FeeCredit.DestinationGasLimit
	snap := tx.Snapshot()
	gasUsed, err := receiver.ReceiveMessage(ctx, &backend.Call{
		Hash:        hash,
		Sender:      msg.Sender,
		MessageType: msg.MessageType,
		Nonce:       msg.Nonce,
		Payload:     msg.Payload,
		GasLimit:    gasLimit,
		Ledger:      tx,
	})
	if err == nil && gasUsed > gasLimit {
		err = errOutOfGas
	}
	if gasUsed > gasLimit {
		gasUsed = gasLimit
	}
	if err != nil {
		tx.RevertToSnapshot(snap)
	}
	receipt.Success = err == nil
	receipt.GasUsed = gasUsed
	receipt.CallErr = err
}

var errOutOfGas = errors.New("out of gas")

// settle pays gasUsed at the effective gas price to the relayer and credits
// the rest of the fee credit to the refund address.
func (m *Messenger) settle(tx backend.Tx, relayer common.Address, msg *messenger.Message, receipt *RelayReceipt) {
	fc := msg.FeeCredit.Copy()
	price, overflow := new(uint256.Int).AddOverflow(m.chain.BaseFee(), fc.MaxPriorityFeePerGas)
	if overflow || price.Gt(fc.MaxFeePerGas) {
		price = fc.MaxFeePerGas
	}
	fee, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(receipt.GasUsed), price)
	if overflow || fee.Gt(fc.FeeCredit) {
		fee = fc.FeeCredit.Clone()
	}
	refund := new(uint256.Int).Sub(fc.FeeCredit, fee)

	if !fee.IsZero() {
		tx.Mint(relayer, fee)
	}
	if !refund.IsZero() {
		tx.Mint(msg.FeeRefundAddress, refund)
	}
	receipt.Fee = fee
	receipt.Refund = refund
}

func (m *Messenger) checkProof(hash common.Hash, req *RelayRequest) error {
	if req.Proof == nil {
		if m.cfg.RequireInclusionProof {
			return fmt.Errorf("%w: inclusion proof required", messenger.ErrInvalidProof)
		}
		return nil
	}
	size, ok := m.anchored[req.Root]
	if !ok {
		return fmt.Errorf("%w: %s", messenger.ErrUnknownRoot, req.Root)
	}
	if req.Proof.Index >= size || !tree.VerifyProof(hash, req.Proof.Index, req.Proof, req.Root) {
		return fmt.Errorf("%w: %s not included under %s", messenger.ErrInvalidProof, hash, req.Root)
	}
	return nil
}

// atomically runs fn inside a chain transaction and reverts every registry,
// tree and ledger change it made if it fails.
func (m *Messenger) atomically(fn func(tx backend.Tx) error) error {
	tx := m.chain.Begin()
	defer tx.Commit()

	regSnap := m.registry.Snapshot()
	treeSnap := m.tree.Snapshot()
	chainSnap := tx.Snapshot()
	if err := fn(tx); err != nil {
		tx.RevertToSnapshot(chainSnap)
		m.tree.RevertToSnapshot(treeSnap)
		m.registry.RevertToSnapshot(regSnap)
		m.registry.Commit()
		return err
	}
	m.registry.Commit()
	return nil
}

// AnchorRoot records a counterpart tree root that inclusion proofs may be
// verified against.
func (m *Messenger) AnchorRoot(caller common.Address, root common.Hash, size uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.registry.HasRole(messenger.RoleAdmin, caller) && !m.registry.HasRole(messenger.RoleAnchor, caller) {
		return fmt.Errorf("%w: %s may not anchor roots", messenger.ErrUnauthorized, caller)
	}
	if prev, ok := m.anchored[root]; ok && prev != size {
		return fmt.Errorf("%w: root %s already anchored with size %d", messenger.ErrInvalidProof, root, prev)
	}
	m.anchored[root] = size
	m.chain.Emit(&messenger.RootAnchored{Root: root, Size: size})
	m.logger.Info("Root anchored", zap.Stringer("root", root), zap.Uint64("size", size))
	return nil
}

// IsAnchoredRoot reports whether root has been anchored.
func (m *Messenger) IsAnchoredRoot(root common.Hash) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.anchored[root]
	return ok
}

// IsDepositMessageRelayed reports whether hash has been relayed on this chain.
func (m *Messenger) IsDepositMessageRelayed(_ context.Context, hash common.Hash) (bool, error) {
	return m.registry.IsRelayed(hash), nil
}

// MessageState returns the state of hash judged by this chain's clock.
func (m *Messenger) MessageState(hash common.Hash) messenger.MessageState {
	return m.registry.State(hash, m.chain.Now())
}

func (m *Messenger) IsAuthorisedBridge(addr common.Address) bool {
	return m.registry.IsAuthorisedBridge(addr)
}

func (m *Messenger) HasRelayerRole(addr common.Address) bool {
	return m.registry.HasRelayerRole(addr)
}

func (m *Messenger) HasRole(role messenger.Role, addr common.Address) bool {
	return m.registry.HasRole(role, addr)
}

func (m *Messenger) AuthoriseBridges(caller common.Address, addrs ...common.Address) error {
	return m.registry.AuthoriseBridges(caller, addrs...)
}

func (m *Messenger) RevokeBridge(caller, addr common.Address) error {
	return m.registry.RevokeBridge(caller, addr)
}

func (m *Messenger) GrantRole(caller common.Address, role messenger.Role, addr common.Address) error {
	return m.registry.GrantRole(caller, role, addr)
}

func (m *Messenger) RevokeRole(caller common.Address, role messenger.Role, addr common.Address) error {
	return m.registry.RevokeRole(caller, role, addr)
}

func (m *Messenger) GrantRelayerRole(caller, addr common.Address) error {
	return m.registry.GrantRelayerRole(caller, addr)
}

// ComputeFeeCredit quotes the fee credit SendMessage will require.
func (m *Messenger) ComputeFeeCredit(gasLimit uint64, maxFeePerGas, maxPriorityFeePerGas *uint256.Int) (messenger.FeeCreditData, error) {
	return m.oracle.ComputeFeeCredit(gasLimit, maxFeePerGas, maxPriorityFeePerGas)
}

func (m *Messenger) SetOracleFee(caller common.Address, maxFeePerGas, maxPriorityFeePerGas *uint256.Int) error {
	if err := m.oracle.SetOracleFee(caller, maxFeePerGas, maxPriorityFeePerGas); err != nil {
		return err
	}
	m.logger.Info(
		"Oracle fee updated",
		zap.Stringer("maxFeePerGas", maxFeePerGas),
		zap.Stringer("maxPriorityFeePerGas", maxPriorityFeePerGas),
	)
	return nil
}

// Root returns the current root of this chain's message tree.
func (m *Messenger) Root() common.Hash {
	return m.tree.Root()
}

// RootAt returns the root the tree had at size leaves.
func (m *Messenger) RootAt(size uint64) (common.Hash, error) {
	return m.tree.RootAt(size)
}

// TreeSize returns the number of messages sent from this chain.
func (m *Messenger) TreeSize() uint64 {
	return m.tree.Size()
}

// ProveInclusion proves the message with hash against the root the tree had
// at size leaves.
func (m *Messenger) ProveInclusion(hash common.Hash, size uint64) (*tree.Proof, common.Hash, error) {
	idx, ok := m.tree.IndexOf(hash)
	if !ok {
		return nil, common.Hash{}, fmt.Errorf("%w: %s", messenger.ErrUnknownMessage, hash)
	}
	proof, err := m.tree.ProveInclusionAt(idx, size)
	if err != nil {
		return nil, common.Hash{}, err
	}
	root, err := m.tree.RootAt(size)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return proof, root, nil
}

// VerifyInclusion verifies a proof against a root this chain's tree produced.
func (m *Messenger) VerifyInclusion(hash common.Hash, index uint64, proof *tree.Proof, root common.Hash) bool {
	return m.tree.VerifyInclusion(hash, index, proof, root)
}

// Nonce returns the nonce the next sent message will carry.
func (m *Messenger) Nonce() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.nonce
}

func (m *Messenger) Address() common.Address {
	return m.cfg.Address
}

func (m *Messenger) Chain() backend.Chain {
	return m.chain
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func saturatingFloat(v *uint256.Int) float64 {
	if !v.IsUint64() {
		return float64(^uint64(0))
	}
	return float64(v.Uint64())
}
