// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package feecredit computes the native amount a sender escrows to pay for
// destination execution of a message.
package feecredit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger"
)

var errNilAuthorizer = errors.New("nil authorizer")

// Authorizer answers role membership queries for admin-gated calls.
type Authorizer interface {
	HasRole(role messenger.Role, account common.Address) bool
}

// Config holds the operator fee parameters. FeeCap of zero disables the cap.
type Config struct {
	DefaultMaxFeePerGas         *uint256.Int
	DefaultMaxPriorityFeePerGas *uint256.Int
	MinMaxFeePerGas             *uint256.Int
	MinMaxPriorityFeePerGas     *uint256.Int
	FeeCap                      *uint256.Int
}

func (c Config) normalize() Config {
	return Config{
		DefaultMaxFeePerGas:         clone(c.DefaultMaxFeePerGas),
		DefaultMaxPriorityFeePerGas: clone(c.DefaultMaxPriorityFeePerGas),
		MinMaxFeePerGas:             clone(c.MinMaxFeePerGas),
		MinMaxPriorityFeePerGas:     clone(c.MinMaxPriorityFeePerGas),
		FeeCap:                      clone(c.FeeCap),
	}
}

// Oracle is a FeeCreditOracle. Computation is a pure function of its inputs
// and the current fee parameters.
type Oracle struct {
	lock sync.RWMutex
	cfg  Config
	auth Authorizer
}

// New returns an oracle seeded with cfg. The defaults must satisfy the floors.
func New(cfg Config, auth Authorizer) (*Oracle, error) {
	if auth == nil {
		return nil, errNilAuthorizer
	}
	cfg = cfg.normalize()
	if err := cfg.checkFees(cfg.DefaultMaxFeePerGas, cfg.DefaultMaxPriorityFeePerGas); err != nil {
		return nil, fmt.Errorf("invalid oracle defaults: %w", err)
	}
	return &Oracle{cfg: cfg, auth: auth}, nil
}

// ComputeFeeCredit returns the fee credit for gasLimit. A zero user fee
// parameter selects the oracle defaults for both.
func (o *Oracle) ComputeFeeCredit(gasLimit uint64, userMaxFeePerGas, userMaxPriorityFeePerGas *uint256.Int) (messenger.FeeCreditData, error) {
	o.lock.RLock()
	defer o.lock.RUnlock()

	maxFee, priorityFee := clone(userMaxFeePerGas), clone(userMaxPriorityFeePerGas)
	if maxFee.IsZero() || priorityFee.IsZero() {
		maxFee, priorityFee = o.cfg.DefaultMaxFeePerGas.Clone(), o.cfg.DefaultMaxPriorityFeePerGas.Clone()
	}
	if err := o.cfg.checkFees(maxFee, priorityFee); err != nil {
		return messenger.FeeCreditData{}, err
	}

	price := maxFee
	if !o.cfg.FeeCap.IsZero() && o.cfg.FeeCap.Lt(price) {
		price = o.cfg.FeeCap
	}
	credit, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(gasLimit), price)
	if overflow {
		return messenger.FeeCreditData{}, fmt.Errorf("%w: fee credit overflows", messenger.ErrInvalidFee)
	}
	return messenger.FeeCreditData{
		DestinationGasLimit:  gasLimit,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: priorityFee,
		FeeCredit:            credit,
	}, nil
}

// SetOracleFee replaces the default fee parameters. Messages already sent keep
// the fee credit they escrowed.
func (o *Oracle) SetOracleFee(caller common.Address, maxFeePerGas, maxPriorityFeePerGas *uint256.Int) error {
	if !o.auth.HasRole(messenger.RoleAdmin, caller) {
		return fmt.Errorf("%w: %s is not admin", messenger.ErrUnauthorized, caller)
	}
	maxFee, priorityFee := clone(maxFeePerGas), clone(maxPriorityFeePerGas)
	if maxFee.IsZero() || priorityFee.IsZero() {
		return fmt.Errorf("%w: oracle fees must be non-zero", messenger.ErrInvalidFee)
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	if err := o.cfg.checkFees(maxFee, priorityFee); err != nil {
		return err
	}
	o.cfg.DefaultMaxFeePerGas = maxFee
	o.cfg.DefaultMaxPriorityFeePerGas = priorityFee
	return nil
}

// OracleFee returns the current default fee parameters.
func (o *Oracle) OracleFee() (maxFeePerGas, maxPriorityFeePerGas *uint256.Int) {
	o.lock.RLock()
	defer o.lock.RUnlock()

	return o.cfg.DefaultMaxFeePerGas.Clone(), o.cfg.DefaultMaxPriorityFeePerGas.Clone()
}

func (c Config) checkFees(maxFee, priorityFee *uint256.Int) error {
	if maxFee.Lt(c.MinMaxFeePerGas) {
		return fmt.Errorf("%w: max fee per gas %s below floor %s", messenger.ErrFeeBelowMinimum, maxFee, c.MinMaxFeePerGas)
	}
	if priorityFee.Lt(c.MinMaxPriorityFeePerGas) {
		return fmt.Errorf("%w: max priority fee per gas %s below floor %s", messenger.ErrFeeBelowMinimum, priorityFee, c.MinMaxPriorityFeePerGas)
	}
	if priorityFee.Gt(maxFee) {
		return fmt.Errorf("%w: priority fee %s exceeds max fee %s", messenger.ErrInvalidFee, priorityFee, maxFee)
	}
	return nil
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
