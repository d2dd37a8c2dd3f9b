// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/messenger"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

var (
	_ Chain = (*MemoryChain)(nil)
	_ Tx    = (*memoryTx)(nil)
)

// MemoryChain is an in-memory Chain. Blocks are produced explicitly with
// AdvanceBlock.
type MemoryChain struct {
	// txLock is held by the open write transaction. mu guards the fields
	// below it.
	txLock sync.Mutex

	mu        sync.RWMutex
	chainID   ids.ID
	number    uint64
	time      uint64
	baseFee   *uint256.Int
	logs      []Log
	balances  map[common.Address]*uint256.Int
	receivers map[common.Address]Receiver

	journal   []func()
	snapshots []int
}

// NewMemoryChain returns a chain whose genesis block has timestamp genesisTime.
func NewMemoryChain(chainID ids.ID, genesisTime uint64) *MemoryChain {
	return &MemoryChain{
		chainID:   chainID,
		time:      genesisTime,
		baseFee:   new(uint256.Int),
		balances:  make(map[common.Address]*uint256.Int),
		receivers: make(map[common.Address]Receiver),
	}
}

func (c *MemoryChain) ChainID() ids.ID {
	return c.chainID
}

func (c *MemoryChain) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.time
}

func (c *MemoryChain) BlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.number
}

func (c *MemoryChain) BaseFee() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.baseFee.Clone()
}

// SetBaseFee sets the base fee used for relay settlement.
func (c *MemoryChain) SetBaseFee(fee *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.baseFee = fee.Clone()
}

// AdvanceBlock produces a new block dt seconds after the current one.
func (c *MemoryChain) AdvanceBlock(dt uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.number++
	c.time += dt
	return c.number
}

// SetTime moves the clock of the current block. Used to simulate drift
// between chains.
func (c *MemoryChain) SetTime(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time = ts
}

func (c *MemoryChain) Emit(event messenger.Event) {
	c.txLock.Lock()
	defer c.txLock.Unlock()

	c.emit(event)
}

func (c *MemoryChain) emit(event messenger.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = append(c.logs, Log{
		Index:       uint64(len(c.logs)),
		BlockNumber: c.number,
		Event:       event,
	})
	c.record(func() { c.logs = c.logs[:len(c.logs)-1] })
}

// Logs returns every log with index at least fromIndex.
func (c *MemoryChain) Logs(fromIndex uint64) []Log {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if fromIndex >= uint64(len(c.logs)) {
		return nil
	}
	out := make([]Log, len(c.logs)-int(fromIndex))
	copy(out, c.logs[fromIndex:])
	return out
}

func (c *MemoryChain) Balance(addr common.Address) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if bal, ok := c.balances[addr]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (c *MemoryChain) Transfer(from, to common.Address, amount *uint256.Int) error {
	c.txLock.Lock()
	defer c.txLock.Unlock()

	return c.transfer(from, to, amount)
}

func (c *MemoryChain) transfer(from, to common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fromBal := c.balanceOf(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
	}
	c.setBalance(from, new(uint256.Int).Sub(fromBal, amount))
	c.setBalance(to, new(uint256.Int).Add(c.balanceOf(to), amount))
	return nil
}

func (c *MemoryChain) Mint(to common.Address, amount *uint256.Int) {
	c.txLock.Lock()
	defer c.txLock.Unlock()

	c.mint(to, amount)
}

func (c *MemoryChain) mint(to common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setBalance(to, new(uint256.Int).Add(c.balanceOf(to), amount))
}

func (c *MemoryChain) balanceOf(addr common.Address) *uint256.Int {
	if bal, ok := c.balances[addr]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (c *MemoryChain) setBalance(addr common.Address, bal *uint256.Int) {
	prev, existed := c.balances[addr]
	c.balances[addr] = bal
	c.record(func() {
		if existed {
			c.balances[addr] = prev
		} else {
			delete(c.balances, addr)
		}
	})
}

// Deploy installs r at addr.
func (c *MemoryChain) Deploy(addr common.Address, r Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers[addr] = r
}

func (c *MemoryChain) Receiver(addr common.Address) (Receiver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.receivers[addr]
	return r, ok
}

// record appends an undo step while a snapshot is outstanding. Callers hold mu.
func (c *MemoryChain) record(undo func()) {
	if len(c.snapshots) > 0 {
		c.journal = append(c.journal, undo)
	}
}

// Begin opens a write transaction. Only its own changes are journaled, so a
// revert never touches a write made by someone else.
func (c *MemoryChain) Begin() Tx {
	c.txLock.Lock()
	return &memoryTx{chain: c}
}

type memoryTx struct {
	chain *MemoryChain
	done  bool
}

func (tx *memoryTx) Emit(event messenger.Event) {
	tx.chain.emit(event)
}

func (tx *memoryTx) Balance(addr common.Address) *uint256.Int {
	return tx.chain.Balance(addr)
}

func (tx *memoryTx) Transfer(from, to common.Address, amount *uint256.Int) error {
	return tx.chain.transfer(from, to, amount)
}

func (tx *memoryTx) Mint(to common.Address, amount *uint256.Int) {
	tx.chain.mint(to, amount)
}

func (tx *memoryTx) Snapshot() int {
	c := tx.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = append(c.snapshots, len(c.journal))
	return len(c.snapshots) - 1
}

func (tx *memoryTx) RevertToSnapshot(id int) {
	c := tx.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= len(c.snapshots) {
		return
	}
	idx := c.snapshots[id]
	for i := len(c.journal) - 1; i >= idx; i-- {
		c.journal[i]()
	}
	c.journal = c.journal[:idx]
	c.snapshots = c.snapshots[:id]
}

// Commit ends the transaction. Calling it again is a no-op.
func (tx *memoryTx) Commit() {
	if tx.done {
		return
	}
	tx.done = true

	c := tx.chain
	c.mu.Lock()
	c.journal = nil
	c.snapshots = nil
	c.mu.Unlock()
	c.txLock.Unlock()
}
