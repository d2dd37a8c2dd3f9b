// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry tracks the lifecycle of every message a messenger knows
// about and the principals allowed to send and relay.
package registry

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
	"github.com/luxfi/messenger"
)

// Entry is the stored record of a message. Expiry is derived at read time and
// never stored.
type Entry struct {
	State      messenger.MessageState
	ExpiryTime uint64
	RelayedAt  uint64
}

// Registry is a MessageRegistry together with the authorized bridge set and
// role assignments.
type Registry struct {
	lock    sync.RWMutex
	entries map[common.Hash]*Entry
	bridges set.Set[common.Address]
	roles   map[messenger.Role]set.Set[common.Address]
	journal *journal
}

// New returns an empty registry administered by admin.
func New(admin common.Address) *Registry {
	return &Registry{
		entries: make(map[common.Hash]*Entry),
		bridges: set.Of[common.Address](),
		roles: map[messenger.Role]set.Set[common.Address]{
			messenger.RoleAdmin: set.Of(admin),
		},
		journal: newJournal(),
	}
}

// RecordSent registers hash in state Sent.
func (r *Registry) RecordSent(hash common.Hash, expiryTime uint64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.entries[hash]; ok {
		return fmt.Errorf("%w: %s", messenger.ErrDuplicateMessage, hash)
	}
	r.entries[hash] = &Entry{State: messenger.Sent, ExpiryTime: expiryTime}
	r.journal.append(recordChange{hash: hash})
	return nil
}

// MarkRelayed transitions hash from Sent to Relayed. It returns false without
// effect if hash is already Relayed.
func (r *Registry) MarkRelayed(hash common.Hash, now uint64) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return false, fmt.Errorf("%w: %s", messenger.ErrUnknownMessage, hash)
	}
	if e.State == messenger.Relayed {
		return false, nil
	}
	if now > e.ExpiryTime {
		return false, fmt.Errorf("%w: %s expired at %d, now %d", messenger.ErrMessageExpired, hash, e.ExpiryTime, now)
	}
	e.State = messenger.Relayed
	e.RelayedAt = now
	r.journal.append(relayChange{hash: hash})
	return true, nil
}

// IsRelayed reports whether hash has been relayed.
func (r *Registry) IsRelayed(hash common.Hash) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.entries[hash]
	return ok && e.State == messenger.Relayed
}

// IsExpired reports whether hash is Sent and past its expiry at now.
func (r *Registry) IsExpired(hash common.Hash, now uint64) bool {
	return r.State(hash, now) == messenger.ExpiredUnrelayed
}

// State returns the lifecycle state of hash as of now.
func (r *Registry) State(hash common.Hash, now uint64) messenger.MessageState {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.entries[hash]
	switch {
	case !ok:
		return messenger.Unsent
	case e.State == messenger.Relayed:
		return messenger.Relayed
	case now > e.ExpiryTime:
		return messenger.ExpiredUnrelayed
	default:
		return messenger.Sent
	}
}

// Entry returns a copy of the record for hash.
func (r *Registry) Entry(hash common.Hash) (Entry, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.entries[hash]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of recorded messages.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.entries)
}

// AuthoriseBridges adds addrs to the authorized bridge set.
func (r *Registry) AuthoriseBridges(caller common.Address, addrs ...common.Address) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	for _, addr := range addrs {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: zero bridge address", messenger.ErrInvalidTarget)
		}
	}
	for _, addr := range addrs {
		r.journal.append(bridgeChange{addr: addr, existed: r.bridges.Contains(addr)})
		r.bridges.Add(addr)
	}
	return nil
}

// RevokeBridge removes addr from the authorized bridge set.
func (r *Registry) RevokeBridge(caller, addr common.Address) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	r.journal.append(bridgeChange{addr: addr, existed: r.bridges.Contains(addr)})
	r.bridges.Remove(addr)
	return nil
}

// IsAuthorisedBridge reports whether addr is an authorized bridge.
func (r *Registry) IsAuthorisedBridge(addr common.Address) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.bridges.Contains(addr)
}

// Bridges lists the authorized bridges.
func (r *Registry) Bridges() []common.Address {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.bridges.List()
}

// GrantRole assigns role to addr.
func (r *Registry) GrantRole(caller common.Address, role messenger.Role, addr common.Address) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %s", messenger.ErrUnauthorized, role)
	}
	members := r.members(role)
	r.journal.append(roleChange{role: role, addr: addr, existed: members.Contains(addr)})
	members.Add(addr)
	return nil
}

// members returns the holders of role, creating the set on first use.
func (r *Registry) members(role messenger.Role) set.Set[common.Address] {
	members, ok := r.roles[role]
	if !ok {
		members = set.Of[common.Address]()
		r.roles[role] = members
	}
	return members
}

// RevokeRole removes role from addr.
func (r *Registry) RevokeRole(caller common.Address, role messenger.Role, addr common.Address) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	members := r.roles[role]
	r.journal.append(roleChange{role: role, addr: addr, existed: members.Contains(addr)})
	members.Remove(addr)
	return nil
}

// HasRole reports whether addr holds role.
func (r *Registry) HasRole(role messenger.Role, addr common.Address) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.roles[role].Contains(addr)
}

// GrantRelayerRole is GrantRole for the relayer principal.
func (r *Registry) GrantRelayerRole(caller, addr common.Address) error {
	return r.GrantRole(caller, messenger.RoleRelayer, addr)
}

// HasRelayerRole reports whether addr may relay messages.
func (r *Registry) HasRelayerRole(addr common.Address) bool {
	return r.HasRole(messenger.RoleRelayer, addr)
}

func (r *Registry) requireAdmin(caller common.Address) error {
	if !r.roles[messenger.RoleAdmin].Contains(caller) {
		return fmt.Errorf("%w: %s is not admin", messenger.ErrUnauthorized, caller)
	}
	return nil
}

// Snapshot returns an identifier for the current registry state.
func (r *Registry) Snapshot() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.journal.snapshot()
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
func (r *Registry) RevertToSnapshot(id int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.journal.revertToSnapshot(id, r)
}

// Commit makes every change final and invalidates outstanding snapshots.
func (r *Registry) Commit() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.journal.reset()
}
