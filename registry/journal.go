// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger"
)

// journalEntry is a revertible registry change.
type journalEntry interface {
	revert(r *Registry)
}

type journal struct {
	entries   []journalEntry
	snapshots map[int]int
	nextID    int
}

func newJournal() *journal {
	return &journal{snapshots: make(map[int]int)}
}

// append records entry. Changes made while no snapshot is outstanding cannot
// be reverted and are not kept.
func (j *journal) append(entry journalEntry) {
	if len(j.snapshots) == 0 {
		return
	}
	j.entries = append(j.entries, entry)
}

func (j *journal) snapshot() int {
	id := j.nextID
	j.nextID++
	j.snapshots[id] = len(j.entries)
	return id
}

func (j *journal) revertToSnapshot(id int, r *Registry) {
	idx, ok := j.snapshots[id]
	if !ok {
		return
	}
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(r)
	}
	j.entries = j.entries[:idx]

	for sid := range j.snapshots {
		if sid >= id {
			delete(j.snapshots, sid)
		}
	}
}

// reset drops all entries once no snapshot can be reverted to.
func (j *journal) reset() {
	j.entries = j.entries[:0]
	clear(j.snapshots)
}

type recordChange struct {
	hash common.Hash
}

func (ch recordChange) revert(r *Registry) {
	delete(r.entries, ch.hash)
}

type relayChange struct {
	hash common.Hash
}

func (ch relayChange) revert(r *Registry) {
	if e, ok := r.entries[ch.hash]; ok {
		e.State = messenger.Sent
		e.RelayedAt = 0
	}
}

type bridgeChange struct {
	addr    common.Address
	existed bool
}

func (ch bridgeChange) revert(r *Registry) {
	if ch.existed {
		r.bridges.Add(ch.addr)
	} else {
		r.bridges.Remove(ch.addr)
	}
}

type roleChange struct {
	role    messenger.Role
	addr    common.Address
	existed bool
}

func (ch roleChange) revert(r *Registry) {
	if ch.existed {
		r.members(ch.role).Add(ch.addr)
	} else {
		r.roles[ch.role].Remove(ch.addr)
	}
}
