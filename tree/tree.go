// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package tree implements the append-only message tree: an incremental keccak
// Merkle accumulator of fixed depth that remembers every root it has produced
// and can prove inclusion against any of them.
package tree

import (
	"errors"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// Depth of the tree. Capacity is 2^Depth leaves.
const Depth = 32

const maxLeaves = uint64(1) << Depth

var (
	ErrUninitialized   = errors.New("tree: not initialized")
	ErrTreeFull        = errors.New("tree: tree is full")
	ErrIndexOutOfRange = errors.New("tree: index out of range")
	ErrUnknownSize     = errors.New("tree: no root for size")
)

// zeroHashes[i] is the root of an empty subtree of height i.
var zeroHashes [Depth + 1]common.Hash

func init() {
	for i := 1; i <= Depth; i++ {
		zeroHashes[i] = hashNode(zeroHashes[i-1], zeroHashes[i-1])
	}
}

func hashNode(left, right common.Hash) common.Hash {
	return common.Hash(crypto.Keccak256Hash(left[:], right[:]))
}

// EmptyRoot is the root of a tree with no leaves.
func EmptyRoot() common.Hash {
	return zeroHashes[Depth]
}

// Proof is a Merkle path for the leaf at Index.
type Proof struct {
	Index    uint64
	Siblings [Depth]common.Hash
}

// Snapshot captures the append position so a failed operation can be undone.
type Snapshot struct {
	size   uint64
	filled [Depth]common.Hash
}

// Tree is safe for concurrent use.
type Tree struct {
	mu     sync.RWMutex
	leaves []common.Hash
	index  map[common.Hash]uint64
	filled [Depth]common.Hash
	// roots[k] is the root after k leaves.
	roots []common.Hash
	sizes map[common.Hash]uint64
}

// New returns an empty tree.
func New() *Tree {
	empty := EmptyRoot()
	return &Tree{
		index: make(map[common.Hash]uint64),
		roots: []common.Hash{empty},
		sizes: map[common.Hash]uint64{empty: 0},
	}
}

func (t *Tree) initialized() bool {
	return t != nil && len(t.roots) > 0
}

// Append adds leaf and returns its index. The root is updated incrementally
// from the filled-subtree cache.
func (t *Tree) Append(leaf common.Hash) (uint64, error) {
	if t == nil {
		return 0, ErrUninitialized
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized() {
		return 0, ErrUninitialized
	}
	idx := uint64(len(t.leaves))
	if idx >= maxLeaves {
		return 0, ErrTreeFull
	}

	node := leaf
	pos := idx
	for level := 0; level < Depth; level++ {
		if pos&1 == 0 {
			t.filled[level] = node
			node = hashNode(node, zeroHashes[level])
		} else {
			node = hashNode(t.filled[level], node)
		}
		pos >>= 1
	}

	t.leaves = append(t.leaves, leaf)
	if _, ok := t.index[leaf]; !ok {
		t.index[leaf] = idx
	}
	t.roots = append(t.roots, node)
	t.sizes[node] = idx + 1
	return idx, nil
}

// Root returns the current root.
func (t *Tree) Root() common.Hash {
	if t == nil {
		return EmptyRoot()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.initialized() {
		return EmptyRoot()
	}
	return t.roots[len(t.roots)-1]
}

// Size returns the number of leaves.
func (t *Tree) Size() uint64 {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	return uint64(len(t.leaves))
}

// RootAt returns the root the tree had when it held size leaves.
func (t *Tree) RootAt(size uint64) (common.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if size >= uint64(len(t.roots)) {
		return common.Hash{}, ErrUnknownSize
	}
	return t.roots[size], nil
}

// SizeOf returns the number of leaves under root, if root was ever produced.
func (t *Tree) SizeOf(root common.Hash) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size, ok := t.sizes[root]
	return size, ok
}

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index uint64) (common.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index >= uint64(len(t.leaves)) {
		return common.Hash{}, ErrIndexOutOfRange
	}
	return t.leaves[index], nil
}

// IndexOf returns the first index at which leaf was appended.
func (t *Tree) IndexOf(leaf common.Hash) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.index[leaf]
	return idx, ok
}

// ProveInclusion returns a proof for index against the current root.
func (t *Tree) ProveInclusion(index uint64) (*Proof, error) {
	return t.ProveInclusionAt(index, t.Size())
}

// ProveInclusionAt returns a proof for index against the root the tree had at
// size leaves.
func (t *Tree) ProveInclusionAt(index, size uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if size > uint64(len(t.leaves)) {
		return nil, ErrUnknownSize
	}
	if index >= size {
		return nil, ErrIndexOutOfRange
	}

	proof := &Proof{Index: index}
	layer := make([]common.Hash, size)
	copy(layer, t.leaves[:size])
	pos := index
	for level := 0; level < Depth; level++ {
		if len(layer)%2 != 0 {
			layer = append(layer, zeroHashes[level])
		}
		proof.Siblings[level] = layer[pos^1]

		next := make([]common.Hash, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next[i/2] = hashNode(layer[i], layer[i+1])
		}
		layer = next
		pos >>= 1
	}
	return proof, nil
}

// VerifyInclusion reports whether leaf sits at index under root. It returns
// false for roots this tree never produced and for roots produced before the
// leaf was appended.
func (t *Tree) VerifyInclusion(leaf common.Hash, index uint64, proof *Proof, root common.Hash) bool {
	size, ok := t.SizeOf(root)
	if !ok || index >= size {
		return false
	}
	return VerifyProof(leaf, index, proof, root)
}

// VerifyProof checks a Merkle path without consulting any tree. Callers must
// establish separately that root is trusted.
func VerifyProof(leaf common.Hash, index uint64, proof *Proof, root common.Hash) bool {
	if proof == nil || proof.Index != index || index >= maxLeaves {
		return false
	}
	return ComputeRoot(leaf, proof) == root
}

// ComputeRoot folds leaf up the path in proof.
func ComputeRoot(leaf common.Hash, proof *Proof) common.Hash {
	node := leaf
	pos := proof.Index
	for level := 0; level < Depth; level++ {
		if pos&1 == 0 {
			node = hashNode(node, proof.Siblings[level])
		} else {
			node = hashNode(proof.Siblings[level], node)
		}
		pos >>= 1
	}
	return node
}

// Snapshot returns the current append position.
func (t *Tree) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{size: uint64(len(t.leaves)), filled: t.filled}
}

// RevertToSnapshot discards every leaf appended after s was taken.
func (t *Tree) RevertToSnapshot(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := uint64(len(t.leaves)); i > s.size; i-- {
		leaf := t.leaves[i-1]
		if t.index[leaf] == i-1 {
			delete(t.index, leaf)
		}
		root := t.roots[i]
		if t.sizes[root] == i {
			delete(t.sizes, root)
		}
	}
	t.leaves = t.leaves[:s.size]
	t.roots = t.roots[:s.size+1]
	t.filled = s.filled
}
