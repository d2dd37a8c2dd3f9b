// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import "container/heap"

// NonceQueue holds processed nonces that arrived ahead of the committed
// position. It is not safe for concurrent use.
type NonceQueue struct {
	h nonceHeap
}

// Push queues nonce. Duplicates are dropped when the queue drains.
func (q *NonceQueue) Push(nonce uint64) {
	heap.Push(&q.h, nonce)
}

// Len returns the number of queued nonces.
func (q *NonceQueue) Len() int {
	return q.h.Len()
}

// Advance consumes the contiguous run of queued nonces starting at next and
// returns the first nonce not in the run. Queued nonces below next are
// discarded.
func (q *NonceQueue) Advance(next uint64) uint64 {
	for q.h.Len() > 0 && q.h[0] <= next {
		if heap.Pop(&q.h).(uint64) == next {
			next++
		}
	}
	return next
}

// nonceHeap adapted from https://pkg.go.dev/container/heap#example-package-IntHeap
type nonceHeap []uint64

func (h nonceHeap) Len() int           { return len(h) }
func (h nonceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nonceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *nonceHeap) Push(x any) {
	*h = append(*h, x.(uint64))
}

func (h *nonceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
