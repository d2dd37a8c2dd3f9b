// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonceQueueAdvance(t *testing.T) {
	testCases := []struct {
		name            string
		next            uint64
		pushed          []uint64
		expectedNext    uint64
		expectedPending int
	}{
		{
			name:         "empty",
			next:         3,
			expectedNext: 3,
		},
		{
			name:         "contiguous out of order",
			next:         0,
			pushed:       []uint64{2, 0, 1},
			expectedNext: 3,
		},
		{
			name:            "gap holds later nonces",
			next:            0,
			pushed:          []uint64{0, 2, 3},
			expectedNext:    1,
			expectedPending: 2,
		},
		{
			name:         "duplicates",
			next:         5,
			pushed:       []uint64{5, 5, 6, 6},
			expectedNext: 7,
		},
		{
			name:         "stale nonces discarded",
			next:         10,
			pushed:       []uint64{1, 4, 10},
			expectedNext: 11,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			var q NonceQueue
			for _, n := range test.pushed {
				q.Push(n)
			}
			require.Equal(t, test.expectedNext, q.Advance(test.next))
			require.Equal(t, test.expectedPending, q.Len())
		})
	}
}

func TestNonceQueueFillsGap(t *testing.T) {
	require := require.New(t)

	var q NonceQueue
	q.Push(1)
	q.Push(2)
	require.Equal(uint64(0), q.Advance(0))
	require.Equal(2, q.Len())

	q.Push(0)
	require.Equal(uint64(3), q.Advance(0))
	require.Zero(q.Len())
}
