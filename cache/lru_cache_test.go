package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		invalidate    bool
		expectedValue int
		expectedCount int
	}{
		{
			name:          "fresh cache, fetch",
			key:           "test1",
			expectedValue: 42,
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			key:           "test1",
			expectedValue: 42,
			expectedCount: 1,
		},
		{
			name:          "invalidate=true, fetch again",
			key:           "test1",
			invalidate:    true,
			expectedValue: 42,
			expectedCount: 2,
		},
		{
			name:          "different key, fetch",
			key:           "test2",
			expectedValue: 42,
			expectedCount: 3,
		},
	}

	cache, err := NewLRUCache[string, int](10)
	require.NoError(t, err)
	fetchCount := 0
	fetchFunc := func(string) (int, error) {
		fetchCount++
		return 42, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			val, err := cache.Get(tt.key, fetchFunc, tt.invalidate)
			require.NoError(err)
			require.Equal(tt.expectedValue, val)
			require.Equal(tt.expectedCount, fetchCount)
		})
	}
}

func TestLRUCacheErrorsNotCached(t *testing.T) {
	require := require.New(t)

	cache, err := NewLRUCache[common.Hash, bool](2)
	require.NoError(err)
	key := common.HexToHash("0x01")

	_, err = cache.Get(key, func(common.Hash) (bool, error) { return false, errors.New("rpc down") }, false)
	require.Error(err)
	require.False(cache.Contains(key))

	val, err := cache.Get(key, func(common.Hash) (bool, error) { return true, nil }, false)
	require.NoError(err)
	require.True(val)
	require.True(cache.Contains(key))
}

func TestLRUCacheEviction(t *testing.T) {
	require := require.New(t)

	cache, err := NewLRUCache[int, int](2)
	require.NoError(err)
	for i := 0; i < 3; i++ {
		_, err := cache.Get(i, func(k int) (int, error) { return k, nil }, false)
		require.NoError(err)
	}
	require.Equal(2, cache.Len())
	require.False(cache.Contains(0))

	_, err = NewLRUCache[int, int](0)
	require.Error(err)
}

func TestLRUCacheSingleFlight(t *testing.T) {
	require := require.New(t)

	cache, err := NewLRUCache[string, int](4)
	require.NoError(err)

	var (
		fetches atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)
	fetch := func(string) (int, error) {
		fetches.Add(1)
		<-release
		return 7, nil
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Get("k", fetch, false)
			require.NoError(err)
			require.Equal(7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(int32(1), fetches.Load())
}
