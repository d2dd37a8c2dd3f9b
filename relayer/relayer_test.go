// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package relayer

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/backend"
	"github.com/luxfi/messenger/bridge"
	"github.com/luxfi/messenger/database"
	"github.com/luxfi/messenger/feecredit"
	"github.com/luxfi/messenger/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const genesisTime = 1_700_000_000

var (
	admin         = common.HexToAddress("0xad")
	adapter       = common.HexToAddress("0xada9")
	relayerAddr   = common.HexToAddress("0x4e1a")
	messengerAddr = common.HexToAddress("0x3e55")
)

type countingReceiver struct {
	calls atomic.Int32
}

func (r *countingReceiver) ReceiveMessage(context.Context, *backend.Call) (uint64, error) {
	r.calls.Add(1)
	return 21_000, nil
}

type relayEnv struct {
	originChain *backend.MemoryChain
	destChain   *backend.MemoryChain
	origin      *bridge.Messenger
	dest        *bridge.Messenger
	receiver    *countingReceiver
	db          database.RelayerDatabase
}

func newRelayEnv(t *testing.T, requireProof bool) *relayEnv {
	require := require.New(t)

	cfg := bridge.Config{
		Address:           messengerAddr,
		Admin:             admin,
		MaxProcessingTime: 3600,
		MaxGasLimit:       10_000_000,
		Oracle: feecredit.Config{
			DefaultMaxFeePerGas:         uint256.NewInt(100),
			DefaultMaxPriorityFeePerGas: uint256.NewInt(10),
		},
	}
	env := &relayEnv{
		originChain: backend.NewMemoryChain(ids.ID{1}, genesisTime),
		destChain:   backend.NewMemoryChain(ids.ID{2}, genesisTime),
		receiver:    &countingReceiver{},
	}
	var err error
	env.origin, err = bridge.New(zap.NewNop(), env.originChain, cfg, prometheus.NewRegistry())
	require.NoError(err)
	cfg.RequireInclusionProof = requireProof
	env.dest, err = bridge.New(zap.NewNop(), env.destChain, cfg, prometheus.NewRegistry())
	require.NoError(err)

	require.NoError(env.origin.AuthoriseBridges(admin, adapter))
	require.NoError(env.dest.AuthoriseBridges(admin, adapter))
	require.NoError(env.dest.GrantRelayerRole(admin, relayerAddr))
	require.NoError(env.dest.GrantRole(admin, messenger.RoleAnchor, relayerAddr))
	env.destChain.Deploy(adapter, env.receiver)
	env.originChain.Mint(adapter, uint256.NewInt(1_000_000_000_000))

	env.db = newTestRelayerDB(t)
	return env
}

func newTestRelayerDB(t *testing.T) database.RelayerDatabase {
	relayerID := database.NewRelayerID(ids.ID{1}, ids.ID{2}, messengerAddr)
	db, err := database.NewJSONFileStorage(zap.NewNop(), filepath.Join(t.TempDir(), "db"), []database.RelayerID{relayerID})
	require.NoError(t, err)
	return db
}

func (e *relayEnv) send(t *testing.T, n int) []common.Hash {
	hashes := make([]common.Hash, 0, n)
	for i := 0; i < n; i++ {
		hash, _, err := e.origin.SendMessage(context.Background(), &bridge.SendRequest{
			Origin:        adapter,
			Target:        adapter,
			MessageType:   messenger.Deposit,
			Payload:       []byte{byte(i)},
			GasLimit:      1_000_000,
			AttachedValue: uint256.NewInt(100_000_000),
		})
		require.NoError(t, err)
		hashes = append(hashes, hash)
	}
	return hashes
}

func testRelayerConfig() Config {
	cfg := DefaultConfig()
	cfg.RelayerAddress = relayerAddr
	cfg.PollInterval = 5 * time.Millisecond
	cfg.DBWriteInterval = 5 * time.Millisecond
	cfg.RelayBackoff = utils.BackoffConfig{
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxAttempts: 3,
	}
	return cfg
}

func (e *relayEnv) newRelayer(t *testing.T, cfg Config, dest Destination, verifier *VerificationClient) *Relayer {
	r, err := NewRelayer(zap.NewNop(), cfg, e.origin, dest, e.db, verifier, NewRelayerMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	return r
}

func TestProcessOnceWaitsForFinality(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)
	cfg := testRelayerConfig()
	cfg.FinalityDepth = 2
	r := env.newRelayer(t, cfg, env.dest, nil)

	hashes := env.send(t, 3)
	n, err := r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Zero(n)

	env.originChain.AdvanceBlock(2)
	n, err = r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Zero(n)

	env.originChain.AdvanceBlock(2)
	n, err = r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(3, n)
	for _, hash := range hashes {
		relayed, err := env.dest.IsDepositMessageRelayed(context.Background(), hash)
		require.NoError(err)
		require.True(relayed)
	}
	require.Equal(uint64(3), r.NextNonce())
	require.Equal(int32(3), env.receiver.calls.Load())

	// nothing new
	n, err = r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Zero(n)
	require.Equal(int32(3), env.receiver.calls.Load())
}

func TestProcessOnceResumesFromCheckpoint(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)

	first := env.newRelayer(t, testRelayerConfig(), env.dest, nil)
	env.send(t, 2)
	env.originChain.AdvanceBlock(2)
	n, err := first.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(2, n)
	require.NoError(first.Flush())

	restarted := env.newRelayer(t, testRelayerConfig(), env.dest, nil)
	require.Equal(uint64(2), restarted.NextNonce())
	hashes := env.send(t, 1)
	env.originChain.AdvanceBlock(2)
	n, err = restarted.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(1, n)
	require.Equal(uint64(3), restarted.NextNonce())
	require.Equal(messenger.Relayed, env.dest.MessageState(hashes[0]))
	require.Equal(int32(3), env.receiver.calls.Load())
}

func TestProcessOnceAlreadyRelayed(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)
	r := env.newRelayer(t, testRelayerConfig(), env.dest, nil)

	env.send(t, 1)
	env.originChain.AdvanceBlock(2)
	sent := env.originChain.Logs(0)[0].Event.(*messenger.MessageSent)
	_, err := env.dest.RelayMessage(context.Background(), &bridge.RelayRequest{Caller: relayerAddr, Message: sent.Message()})
	require.NoError(err)

	n, err := r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(1, n)
	require.Equal(uint64(1), r.NextNonce())
	require.Equal(int32(1), env.receiver.calls.Load())
}

func TestProcessOnceTerminalOutcomes(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(t *testing.T, env *relayEnv)
	}{
		{
			name: "expired",
			setup: func(t *testing.T, env *relayEnv) {
				env.destChain.SetTime(genesisTime + 3601)
			},
		},
		{
			name: "target revoked on destination",
			setup: func(t *testing.T, env *relayEnv) {
				require.NoError(t, env.dest.RevokeBridge(admin, adapter))
			},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)
			env := newRelayEnv(t, false)
			r := env.newRelayer(t, testRelayerConfig(), env.dest, nil)

			hashes := env.send(t, 2)
			env.originChain.AdvanceBlock(2)
			test.setup(t, env)

			n, err := r.ProcessOnce(context.Background())
			require.NoError(err)
			require.Equal(2, n)
			require.Equal(uint64(2), r.NextNonce())
			for _, hash := range hashes {
				relayed, err := env.dest.IsDepositMessageRelayed(context.Background(), hash)
				require.NoError(err)
				require.False(relayed)
			}
			require.Zero(env.receiver.calls.Load())
		})
	}
}

// flakyDestination fails the first failures relay calls with a transport error.
type flakyDestination struct {
	*bridge.Messenger
	failures atomic.Int32
	calls    atomic.Int32
}

func (d *flakyDestination) RelayMessage(ctx context.Context, req *bridge.RelayRequest) (*bridge.RelayReceipt, error) {
	d.calls.Add(1)
	if d.failures.Add(-1) >= 0 {
		return nil, errRPCUnavailable
	}
	return d.Messenger.RelayMessage(ctx, req)
}

func TestProcessOnceRetriesTransientFailures(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)
	dest := &flakyDestination{Messenger: env.dest}
	dest.failures.Store(2)
	r := env.newRelayer(t, testRelayerConfig(), dest, nil)

	env.send(t, 1)
	env.originChain.AdvanceBlock(2)
	n, err := r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(1, n)
	require.Equal(int32(3), dest.calls.Load())
	require.Equal(uint64(1), r.NextNonce())
}

func TestProcessOnceRetriesBatchAfterExhaustion(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)
	dest := &flakyDestination{Messenger: env.dest}
	dest.failures.Store(3)
	r := env.newRelayer(t, testRelayerConfig(), dest, nil)

	hashes := env.send(t, 1)
	env.originChain.AdvanceBlock(2)
	_, err := r.ProcessOnce(context.Background())
	require.ErrorIs(err, errRPCUnavailable)
	require.Zero(r.NextNonce())
	require.Equal(messenger.Sent, env.origin.MessageState(hashes[0]))

	n, err := r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(1, n)
	require.Equal(uint64(1), r.NextNonce())
	require.Equal(messenger.Relayed, env.dest.MessageState(hashes[0]))
}

func TestProcessOnceWithInclusionProofs(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, true)

	// without proofs every relay is rejected
	plain := env.newRelayer(t, testRelayerConfig(), env.dest, nil)
	hashes := env.send(t, 3)
	env.originChain.AdvanceBlock(2)
	n, err := plain.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(3, n)
	require.Zero(env.receiver.calls.Load())

	env.db = newTestRelayerDB(t)
	cfg := testRelayerConfig()
	cfg.AttachProofs = true
	cfg.AnchorRoots = true
	r := env.newRelayer(t, cfg, env.dest, nil)
	n, err = r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(3, n)
	require.Equal(int32(3), env.receiver.calls.Load())
	for _, hash := range hashes {
		require.Equal(messenger.Relayed, env.dest.MessageState(hash))
	}

	root, err := env.origin.RootAt(3)
	require.NoError(err)
	require.True(env.dest.IsAnchoredRoot(root))
	anchored, err := database.GetUint64(env.db, r.relayerID, database.AnchoredSizeKey)
	require.NoError(err)
	require.Equal(uint64(3), anchored)
}

func TestProcessOnceVerifiesDelivery(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)
	verifier := newTestVerifier(t, env.dest, 3)
	r := env.newRelayer(t, testRelayerConfig(), env.dest, verifier)

	hashes := env.send(t, 2)
	env.originChain.AdvanceBlock(2)
	n, err := r.ProcessOnce(context.Background())
	require.NoError(err)
	require.Equal(2, n)
	for _, hash := range hashes {
		require.True(verifier.relayed.Contains(hash))
	}
}

func TestRunRelaysUntilCanceled(t *testing.T) {
	require := require.New(t)
	env := newRelayEnv(t, false)
	r := env.newRelayer(t, testRelayerConfig(), env.dest, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	hashes := env.send(t, 2)
	env.originChain.AdvanceBlock(2)
	require.Eventually(func() bool {
		return env.dest.MessageState(hashes[1]) == messenger.Relayed
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(<-done)
	next, err := database.GetNextNonce(env.db, r.relayerID)
	require.NoError(err)
	require.Equal(uint64(2), next)
}

func TestNewRelayerRequiresAddress(t *testing.T) {
	env := newRelayEnv(t, false)
	cfg := testRelayerConfig()
	cfg.RelayerAddress = common.Address{}
	_, err := NewRelayer(zap.NewNop(), cfg, env.origin, env.dest, env.db, nil, NewRelayerMetrics(prometheus.NewRegistry()))
	require.Error(t, err)
}
