// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/api"
	"github.com/luxfi/messenger/config"
	"github.com/luxfi/messenger/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Setenv("LOG_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuote(t *testing.T) {
	t.Setenv("ORACLE_DEFAULT_MAX_FEE_PER_GAS", "100")
	t.Setenv("ORACLE_DEFAULT_MAX_PRIORITY_FEE_PER_GAS", "10")
	t.Setenv("ORACLE_MIN_MAX_FEE_PER_GAS", "50")

	testCases := []struct {
		name        string
		args        []string
		expected    string
		expectedErr error
	}{
		{
			name:     "oracle defaults",
			args:     []string{"--gas-limit=1000000"},
			expected: "100000000",
		},
		{
			name:     "user fees",
			args:     []string{"--gas-limit=1000", "--max-fee-per-gas=70", "--max-priority-fee-per-gas=5"},
			expected: "70000",
		},
		{
			name:        "below floor",
			args:        []string{"--gas-limit=1000", "--max-fee-per-gas=49", "--max-priority-fee-per-gas=5"},
			expectedErr: messenger.ErrFeeBelowMinimum,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"quote"}, test.args...)...)
			require.ErrorIs(t, err, test.expectedErr)
			if test.expectedErr == nil {
				require.Contains(t, out, "Fee credit:               "+test.expected)
			}
		})
	}
}

func TestQuoteInvalidFlag(t *testing.T) {
	_, err := execute(t, "quote", "--gas-limit=1", "--max-fee-per-gas=abc")
	require.ErrorContains(t, err, "max-fee-per-gas")

	_, err = execute(t, "quote")
	require.Error(t, err)
}

func TestSimulate(t *testing.T) {
	require := require.New(t)
	out, err := execute(t, "simulate", "--deposits=4")
	require.NoError(err)
	require.Contains(out, "processed 4 messages, next nonce 4, credited 4 deposits")
	require.Contains(out, "state=Relayed")
	require.NotContains(out, "state=Sent")
}

func TestSimulateWithProofs(t *testing.T) {
	t.Setenv("MESSENGER_REQUIRE_INCLUSION_PROOF", "true")
	t.Setenv("RELAYER_ATTACH_PROOFS", "true")
	t.Setenv("RELAYER_ANCHOR_ROOTS", "true")
	t.Setenv("RELAYER_FINALITY_DEPTH", "3")

	out, err := execute(t, "simulate", "--deposits=2")
	require.NoError(t, err)
	require.Contains(t, out, "credited 2 deposits")
}

func TestVerify(t *testing.T) {
	require := require.New(t)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("VERIFIER_BASE_DELAY", "1ms")
	t.Setenv("VERIFIER_MAX_DELAY", "2ms")
	t.Setenv("VERIFIER_MAX_ATTEMPTS", "2")

	fs := config.BuildFlagSet()
	v, err := config.BuildViper(fs)
	require.NoError(err)
	setDevnetDefaults(v)
	cfg, err := config.NewConfig(v)
	require.NoError(err)
	db, err := database.NewJSONFileStorage(zap.NewNop(), filepath.Join(t.TempDir(), "db"), []database.RelayerID{devRelayerID(&cfg)})
	require.NoError(err)
	d, err := newDevnet(zap.NewNop(), &cfg, db)
	require.NoError(err)

	server := httptest.NewServer(api.NewRouter(zap.NewNop(), d.dest, nil, nil))
	defer server.Close()

	hash, _, err := d.adapter.Deposit(context.Background(), devDepositor, common.HexToAddress("0xbe"), uint256.NewInt(1))
	require.NoError(err)

	_, err = execute(t, "verify", "--endpoint="+server.URL, "--hash="+hash.Hex())
	require.ErrorIs(err, messenger.ErrVerificationTimeout)

	d.advance(2)
	_, err = d.relayer.ProcessOnce(context.Background())
	require.NoError(err)

	out, err := execute(t, "verify", "--endpoint="+server.URL, "--hash="+hash.Hex())
	require.NoError(err)
	require.Contains(out, "relayed")

	_, err = execute(t, "verify", "--hash=0x1234")
	require.ErrorContains(err, "invalid --hash")
}

type pingingDB struct {
	database.RelayerDatabase
	pings int
	errs  []error
}

func (db *pingingDB) Ping(context.Context) error {
	db.pings++
	if len(db.errs) == 0 {
		return nil
	}
	err := db.errs[0]
	db.errs = db.errs[1:]
	return err
}

func TestWaitForDatabase(t *testing.T) {
	errRefused := errors.New("connection refused")

	testCases := []struct {
		name          string
		errs          []error
		expectedErr   error
		expectedPings int
	}{
		{
			name:          "reachable",
			expectedPings: 1,
		},
		{
			name:          "reachable after retry",
			errs:          []error{errRefused},
			expectedPings: 2,
		},
		{
			name:          "permanent failure",
			errs:          []error{backoff.Permanent(errRefused)},
			expectedErr:   errRefused,
			expectedPings: 1,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)
			db := &pingingDB{errs: test.errs}
			err := waitForDatabase(zap.NewNop(), db)
			require.ErrorIs(err, test.expectedErr)
			require.Equal(test.expectedPings, db.pings)
		})
	}

	// file storage has nothing to ping
	files, err := database.NewJSONFileStorage(zap.NewNop(), filepath.Join(t.TempDir(), "db"), nil)
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(zap.NewNop(), files))
}
