// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/backend"
	"github.com/luxfi/messenger/bridge"
	"github.com/luxfi/messenger/feecredit"
	"github.com/luxfi/messenger/relayer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const genesisTime = 1_700_000_000

var (
	admin       = common.HexToAddress("0xad")
	adapter     = common.HexToAddress("0xada9")
	relayerAddr = common.HexToAddress("0x4e1a")
)

type nopReceiver struct{}

func (nopReceiver) ReceiveMessage(context.Context, *backend.Call) (uint64, error) {
	return 21_000, nil
}

type apiEnv struct {
	dest     *bridge.Messenger
	registry *prometheus.Registry
	server   *httptest.Server
}

func newAPIEnv(t *testing.T) *apiEnv {
	require := require.New(t)
	chain := backend.NewMemoryChain(ids.ID{2}, genesisTime)
	registry := prometheus.NewRegistry()
	dest, err := bridge.New(zap.NewNop(), chain, bridge.Config{
		Address:           common.HexToAddress("0x3e55"),
		Admin:             admin,
		MaxProcessingTime: 3600,
		MaxGasLimit:       10_000_000,
		Oracle: feecredit.Config{
			DefaultMaxFeePerGas:         uint256.NewInt(100),
			DefaultMaxPriorityFeePerGas: uint256.NewInt(10),
		},
	}, registry)
	require.NoError(err)
	require.NoError(dest.AuthoriseBridges(admin, adapter))
	require.NoError(dest.GrantRelayerRole(admin, relayerAddr))
	chain.Deploy(adapter, nopReceiver{})

	server := httptest.NewServer(NewRouter(zap.NewNop(), dest, registry, nil))
	t.Cleanup(server.Close)
	return &apiEnv{dest: dest, registry: registry, server: server}
}

func testMessage(nonce uint64) *messenger.Message {
	return &messenger.Message{
		Sender:      adapter,
		Target:      adapter,
		MessageType: messenger.Deposit,
		Nonce:       nonce,
		FeeCredit: messenger.FeeCreditData{
			DestinationGasLimit:  100_000,
			MaxFeePerGas:         uint256.NewInt(100),
			MaxPriorityFeePerGas: uint256.NewInt(10),
			FeeCredit:            uint256.NewInt(10_000_000),
		},
		CreatedAt:  genesisTime,
		ExpiryTime: genesisTime + 3600,
	}
}

func (e *apiEnv) relay(t *testing.T, msg *messenger.Message) {
	_, err := e.dest.RelayMessage(context.Background(), &bridge.RelayRequest{Caller: relayerAddr, Message: msg})
	require.NoError(t, err)
}

func getJSON(t *testing.T, url string, v any) int {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestMessageRelayedEndpoint(t *testing.T) {
	require := require.New(t)
	env := newAPIEnv(t)
	msg := testMessage(0)
	hash := msg.Hash()

	var resp MessageRelayedResponse
	require.Equal(http.StatusOK, getJSON(t, env.server.URL+"/v1/messages/"+hash.Hex()+"/relayed", &resp))
	require.False(resp.Relayed)
	require.Equal("Unsent", resp.State)

	env.relay(t, msg)
	require.Equal(http.StatusOK, getJSON(t, env.server.URL+"/v1/messages/"+hash.Hex()+"/relayed", &resp))
	require.True(resp.Relayed)
	require.Equal("Relayed", resp.State)
	require.Equal(hash.Hex(), resp.Hash)
}

func TestBadRequests(t *testing.T) {
	env := newAPIEnv(t)
	testCases := []struct {
		name string
		path string
	}{
		{
			name: "hash without prefix",
			path: "/v1/messages/" + common.Hash{1}.Hex()[2:] + "/relayed",
		},
		{
			name: "short hash",
			path: "/v1/messages/0x1234/relayed",
		},
		{
			name: "bridge not an address",
			path: "/v1/bridges/adapter",
		},
		{
			name: "relayer not an address",
			path: "/v1/relayers/0xzz",
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			var resp ErrorResponse
			require.Equal(t, http.StatusBadRequest, getJSON(t, env.server.URL+test.path, &resp))
			require.NotEmpty(t, resp.Error)
		})
	}
}

func TestRoleEndpoints(t *testing.T) {
	require := require.New(t)
	env := newAPIEnv(t)

	var bridgeResp BridgeResponse
	require.Equal(http.StatusOK, getJSON(t, env.server.URL+"/v1/bridges/"+adapter.Hex(), &bridgeResp))
	require.True(bridgeResp.Authorised)
	require.Equal(http.StatusOK, getJSON(t, env.server.URL+"/v1/bridges/"+relayerAddr.Hex(), &bridgeResp))
	require.False(bridgeResp.Authorised)

	var relayerResp RelayerResponse
	require.Equal(http.StatusOK, getJSON(t, env.server.URL+"/v1/relayers/"+relayerAddr.Hex(), &relayerResp))
	require.True(relayerResp.Relayer)
	require.Equal(http.StatusOK, getJSON(t, env.server.URL+"/v1/relayers/"+adapter.Hex(), &relayerResp))
	require.False(relayerResp.Relayer)
}

func TestHealthAndMetrics(t *testing.T) {
	require := require.New(t)
	env := newAPIEnv(t)
	env.relay(t, testMessage(0))

	require.Equal(http.StatusOK, getJSON(t, env.server.URL+HealthPath, nil))

	resp, err := http.Get(env.server.URL + MetricsPath)
	require.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Contains(string(body), "relayed_message_count")
}

func TestHealthFailing(t *testing.T) {
	server := httptest.NewServer(NewRouter(zap.NewNop(), newAPIEnv(t).dest, nil, func(context.Context) error {
		return io.ErrUnexpectedEOF
	}))
	defer server.Close()

	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, server.URL+HealthPath, nil))
	require.Equal(t, http.StatusNotFound, getJSON(t, server.URL+MetricsPath, nil))
}

func TestClient(t *testing.T) {
	require := require.New(t)
	env := newAPIEnv(t)
	client := NewClient(env.server.URL+"/", nil, time.Hour)
	ctx := context.Background()

	msg := testMessage(0)
	relayed, err := client.IsDepositMessageRelayed(ctx, msg.Hash())
	require.NoError(err)
	require.False(relayed)
	env.relay(t, msg)
	relayed, err = client.IsDepositMessageRelayed(ctx, msg.Hash())
	require.NoError(err)
	require.True(relayed)

	isRelayer, err := client.HasRelayerRole(ctx, relayerAddr)
	require.NoError(err)
	require.True(isRelayer)

	authorised, err := client.IsAuthorisedBridge(ctx, adapter)
	require.NoError(err)
	require.True(authorised)

	// membership is served from cache until the TTL passes
	require.NoError(env.dest.RevokeBridge(admin, adapter))
	authorised, err = client.IsAuthorisedBridge(ctx, adapter)
	require.NoError(err)
	require.True(authorised)

	uncached := NewClient(env.server.URL, nil, 0)
	authorised, err = uncached.IsAuthorisedBridge(ctx, adapter)
	require.NoError(err)
	require.False(authorised)

	// the expired bridge lookup is swept by the next miss
	_, err = uncached.HasRelayerRole(ctx, relayerAddr)
	require.NoError(err)
	require.Equal(1, uncached.roles.Prune())
}

func TestClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(zap.NewNop(), w, http.StatusInternalServerError, "registry unavailable")
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, time.Hour)
	_, err := client.IsDepositMessageRelayed(context.Background(), common.Hash{1})
	require.ErrorContains(t, err, "registry unavailable")

	// failed lookups are not cached
	_, err = client.HasRelayerRole(context.Background(), relayerAddr)
	require.Error(t, err)
	require.Zero(t, client.roles.Prune())
}

func TestClientDrivesVerification(t *testing.T) {
	require := require.New(t)
	env := newAPIEnv(t)
	client := NewClient(env.server.URL, nil, time.Hour)

	verifier, err := relayer.NewVerificationClient(zap.NewNop(), client, relayer.VerifierConfig{
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxAttempts: 3,
		CacheSize:   8,
	}, nil)
	require.NoError(err)

	msg := testMessage(7)
	err = verifier.WaitForRelay(context.Background(), msg.Hash())
	require.ErrorIs(err, messenger.ErrVerificationTimeout)

	env.relay(t, msg)
	require.NoError(verifier.WaitForRelay(context.Background(), msg.Hash()))
}
