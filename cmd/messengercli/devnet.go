// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/messenger"
	"github.com/luxfi/messenger/backend"
	"github.com/luxfi/messenger/bridge"
	"github.com/luxfi/messenger/config"
	"github.com/luxfi/messenger/database"
	"github.com/luxfi/messenger/example"
	"github.com/luxfi/messenger/relayer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const devGenesisTime = 1_700_000_000

var (
	devMessengerAddress = common.HexToAddress("0x0000000000000000000000000000000000003e55")
	devAdminAddress     = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	devRelayerAddress   = common.HexToAddress("0x0000000000000000000000000000000000004e1a")
	devAdapterAddress   = common.HexToAddress("0x00000000000000000000000000000000000000e7")
	devDepositor        = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	devOriginChainID = ids.ID{'o', 'r', 'i', 'g', 'i', 'n'}
	devDestChainID   = ids.ID{'d', 'e', 's', 't'}
)

// devnet is an origin and a destination chain with a messenger and an ETH
// deposit adapter on each, and a relayer between them.
type devnet struct {
	originChain *backend.MemoryChain
	destChain   *backend.MemoryChain
	origin      *bridge.Messenger
	dest        *bridge.Messenger
	adapter     *example.ETHDepositAdapter
	receiver    *example.ETHDepositAdapter
	relayer     *relayer.Relayer
	verifier    *relayer.VerificationClient
	registry    *prometheus.Registry
}

func devRelayerID(cfg *config.Config) database.RelayerID {
	return database.NewRelayerID(devOriginChainID, devDestChainID, cfg.BridgeConfig().Address)
}

func newDevnet(logger *zap.Logger, cfg *config.Config, db database.RelayerDatabase) (*devnet, error) {
	registry := prometheus.NewRegistry()
	bridgeCfg := cfg.BridgeConfig()
	relayCfg := cfg.RelayConfig()
	if bridgeCfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%s must be set", config.MessengerAdminKey)
	}

	d := &devnet{
		originChain: backend.NewMemoryChain(devOriginChainID, devGenesisTime),
		destChain:   backend.NewMemoryChain(devDestChainID, devGenesisTime),
		registry:    registry,
	}
	var err error
	d.origin, err = bridge.New(
		logger.Named("origin"),
		d.originChain,
		bridgeCfg,
		prometheus.WrapRegistererWith(prometheus.Labels{"side": "origin"}, registry),
	)
	if err != nil {
		return nil, err
	}
	d.dest, err = bridge.New(
		logger.Named("destination"),
		d.destChain,
		bridgeCfg,
		prometheus.WrapRegistererWith(prometheus.Labels{"side": "destination"}, registry),
	)
	if err != nil {
		return nil, err
	}

	admin := bridgeCfg.Admin
	if err := d.origin.AuthoriseBridges(admin, devAdapterAddress); err != nil {
		return nil, err
	}
	if err := d.dest.AuthoriseBridges(admin, devAdapterAddress); err != nil {
		return nil, err
	}
	if err := d.dest.GrantRelayerRole(admin, relayCfg.RelayerAddress); err != nil {
		return nil, err
	}
	if err := d.dest.GrantRole(admin, messenger.RoleAnchor, relayCfg.RelayerAddress); err != nil {
		return nil, err
	}

	d.adapter = example.NewETHDepositAdapter(logger.Named("origin"), devAdapterAddress, d.origin)
	d.receiver = example.NewETHDepositAdapter(logger.Named("destination"), devAdapterAddress, d.dest)
	d.destChain.Deploy(devAdapterAddress, d.receiver)
	d.originChain.Mint(devDepositor, new(uint256.Int).Lsh(uint256.NewInt(1), 100))

	metrics := relayer.NewRelayerMetrics(registry)
	d.verifier, err = relayer.NewVerificationClient(logger.Named("verifier"), d.dest, cfg.VerificationConfig(), metrics)
	if err != nil {
		return nil, err
	}
	d.relayer, err = relayer.NewRelayer(logger.Named("relayer"), relayCfg, d.origin, d.dest, db, d.verifier, metrics)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// advance produces a block on both chains.
func (d *devnet) advance(dt uint64) {
	d.originChain.AdvanceBlock(dt)
	d.destChain.AdvanceBlock(dt)
}
