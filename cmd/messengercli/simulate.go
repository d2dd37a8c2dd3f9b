// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger/config"
	"github.com/luxfi/messenger/database"
	"github.com/luxfi/messenger/utils"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send deposits on a local devnet and relay them",
		Long: `Run an in-memory origin and destination chain, send deposits through the
ETH deposit adapter, relay them once final and confirm each relay.`,
		RunE: runSimulate,
	}
	cmd.Flags().AddFlagSet(config.BuildFlagSet())
	cmd.Flags().Int("deposits", 3, "Number of deposits to send")
	cmd.Flags().Uint64("amount", 1_000_000_000, "Amount of each deposit")
	cmd.Flags().Uint64("block-time", 2, "Seconds between devnet blocks")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	deposits, _ := cmd.Flags().GetInt("deposits")
	amount, _ := cmd.Flags().GetUint64("amount")
	blockTime, _ := cmd.Flags().GetUint64("block-time")

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// each run starts a fresh devnet, so progress is not kept across runs
	dir, err := os.MkdirTemp("", "messenger-simulate")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	db, err := database.NewJSONFileStorage(logger, filepath.Join(dir, "db"), []database.RelayerID{devRelayerID(&cfg)})
	if err != nil {
		return err
	}
	d, err := newDevnet(logger, &cfg, db)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	hashes := make([]common.Hash, 0, deposits)
	for i := 0; i < deposits; i++ {
		recipient := common.BytesToAddress([]byte{0xbe, byte(i + 1)})
		hash, nonce, err := d.adapter.Deposit(ctx, devDepositor, recipient, uint256.NewInt(amount))
		if err != nil {
			return fmt.Errorf("deposit %d failed: %w", i, err)
		}
		fmt.Fprintf(out, "sent     nonce=%d hash=%s\n", nonce, hash.Hex())
		hashes = append(hashes, hash)
	}

	// bury the deposits under the finality depth
	for i := uint64(0); i <= cfg.Relayer.FinalityDepth; i++ {
		d.advance(blockTime)
	}
	n, err := d.relayer.ProcessOnce(ctx)
	if err != nil {
		return err
	}
	if err := d.relayer.Flush(); err != nil {
		return err
	}

	for _, hash := range hashes {
		fmt.Fprintf(out, "relayed  hash=%s state=%s\n", hash.Hex(), d.dest.MessageState(hash))
	}
	fmt.Fprintf(out, "processed %d messages, next nonce %d, credited %d deposits\n", n, d.relayer.NextNonce(), d.receiver.Credited())
	return nil
}
