// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/messenger/api"
	"github.com/luxfi/messenger/config"
	"github.com/luxfi/messenger/relayer"
	"github.com/luxfi/messenger/utils"
	"github.com/spf13/cobra"
)

const requestTimeout = 10 * time.Second

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Wait until a message is relayed on a destination chain",
		Long: `Poll a destination messenger's verification API until the message is
relayed, backing off exponentially between attempts. Fails with a verification
timeout once the attempt budget is spent.`,
		RunE: runVerify,
	}
	cmd.Flags().AddFlagSet(config.BuildFlagSet())
	cmd.Flags().String("endpoint", "http://localhost:8080", "Base URL of the destination verification API")
	cmd.Flags().String("hash", "", "Message hash (0x-prefixed hex)")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	endpoint, _ := cmd.Flags().GetString("endpoint")
	hashHex, _ := cmd.Flags().GetString("hash")
	b, err := hexutil.Decode(hashHex)
	if err != nil || len(b) != common.HashLength {
		return fmt.Errorf("invalid --hash %q", hashHex)
	}
	hash := common.BytesToHash(b)

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client := api.NewClient(endpoint, &http.Client{Timeout: requestTimeout}, api.DefaultRoleTTL)
	verifier, err := relayer.NewVerificationClient(logger, client, cfg.VerificationConfig(), nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := verifier.WaitForRelay(ctx, hash); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "message %s relayed\n", hash.Hex())
	return nil
}
