// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/messenger/config"
	"github.com/luxfi/messenger/feecredit"
	"github.com/luxfi/messenger/registry"
	"github.com/spf13/cobra"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute the fee credit a message must escrow",
		Long: `Compute the fee credit for a destination gas limit using the configured
oracle. Omitting either fee selects the oracle defaults for both.`,
		RunE: runQuote,
	}
	cmd.Flags().AddFlagSet(config.BuildFlagSet())
	cmd.Flags().Uint64("gas-limit", 0, "Destination gas limit")
	cmd.Flags().String("max-fee-per-gas", "0", "Maximum fee per gas (decimal)")
	cmd.Flags().String("max-priority-fee-per-gas", "0", "Maximum priority fee per gas (decimal)")
	_ = cmd.MarkFlagRequired("gas-limit")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gasLimit, _ := cmd.Flags().GetUint64("gas-limit")
	maxFee, err := decimalFlag(cmd, "max-fee-per-gas")
	if err != nil {
		return err
	}
	priorityFee, err := decimalFlag(cmd, "max-priority-fee-per-gas")
	if err != nil {
		return err
	}

	bridgeCfg := cfg.BridgeConfig()
	oracle, err := feecredit.New(bridgeCfg.Oracle, registry.New(bridgeCfg.Admin))
	if err != nil {
		return err
	}
	quote, err := oracle.ComputeFeeCredit(gasLimit, maxFee, priorityFee)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fee credit quote:\n")
	fmt.Fprintf(out, "  Gas limit:                %d\n", quote.DestinationGasLimit)
	fmt.Fprintf(out, "  Max fee per gas:          %s\n", quote.MaxFeePerGas)
	fmt.Fprintf(out, "  Max priority fee per gas: %s\n", quote.MaxPriorityFeePerGas)
	fmt.Fprintf(out, "  Fee credit:               %s\n", quote.FeeCredit)
	return nil
}

func decimalFlag(cmd *cobra.Command, name string) (*uint256.Int, error) {
	s, _ := cmd.Flags().GetString(name)
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}
	return v, nil
}
