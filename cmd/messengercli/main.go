// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/luxfi/messenger/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "messenger",
		Short: "Cross-chain message relay CLI",
		Long: `messenger quotes fee credits, runs a local two-chain devnet with a relayer,
and verifies that messages have been relayed on a destination chain.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newQuoteCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// loadConfig reads the configuration bound to cmd's flags. Keys the devnet
// needs fall back to devnet addresses when unset.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	setDevnetDefaults(v)
	return config.NewConfig(v)
}

func setDevnetDefaults(v *viper.Viper) {
	for key, addr := range map[string]string{
		config.MessengerAddressKey: devMessengerAddress.Hex(),
		config.MessengerAdminKey:   devAdminAddress.Hex(),
		config.RelayerAddressKey:   devRelayerAddress.Hex(),
	} {
		if !v.IsSet(key) {
			v.Set(key, addr)
		}
	}
}
