// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the messenger, relayer and verification API settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger/bridge"
	"github.com/luxfi/messenger/feecredit"
	"github.com/luxfi/messenger/relayer"
	"github.com/luxfi/messenger/utils"
	"go.uber.org/zap/zapcore"
)

const (
	defaultAPIPort         = uint16(8080)
	defaultMetricsPort     = uint16(9090)
	defaultStorageLocation = "./.messenger-storage"

	DefaultMaxProcessingTimeSeconds = uint64(24 * 60 * 60)
	DefaultMaxGasLimit              = uint64(30_000_000)
	DefaultMaxFeePerGas             = "100000000000"
	DefaultMaxPriorityFeePerGas     = "2000000000"
	defaultFinalityDepth            = uint64(1)
	defaultPollInterval             = time.Second
	defaultDBWriteInterval          = 10 * time.Second
	defaultRelayMaxAttempts         = uint64(5)
	defaultMaxConcurrentRelays      = 16
)

var defaultLogLevel = zapcore.InfoLevel.String()

const usageText = `
Usage:
messenger serve --config-file path-to-config            Starts the relayer and the verification API.
messenger serve --version                               Display messenger version and exit.
messenger serve --help                                  Display messenger usage and exit.
`

var (
	errZeroProcessingTime = errors.New("max processing time must be positive")
	errZeroGasLimit       = errors.New("max gas limit must be positive")
)

type Config struct {
	LogLevel        string          `mapstructure:"log-level" json:"log-level"`
	APIPort         uint16          `mapstructure:"api-port" json:"api-port"`
	MetricsPort     uint16          `mapstructure:"metrics-port" json:"metrics-port"`
	StorageLocation string          `mapstructure:"storage-location" json:"storage-location"`
	RedisURL        string          `mapstructure:"redis-url" json:"redis-url"`
	Messenger       MessengerConfig `mapstructure:"messenger" json:"messenger"`
	Oracle          OracleConfig    `mapstructure:"oracle" json:"oracle"`
	Verifier        VerifierConfig  `mapstructure:"verifier" json:"verifier"`
	Relayer         RelayerConfig   `mapstructure:"relayer" json:"relayer"`

	// Initialized by Validate
	messengerAddress common.Address
	messengerAdmin   common.Address
	relayerAddress   common.Address
	oracle           feecredit.Config
}

type MessengerConfig struct {
	Address                  string `mapstructure:"address" json:"address"`
	Admin                    string `mapstructure:"admin" json:"admin"`
	MaxProcessingTimeSeconds uint64 `mapstructure:"max-processing-time-seconds" json:"max-processing-time-seconds"`
	MaxGasLimit              uint64 `mapstructure:"max-gas-limit" json:"max-gas-limit"`
	RequireInclusionProof    bool   `mapstructure:"require-inclusion-proof" json:"require-inclusion-proof"`
}

// OracleConfig holds fee parameters as decimal strings, since they may not
// fit in 64 bits. An empty string means zero.
type OracleConfig struct {
	DefaultMaxFeePerGas         string `mapstructure:"default-max-fee-per-gas" json:"default-max-fee-per-gas"`
	DefaultMaxPriorityFeePerGas string `mapstructure:"default-max-priority-fee-per-gas" json:"default-max-priority-fee-per-gas"`
	MinMaxFeePerGas             string `mapstructure:"min-max-fee-per-gas" json:"min-max-fee-per-gas"`
	MinMaxPriorityFeePerGas     string `mapstructure:"min-max-priority-fee-per-gas" json:"min-max-priority-fee-per-gas"`
	FeeCap                      string `mapstructure:"fee-cap" json:"fee-cap"`
}

type VerifierConfig struct {
	BaseDelay   time.Duration `mapstructure:"base-delay" json:"base-delay"`
	MaxDelay    time.Duration `mapstructure:"max-delay" json:"max-delay"`
	MaxAttempts uint64        `mapstructure:"max-attempts" json:"max-attempts"`
	CacheSize   int           `mapstructure:"cache-size" json:"cache-size"`
}

type RelayerConfig struct {
	Address             string        `mapstructure:"address" json:"address"`
	FinalityDepth       uint64        `mapstructure:"finality-depth" json:"finality-depth"`
	PollInterval        time.Duration `mapstructure:"poll-interval" json:"poll-interval"`
	DBWriteInterval     time.Duration `mapstructure:"db-write-interval" json:"db-write-interval"`
	RelayMaxAttempts    uint64        `mapstructure:"relay-max-attempts" json:"relay-max-attempts"`
	AttachProofs        bool          `mapstructure:"attach-proofs" json:"attach-proofs"`
	AnchorRoots         bool          `mapstructure:"anchor-roots" json:"anchor-roots"`
	MaxConcurrentRelays int           `mapstructure:"max-concurrent-relays" json:"max-concurrent-relays"`
}

func DisplayUsageText() {
	fmt.Printf("%s\n", usageText)
}

// Validates the configuration
// Does not modify the public fields as derived from the configuration passed to the application,
// but does initialize private fields available through getters.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	var err error
	if c.messengerAddress, err = parseAddress(MessengerAddressKey, c.Messenger.Address, true); err != nil {
		return err
	}
	if c.messengerAdmin, err = parseAddress(MessengerAdminKey, c.Messenger.Admin, false); err != nil {
		return err
	}
	if c.relayerAddress, err = parseAddress(RelayerAddressKey, c.Relayer.Address, false); err != nil {
		return err
	}
	if c.Messenger.MaxProcessingTimeSeconds == 0 {
		return errZeroProcessingTime
	}
	if c.Messenger.MaxGasLimit == 0 {
		return errZeroGasLimit
	}
	if c.oracle, err = c.Oracle.feeConfig(); err != nil {
		return err
	}
	if c.oracle.DefaultMaxFeePerGas.IsZero() || c.oracle.DefaultMaxPriorityFeePerGas.IsZero() {
		return fmt.Errorf("oracle default fees must be positive")
	}
	if c.Verifier.MaxAttempts == 0 {
		return fmt.Errorf("verifier max attempts must be positive")
	}
	if c.Verifier.BaseDelay <= 0 || c.Verifier.MaxDelay < c.Verifier.BaseDelay {
		return fmt.Errorf("invalid verifier delays: base %s, max %s", c.Verifier.BaseDelay, c.Verifier.MaxDelay)
	}
	if c.Verifier.CacheSize <= 0 {
		return fmt.Errorf("verifier cache size must be positive")
	}
	if c.Relayer.PollInterval <= 0 || c.Relayer.DBWriteInterval <= 0 {
		return fmt.Errorf("relayer intervals must be positive")
	}
	if c.Relayer.RelayMaxAttempts == 0 {
		return fmt.Errorf("relay max attempts must be positive")
	}
	if c.Relayer.AnchorRoots && !c.Relayer.AttachProofs {
		return fmt.Errorf("%s requires %s", AnchorRootsKey, AttachProofsKey)
	}
	return nil
}

func parseAddress(key, s string, required bool) (common.Address, error) {
	if s == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s must be set", key)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s %q", key, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(key, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func (o OracleConfig) feeConfig() (feecredit.Config, error) {
	var (
		cfg feecredit.Config
		err error
	)
	if cfg.DefaultMaxFeePerGas, err = parseAmount(DefaultMaxFeePerGasKey, o.DefaultMaxFeePerGas); err != nil {
		return cfg, err
	}
	if cfg.DefaultMaxPriorityFeePerGas, err = parseAmount(DefaultMaxPriorityFeePerGasKey, o.DefaultMaxPriorityFeePerGas); err != nil {
		return cfg, err
	}
	if cfg.MinMaxFeePerGas, err = parseAmount(MinMaxFeePerGasKey, o.MinMaxFeePerGas); err != nil {
		return cfg, err
	}
	if cfg.MinMaxPriorityFeePerGas, err = parseAmount(MinMaxPriorityFeePerGasKey, o.MinMaxPriorityFeePerGas); err != nil {
		return cfg, err
	}
	if cfg.FeeCap, err = parseAmount(FeeCapKey, o.FeeCap); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BridgeConfig returns the messenger configuration. Validate must have
// succeeded.
func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		Address:               c.messengerAddress,
		Admin:                 c.messengerAdmin,
		MaxProcessingTime:     c.Messenger.MaxProcessingTimeSeconds,
		MaxGasLimit:           c.Messenger.MaxGasLimit,
		RequireInclusionProof: c.Messenger.RequireInclusionProof,
		Oracle:                c.oracle,
	}
}

func (c *Config) VerificationConfig() relayer.VerifierConfig {
	return relayer.VerifierConfig{
		BaseDelay:   c.Verifier.BaseDelay,
		MaxDelay:    c.Verifier.MaxDelay,
		MaxAttempts: c.Verifier.MaxAttempts,
		CacheSize:   c.Verifier.CacheSize,
	}
}

// RelayConfig returns the relay worker configuration. Relay retries share
// the verifier's delay schedule.
func (c *Config) RelayConfig() relayer.Config {
	return relayer.Config{
		RelayerAddress:  c.relayerAddress,
		FinalityDepth:   c.Relayer.FinalityDepth,
		PollInterval:    c.Relayer.PollInterval,
		DBWriteInterval: c.Relayer.DBWriteInterval,
		RelayBackoff: utils.BackoffConfig{
			BaseDelay:   c.Verifier.BaseDelay,
			MaxDelay:    c.Verifier.MaxDelay,
			MaxAttempts: c.Relayer.RelayMaxAttempts,
		},
		AttachProofs:        c.Relayer.AttachProofs,
		AnchorRoots:         c.Relayer.AnchorRoots,
		MaxConcurrentRelays: c.Relayer.MaxConcurrentRelays,
	}
}
