// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"

	"github.com/luxfi/messenger/relayer"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// Build the viper instance. The config file is optional; without one every
// key takes its default unless overridden by flag or environment variable.
// Nested keys map to env vars with dots and hyphens replaced by underscores,
// e.g. MESSENGER_MAX_GAS_LIMIT.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) || v.GetString(ConfigFileKey) == "" {
		return v, nil
	}
	filename := v.GetString(ConfigFileKey)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return v, nil
}

// SetDefaultConfigValues registers every key, so that each can also be set
// through the environment.
func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(MetricsPortKey, defaultMetricsPort)
	v.SetDefault(StorageLocationKey, defaultStorageLocation)
	v.SetDefault(RedisURLKey, "")
	v.SetDefault(MessengerAddressKey, "")
	v.SetDefault(MessengerAdminKey, "")
	v.SetDefault(MaxProcessingTimeSecondsKey, DefaultMaxProcessingTimeSeconds)
	v.SetDefault(MaxGasLimitKey, DefaultMaxGasLimit)
	v.SetDefault(DefaultMaxFeePerGasKey, DefaultMaxFeePerGas)
	v.SetDefault(RequireInclusionProofKey, false)
	v.SetDefault(DefaultMaxPriorityFeePerGasKey, DefaultMaxPriorityFeePerGas)
	v.SetDefault(MinMaxFeePerGasKey, "")
	v.SetDefault(MinMaxPriorityFeePerGasKey, "")
	v.SetDefault(FeeCapKey, "")
	v.SetDefault(VerifyBaseDelayKey, relayer.DefaultVerifyBaseDelay)
	v.SetDefault(VerifyMaxDelayKey, relayer.DefaultVerifyMaxDelay)
	v.SetDefault(VerifyMaxAttemptsKey, relayer.DefaultVerifyMaxAttempts)
	v.SetDefault(VerifyCacheSizeKey, relayer.DefaultVerifyCacheSize)
	v.SetDefault(RelayerAddressKey, "")
	v.SetDefault(FinalityDepthKey, defaultFinalityDepth)
	v.SetDefault(PollIntervalKey, defaultPollInterval)
	v.SetDefault(DBWriteIntervalKey, defaultDBWriteInterval)
	v.SetDefault(RelayMaxAttemptsKey, defaultRelayMaxAttempts)
	v.SetDefault(AttachProofsKey, false)
	v.SetDefault(AnchorRootsKey, false)
	v.SetDefault(MaxConcurrentRelaysKey, defaultMaxConcurrentRelays)
}

// BuildConfig constructs the messenger config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
//
// Returns the Config
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
