// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Top-level configuration keys
	LogLevelKey        = "log-level"
	APIPortKey         = "api-port"
	MetricsPortKey     = "metrics-port"
	StorageLocationKey = "storage-location"
	RedisURLKey        = "redis-url"

	// Messenger and fee oracle keys
	MessengerAddressKey            = "messenger.address"
	MessengerAdminKey              = "messenger.admin"
	MaxProcessingTimeSecondsKey    = "messenger.max-processing-time-seconds"
	MaxGasLimitKey                 = "messenger.max-gas-limit"
	RequireInclusionProofKey       = "messenger.require-inclusion-proof"
	DefaultMaxFeePerGasKey         = "oracle.default-max-fee-per-gas"
	DefaultMaxPriorityFeePerGasKey = "oracle.default-max-priority-fee-per-gas"
	MinMaxFeePerGasKey             = "oracle.min-max-fee-per-gas"
	MinMaxPriorityFeePerGasKey     = "oracle.min-max-priority-fee-per-gas"
	FeeCapKey                      = "oracle.fee-cap"

	// Verifier keys
	VerifyBaseDelayKey   = "verifier.base-delay"
	VerifyMaxDelayKey    = "verifier.max-delay"
	VerifyMaxAttemptsKey = "verifier.max-attempts"
	VerifyCacheSizeKey   = "verifier.cache-size"

	// Relayer keys
	RelayerAddressKey      = "relayer.address"
	FinalityDepthKey       = "relayer.finality-depth"
	PollIntervalKey        = "relayer.poll-interval"
	DBWriteIntervalKey     = "relayer.db-write-interval"
	RelayMaxAttemptsKey    = "relayer.relay-max-attempts"
	AttachProofsKey        = "relayer.attach-proofs"
	AnchorRootsKey         = "relayer.anchor-roots"
	MaxConcurrentRelaysKey = "relayer.max-concurrent-relays"
)
