// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "github.com/spf13/pflag"

func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("messenger", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Specifies the messenger config file")
	fs.BoolP(VersionKey, "", false, "Display messenger version")
	fs.BoolP(HelpKey, "", false, "Display messenger usage")
	fs.String(LogLevelKey, defaultLogLevel, "Log level")
	fs.Uint16(APIPortKey, defaultAPIPort, "Port the verification API listens on")
	fs.Uint16(MetricsPortKey, defaultMetricsPort, "Port metrics are served on")
	fs.String(StorageLocationKey, defaultStorageLocation, "Directory of the JSON relayer database")
	fs.String(RedisURLKey, "", "Redis URL. Takes precedence over the JSON database when set")
	return fs
}
