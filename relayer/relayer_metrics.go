// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type RelayerMetrics struct {
	successfulRelayMessageCount *prometheus.CounterVec
	skippedRelayMessageCount    *prometheus.CounterVec
	failedRelayMessageCount     *prometheus.CounterVec
	relayAttempts               *prometheus.HistogramVec
	verificationCount           *prometheus.CounterVec
	verificationAttempts        *prometheus.HistogramVec
}

func NewRelayerMetrics(registerer prometheus.Registerer) *RelayerMetrics {
	m := RelayerMetrics{
		successfulRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "successful_relay_message_count",
				Help: "Number of messages that relayed successfully",
			},
			[]string{"destination_chain_id", "source_chain_id", "message_type"},
		),
		skippedRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skipped_relay_message_count",
				Help: "Number of messages not delivered because they were already relayed or had expired",
			},
			[]string{"destination_chain_id", "source_chain_id", "reason"},
		),
		failedRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_relay_message_count",
				Help: "Number of messages that failed to relay",
			},
			[]string{"destination_chain_id", "source_chain_id", "failure_reason"},
		),
		relayAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_attempts",
				Help:    "Number of relayMessage calls made per message",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"destination_chain_id", "source_chain_id"},
		),
		verificationCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_count",
				Help: "Number of relay verifications by outcome",
			},
			[]string{"outcome"},
		),
		verificationAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verification_attempts",
				Help:    "Number of status queries made per verification",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"outcome"},
		),
	}

	registerer.MustRegister(m.successfulRelayMessageCount)
	registerer.MustRegister(m.skippedRelayMessageCount)
	registerer.MustRegister(m.failedRelayMessageCount)
	registerer.MustRegister(m.relayAttempts)
	registerer.MustRegister(m.verificationCount)
	registerer.MustRegister(m.verificationAttempts)

	return &m
}
