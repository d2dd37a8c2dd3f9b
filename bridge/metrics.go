// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

type MessengerMetrics struct {
	sentMessageCount     *prometheus.CounterVec
	rejectedSendCount    *prometheus.CounterVec
	relayedMessageCount  *prometheus.CounterVec
	rejectedRelayCount   *prometheus.CounterVec
	escrowedFeeCreditWei *prometheus.CounterVec
}

func NewMessengerMetrics(registerer prometheus.Registerer) *MessengerMetrics {
	m := MessengerMetrics{
		sentMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sent_message_count",
				Help: "Number of messages accepted by sendMessage",
			},
			[]string{"chain_id", "message_type"},
		),
		rejectedSendCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rejected_send_count",
				Help: "Number of sendMessage calls that reverted",
			},
			[]string{"chain_id", "failure_reason"},
		),
		relayedMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relayed_message_count",
				Help: "Number of messages marked relayed, by outcome of the target call",
			},
			[]string{"chain_id", "message_type", "success"},
		),
		rejectedRelayCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rejected_relay_count",
				Help: "Number of relayMessage calls that reverted",
			},
			[]string{"chain_id", "failure_reason"},
		),
		escrowedFeeCreditWei: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowed_fee_credit",
				Help: "Fee credit escrowed by accepted sends, in the native unit (saturates at 2^64)",
			},
			[]string{"chain_id"},
		),
	}

	registerer.MustRegister(m.sentMessageCount)
	registerer.MustRegister(m.rejectedSendCount)
	registerer.MustRegister(m.relayedMessageCount)
	registerer.MustRegister(m.rejectedRelayCount)
	registerer.MustRegister(m.escrowedFeeCreditWei)

	return &m
}
