// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api serves the read-only verification surface of a messenger over
// HTTP and provides a client for it.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/alexliesenfeld/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/messenger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	MessageRelayedPath = "/v1/messages/{hash}/relayed"
	BridgePath         = "/v1/bridges/{address}"
	RelayerPath        = "/v1/relayers/{address}"
	HealthPath         = "/health"
	MetricsPath        = "/metrics"
)

// StatusSource is the messenger state the API exposes.
type StatusSource interface {
	IsDepositMessageRelayed(ctx context.Context, hash common.Hash) (bool, error)
	MessageState(hash common.Hash) messenger.MessageState
	IsAuthorisedBridge(addr common.Address) bool
	HasRelayerRole(addr common.Address) bool
}

type MessageRelayedResponse struct {
	Hash    string `json:"hash"`
	Relayed bool   `json:"relayed"`
	State   string `json:"state"`
}

type BridgeResponse struct {
	Address    string `json:"address"`
	Authorised bool   `json:"authorised"`
}

type RelayerResponse struct {
	Address string `json:"address"`
	Relayer bool   `json:"relayer"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRouter returns the API handler. gatherer may be nil to omit /metrics.
func NewRouter(
	logger *zap.Logger,
	source StatusSource,
	gatherer prometheus.Gatherer,
	checkFunc func(context.Context) error,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(MessageRelayedPath, messageRelayedHandler(logger, source))
	r.Get(BridgePath, bridgeHandler(logger, source))
	r.Get(RelayerPath, relayerHandler(logger, source))

	if checkFunc == nil {
		checkFunc = func(context.Context) error { return nil }
	}
	healthChecker := health.NewChecker(
		health.WithCheck(health.Check{
			Name:  "messenger-health",
			Check: checkFunc,
		}),
	)
	r.Handle(HealthPath, health.NewHandler(healthChecker))
	if gatherer != nil {
		r.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func messageRelayedHandler(logger *zap.Logger, source StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		param := chi.URLParam(r, "hash")
		hash, ok := parseHash(param)
		if !ok {
			logger.Debug("Invalid message hash", zap.String("hash", param))
			writeJSONError(logger, w, http.StatusBadRequest, "invalid message hash")
			return
		}
		relayed, err := source.IsDepositMessageRelayed(r.Context(), hash)
		if err != nil {
			logger.Warn("Failed to read relay status", zap.Stringer("messageHash", hash), zap.Error(err))
			writeJSONError(logger, w, http.StatusInternalServerError, "failed to read relay status")
			return
		}
		writeJSON(logger, w, MessageRelayedResponse{
			Hash:    hash.Hex(),
			Relayed: relayed,
			State:   source.MessageState(hash).String(),
		})
	}
}

func bridgeHandler(logger *zap.Logger, source StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseAddress(chi.URLParam(r, "address"))
		if !ok {
			writeJSONError(logger, w, http.StatusBadRequest, "invalid address")
			return
		}
		writeJSON(logger, w, BridgeResponse{
			Address:    addr.Hex(),
			Authorised: source.IsAuthorisedBridge(addr),
		})
	}
}

func relayerHandler(logger *zap.Logger, source StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseAddress(chi.URLParam(r, "address"))
		if !ok {
			writeJSONError(logger, w, http.StatusBadRequest, "invalid address")
			return
		}
		writeJSON(logger, w, RelayerResponse{
			Address: addr.Hex(),
			Relayer: source.HasRelayerRole(addr),
		})
	}
}

func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		logger.Error("Error marshalling JSON response", zap.Error(err))
		writeJSONError(logger, w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		logger.Error("Error writing response", zap.Error(err))
	}
}

func writeJSONError(
	logger *zap.Logger,
	w http.ResponseWriter,
	httpStatusCode int,
	errorMsg string,
) {
	resp, err := json.Marshal(ErrorResponse{Error: errorMsg})
	if err != nil {
		msg := "Error marshalling JSON error response"
		logger.Error(msg, zap.Error(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	if _, err = w.Write(resp); err != nil {
		logger.Error("Error writing error response", zap.Error(err))
	}
}
