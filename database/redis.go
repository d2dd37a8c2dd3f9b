// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

const (
	redisKeyNamespace   = "messenger"
	redisRequestTimeout = 3 * time.Second
)

var _ RelayerDatabase = &RedisDatabase{}

// RedisDatabase stores relayer state under "messenger:<relayerID>:<key>". The
// connection is opened lazily on first use.
type RedisDatabase struct {
	logger *zap.Logger
	client *redis.Client
}

func NewRedisDatabase(logger *zap.Logger, redisURL string) (*RedisDatabase, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("Failed to parse Redis URL", zap.Error(err))
		return nil, err
	}
	return &RedisDatabase{
		logger: logger,
		client: redis.NewClient(opts),
	}, nil
}

func (r *RedisDatabase) Get(relayerID common.Hash, key DataKey) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisRequestTimeout)
	defer cancel()

	compositeKey := constructCompositeKey(relayerID, key)
	val, err := r.client.Get(ctx, compositeKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrKeyNotFound
	case err != nil:
		r.logger.Warn(
			"Failed to read relayer state from Redis",
			zap.String("key", compositeKey),
			zap.Error(err),
		)
		return nil, err
	}
	return val, nil
}

func (r *RedisDatabase) Put(relayerID common.Hash, key DataKey, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisRequestTimeout)
	defer cancel()

	compositeKey := constructCompositeKey(relayerID, key)
	if err := r.client.Set(ctx, compositeKey, value, 0).Err(); err != nil {
		r.logger.Error(
			"Failed to write relayer state to Redis",
			zap.String("key", compositeKey),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Ping checks the server is reachable.
func (r *RedisDatabase) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (r *RedisDatabase) Close() error {
	return r.client.Close()
}

func constructCompositeKey(relayerID common.Hash, key DataKey) string {
	return strings.Join([]string{redisKeyNamespace, relayerID.Hex(), key.String()}, ":")
}
