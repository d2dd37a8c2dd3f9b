// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger/cache"
)

const DefaultRoleTTL = 30 * time.Second

// Client reads a remote messenger's verification surface. Relay status is
// never cached here. Bridge and relayer membership can be revoked, so it is
// cached only for the role TTL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	roles      *cache.TTLCache[string, bool]
}

func NewClient(baseURL string, httpClient *http.Client, roleTTL time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		roles:      cache.NewTTLCache[string, bool](roleTTL),
	}
}

func (c *Client) IsDepositMessageRelayed(ctx context.Context, hash common.Hash) (bool, error) {
	var resp MessageRelayedResponse
	if err := c.get(ctx, "/v1/messages/"+hash.Hex()+"/relayed", &resp); err != nil {
		return false, err
	}
	return resp.Relayed, nil
}

func (c *Client) IsAuthorisedBridge(ctx context.Context, addr common.Address) (bool, error) {
	return c.lookupRole("bridge:"+addr.Hex(), func() (bool, error) {
		var resp BridgeResponse
		if err := c.get(ctx, "/v1/bridges/"+addr.Hex(), &resp); err != nil {
			return false, err
		}
		return resp.Authorised, nil
	})
}

func (c *Client) HasRelayerRole(ctx context.Context, addr common.Address) (bool, error) {
	return c.lookupRole("relayer:"+addr.Hex(), func() (bool, error) {
		var resp RelayerResponse
		if err := c.get(ctx, "/v1/relayers/"+addr.Hex(), &resp); err != nil {
			return false, err
		}
		return resp.Relayer, nil
	})
}

// lookupRole serves key from the role cache. Expired lookups are swept on
// every miss so the cache holds at most the lookups of one TTL window.
func (c *Client) lookupRole(key string, fetch func() (bool, error)) (bool, error) {
	return c.roles.Get(key, func(string) (bool, error) {
		c.roles.Prune()
		return fetch()
	}, false)
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("request %s failed with status %d: %s", path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request %s failed with status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
