// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ RelayerDatabase = &JSONFileStorage{}

// routeRecord identifies the route a state file belongs to. It is written
// with every file so a file copied between routes is rejected on load.
type routeRecord struct {
	SourceChainID      string `json:"sourceChainID"`
	DestinationChainID string `json:"destinationChainID"`
	OriginMessenger    string `json:"originMessenger"`
}

func newRouteRecord(id RelayerID) routeRecord {
	return routeRecord{
		SourceChainID:      id.SourceChainID.String(),
		DestinationChainID: id.DestinationChainID.String(),
		OriginMessenger:    id.OriginMessenger.Hex(),
	}
}

type stateFile struct {
	Route  routeRecord       `json:"route"`
	Values map[string]string `json:"values"`
}

type routeState struct {
	lock      sync.RWMutex
	file      stateFile
	persisted bool
}

// JSONFileStorage implements RelayerDatabase with one JSON file per relayer
// route, named by relayer ID. State is held in memory and written through on
// every Put.
type JSONFileStorage struct {
	logger *zap.Logger
	dir    string
	// fixed at construction
	routes map[common.Hash]*routeState
}

// NewJSONFileStorage opens or creates dir and loads the state of each route.
// Only the given relayer IDs can be read or written.
func NewJSONFileStorage(logger *zap.Logger, dir string, relayerIDs []RelayerID) (*JSONFileStorage, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error(
			"Failed to create directory",
			zap.String("dir", dir),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "failed to create storage directory")
	}

	s := &JSONFileStorage{
		logger: logger,
		dir:    dir,
		routes: make(map[common.Hash]*routeState, len(relayerIDs)),
	}
	for _, relayerID := range relayerIDs {
		state, err := s.load(relayerID)
		if err != nil {
			return nil, err
		}
		s.routes[relayerID.ID] = state
	}
	return s, nil
}

func (s *JSONFileStorage) load(relayerID RelayerID) (*routeState, error) {
	want := newRouteRecord(relayerID)
	state := &routeState{
		file: stateFile{Route: want, Values: make(map[string]string)},
	}

	b, err := os.ReadFile(s.path(relayerID.ID))
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	var file stateFile
	if err := json.Unmarshal(b, &file); err != nil {
		s.logger.Error(
			"Failed to decode relayer state",
			zap.Stringer("relayerID", relayerID.ID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	if file.Route != want {
		return nil, errors.Wrapf(
			ErrDatabaseMisconfiguration,
			"state file for %s belongs to route %s -> %s (%s)",
			relayerID.ID, file.Route.SourceChainID, file.Route.DestinationChainID, file.Route.OriginMessenger,
		)
	}
	if file.Values == nil {
		file.Values = make(map[string]string)
	}
	state.file = file
	state.persisted = true
	return state, nil
}

func (s *JSONFileStorage) route(relayerID common.Hash) (*routeState, error) {
	state, ok := s.routes[relayerID]
	if !ok {
		return nil, errors.Wrapf(ErrDatabaseMisconfiguration, "database not configured for relayer %s", relayerID)
	}
	return state, nil
}

// Get returns the value stored for key in the state of relayerID.
func (s *JSONFileStorage) Get(relayerID common.Hash, dataKey DataKey) ([]byte, error) {
	state, err := s.route(relayerID)
	if err != nil {
		return nil, err
	}
	state.lock.RLock()
	defer state.lock.RUnlock()

	if !state.persisted {
		return nil, ErrRelayerIDNotFound
	}
	val, ok := state.file.Values[dataKey.String()]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return []byte(val), nil
}

// Put overwrites key in the state of relayerID, creating the file if needed.
func (s *JSONFileStorage) Put(relayerID common.Hash, dataKey DataKey, value []byte) error {
	state, err := s.route(relayerID)
	if err != nil {
		return err
	}
	state.lock.Lock()
	defer state.lock.Unlock()

	key := dataKey.String()
	prev, had := state.file.Values[key]
	state.file.Values[key] = string(value)
	if err := s.write(relayerID, &state.file); err != nil {
		if had {
			state.file.Values[key] = prev
		} else {
			delete(state.file.Values, key)
		}
		return err
	}
	state.persisted = true
	return nil
}

func (s *JSONFileStorage) path(relayerID common.Hash) string {
	return filepath.Join(s.dir, relayerID.String()+".json")
}

// write replaces the file atomically via a temp file. The caller holds the
// route lock.
func (s *JSONFileStorage) write(relayerID common.Hash, file *stateFile) error {
	path := s.path(relayerID)
	tmpPath := path + ".tmp"

	b, err := json.MarshalIndent(file, "", "\t")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "failed to rename file")
	}
	return nil
}
