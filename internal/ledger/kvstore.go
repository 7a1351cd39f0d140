package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ecogame/internal/storage"
	"ecogame/internal/types"
)

// PlayersKey is the fixed key shared by every game on one origin.
const PlayersKey = "ecogame.players"

// KVStore keeps the snapshot as a JSON array under a single key.
type KVStore struct {
	KV  storage.KV
	Key string
}

// NewKVStore stores the snapshot under PlayersKey.
func NewKVStore(kv storage.KV) *KVStore {
	return &KVStore{KV: kv, Key: PlayersKey}
}

// Load returns an empty snapshot when the key is missing.
func (s *KVStore) Load(_ context.Context) ([]types.PlayerRecord, error) {
	data, err := s.KV.Get(s.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []types.PlayerRecord{}, nil
		}
		return nil, err
	}
	var records []types.PlayerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return records, nil
}

func (s *KVStore) Save(_ context.Context, records []types.PlayerRecord) error {
	if records == nil {
		records = []types.PlayerRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.KV.Set(s.Key, data)
}
