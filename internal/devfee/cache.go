// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package devfee

import (
	"encoding/json"

	bolt "github.com/coreos/bbolt"

	"scavenger-miner/internal/merr"
)

var (
	devFeeBucketName = []byte("devfee")
	stateKey         = []byte("state")
)

// Cache is the single-writer, atomically-overwritten persistent store
// backing DevFeeState, implemented as one bolt bucket holding a single
// JSON-encoded record (spec.md §6.4).
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (creating if necessary) the bolt-backed dev-fee cache
// at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, merr.New(merr.ErrReceiptsIO, "failed to open dev-fee cache", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(devFeeBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, merr.New(merr.ErrReceiptsIO, "failed to initialize dev-fee cache bucket", err)
	}
	return &Cache{db: db}, nil
}

// Load reads the persisted state, if any. found is false on a fresh
// cache with nothing saved yet.
func (c *Cache) Load() (state persistedState, found bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(devFeeBucketName)
		raw := b.Get(stateKey)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &state)
	})
	if err != nil {
		return persistedState{}, false, merr.New(merr.ErrReceiptsIO, "failed to load dev-fee cache", err)
	}
	return state, found, nil
}

// Save atomically overwrites the persisted state in a single bolt
// transaction, matching spec.md §6.4's "single writer... overwritten
// atomically on each update".
func (c *Cache) Save(state persistedState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return merr.New(merr.ErrReceiptsIO, "failed to marshal dev-fee cache", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(devFeeBucketName)
		return b.Put(stateKey, raw)
	})
	if err != nil {
		return merr.New(merr.ErrReceiptsIO, "failed to persist dev-fee cache", err)
	}
	return nil
}

// Close releases the underlying bolt database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
