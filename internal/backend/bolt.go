package backend

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var nodesBucket = []byte("sec-cs-nodes")

// BoltBackend is a Backend implementation over a single go.etcd.io/bbolt
// database file, giving callers a durable disk-KV reference implementation
// of the kind spec §1 names as an example backend.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBoltBackend opens (creating if necessary) a bbolt database at path and
// ensures the node bucket exists.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("backend: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backend: create bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(nodesBucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltBackend) Put(_ context.Context, key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).Put(key, value)
	})
}

func (b *BoltBackend) Delete(_ context.Context, key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(nodesBucket)
		if bucket.Get(key) == nil {
			return ErrNotFound
		}
		return bucket.Delete(key)
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
