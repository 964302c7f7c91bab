package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend stores each record set in its own bucket of a single BoltDB file.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (or creates) the database and makes sure every named bucket exists.
func NewBoltBackend(path string, options *bolt.Options, sets ...string) (*BoltBackend, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("unable to open bolt database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, set := range sets {
			if _, err := tx.CreateBucketIfNotExists([]byte(set)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create buckets: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Load(ctx context.Context, set string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(set))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			// bolt memory is only valid inside the transaction
			out[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", set, err)
	}
	return out, nil
}

func (b *BoltBackend) Put(ctx context.Context, set string, records map[string][]byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(set))
		if err != nil {
			return err
		}
		for k, v := range records {
			if err := bucket.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Delete(ctx context.Context, set string, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(set))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *BoltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
