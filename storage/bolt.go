// Package storage provides a small embedded-database helper used by the
// performance tracker to persist one row per served HTTP request. It
// wraps bbolt with JSON value helpers and range-scan iteration, since the
// tracker's aggregate queries (route stats over the last N days, the
// slowest routes, hourly time series) need ordered prefix/range scans
// rather than single-key get/put.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DB wraps a bbolt database with JSON and range-scan helpers.
type DB struct {
	*bolt.DB
}

// Open opens or creates a bbolt database file at path.
func Open(path string) (*DB, error) {
	b, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{b}, nil
}

// CreateBucket creates bucket if it does not already exist.
func (db *DB) CreateBucket(bucket string) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
}

// PutJSON marshals value and stores it under key in bucket.
func (db *DB) PutJSON(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// GetJSON unmarshals the value stored under key in bucket into value.
func (db *DB) GetJSON(bucket, key string, value interface{}) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("key not found: %s", key)
		}
		return json.Unmarshal(data, value)
	})
}

// Delete removes key from bucket.
func (db *DB) Delete(bucket, key string) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		return b.Delete([]byte(key))
	})
}

// ForEachJSON iterates every key/value pair in bucket in key order,
// unmarshaling each value via newValue and invoking fn.
func (db *DB) ForEachJSON(bucket string, newValue func() interface{}, fn func(key string, value interface{}) error) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			value := newValue()
			if err := json.Unmarshal(v, value); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			return fn(string(k), value)
		})
	})
}

// ForEachPrefixJSON iterates keys with the given prefix, in key order,
// unmarshaling each value via newValue. Used for route|timestamp scans
// where the prefix is the route name.
func (db *DB) ForEachPrefixJSON(bucket, prefix string, newValue func() interface{}, fn func(key string, value interface{}) error) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		c := b.Cursor()
		pfx := []byte(prefix)
		for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
			value := newValue()
			if err := json.Unmarshal(v, value); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if err := fn(string(k), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBefore deletes every key in bucket for which timestampOf reports
// a time older than cutoff. Keys for which timestampOf reports false are
// left alone.
func (db *DB) DeleteBefore(bucket string, cutoff time.Time, timestampOf func(key string) (time.Time, bool)) (int, error) {
	deleted := 0
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		var toDelete [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if t, ok := timestampOf(string(k)); ok && t.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
