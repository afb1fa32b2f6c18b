// Package state persists process-wide sync state in a key-value store.
// The sync core depends only on the Store interface; DB backs it with
// bbolt on disk and Memory backs it with a map for tests and dry runs.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.session-sync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

// Store is a namespaced key-value store. Get returns nil without error
// when the bucket or key does not exist.
type Store interface {
	Get(bucket, key string) ([]byte, error)
	Put(bucket, key string, value []byte) error
	PutMany(bucket string, entries map[string][]byte) error
	Delete(bucket, key string) error
	All(bucket string) (map[string][]byte, error)
	// Reset removes every bucket and key.
	Reset() error
	Close() error
}

// DB wraps a bbolt database. Buckets are created lazily on first write.
type DB struct {
	db *bolt.DB
}

// Open opens a state database at the given path, creating it and its
// parent directory if they do not exist.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored under bucket/key.
func (s *DB) Get(bucket, key string) ([]byte, error) {
	var out []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(key))
		if v != nil {
			// bbolt values are only valid for the life of the transaction.
			out = append([]byte(nil), v...)
		}

		return nil
	})

	return out, err
}

// Put stores value under bucket/key.
func (s *DB) Put(bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		return b.Put([]byte(key), value)
	})
}

// PutMany stores all entries in a single transaction.
func (s *DB) PutMany(bucket string, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		for k, v := range entries {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}

		return nil
	})
}

// Delete removes bucket/key. Missing buckets and keys are not an error.
func (s *DB) Delete(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(key))
	})
}

// All returns a copy of every key/value in bucket.
func (s *DB) All(bucket string) (map[string][]byte, error) {
	result := make(map[string][]byte)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			result[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})

	return result, err
}

// Reset drops every top-level bucket.
func (s *DB) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var names [][]byte

		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		})
		if err != nil {
			return err
		}

		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("deleting bucket %s: %w", name, err)
			}
		}

		return nil
	})
}

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.buckets[bucket][key]
	if !ok {
		return nil, nil
	}

	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(bucket, key string, value []byte) error {
	return m.PutMany(bucket, map[string][]byte{key: value})
}

func (m *Memory) PutMany(bucket string, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}

	for k, v := range entries {
		b[k] = append([]byte(nil), v...)
	}

	return nil
}

func (m *Memory) Delete(bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[bucket], key)

	return nil
}

func (m *Memory) All(bucket string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(m.buckets[bucket]))
	for k, v := range m.buckets[bucket] {
		result[k] = append([]byte(nil), v...)
	}

	return result, nil
}

func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets = make(map[string]map[string][]byte)

	return nil
}

func (m *Memory) Close() error { return nil }

// Buckets lists the non-empty buckets, sorted. Used by tests to assert
// that a reset cleared everything.
func (m *Memory) Buckets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string

	for name, b := range m.buckets {
		if len(b) > 0 {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}
