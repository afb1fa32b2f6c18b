package chatsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/arbob/session-sync/internal/state"
	"github.com/google/uuid"
)

const (
	bucketMeta   = "meta"
	bucketHashes = "hash_cache"

	keyDeviceID = "device_id"
	keyLastSync = "last_sync"
	keyLocation = "remote_location"
)

// RemoteLocation identifies where the remote objects live.
type RemoteLocation struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// SyncState is the process-wide state the orchestrator owns: device
// identity, hash cache, last sync time and remote location are persisted
// through a state.Store. The passphrase is held in memory only.
type SyncState struct {
	store state.Store

	mu         sync.RWMutex
	deviceID   string
	passphrase string
}

// NewSyncState loads persisted state, creating a device identity on the
// first run.
func NewSyncState(store state.Store) (*SyncState, error) {
	s := &SyncState{store: store}

	if err := s.loadDeviceID(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SyncState) loadDeviceID() error {
	raw, err := s.store.Get(bucketMeta, keyDeviceID)
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}

	id := string(raw)
	if id == "" {
		id = uuid.NewString()
		if err := s.store.Put(bucketMeta, keyDeviceID, []byte(id)); err != nil {
			return fmt.Errorf("persisting device id: %w", err)
		}
	}

	s.mu.Lock()
	s.deviceID = id
	s.mu.Unlock()

	return nil
}

// DeviceID returns this installation's identity.
func (s *SyncState) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.deviceID
}

// Passphrase returns the in-memory passphrase, or "" when unset.
func (s *SyncState) Passphrase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.passphrase
}

// SetPassphrase replaces the in-memory passphrase.
func (s *SyncState) SetPassphrase(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passphrase = p
}

// LastSync returns the last successful sync time in Unix milliseconds,
// or 0 if none.
func (s *SyncState) LastSync() (int64, error) {
	raw, err := s.store.Get(bucketMeta, keyLastSync)
	if err != nil {
		return 0, fmt.Errorf("reading last sync: %w", err)
	}

	if raw == nil {
		return 0, nil
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing last sync %q: %w", raw, err)
	}

	return ms, nil
}

// SetLastSync records a successful sync time.
func (s *SyncState) SetLastSync(ms int64) error {
	if err := s.store.Put(bucketMeta, keyLastSync, []byte(strconv.FormatInt(ms, 10))); err != nil {
		return fmt.Errorf("persisting last sync: %w", err)
	}

	return nil
}

// RemoteLocation returns the stored remote location. ok is false when
// setup has never completed.
func (s *SyncState) RemoteLocation() (loc RemoteLocation, ok bool, err error) {
	raw, err := s.store.Get(bucketMeta, keyLocation)
	if err != nil {
		return RemoteLocation{}, false, fmt.Errorf("reading remote location: %w", err)
	}

	if raw == nil {
		return RemoteLocation{}, false, nil
	}

	if err := json.Unmarshal(raw, &loc); err != nil {
		return RemoteLocation{}, false, fmt.Errorf("decoding remote location: %w", err)
	}

	return loc, true, nil
}

// SetRemoteLocation records where the remote objects live.
func (s *SyncState) SetRemoteLocation(loc RemoteLocation) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encoding remote location: %w", err)
	}

	if err := s.store.Put(bucketMeta, keyLocation, raw); err != nil {
		return fmt.Errorf("persisting remote location: %w", err)
	}

	return nil
}

// HashEntries loads the persisted hash cache.
func (s *SyncState) HashEntries() (map[string]HashEntry, error) {
	all, err := s.store.All(bucketHashes)
	if err != nil {
		return nil, fmt.Errorf("reading hash cache: %w", err)
	}

	out := make(map[string]HashEntry, len(all))

	for id, raw := range all {
		var e HashEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			// A corrupt entry only costs a re-hash.
			continue
		}

		out[id] = e
	}

	return out, nil
}

// SaveHashEntries persists the given hash cache entries.
func (s *SyncState) SaveHashEntries(entries map[string]HashEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := make(map[string][]byte, len(entries))

	for id, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding hash entry %s: %w", id, err)
		}

		batch[id] = raw
	}

	if err := s.store.PutMany(bucketHashes, batch); err != nil {
		return fmt.Errorf("persisting hash cache: %w", err)
	}

	return nil
}

// Reset clears all persisted state and the passphrase, and assigns a new
// device identity. Remote data is not touched.
func (s *SyncState) Reset() error {
	if err := s.store.Reset(); err != nil {
		return fmt.Errorf("resetting state: %w", err)
	}

	s.SetPassphrase("")

	return s.loadDeviceID()
}
