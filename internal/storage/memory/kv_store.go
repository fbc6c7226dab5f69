package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"token-scout/internal/storage"
)

// kvEntry holds one value with its expiry.
type kvEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// KVStore is an in-memory implementation of storage.KVStore.
type KVStore struct {
	mu   sync.Mutex
	data map[string]kvEntry
	now  func() time.Time
}

// NewKVStore creates a new in-memory KV store.
func NewKVStore() *KVStore {
	return &KVStore{
		data: make(map[string]kvEntry),
		now:  time.Now,
	}
}

// NewKVStoreWithClock creates a store with a custom time source. Used by tests.
func NewKVStoreWithClock(now func() time.Time) *KVStore {
	s := NewKVStore()
	s.now = now
	return s
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)

// Get retrieves a value. Expired keys are absent.
func (s *KVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		delete(s.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores a value with a TTL. Zero TTL means no expiry.
func (s *KVStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := kvEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Incr atomically increments a counter, creating it at 1 with the TTL
// if absent or expired.
func (s *KVStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.data[key]
	if !ok || e.expired(now) {
		e = kvEntry{value: "0"}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, storage.ErrInvalidInput
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.data[key] = e
	return n, nil
}
