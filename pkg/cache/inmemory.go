package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a thread-safe, in-memory Store with an optional byte quota.
// It mirrors the behaviour of a browser local storage area and is primarily
// intended for tests and single-process deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	data      map[string]string
	maxBytes  int64
	usedBytes int64
}

// NewInMemoryStore creates a new in-memory store. A maxBytes of zero or less
// disables the quota; otherwise the sum of key and value lengths may not
// exceed it.
func NewInMemoryStore(maxBytes int64) *InMemoryStore {
	return &InMemoryStore{
		data:     make(map[string]string),
		maxBytes: maxBytes,
	}
}

// Get retrieves a value from the store.
func (s *InMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("key '%s': %w", key, ErrNotFound)
	}
	return value, nil
}

// Set stores a value. A write that would push the store over its quota fails
// with ErrQuotaExceeded and leaves the store unchanged.
func (s *InMemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := entrySize(key, value)
	used := s.usedBytes + size
	if old, ok := s.data[key]; ok {
		used -= entrySize(key, old)
	}
	if s.maxBytes > 0 && used > s.maxBytes {
		return fmt.Errorf("setting key '%s' (%d bytes): %w", key, size, ErrQuotaExceeded)
	}

	s.data[key] = value
	s.usedBytes = used
	return nil
}

// Delete removes a key.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[key]; ok {
		s.usedBytes -= entrySize(key, old)
		delete(s.data, key)
	}
	return nil
}

// Keys returns the stored keys in lexical order.
func (s *InMemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key.
func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]string)
	s.usedBytes = 0
	return nil
}

// UsedBytes reports the bytes counted against the quota.
func (s *InMemoryStore) UsedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedBytes
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
