// Package cache provides the persistent key-value stores that hold rewritten
// icons, and the versioned IconCache built on top of them.
package cache

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned by Store.Get when the key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned by Store.Set when the backend has no room left
	// for the write.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is a string-keyed, string-valued persistent store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. It may fail with ErrQuotaExceeded.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key currently held by the store.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every key held by the store.
	Clear(ctx context.Context) error
	io.Closer
}
