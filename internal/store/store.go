// Package store provides short-lived key/value storage for pending OAuth states and
// exchanged credentials awaiting pickup. Entries expire after a caller-supplied TTL.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotInitialized is returned by methods called on a nil or closed store.
var ErrNotInitialized = errors.New("store: not initialized")

// KV is a TTL key/value store. Expired entries behave as absent.
type KV interface {
	// Set stores value under key, replacing any previous value. A ttl <= 0 never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value and true when key is present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Take atomically returns and removes key, giving single-use semantics.
	Take(ctx context.Context, key string) ([]byte, bool, error)
	// Close releases resources held by the store.
	Close() error
}
