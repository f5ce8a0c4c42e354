// Package hotstate holds short-lived real-time state derived from the GTFS-realtime feeds.
//
// Every entry carries its own expiry. A missing or expired key means "no recent signal";
// a backend that cannot be reached reports ErrUnavailable so callers never mistake an
// outage for an empty result.
package hotstate

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is wrapped by every backend error caused by the store itself.
var ErrUnavailable = errors.New("hot-state cache unavailable")

// Store is a key-value store with per-entry expiry. Implementations are safe for concurrent use.
type Store interface {
	// Put overwrites key unconditionally and (re)sets its expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ok=false for a missing or expired key.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// MultiGet omits missing and expired keys from the result.
	MultiGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// IsUnavailable reports whether err was caused by the store being unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
