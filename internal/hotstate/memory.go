package hotstate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
)

// MemoryStore keeps entries in-process in a bounded LRU. It suits single-instance
// deployments and tests; multiple replicas need the Redis backend.
type MemoryStore struct {
	cache  gcache.Cache
	closed atomic.Bool
}

func NewMemoryStore(capacity int) *MemoryStore {
	return newMemoryStore(capacity, gcache.NewRealClock())
}

func newMemoryStore(capacity int, clock gcache.Clock) *MemoryStore {
	return &MemoryStore{
		cache: gcache.New(capacity).LRU().Clock(clock).Build(),
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	if ttl <= 0 {
		return fmt.Errorf("put %s: ttl must be positive", key)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	if err := m.cache.SetWithExpire(key, buf, ttl); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	v, err := m.cache.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("get %s: unexpected value type %T", key, v)
	}
	return b, true, nil
}

func (m *MemoryStore) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v, ok, err := m.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	if m.closed.Load() {
		return fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.cache.Purge()
	}
	return nil
}
