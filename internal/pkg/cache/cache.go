package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tgifai/bridgekit/internal/pkg/prometheus"
)

const DefaultTTL = 60 * time.Second

type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

type Option func(o *options)

type options struct {
	name string
	now  func() time.Time
}

// WithName sets the cache label used in metrics and logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Manager memoizes fetch results per key for ttl. Concurrent misses on the
// same key share a single fetch; failed fetches are never stored.
type Manager[K comparable, V any] struct {
	fetch FetchFunc[K, V]
	ttl   time.Duration
	opts  options

	mu      sync.RWMutex
	entries map[K]entry[V]
	flights singleflight.Group
}

func New[K comparable, V any](fetch FetchFunc[K, V], ttl time.Duration, opts ...Option) *Manager[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager[K, V]{
		fetch:   fetch,
		ttl:     ttl,
		opts:    o,
		entries: make(map[K]entry[V]),
	}
}

func (m *Manager[K, V]) Name() string {
	return m.opts.name
}

func (m *Manager[K, V]) TTL() time.Duration {
	return m.ttl
}

// Get returns the cached value for key or fetches it. The shared fetch runs
// with the context of the caller that started it.
func (m *Manager[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := m.lookup(key); ok {
		prometheus.ObserveCache(m.opts.name, prometheus.CacheHit)
		return v, nil
	}
	prometheus.ObserveCache(m.opts.name, prometheus.CacheMiss)

	res, err, _ := m.flights.Do(fmt.Sprint(key), func() (interface{}, error) {
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		v, err := m.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		m.store(key, v)
		return v, nil
	})
	if err != nil {
		prometheus.ObserveCache(m.opts.name, prometheus.CacheError)
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// Purge drops expired entries and reports how many were removed.
func (m *Manager[K, V]) Purge() int {
	now := m.opts.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !m.fresh(e, now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

func (m *Manager[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager[K, V]) lookup(key K) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.fresh(e, m.opts.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *Manager[K, V]) store(key K, v V) {
	m.mu.Lock()
	m.entries[key] = entry[V]{value: v, storedAt: m.opts.now()}
	m.mu.Unlock()
}

func (m *Manager[K, V]) fresh(e entry[V], now time.Time) bool {
	return now.Before(e.storedAt.Add(m.ttl))
}

// Purger is satisfied by every Manager regardless of its type parameters.
type Purger interface {
	Name() string
	Purge() int
}
