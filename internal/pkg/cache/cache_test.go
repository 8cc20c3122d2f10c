package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManager_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m := New(func(ctx context.Context, key int64) (string, error) {
		calls.Add(1)
		<-release
		return "chat", nil
	}, time.Minute, WithName("test"))

	const n = 16
	var (
		ready sync.WaitGroup
		done  sync.WaitGroup
	)
	results := make([]string, n)
	errs := make([]error, n)
	ready.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			ready.Done()
			results[i], errs[i] = m.Get(context.Background(), 7)
		}(i)
	}
	ready.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil || results[i] != "chat" {
			t.Fatalf("caller %d: got (%q, %v)", i, results[i], errs[i])
		}
	}
}

func TestManager_FailureSharedAndNotCached(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	release := make(chan struct{})
	m := New(func(ctx context.Context, key string) (int, error) {
		if calls.Add(1) == 1 {
			<-release
			return 0, boom
		}
		return 5, nil
	}, time.Minute)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Get(context.Background(), "k")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one shared fetch, got %d", calls.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d: expected boom, got %v", i, err)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("failure must not be cached, len=%d", m.Len())
	}

	v, err := m.Get(context.Background(), "k")
	if err != nil || v != 5 {
		t.Fatalf("retry: got (%d, %v)", v, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected retry fetch, got %d calls", calls.Load())
	}
}

func TestManager_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	m := New(func(ctx context.Context, key string) (int32, error) {
		return calls.Add(1), nil
	}, time.Minute, WithClock(clock.Now))

	ctx := context.Background()
	first, _ := m.Get(ctx, "a")

	clock.Advance(time.Minute - time.Millisecond)
	again, _ := m.Get(ctx, "a")
	if again != first || calls.Load() != 1 {
		t.Fatalf("expected cached value before expiry, got %d after %d calls", again, calls.Load())
	}

	clock.Advance(2 * time.Millisecond)
	fresh, _ := m.Get(ctx, "a")
	if fresh == first || calls.Load() != 2 {
		t.Fatalf("expected refetch after expiry, got %d after %d calls", fresh, calls.Load())
	}
}

func TestManager_Purge(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	m := New(func(ctx context.Context, key int) (int, error) {
		return key * 2, nil
	}, time.Second, WithClock(clock.Now))

	ctx := context.Background()
	_, _ = m.Get(ctx, 1)
	clock.Advance(600 * time.Millisecond)
	_, _ = m.Get(ctx, 2)
	clock.Advance(600 * time.Millisecond)

	if removed := m.Purge(); removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 resident entry, got %d", m.Len())
	}
}

func TestNew_DefaultTTL(t *testing.T) {
	m := New(func(ctx context.Context, key int) (int, error) { return key, nil }, 0)
	if m.TTL() != DefaultTTL {
		t.Fatalf("got %v, want %v", m.TTL(), DefaultTTL)
	}
}
