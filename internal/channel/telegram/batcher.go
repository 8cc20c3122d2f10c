package telegram

import (
	"sync"
	"time"

	"github.com/go-telegram/bot/models"
)

// updateBatcher buffers single updates from the poller and hands them over
// as one batch once no update arrived for window, or maxSize is reached.
// Batches are flushed one at a time.
type updateBatcher struct {
	mu      sync.Mutex
	pending []*models.Update
	timer   *time.Timer
	closed  bool

	window  time.Duration
	maxSize int

	flushMu sync.Mutex
	onFlush func(batch []*models.Update)
}

func newUpdateBatcher(window time.Duration, maxSize int, onFlush func([]*models.Update)) *updateBatcher {
	return &updateBatcher{
		window:  window,
		maxSize: maxSize,
		onFlush: onFlush,
	}
}

func (b *updateBatcher) add(u *models.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.pending = append(b.pending, u)
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.maxSize > 0 && len(b.pending) >= b.maxSize {
		b.timer = nil
		go b.flush()
		return
	}
	b.timer = time.AfterFunc(b.window, b.flush)
}

func (b *updateBatcher) flush() {
	// flushMu is taken first so batches keep arrival order.
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()

	if len(batch) > 0 && b.onFlush != nil {
		b.onFlush(batch)
	}
}

// close drops whatever is pending and ignores later updates.
func (b *updateBatcher) close() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	dropped := len(b.pending)
	b.pending = nil
	b.closed = true
	return dropped
}

func (b *updateBatcher) reopen() {
	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()
}
