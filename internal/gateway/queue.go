package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/tgifai/bridgekit/internal/event"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

type QueueOptions struct {
	LaneBuffer    int
	MaxConcurrent int
}

var errQueueClosed = errors.New("event queue is closed")

// eventQueue moves event handling off the publishing goroutine. Events of
// one controller are handled in order on their own lane; lanes run
// concurrently up to MaxConcurrent. Close stops intake, and lanes exit once
// their buffered events are handled.
type eventQueue struct {
	lanes         map[string]chan event.Event
	mu            sync.RWMutex
	handler       func(context.Context, event.Event) error
	ctx           context.Context
	laneBuffer    int
	maxConcurrent chan struct{}
	wg            sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

func newEventQueue(opts QueueOptions) *eventQueue {
	laneBuffer := opts.LaneBuffer
	if laneBuffer <= 0 {
		laneBuffer = 64
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &eventQueue{
		lanes:         make(map[string]chan event.Event),
		laneBuffer:    laneBuffer,
		maxConcurrent: make(chan struct{}, maxConcurrent),
		done:          make(chan struct{}),
	}
}

// Init keeps ctx values for the handler but not its cancellation, so
// events buffered at shutdown are still handled.
func (q *eventQueue) Init(ctx context.Context, handler func(context.Context, event.Event) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx = context.WithoutCancel(ctx)
	q.handler = handler
}

// Enqueue blocks while the controller's lane is full.
func (q *eventQueue) Enqueue(ctx context.Context, evt event.Event) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return errQueueClosed
	}
	lane := q.getOrCreateLane(evt.Controller)
	select {
	case lane <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. It is safe to call more than once.
func (q *eventQueue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *eventQueue) getOrCreateLane(key string) chan event.Event {
	q.mu.RLock()
	lane, exists := q.lanes[key]
	q.mu.RUnlock()
	if exists {
		return lane
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if lane, exists := q.lanes[key]; exists {
		return lane
	}
	lane = make(chan event.Event, q.laneBuffer)
	q.lanes[key] = lane
	q.wg.Add(1)
	go q.processLane(key, lane)
	return lane
}

func (q *eventQueue) processLane(key string, lane chan event.Event) {
	defer q.wg.Done()
	for {
		select {
		case evt := <-lane:
			q.handle(key, evt)
		case <-q.done:
			for {
				select {
				case evt := <-lane:
					q.handle(key, evt)
				default:
					return
				}
			}
		}
	}
}

func (q *eventQueue) handle(key string, evt event.Event) {
	if err := q.acquire(q.ctx); err != nil {
		return
	}
	err := q.handler(q.ctx, evt)
	q.release()
	if err != nil {
		logs.CtxWarn(q.ctx, "[queue] handle %s in lane %s: %v", evt.Name, key, err)
	}
}

// Wait returns once every lane has drained after Close.
func (q *eventQueue) Wait() {
	q.wg.Wait()
}

func (q *eventQueue) acquire(ctx context.Context) error {
	select {
	case q.maxConcurrent <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *eventQueue) release() {
	select {
	case <-q.maxConcurrent:
	default:
	}
}
