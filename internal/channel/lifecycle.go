package channel

import (
	"fmt"
	"sync"
	"time"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Lifecycle tracks stopped -> starting -> running -> stopping -> stopped and
// the cutoff before which updates are treated as backlog.
type Lifecycle struct {
	mu         sync.RWMutex
	state      State
	cutoff     time.Time
	resolution time.Duration
	now        func() time.Time
}

func NewLifecycle(resolution time.Duration, now func() time.Time) *Lifecycle {
	if resolution <= 0 {
		resolution = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{resolution: resolution, now: now}
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Cutoff is the start time truncated to the platform's timestamp resolution.
func (l *Lifecycle) Cutoff() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cutoff
}

// BeginStart records the cutoff. It must run before the update stream opens.
func (l *Lifecycle) BeginStart() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStopped {
		return fmt.Errorf("start from %s: %w", l.state, ErrInvalidState)
	}
	l.state = StateStarting
	l.cutoff = l.now().Truncate(l.resolution)
	return nil
}

func (l *Lifecycle) MarkRunning() error {
	return l.transit(StateStarting, StateRunning)
}

func (l *Lifecycle) BeginStop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning && l.state != StateStarting {
		return fmt.Errorf("stop from %s: %w", l.state, ErrInvalidState)
	}
	l.state = StateStopping
	return nil
}

func (l *Lifecycle) MarkStopped() {
	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
}

// Accepts reports whether an update stamped ts should be processed: only
// while running and never for updates older than the cutoff.
func (l *Lifecycle) Accepts(ts time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning && !ts.Before(l.cutoff)
}

func (l *Lifecycle) transit(from, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("%s -> %s from %s: %w", from, to, l.state, ErrInvalidState)
	}
	l.state = to
	return nil
}
