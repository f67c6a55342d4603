package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrLoopStopped = errors.New("event loop stopped")

// Deferrer delivers an event after a delay without blocking the caller
type Deferrer interface {
	Defer(ctx context.Context, ev Event, delay time.Duration) error
}

// Loop runs every event through a Dispatcher on one goroutine, in arrival order
type Loop struct {
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	dispatch Dispatcher
	deferrer Deferrer
	logger   *slog.Logger
}

// NewLoop creates a loop with the given queue depth
func NewLoop(d Dispatcher, buffer int, logger *slog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	l := &Loop{
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		dispatch: d,
		logger:   logger.With("component", "mcp-loop"),
	}
	l.deferrer = NewTimerDeferrer(l)
	return l
}

// SetDeferrer replaces the in-process timer used by PostAfter
func (l *Loop) SetDeferrer(d Deferrer) {
	l.deferrer = d
}

// Post queues an event. It blocks only while the queue is full.
func (l *Loop) Post(ev Event) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// PostAfter queues an event once delay has passed
func (l *Loop) PostAfter(ctx context.Context, ev Event, delay time.Duration) error {
	if delay <= 0 {
		return l.Post(ev)
	}
	return l.deferrer.Defer(ctx, ev, delay)
}

// Run dispatches events until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-l.events:
			l.handle(ev)
		}
	}
}

func (l *Loop) handle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event handler panicked", "event_id", ev.ID, "type", ev.Type, "panic", r)
		}
	}()
	_ = l.dispatch.Dispatch(ev)
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		if s, ok := l.deferrer.(interface{ Stop() }); ok {
			s.Stop()
		}
	})
}

// Poster accepts events for dispatch
type Poster interface {
	Post(ev Event) error
}

// TimerDeferrer delays events with in-process timers
type TimerDeferrer struct {
	mu     sync.Mutex
	target Poster
	timers map[*time.Timer]struct{}
}

// NewTimerDeferrer creates a deferrer posting into target
func NewTimerDeferrer(target Poster) *TimerDeferrer {
	return &TimerDeferrer{target: target, timers: make(map[*time.Timer]struct{})}
}

// Defer implements Deferrer. Cancelling ctx before the delay drops the event.
func (d *TimerDeferrer) Defer(ctx context.Context, ev Event, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timers == nil {
		return ErrLoopStopped
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		_ = d.target.Post(ev)
	})
	d.timers[t] = struct{}{}
	return nil
}

// Pending returns the number of events waiting on a timer
func (d *TimerDeferrer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every pending timer
func (d *TimerDeferrer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range d.timers {
		t.Stop()
	}
	d.timers = nil
}
