package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"artemis/internal/interaction"
)

// TimeoutCode is the error code of events raised by the Watchdog
const TimeoutCode = "timeout"

// WatchdogConfig sets how long the machine may wait on upstream
type WatchdogConfig struct {
	ProcessingTimeout time.Duration
	ExecutingTimeout  time.Duration
	Interval          time.Duration
}

// Watchdog recovers from upstream that never answers. When the machine sits
// in PROCESSING or EXECUTING past its timeout, it posts a recoverable ERROR.
type Watchdog struct {
	machine  *interaction.Machine
	post     Poster
	timeouts map[interaction.State]time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	fired time.Time
}

// NewWatchdog creates a watchdog. Zero timeouts disable the check for that state.
func NewWatchdog(machine *interaction.Machine, post Poster, cfg WatchdogConfig, logger *slog.Logger) *Watchdog {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	timeouts := make(map[interaction.State]time.Duration)
	if cfg.ProcessingTimeout > 0 {
		timeouts[interaction.Processing] = cfg.ProcessingTimeout
	}
	if cfg.ExecutingTimeout > 0 {
		timeouts[interaction.Executing] = cfg.ExecutingTimeout
	}
	return &Watchdog{
		machine:  machine,
		post:     post,
		timeouts: timeouts,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "mcp-watchdog"),
	}
}

// Check inspects the machine once and reports whether a timeout was raised
func (w *Watchdog) Check() bool {
	snap := w.machine.Snapshot()
	limit, watched := w.timeouts[snap.State]
	if !watched || w.now().Sub(snap.EnteredAt) < limit {
		return false
	}

	w.mu.Lock()
	if w.fired.Equal(snap.EnteredAt) {
		w.mu.Unlock()
		return false
	}
	w.fired = snap.EnteredAt
	w.mu.Unlock()

	ev, err := NewEvent(EventError, ErrorPayload{
		Code:        TimeoutCode,
		Message:     "This is taking longer than expected, so I stopped waiting.",
		Recoverable: true,
		Suggestion:  "You can try again.",
		Since:       &StateStay{State: snap.State, EnteredAt: snap.EnteredAt},
	})
	if err != nil {
		w.logger.Error("Failed to build timeout event", "error", err)
		return false
	}
	w.logger.Warn("Upstream timed out", "state", snap.State, "waited", w.now().Sub(snap.EnteredAt).String())
	if err := w.post.Post(ev); err != nil {
		w.logger.Warn("Failed to post timeout event", "error", err)
		return false
	}
	return true
}

// Run checks on every interval until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) {
	if len(w.timeouts) == 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}
