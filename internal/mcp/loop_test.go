package mcp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"artemis/internal/interaction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
	got chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 128)}
}

func (r *recorder) Dispatch(ev Event) error {
	r.mu.Lock()
	r.ids = append(r.ids, ev.ID)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestLoopPreservesOrder(t *testing.T) {
	rec := newRecorder()
	loop := NewLoop(rec, 4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	var want []string
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("e%02d", i)
		want = append(want, id)
		require.NoError(t, loop.Post(Event{ID: id}))
	}
	assert.Equal(t, want, rec.wait(t, 50))
}

func TestPostAfterDelivers(t *testing.T) {
	rec := newRecorder()
	loop := NewLoop(rec, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	require.NoError(t, loop.PostAfter(ctx, Event{ID: "late"}, 20*time.Millisecond))
	require.NoError(t, loop.PostAfter(ctx, Event{ID: "now"}, 0))
	assert.Equal(t, []string{"now", "late"}, rec.wait(t, 2))
}

func TestPostAfterStop(t *testing.T) {
	rec := newRecorder()
	loop := NewLoop(rec, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.NoError(t, loop.PostAfter(context.Background(), Event{ID: "never"}, time.Hour))
	cancel()
	<-done
	assert.ErrorIs(t, loop.Post(Event{ID: "after"}), ErrLoopStopped)
}

func TestTimerDeferrerHonoursContext(t *testing.T) {
	rec := newRecorder()
	loop := NewLoop(rec, 0, testLogger())
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go loop.Run(runCtx)

	d := NewTimerDeferrer(loop)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Defer(ctx, Event{ID: "dropped"}, 30*time.Millisecond))
	require.Equal(t, 1, d.Pending())
	cancel()
	require.NoError(t, d.Defer(context.Background(), Event{ID: "kept"}, 60*time.Millisecond))

	assert.Equal(t, []string{"kept"}, rec.wait(t, 1))
	d.Stop()
	assert.Error(t, d.Defer(context.Background(), Event{ID: "x"}, time.Millisecond))
}

type capture struct {
	events []Event
}

func (c *capture) Post(ev Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestWatchdogRaisesTimeoutOnce(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	now := start
	machine := interaction.NewMachine(interaction.WithClock(func() time.Time { return now }))
	sink := &capture{}
	w := NewWatchdog(machine, sink, WatchdogConfig{ProcessingTimeout: 30 * time.Second, ExecutingTimeout: time.Minute}, testLogger())
	w.now = func() time.Time { return now }

	assert.False(t, w.Check())
	machine.StartProcessing()

	now = start.Add(29 * time.Second)
	assert.False(t, w.Check())

	now = start.Add(31 * time.Second)
	assert.True(t, w.Check())
	assert.False(t, w.Check())
	require.Len(t, sink.events, 1)

	payload, err := Decode(sink.events[0])
	require.NoError(t, err)
	errPayload := payload.(ErrorPayload)
	assert.Equal(t, TimeoutCode, errPayload.Code)
	assert.True(t, errPayload.Recoverable)

	f := newFixture()
	f.machine = machine
	f.bridge = NewBridge(machine, f.convo, f.thoughts, testLogger())
	require.NoError(t, f.bridge.Dispatch(sink.events[0]))
	assert.Equal(t, interaction.Idle, machine.State())
	assert.Equal(t, 1, f.convo.Len())

	machine.StartExecuting()
	now = now.Add(61 * time.Second)
	assert.True(t, w.Check())
	assert.Len(t, sink.events, 2)
}

func TestStaleTimeoutIsDropped(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	now := start
	machine := interaction.NewMachine(interaction.WithClock(func() time.Time { return now }))
	sink := &capture{}
	w := NewWatchdog(machine, sink, WatchdogConfig{ProcessingTimeout: 30 * time.Second}, testLogger())
	w.now = func() time.Time { return now }

	machine.StartProcessing()
	now = start.Add(31 * time.Second)
	require.True(t, w.Check())

	f := newFixture()
	f.machine = machine
	f.bridge = NewBridge(machine, f.convo, f.thoughts, testLogger())

	// The reply was already queued ahead of the timeout.
	require.NoError(t, f.bridge.Dispatch(mustEvent(t, EventMessage, MessagePayload{Content: "The lamp is on."})))
	require.Equal(t, interaction.Responding, machine.State())

	require.NoError(t, f.bridge.Dispatch(sink.events[0]))
	assert.Equal(t, interaction.Responding, machine.State())
	msgs := f.convo.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "The lamp is on.", msgs[0].Content)
}

func TestTimeoutForEarlierStayIsDropped(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	now := start
	machine := interaction.NewMachine(interaction.WithClock(func() time.Time { return now }))
	sink := &capture{}
	w := NewWatchdog(machine, sink, WatchdogConfig{ProcessingTimeout: 30 * time.Second}, testLogger())
	w.now = func() time.Time { return now }

	machine.StartProcessing()
	now = start.Add(31 * time.Second)
	require.True(t, w.Check())

	// Left and re-entered PROCESSING before the timeout was handled.
	machine.GoIdle()
	now = now.Add(time.Second)
	machine.StartProcessing()

	f := newFixture()
	f.bridge = NewBridge(machine, f.convo, f.thoughts, testLogger())
	require.NoError(t, f.bridge.Dispatch(sink.events[0]))
	assert.Equal(t, interaction.Processing, machine.State())
	assert.Equal(t, 0, f.convo.Len())
}
