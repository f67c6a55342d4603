package interaction

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *Machine {
	n := 0
	return NewMachine(
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("m%d", n)
		}),
	)
}

func lampSuggestion() Suggestion {
	return Suggestion{ID: "s1", Title: "Dim the lights", ActionType: SuggestDevice, TargetID: "lamp", RequiresApproval: true}
}

// driveTo puts a fresh machine into the requested state through public operations.
func driveTo(t *testing.T, target State) *Machine {
	t.Helper()
	m := newTestMachine()
	switch target {
	case Idle:
	case Listening:
		require.True(t, m.StartListening())
	case Processing:
		require.True(t, m.StartProcessing())
	case Responding:
		require.True(t, m.StartProcessing())
		require.True(t, m.StartResponding("Sure.", nil))
	case Suggesting:
		require.True(t, m.ShowSuggestion(lampSuggestion()))
	case Executing:
		require.True(t, m.StartExecuting())
	case Offline:
		require.True(t, m.SetOffline(true))
	}
	require.Equal(t, target, m.State())
	return m
}

func TestListeningFlow(t *testing.T) {
	m := newTestMachine()

	require.True(t, m.StartListening())
	snap := m.Snapshot()
	assert.Equal(t, Listening, snap.State)
	assert.Equal(t, Idle, snap.PreviousState)
	assert.True(t, snap.Voice.IsListening)

	assert.True(t, m.SetTranscription("turn on the"))
	assert.True(t, m.SetAmplitude(1.7))
	assert.Equal(t, 1.0, m.Snapshot().Voice.Amplitude)

	require.True(t, m.StopListening("turn on the fan"))
	snap = m.Snapshot()
	assert.Equal(t, Processing, snap.State)
	assert.Equal(t, Listening, snap.PreviousState)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "turn on the fan", snap.Messages[0].Content)
	assert.False(t, snap.Voice.IsListening)

	require.True(t, m.StartResponding("Turning on the fan.", nil))
	assert.Equal(t, Responding, m.State())
	require.True(t, m.FinishResponding())
	assert.Equal(t, Idle, m.State())
}

func TestCancelListening(t *testing.T) {
	m := driveTo(t, Listening)
	m.SetTranscription("hello")
	require.True(t, m.CancelListening())
	snap := m.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Empty(t, snap.Voice.Transcription)
	assert.Empty(t, snap.Messages)
}

func TestStartListeningWhileProcessingIsIgnored(t *testing.T) {
	m := driveTo(t, Processing)
	before := m.Snapshot()

	assert.False(t, m.StartListening())
	after := m.Snapshot()
	assert.Equal(t, Processing, after.State)
	assert.Equal(t, before, after)
}

func TestStartListeningRequiresConnectivity(t *testing.T) {
	m := newTestMachine()
	m.SetOffline(true)
	m.SetOffline(false)
	assert.True(t, m.StartListening())

	m = driveTo(t, Offline)
	assert.False(t, m.StartListening())
	assert.Equal(t, Offline, m.State())
}

func TestStartProcessingOffline(t *testing.T) {
	m := driveTo(t, Offline)
	require.True(t, m.StartProcessing())
	snap := m.Snapshot()
	assert.Equal(t, Offline, snap.State)
	assert.Equal(t, Offline, snap.PreviousState)
}

func TestSuggestionApproval(t *testing.T) {
	m := driveTo(t, Processing)
	s := lampSuggestion()
	require.True(t, m.StartResponding("I can dim the lights.", &s))
	snap := m.Snapshot()
	assert.Equal(t, Suggesting, snap.State)
	require.NotNil(t, snap.CurrentSuggestion)

	require.True(t, m.ApproveSuggestion())
	snap = m.Snapshot()
	assert.Equal(t, Executing, snap.State)
	assert.Nil(t, snap.CurrentSuggestion)
	require.NotNil(t, snap.ActiveAction)
	assert.Equal(t, "s1", snap.ActiveAction.ID)
	assert.Equal(t, "Approved: Dim the lights", snap.Messages[len(snap.Messages)-1].Content)

	require.True(t, m.FinishExecuting(ExecutionResult{Success: true, Message: "Lights dimmed."}))
	snap = m.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.ActiveAction)
	require.NotNil(t, snap.LastExecutionResult)
	assert.True(t, snap.LastExecutionResult.Success)
	last := snap.Messages[len(snap.Messages)-1]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "Lights dimmed.", last.Content)
}

func TestDeclineSuggestion(t *testing.T) {
	m := driveTo(t, Suggesting)
	require.True(t, m.DeclineSuggestion())
	snap := m.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.CurrentSuggestion)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "Declined: Dim the lights", snap.Messages[0].Content)
}

func TestFailedExecutionIsSystemMessage(t *testing.T) {
	m := driveTo(t, Executing)
	require.True(t, m.FinishExecuting(ExecutionResult{Success: false, Message: "Lamp unreachable"}))
	snap := m.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleSystem, snap.Messages[0].Role)
}

func TestInvalidOperationsLeaveStateUntouched(t *testing.T) {
	guarded := map[string]struct {
		allowed map[State]bool
		op      func(*Machine) bool
	}{
		"StartListening":    {map[State]bool{Idle: true}, (*Machine).StartListening},
		"StopListening":     {map[State]bool{Listening: true}, func(m *Machine) bool { return m.StopListening("x") }},
		"CancelListening":   {map[State]bool{Listening: true}, (*Machine).CancelListening},
		"StartResponding":   {map[State]bool{Processing: true}, func(m *Machine) bool { return m.StartResponding("x", nil) }},
		"FinishResponding":  {map[State]bool{Responding: true}, (*Machine).FinishResponding},
		"ApproveSuggestion": {map[State]bool{Suggesting: true}, (*Machine).ApproveSuggestion},
		"DeclineSuggestion": {map[State]bool{Suggesting: true}, (*Machine).DeclineSuggestion},
		"SetTranscription":  {map[State]bool{Listening: true}, func(m *Machine) bool { return m.SetTranscription("x") }},
		"SetAmplitude":      {map[State]bool{Listening: true}, func(m *Machine) bool { return m.SetAmplitude(0.5) }},
	}

	for name, g := range guarded {
		for _, state := range States {
			if g.allowed[state] {
				continue
			}
			t.Run(fmt.Sprintf("%s in %s", name, state), func(t *testing.T) {
				m := driveTo(t, state)
				before := m.Snapshot()
				assert.False(t, g.op(m))
				assert.Equal(t, before, m.Snapshot())
			})
		}
	}
}

func TestSuggestionOnlyWhileSuggesting(t *testing.T) {
	ops := []func(*Machine){
		func(m *Machine) { m.StartListening() },
		func(m *Machine) { m.StopListening("hi") },
		func(m *Machine) { m.CancelListening() },
		func(m *Machine) { m.StartProcessing() },
		func(m *Machine) { m.StartResponding("ok", nil) },
		func(m *Machine) { s := lampSuggestion(); m.StartResponding("ok", &s) },
		func(m *Machine) { m.FinishResponding() },
		func(m *Machine) { m.ShowSuggestion(lampSuggestion()) },
		func(m *Machine) { m.ApproveSuggestion() },
		func(m *Machine) { m.DeclineSuggestion() },
		func(m *Machine) { m.StartExecuting() },
		func(m *Machine) { m.FinishExecuting(ExecutionResult{Success: true}) },
		func(m *Machine) { m.GoIdle() },
		func(m *Machine) { m.SetOffline(true) },
		func(m *Machine) { m.SetOffline(false) },
	}

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		m := newTestMachine()
		for step := 0; step < 40; step++ {
			ops[rng.Intn(len(ops))](m)
			snap := m.Snapshot()
			if snap.CurrentSuggestion != nil {
				require.Equal(t, Suggesting, snap.State, "run %d step %d", run, step)
			}
			if snap.ActiveAction != nil {
				require.Equal(t, Executing, snap.State, "run %d step %d", run, step)
			}
		}
	}
}

func TestGoIdleClearsSubstate(t *testing.T) {
	m := driveTo(t, Listening)
	m.SetAmplitude(0.4)
	require.True(t, m.GoIdle())
	snap := m.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, Voice{}, snap.Voice)
	assert.Equal(t, Listening, snap.PreviousState)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := newTestMachine()
	s := lampSuggestion()
	s.Parameters = map[string]interface{}{"brightness": 30}
	m.ShowSuggestion(s)

	snap := m.Snapshot()
	snap.CurrentSuggestion.Parameters["brightness"] = 100
	snap.CurrentSuggestion.Title = "changed"

	again := m.Snapshot()
	assert.Equal(t, 30, again.CurrentSuggestion.Parameters["brightness"])
	assert.Equal(t, "Dim the lights", again.CurrentSuggestion.Title)
}

func TestSubscribe(t *testing.T) {
	m := newTestMachine()
	calls := 0
	cancel := m.Subscribe(func() { calls++ })
	m.StartListening()
	m.StartResponding("ignored", nil)
	assert.Equal(t, 1, calls)
	cancel()
	m.GoIdle()
	assert.Equal(t, 1, calls)
}

func TestBehaviorTable(t *testing.T) {
	for _, s := range States {
		b := BehaviorFor(s)
		assert.NotEmpty(t, b.Animation, s)
		assert.GreaterOrEqual(t, b.Intensity, 0.0)
		assert.LessOrEqual(t, b.Intensity, 1.0)
		assert.Positive(t, b.Speed)
	}
	assert.Equal(t, BehaviorFor(Idle), BehaviorFor("SLEEPING"))
	assert.Equal(t, "spin", BehaviorFor(Executing).Animation)
}
