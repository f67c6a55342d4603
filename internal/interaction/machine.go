// Package interaction implements the assistant's interaction state machine.
//
// Operations whose precondition does not hold are ignored and report false,
// so late or duplicated UI events cannot corrupt the state. A suggestion is
// only ever held while the machine is SUGGESTING.
package interaction

import (
	"log/slog"
	"sync"
	"time"

	"artemis/internal/utils"

	"github.com/google/uuid"
)

// Machine is the interaction state machine
type Machine struct {
	mu     sync.RWMutex
	s      Snapshot
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
	feed   utils.Feed
}

// Option configures a Machine
type Option func(*Machine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator replaces the uuid generator used for messages
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// WithLogger sets the machine logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// NewMachine creates an online machine in IDLE
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.s = Snapshot{State: Idle, PreviousState: Idle, IsOnline: true, EnteredAt: m.now()}
	return m
}

// Subscribe registers fn to run after every change
func (m *Machine) Subscribe(fn func()) func() {
	return m.feed.Subscribe(fn)
}

// Snapshot returns a deep copy of the current state
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.s
	out.CurrentSuggestion = m.s.CurrentSuggestion.clone()
	out.ActiveAction = m.s.ActiveAction.clone()
	if m.s.LastExecutionResult != nil {
		r := *m.s.LastExecutionResult
		r.AffectedDevices = append([]string(nil), r.AffectedDevices...)
		out.LastExecutionResult = &r
	}
	out.Messages = append([]Message(nil), m.s.Messages...)
	return out
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.State
}

// StartListening begins voice capture. Requires IDLE and online.
func (m *Machine) StartListening() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if !s.IsOnline || s.State != Idle {
			return "", false
		}
		s.Voice = Voice{IsListening: true}
		return Listening, true
	})
}

// SetTranscription updates the partial transcription while listening
func (m *Machine) SetTranscription(text string) bool {
	return m.update(func(s *Snapshot) bool {
		if s.State != Listening {
			return false
		}
		s.Voice.Transcription = text
		return true
	})
}

// SetAmplitude updates the input level while listening, clamped to [0,1]
func (m *Machine) SetAmplitude(a float64) bool {
	return m.update(func(s *Snapshot) bool {
		if s.State != Listening {
			return false
		}
		s.Voice.Amplitude = utils.Clamp01(a)
		return true
	})
}

// StopListening records what the user said and starts processing
func (m *Machine) StopListening(text string) bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.State != Listening {
			return "", false
		}
		s.Voice.IsListening = false
		s.Voice.Transcription = text
		s.Voice.Amplitude = 0
		m.appendMessage(s, RoleUser, text)
		return Processing, true
	})
}

// CancelListening abandons voice capture
func (m *Machine) CancelListening() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.State != Listening {
			return "", false
		}
		s.Voice = Voice{}
		return Idle, true
	})
}

// StartProcessing enters PROCESSING, or OFFLINE when there is no connectivity
func (m *Machine) StartProcessing() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if !s.IsOnline {
			return Offline, true
		}
		return Processing, true
	})
}

// StartResponding records the assistant's reply. With a suggestion the
// machine goes straight to SUGGESTING.
func (m *Machine) StartResponding(text string, suggestion *Suggestion) bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.State != Processing {
			return "", false
		}
		m.appendMessage(s, RoleAssistant, text)
		if suggestion != nil {
			s.CurrentSuggestion = suggestion.clone()
			return Suggesting, true
		}
		return Responding, true
	})
}

// FinishResponding ends the reply
func (m *Machine) FinishResponding() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.State != Responding {
			return "", false
		}
		if s.CurrentSuggestion != nil {
			return Suggesting, true
		}
		return Idle, true
	})
}

// ShowSuggestion replaces the current suggestion
func (m *Machine) ShowSuggestion(suggestion Suggestion) bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		s.CurrentSuggestion = suggestion.clone()
		return Suggesting, true
	})
}

// ApproveSuggestion accepts the current suggestion and starts executing it
func (m *Machine) ApproveSuggestion() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.State != Suggesting || s.CurrentSuggestion == nil {
			return "", false
		}
		m.appendMessage(s, RoleSystem, "Approved: "+s.CurrentSuggestion.Title)
		s.ActiveAction = s.CurrentSuggestion
		s.CurrentSuggestion = nil
		return Executing, true
	})
}

// DeclineSuggestion drops the current suggestion
func (m *Machine) DeclineSuggestion() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.State != Suggesting {
			return "", false
		}
		if s.CurrentSuggestion != nil {
			m.appendMessage(s, RoleSystem, "Declined: "+s.CurrentSuggestion.Title)
		}
		s.CurrentSuggestion = nil
		return Idle, true
	})
}

// StartExecuting enters EXECUTING. A pending suggestion becomes the active action.
func (m *Machine) StartExecuting() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if s.CurrentSuggestion != nil {
			s.ActiveAction = s.CurrentSuggestion
			s.CurrentSuggestion = nil
		}
		return Executing, true
	})
}

// FinishExecuting records the outcome and returns to IDLE
func (m *Machine) FinishExecuting(result ExecutionResult) bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		if result.Success {
			text := result.Message
			if text == "" {
				text = "Done."
			}
			m.appendMessage(s, RoleAssistant, text)
		} else {
			text := result.Message
			if text == "" {
				text = "That didn't work this time."
			}
			m.appendMessage(s, RoleSystem, text)
		}
		result.AffectedDevices = append([]string(nil), result.AffectedDevices...)
		s.LastExecutionResult = &result
		s.CurrentSuggestion = nil
		s.ActiveAction = nil
		return Idle, true
	})
}

// GoIdle resets to IDLE from anywhere
func (m *Machine) GoIdle() bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		s.CurrentSuggestion = nil
		s.ActiveAction = nil
		s.Voice = Voice{}
		return Idle, true
	})
}

// SetOffline records connectivity. Going offline wins over every other state;
// coming back online lands in IDLE.
func (m *Machine) SetOffline(offline bool) bool {
	return m.apply(func(s *Snapshot) (State, bool) {
		s.IsOnline = !offline
		if offline {
			s.CurrentSuggestion = nil
			s.Voice = Voice{}
			return Offline, true
		}
		return Idle, true
	})
}

// apply runs a transition. fn returns the next state and whether the
// precondition held.
func (m *Machine) apply(fn func(*Snapshot) (State, bool)) bool {
	m.mu.Lock()
	from := m.s.State
	next, ok := fn(&m.s)
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("Ignoring transition", "state", from)
		return false
	}
	if next != Suggesting {
		m.s.CurrentSuggestion = nil
	}
	if next != Executing {
		m.s.ActiveAction = nil
	}
	m.s.PreviousState = from
	m.s.State = next
	m.s.EnteredAt = m.now()
	m.mu.Unlock()

	if from != next {
		m.logger.Debug("State transition", "from", from, "to", next)
	}
	m.feed.Publish()
	return true
}

// update changes substate without a transition
func (m *Machine) update(fn func(*Snapshot) bool) bool {
	m.mu.Lock()
	ok := fn(&m.s)
	m.mu.Unlock()
	if ok {
		m.feed.Publish()
	}
	return ok
}

func (m *Machine) appendMessage(s *Snapshot, role Role, content string) {
	s.Messages = append(s.Messages, Message{
		ID:        m.newID(),
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
	})
}
