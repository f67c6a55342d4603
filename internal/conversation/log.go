// Package conversation holds the chat transcript shown to the user.
package conversation

import (
	"sync"
	"time"

	"artemis/internal/utils"

	"github.com/google/uuid"
)

// EntryType tags a conversation entry
type EntryType string

const (
	TypeUser       EntryType = "user"
	TypeAssistant  EntryType = "assistant"
	TypeSuggestion EntryType = "suggestion"
	TypeSystem     EntryType = "system"
)

// SuggestionData is the upstream proposal carried by a suggestion entry
type SuggestionData struct {
	ActionType       string                 `json:"actionType"`
	TargetID         string                 `json:"targetId"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	RiskLevel        string                 `json:"riskLevel,omitempty"`
	RequiresApproval bool                   `json:"requiresApproval"`
}

// Entry is one line of the conversation
type Entry struct {
	ID         string                 `json:"id"`
	Type       EntryType              `json:"type"`
	Content    string                 `json:"content"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Suggestion *SuggestionData        `json:"suggestion,omitempty"`
	Pending    *bool                  `json:"pending,omitempty"`
	Approved   *bool                  `json:"approved,omitempty"`
}

// IsPending reports whether the entry is an unresolved suggestion
func (e Entry) IsPending() bool {
	return e.Type == TypeSuggestion && e.Pending != nil && *e.Pending
}

func (e Entry) clone() Entry {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.Suggestion != nil {
		s := *e.Suggestion
		if s.Parameters != nil {
			s.Parameters = make(map[string]interface{}, len(e.Suggestion.Parameters))
			for k, v := range e.Suggestion.Parameters {
				s.Parameters[k] = v
			}
		}
		out.Suggestion = &s
	}
	if e.Pending != nil {
		p := *e.Pending
		out.Pending = &p
	}
	if e.Approved != nil {
		a := *e.Approved
		out.Approved = &a
	}
	return out
}

// Log is the append-only conversation
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
	newID   func() string
	feed    utils.Feed
}

// Option configures a Log
type Option func(*Log)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(gen func() string) Option {
	return func(l *Log) { l.newID = gen }
}

// NewLog creates an empty conversation
func NewLog(opts ...Option) *Log {
	l := &Log{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers fn to run after every change
func (l *Log) Subscribe(fn func()) func() {
	return l.feed.Subscribe(fn)
}

// AddUserMessage appends what the user said
func (l *Log) AddUserMessage(content string) string {
	return l.add(Entry{Type: TypeUser, Content: content})
}

// AddAssistantMessage appends an assistant reply
func (l *Log) AddAssistantMessage(content string, metadata map[string]interface{}) string {
	return l.add(Entry{Type: TypeAssistant, Content: content, Metadata: metadata})
}

// AddSuggestion appends a pending suggestion
func (l *Log) AddSuggestion(content string, data SuggestionData) string {
	pending := true
	return l.add(Entry{Type: TypeSuggestion, Content: content, Suggestion: &data, Pending: &pending})
}

// AddSystemMessage appends a status line
func (l *Log) AddSystemMessage(content string) string {
	return l.add(Entry{Type: TypeSystem, Content: content})
}

// ApproveSuggestion resolves a pending suggestion as approved. It reports
// false for settled entries.
func (l *Log) ApproveSuggestion(id string) bool {
	return l.resolve(id, true)
}

// RejectSuggestion resolves a suggestion entry as rejected
func (l *Log) RejectSuggestion(id string) bool {
	return l.resolve(id, false)
}

// RemoveMessage deletes one entry
func (l *Log) RemoveMessage(id string) bool {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
	l.mu.Unlock()
	l.feed.Publish()
	return true
}

// Clear drops the whole conversation
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	l.feed.Publish()
}

// Messages returns a copy of every entry in order
func (l *Log) Messages() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Message returns one entry
func (l *Log) Message(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(id); i >= 0 {
		return l.entries[i].clone(), true
	}
	return Entry{}, false
}

// PendingSuggestion returns the oldest unresolved suggestion
func (l *Log) PendingSuggestion() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.IsPending() {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) add(e Entry) string {
	l.mu.Lock()
	e.ID = l.newID()
	e.Timestamp = l.now()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	l.feed.Publish()
	return e.ID
}

func (l *Log) resolve(id string, approved bool) bool {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 || !l.entries[i].IsPending() {
		l.mu.Unlock()
		return false
	}
	pending := false
	l.entries[i].Pending = &pending
	l.entries[i].Approved = &approved
	l.mu.Unlock()
	l.feed.Publish()
	return true
}

func (l *Log) indexOf(id string) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
