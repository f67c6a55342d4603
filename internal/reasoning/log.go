// Package reasoning keeps a bounded trail of the assistant's thoughts.
package reasoning

import (
	"sync"
	"time"

	"artemis/internal/utils"

	"github.com/google/uuid"
)

// Thought is one reasoning trace
type Thought struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	Step       *int      `json:"step,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Log is a ring buffer of the most recent thoughts
type Log struct {
	mu    sync.RWMutex
	buf   []Thought
	head  int
	size  int
	now   func() time.Time
	newID func() string
	feed  utils.Feed
}

// NewLog creates a log holding up to capacity thoughts. A non-positive
// capacity uses the default.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = utils.DefaultMaxThoughts
	}
	return &Log{
		buf:   make([]Thought, capacity),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Subscribe registers fn to run after every change
func (l *Log) Subscribe(fn func()) func() {
	return l.feed.Subscribe(fn)
}

// Capacity returns the maximum number of thoughts kept
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Add records a thought, evicting the oldest when full. Confidence is clamped to [0,1].
func (l *Log) Add(content string, confidence *float64, step *int) Thought {
	t := Thought{Content: content}
	if confidence != nil {
		c := utils.Clamp01(*confidence)
		t.Confidence = &c
	}
	if step != nil {
		s := *step
		t.Step = &s
	}

	l.mu.Lock()
	t.ID = l.newID()
	t.Timestamp = l.now()
	l.buf[(l.head+l.size)%len(l.buf)] = t
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.head = (l.head + 1) % len(l.buf)
	}
	l.mu.Unlock()

	l.feed.Publish()
	return t
}

// Thoughts returns the kept thoughts oldest first
func (l *Log) Thoughts() []Thought {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Thought, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Latest returns the most recent thought
func (l *Log) Latest() (Thought, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.size == 0 {
		return Thought{}, false
	}
	return l.buf[(l.head+l.size-1)%len(l.buf)], true
}

// Len returns the number of kept thoughts
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Clear drops every thought
func (l *Log) Clear() {
	l.mu.Lock()
	l.buf = make([]Thought, len(l.buf))
	l.head, l.size = 0, 0
	l.mu.Unlock()
	l.feed.Publish()
}
