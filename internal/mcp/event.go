// Package mcp turns upstream intelligence events into assistant state.
package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"artemis/internal/interaction"

	"github.com/google/uuid"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// EventType is the discriminator of an upstream event
type EventType string

const (
	EventThought         EventType = "THOUGHT"
	EventMessage         EventType = "MESSAGE"
	EventSuggestion      EventType = "SUGGESTION"
	EventExecutionStart  EventType = "EXECUTION_START"
	EventExecutionResult EventType = "EXECUTION_RESULT"
	EventError           EventType = "ERROR"
)

// Event is the wire envelope
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type ThoughtPayload struct {
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence,omitempty"`
	Step       *int     `json:"step,omitempty"`
}

type MessagePayload struct {
	Content string `json:"content"`
	TTS     bool   `json:"tts"`
}

type SuggestionPayload struct {
	Content          string                 `json:"content"`
	ActionType       string                 `json:"actionType"`
	TargetID         string                 `json:"targetId"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	RiskLevel        string                 `json:"riskLevel"`
	RequiresApproval bool                   `json:"requiresApproval"`
}

type ExecutionStartPayload struct {
	ActionID    string `json:"actionId"`
	Description string `json:"description"`
	TargetID    string `json:"targetId"`
}

type ExecutionResultPayload struct {
	ActionID        string   `json:"actionId"`
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	AffectedDevices []string `json:"affectedDevices,omitempty"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
	// Since limits the error to one stay in a state. It is dropped once
	// the machine has moved on.
	Since *StateStay `json:"since,omitempty"`
}

// StateStay identifies one entry into a state
type StateStay struct {
	State     interaction.State `json:"state"`
	EnteredAt time.Time         `json:"enteredAt"`
}

// UnmarshalJSON accepts timestamps as RFC 3339 strings or epoch milliseconds
func (e *Event) UnmarshalJSON(data []byte) error {
	var doc struct {
		ID        string          `json:"id"`
		Type      EventType       `json:"type"`
		Timestamp json.RawMessage `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	ts, err := parseTimestamp(doc.Timestamp)
	if err != nil {
		return err
	}
	*e = Event{ID: doc.ID, Type: doc.Type, Timestamp: ts, Payload: doc.Payload}
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		return t, nil
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// NewEvent builds an envelope around a payload
func NewEvent(t EventType, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{ID: uuid.NewString(), Type: t, Timestamp: time.Now().UTC(), Payload: raw}, nil
}

// ParseEvent decodes a wire envelope
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Decode returns the typed payload of an event
func Decode(ev Event) (interface{}, error) {
	var target interface{}
	switch ev.Type {
	case EventThought:
		target = &ThoughtPayload{}
	case EventMessage:
		target = &MessagePayload{}
	case EventSuggestion:
		target = &SuggestionPayload{}
	case EventExecutionStart:
		target = &ExecutionStartPayload{}
	case EventExecutionResult:
		target = &ExecutionResultPayload{}
	case EventError:
		target = &ErrorPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if len(ev.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s has no payload", ErrInvalidPayload, ev.Type)
	}
	if err := json.Unmarshal(ev.Payload, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, ev.Type, err)
	}
	switch p := target.(type) {
	case *ThoughtPayload:
		return *p, nil
	case *MessagePayload:
		return *p, nil
	case *SuggestionPayload:
		return *p, nil
	case *ExecutionStartPayload:
		return *p, nil
	case *ExecutionResultPayload:
		return *p, nil
	case *ErrorPayload:
		return *p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}
