package interaction

import "time"

// State is the assistant's interaction mode
type State string

const (
	Idle       State = "IDLE"
	Listening  State = "LISTENING"
	Processing State = "PROCESSING"
	Responding State = "RESPONDING"
	Suggesting State = "SUGGESTING"
	Executing  State = "EXECUTING"
	Offline    State = "OFFLINE"
)

// States lists every state
var States = []State{Idle, Listening, Processing, Responding, Suggesting, Executing, Offline}

// SuggestionKind is what a suggestion would act on
type SuggestionKind string

const (
	SuggestDevice     SuggestionKind = "device"
	SuggestFunction   SuggestionKind = "function"
	SuggestAutomation SuggestionKind = "automation"
)

// Suggestion is a proposed action awaiting approval
type Suggestion struct {
	ID               string                 `json:"id"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	ActionType       SuggestionKind         `json:"actionType"`
	TargetID         string                 `json:"targetId"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	Urgency          string                 `json:"urgency,omitempty"`
	PreviewEffect    string                 `json:"previewEffect,omitempty"`
	RequiresApproval bool                   `json:"requiresApproval"`
}

func (s *Suggestion) clone() *Suggestion {
	if s == nil {
		return nil
	}
	out := *s
	if s.Parameters != nil {
		out.Parameters = make(map[string]interface{}, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	return &out
}

// Voice is the listening substate
type Voice struct {
	IsListening   bool    `json:"isListening"`
	Transcription string  `json:"transcription"`
	Amplitude     float64 `json:"amplitude"`
}

// ExecutionResult is the outcome of an executed action
type ExecutionResult struct {
	ActionID        string   `json:"actionId,omitempty"`
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	AffectedDevices []string `json:"affectedDevices,omitempty"`
}

// Role tags a message in the machine's log
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is an entry in the machine's log
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a copy of the machine's state
type Snapshot struct {
	State               State            `json:"state"`
	PreviousState       State            `json:"previousState"`
	EnteredAt           time.Time        `json:"enteredAt"`
	CurrentSuggestion   *Suggestion      `json:"currentSuggestion,omitempty"`
	ActiveAction        *Suggestion      `json:"activeAction,omitempty"`
	Voice               Voice            `json:"voice"`
	LastExecutionResult *ExecutionResult `json:"lastExecutionResult,omitempty"`
	IsOnline            bool             `json:"isOnline"`
	Messages            []Message        `json:"messages"`
}

// Behavior is how the orb renders a state
type Behavior struct {
	Animation string  `json:"animation"`
	Intensity float64 `json:"intensity"`
	Speed     float64 `json:"speed"`
}

var behaviors = map[State]Behavior{
	Idle:       {Animation: "breathe", Intensity: 0.3, Speed: 1.0},
	Listening:  {Animation: "pulse", Intensity: 0.7, Speed: 1.5},
	Processing: {Animation: "swirl", Intensity: 0.6, Speed: 2.0},
	Responding: {Animation: "wave", Intensity: 0.8, Speed: 1.2},
	Suggesting: {Animation: "glow", Intensity: 0.5, Speed: 0.8},
	Executing:  {Animation: "spin", Intensity: 0.9, Speed: 2.5},
	Offline:    {Animation: "dim", Intensity: 0.1, Speed: 0.5},
}

// BehaviorFor returns the orb behavior of a state. Unknown states render as idle.
func BehaviorFor(s State) Behavior {
	if b, ok := behaviors[s]; ok {
		return b
	}
	return behaviors[Idle]
}
