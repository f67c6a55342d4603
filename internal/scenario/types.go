package scenario

import "time"

// Scenario is a scripted run of upstream events
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Online      *bool   `yaml:"online"`
	Events      []Step  `yaml:"events"`
	Expect      *Expect `yaml:"expect,omitempty"`
}

// Step is one upstream event. DelayMs is measured from the previous step.
type Step struct {
	ID          string                 `yaml:"id,omitempty"`
	Type        string                 `yaml:"type"`
	DelayMs     int                    `yaml:"delayMs,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Payload     map[string]interface{} `yaml:"payload"`
}

// Expect is checked against the engine after the last step
type Expect struct {
	State         string   `yaml:"state,omitempty"`
	Messages      *int     `yaml:"messages,omitempty"`
	Thoughts      *int     `yaml:"thoughts,omitempty"`
	LastMessage   string   `yaml:"lastMessage,omitempty"`
	PendingReview *bool    `yaml:"pendingSuggestion,omitempty"`
	Contains      []string `yaml:"contains,omitempty"`
}

// Result describes one replay
type Result struct {
	Scenario   *Scenario
	StartTime  time.Time
	EndTime    time.Time
	Dispatched int
	Rejected   []StepError
	Failures   []string
}

// Passed reports whether every step was accepted and every expectation held
func (r *Result) Passed() bool {
	return len(r.Rejected) == 0 && len(r.Failures) == 0
}

// StepError is a step the dispatcher refused
type StepError struct {
	Index int
	Type  string
	Err   error
}
