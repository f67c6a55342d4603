// Package settings holds the user's assistant preferences.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"artemis/internal/utils"
)

var ErrInvalidSettings = errors.New("invalid settings")

// ApprovalMode controls when suggestions need an explicit yes
type ApprovalMode string

const (
	ApproveAlwaysAsk   ApprovalMode = "always_ask"
	ApproveSmart       ApprovalMode = "smart"
	ApproveAutoLowRisk ApprovalMode = "auto_low_risk"
)

type Voice struct {
	TTSEnabled      bool    `json:"ttsEnabled"`
	VoiceSpeed      float64 `json:"voiceSpeed"`
	Language        string  `json:"language"`
	WakeWordEnabled bool    `json:"wakeWordEnabled"`
}

type Privacy struct {
	StoreConversationHistory bool `json:"storeConversationHistory"`
	ShareUsageData           bool `json:"shareUsageData"`
	LocalProcessingOnly      bool `json:"localProcessingOnly"`
}

type Behavior struct {
	ApprovalMode         ApprovalMode `json:"approvalMode"`
	ProactiveSuggestions bool         `json:"proactiveSuggestions"`
	HapticsEnabled       bool         `json:"hapticsEnabled"`
	SoundEnabled         bool         `json:"soundEnabled"`
}

type Transparency struct {
	ShowReasoning        bool `json:"showReasoning"`
	ShowConfidence       bool `json:"showConfidence"`
	ShowTechnicalDetails bool `json:"showTechnicalDetails"`
}

// Settings is every preference group
type Settings struct {
	Voice        Voice        `json:"voice"`
	Privacy      Privacy      `json:"privacy"`
	Behavior     Behavior     `json:"behavior"`
	Transparency Transparency `json:"transparency"`
}

// Defaults returns the out of the box preferences
func Defaults() Settings {
	return Settings{
		Voice: Voice{
			TTSEnabled: true,
			VoiceSpeed: 1.0,
			Language:   "en-US",
		},
		Privacy: Privacy{
			StoreConversationHistory: true,
		},
		Behavior: Behavior{
			ApprovalMode:         ApproveAlwaysAsk,
			ProactiveSuggestions: true,
			HapticsEnabled:       true,
			SoundEnabled:         true,
		},
	}
}

// Validate rejects unknown enum values and out of range numbers
func (s Settings) Validate() error {
	switch s.Behavior.ApprovalMode {
	case ApproveAlwaysAsk, ApproveSmart, ApproveAutoLowRisk:
	default:
		return fmt.Errorf("%w: approval mode %q", ErrInvalidSettings, s.Behavior.ApprovalMode)
	}
	if s.Voice.VoiceSpeed <= 0 {
		return fmt.Errorf("%w: voice speed must be positive", ErrInvalidSettings)
	}
	if s.Voice.Language == "" {
		return fmt.Errorf("%w: language is required", ErrInvalidSettings)
	}
	return nil
}

// Merge applies a partial JSON document on top of s. Fields the document
// does not mention keep their value.
func (s Settings) Merge(doc []byte) (Settings, error) {
	out := s
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := out.Validate(); err != nil {
		return s, err
	}
	return out, nil
}

// Decode reads a stored document. Missing fields take the defaults.
func Decode(doc []byte) (Settings, error) {
	return Defaults().Merge(doc)
}

// Service owns the current settings
type Service struct {
	mu   sync.RWMutex
	cur  Settings
	feed utils.Feed
}

// NewService starts from the defaults
func NewService() *Service {
	return &Service{cur: Defaults()}
}

// Subscribe registers fn to run after every change
func (s *Service) Subscribe(fn func()) func() {
	return s.feed.Subscribe(fn)
}

// Get returns the current settings
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Set replaces the settings
func (s *Service) Set(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	s.feed.Publish()
	return nil
}

// Update merges a partial JSON document into the current settings
func (s *Service) Update(doc []byte) (Settings, error) {
	s.mu.Lock()
	next, err := s.cur.Merge(doc)
	if err != nil {
		s.mu.Unlock()
		return s.Get(), err
	}
	s.cur = next
	s.mu.Unlock()
	s.feed.Publish()
	return next, nil
}

// Reset restores the defaults
func (s *Service) Reset() Settings {
	s.mu.Lock()
	s.cur = Defaults()
	s.mu.Unlock()
	s.feed.Publish()
	return Defaults()
}
