package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"artemis/internal/automation"
	"artemis/internal/conversation"
	"artemis/internal/interaction"
	"artemis/internal/reasoning"
	"artemis/internal/sentence"
)

type TokenRequest struct {
	Passphrase string `json:"passphrase" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type StopListeningRequest struct {
	Text string `json:"text"`
}

type VoiceRequest struct {
	Transcription *string  `json:"transcription"`
	Amplitude     *float64 `json:"amplitude"`
}

type RespondRequest struct {
	Text       string                  `json:"text" binding:"required"`
	Suggestion *interaction.Suggestion `json:"suggestion"`
}

type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type MessageRequest struct {
	Role    conversation.EntryType `json:"role"`
	Content string                 `json:"content" binding:"required"`
}

type TrustRequest struct {
	TrustLevel automation.TrustLevel `json:"trustLevel" binding:"required"`
}

// RuleRequest is the body of POST /automations/rules and /automations/preview
type RuleRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Trigger     json.RawMessage        `json:"trigger"`
	Conditions  []automation.Condition `json:"conditions"`
	Actions     []json.RawMessage      `json:"actions"`
	Location    string                 `json:"location"`
	Enabled     *bool                  `json:"enabled"`
	RiskLevel   automation.RiskLevel   `json:"riskLevel"`
	TrustLevel  automation.TrustLevel  `json:"trustLevel"`
	CreatedBy   automation.CreatedBy   `json:"createdBy"`
	IsPython    bool                   `json:"isPython"`
	PythonCode  string                 `json:"pythonCode"`
}

// ToInput decodes the tagged trigger and actions and validates the result
func (r RuleRequest) ToInput() (automation.RuleInput, error) {
	if len(r.Trigger) == 0 {
		return automation.RuleInput{}, fmt.Errorf("%w: trigger is required", automation.ErrInvalidRule)
	}
	trigger, err := automation.UnmarshalTrigger(r.Trigger)
	if err != nil {
		return automation.RuleInput{}, err
	}
	actions, err := automation.UnmarshalActions(r.Actions)
	if err != nil {
		return automation.RuleInput{}, err
	}
	in := automation.RuleInput{
		Name:        r.Name,
		Description: r.Description,
		Trigger:     trigger,
		Conditions:  r.Conditions,
		Actions:     actions,
		Location:    r.Location,
		Enabled:     r.Enabled,
		RiskLevel:   r.RiskLevel,
		TrustLevel:  r.TrustLevel,
		CreatedBy:   r.CreatedBy,
		IsPython:    r.IsPython,
		PythonCode:  r.PythonCode,
	}
	if err := in.Validate(); err != nil {
		return automation.RuleInput{}, err
	}
	return in, nil
}

// PreviewRule builds an unsaved rule for rendering
func PreviewRule(in automation.RuleInput) automation.Rule {
	return automation.Rule{
		Name:        in.Name,
		Description: in.Description,
		Trigger:     in.Trigger,
		Conditions:  in.Conditions,
		Actions:     in.Actions,
		Location:    in.Location,
		Enabled:     in.Enabled == nil || *in.Enabled,
	}
}

// RulePatchRequest is the body of PATCH /automations/rules/:id
type RulePatchRequest struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Trigger     json.RawMessage         `json:"trigger"`
	Conditions  *[]automation.Condition `json:"conditions"`
	Actions     []json.RawMessage       `json:"actions"`
	Location    *string                 `json:"location"`
	Enabled     *bool                   `json:"enabled"`
	RiskLevel   *automation.RiskLevel   `json:"riskLevel"`
	TrustLevel  *automation.TrustLevel  `json:"trustLevel"`
	IsPython    *bool                   `json:"isPython"`
	PythonCode  *string                 `json:"pythonCode"`
}

func (r RulePatchRequest) ToPatch() (automation.RulePatch, error) {
	patch := automation.RulePatch{
		Name:        r.Name,
		Description: r.Description,
		Conditions:  r.Conditions,
		Location:    r.Location,
		Enabled:     r.Enabled,
		RiskLevel:   r.RiskLevel,
		TrustLevel:  r.TrustLevel,
		IsPython:    r.IsPython,
		PythonCode:  r.PythonCode,
	}
	if len(r.Trigger) > 0 && string(r.Trigger) != "null" {
		t, err := automation.UnmarshalTrigger(r.Trigger)
		if err != nil {
			return automation.RulePatch{}, err
		}
		if err := automation.ValidateTrigger(t); err != nil {
			return automation.RulePatch{}, err
		}
		patch.Trigger = t
	}
	if r.Actions != nil {
		actions, err := automation.UnmarshalActions(r.Actions)
		if err != nil {
			return automation.RulePatch{}, err
		}
		if len(actions) == 0 {
			return automation.RulePatch{}, fmt.Errorf("%w: actions must not be empty", automation.ErrInvalidRule)
		}
		for i, a := range actions {
			if err := automation.ValidateAction(a); err != nil {
				return automation.RulePatch{}, fmt.Errorf("action %d: %w", i, err)
			}
		}
		patch.Actions = &actions
	}
	if r.Conditions != nil {
		if err := automation.ValidateConditions(*r.Conditions); err != nil {
			return automation.RulePatch{}, err
		}
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return automation.RulePatch{}, fmt.Errorf("%w: name must not be empty", automation.ErrInvalidRule)
	}
	if r.RiskLevel != nil && !automation.ValidRiskLevel(*r.RiskLevel) {
		return automation.RulePatch{}, fmt.Errorf("%w: risk level %q", automation.ErrInvalidRule, *r.RiskLevel)
	}
	if r.TrustLevel != nil && !automation.ValidTrustLevel(*r.TrustLevel) {
		return automation.RulePatch{}, fmt.Errorf("%w: trust level %q", automation.ErrInvalidRule, *r.TrustLevel)
	}
	return patch, nil
}

// RuleView is a rule with its rendered text
type RuleView struct {
	Rule         automation.Rule `json:"rule"`
	Sentence     string          `json:"sentence"`
	Summary      string          `json:"summary"`
	Blocks       sentence.Blocks `json:"blocks"`
	Confirmation string          `json:"confirmation,omitempty"`
	NextRun      *time.Time      `json:"nextRun,omitempty"`
}

// SnapshotFrame is pushed over /ws
type SnapshotFrame struct {
	Type         string               `json:"type"`
	State        interaction.Snapshot `json:"state"`
	Conversation []conversation.Entry `json:"conversation"`
	Reasoning    []reasoning.Thought  `json:"reasoning,omitempty"`
}
