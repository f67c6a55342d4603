package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownTrigger = errors.New("unknown trigger type")
	ErrUnknownAction  = errors.New("unknown action type")
	ErrMissingTrigger = errors.New("trigger is required")
)

type typeHead struct {
	Type string `json:"type"`
}

// MarshalTrigger encodes a trigger with its "type" discriminator
func MarshalTrigger(t Trigger) ([]byte, error) {
	switch v := t.(type) {
	case SensorTrigger:
		return json.Marshal(struct {
			Type TriggerType `json:"type"`
			SensorTrigger
		}{TriggerSensor, v})
	case TimeTrigger:
		return json.Marshal(struct {
			Type TriggerType `json:"type"`
			TimeTrigger
		}{TriggerTime, v})
	case EventTrigger:
		return json.Marshal(struct {
			Type TriggerType `json:"type"`
			EventTrigger
		}{TriggerEvent, v})
	case DeviceTrigger:
		return json.Marshal(struct {
			Type TriggerType `json:"type"`
			DeviceTrigger
		}{TriggerDevice, v})
	case nil:
		return nil, ErrMissingTrigger
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTrigger, t)
	}
}

// UnmarshalTrigger decodes a trigger by its "type" discriminator
func UnmarshalTrigger(data []byte) (Trigger, error) {
	var head typeHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode trigger: %w", err)
	}
	switch TriggerType(head.Type) {
	case TriggerSensor:
		var t SensorTrigger
		err := json.Unmarshal(data, &t)
		return t, wrapDecode("sensor trigger", err)
	case TriggerTime:
		var t TimeTrigger
		err := json.Unmarshal(data, &t)
		return t, wrapDecode("time trigger", err)
	case TriggerEvent:
		var t EventTrigger
		err := json.Unmarshal(data, &t)
		return t, wrapDecode("event trigger", err)
	case TriggerDevice:
		var t DeviceTrigger
		err := json.Unmarshal(data, &t)
		return t, wrapDecode("device trigger", err)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, head.Type)
}

// MarshalAction encodes an action with its "type" discriminator
func MarshalAction(a Action) ([]byte, error) {
	switch v := a.(type) {
	case DeviceAction:
		switch v.Kind {
		case ActionTurnOn, ActionTurnOff, ActionToggle:
		default:
			return nil, fmt.Errorf("%w: device action %q", ErrUnknownAction, v.Kind)
		}
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			DeviceAction
		}{v.Kind, v})
	case SetAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			SetAction
		}{ActionSet, v})
	case NotifyAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			NotifyAction
		}{ActionNotify, v})
	case DelayAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			DelayAction
		}{ActionDelay, v})
	case SceneAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			SceneAction
		}{ActionScene, v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

// UnmarshalAction decodes an action by its "type" discriminator
func UnmarshalAction(data []byte) (Action, error) {
	var head typeHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	switch kind := ActionType(head.Type); kind {
	case ActionTurnOn, ActionTurnOff, ActionToggle:
		var a DeviceAction
		err := json.Unmarshal(data, &a)
		a.Kind = kind
		return a, wrapDecode("device action", err)
	case ActionSet:
		var a SetAction
		err := json.Unmarshal(data, &a)
		return a, wrapDecode("set action", err)
	case ActionNotify:
		var a NotifyAction
		err := json.Unmarshal(data, &a)
		return a, wrapDecode("notify action", err)
	case ActionDelay:
		var a DelayAction
		err := json.Unmarshal(data, &a)
		return a, wrapDecode("delay action", err)
	case ActionScene:
		var a SceneAction
		err := json.Unmarshal(data, &a)
		return a, wrapDecode("scene action", err)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Type)
}

// MarshalActions encodes a list of actions
func MarshalActions(actions []Action) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(actions))
	for i, a := range actions {
		raw, err := MarshalAction(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// UnmarshalActions decodes a list of actions
func UnmarshalActions(raws []json.RawMessage) ([]Action, error) {
	out := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := UnmarshalAction(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func wrapDecode(what string, err error) error {
	if err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

type ruleJSON struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	Trigger              json.RawMessage   `json:"trigger"`
	Conditions           []Condition       `json:"conditions,omitempty"`
	Actions              []json.RawMessage `json:"actions"`
	Location             string            `json:"location,omitempty"`
	Enabled              bool              `json:"enabled"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
	LastTriggered        *time.Time        `json:"lastTriggered,omitempty"`
	TriggerCount         uint64            `json:"triggerCount"`
	RiskLevel            RiskLevel         `json:"riskLevel"`
	TrustLevel           TrustLevel        `json:"trustLevel"`
	RequiresConfirmation bool              `json:"requiresConfirmation"`
	CreatedBy            CreatedBy         `json:"createdBy"`
	IsPython             bool              `json:"isPython,omitempty"`
	PythonCode           string            `json:"pythonCode,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (r Rule) MarshalJSON() ([]byte, error) {
	trigger, err := MarshalTrigger(r.Trigger)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	actions, err := MarshalActions(r.Actions)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return json.Marshal(ruleJSON{
		ID:                   r.ID,
		Name:                 r.Name,
		Description:          r.Description,
		Trigger:              trigger,
		Conditions:           r.Conditions,
		Actions:              actions,
		Location:             r.Location,
		Enabled:              r.Enabled,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		LastTriggered:        r.LastTriggered,
		TriggerCount:         r.TriggerCount,
		RiskLevel:            r.RiskLevel,
		TrustLevel:           r.TrustLevel,
		RequiresConfirmation: r.RequiresConfirmation,
		CreatedBy:            r.CreatedBy,
		IsPython:             r.IsPython,
		PythonCode:           r.PythonCode,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc ruleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	trigger, err := UnmarshalTrigger(doc.Trigger)
	if err != nil {
		return fmt.Errorf("rule %s: %w", doc.ID, err)
	}
	actions, err := UnmarshalActions(doc.Actions)
	if err != nil {
		return fmt.Errorf("rule %s: %w", doc.ID, err)
	}
	*r = Rule{
		ID:                   doc.ID,
		Name:                 doc.Name,
		Description:          doc.Description,
		Trigger:              trigger,
		Conditions:           doc.Conditions,
		Actions:              actions,
		Location:             doc.Location,
		Enabled:              doc.Enabled,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
		LastTriggered:        doc.LastTriggered,
		TriggerCount:         doc.TriggerCount,
		RiskLevel:            doc.RiskLevel,
		TrustLevel:           doc.TrustLevel,
		RequiresConfirmation: doc.RequiresConfirmation,
		CreatedBy:            doc.CreatedBy,
		IsPython:             doc.IsPython,
		PythonCode:           doc.PythonCode,
	}
	return nil
}
