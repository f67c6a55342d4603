package automation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRule = errors.New("invalid rule")

var (
	sensorOperators = map[Operator]bool{OpGreater: true, OpLess: true, OpEqual: true, OpGreaterEqual: true, OpLessEqual: true}
	deviceOperators = map[Operator]bool{OpEqual: true, OpNotEqual: true, OpGreater: true, OpLess: true}
	weekdays        = map[Weekday]bool{Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true, Saturday: true, Sunday: true}
)

// ValidRiskLevel reports whether r is a known risk level
func ValidRiskLevel(r RiskLevel) bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// ValidTrustLevel reports whether t is a known trust level
func ValidTrustLevel(t TrustLevel) bool {
	return t == TrustAskAlways || t == TrustAskOnce || t == TrustAutoApprove
}

// ValidCreatedBy reports whether c is a known origin
func ValidCreatedBy(c CreatedBy) bool {
	return c == CreatedByVoice || c == CreatedByManual || c == CreatedBySuggested
}

// ValidateTrigger checks a trigger's fields
func ValidateTrigger(t Trigger) error {
	switch v := t.(type) {
	case SensorTrigger:
		if strings.TrimSpace(v.SensorType) == "" {
			return fmt.Errorf("%w: sensor trigger needs a sensor type", ErrInvalidRule)
		}
		if !sensorOperators[v.Operator] {
			return fmt.Errorf("%w: sensor operator %q", ErrInvalidRule, v.Operator)
		}
	case TimeTrigger:
		if _, _, err := ParseClock(v.Time); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		for _, d := range v.Days {
			if !weekdays[d] {
				return fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, d)
			}
		}
	case EventTrigger:
		if strings.TrimSpace(v.EventName) == "" {
			return fmt.Errorf("%w: event trigger needs an event name", ErrInvalidRule)
		}
	case DeviceTrigger:
		if v.DeviceID == "" || v.Property == "" {
			return fmt.Errorf("%w: device trigger needs a device and property", ErrInvalidRule)
		}
		if !deviceOperators[v.Operator] {
			return fmt.Errorf("%w: device operator %q", ErrInvalidRule, v.Operator)
		}
		switch v.Value.(type) {
		case string, float64, bool:
		default:
			return fmt.Errorf("%w: device trigger value must be a string, number or bool", ErrInvalidRule)
		}
	case nil:
		return fmt.Errorf("%w: %v", ErrInvalidRule, ErrMissingTrigger)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownTrigger, t)
	}
	return nil
}

// ValidateAction checks an action's fields
func ValidateAction(a Action) error {
	switch v := a.(type) {
	case DeviceAction:
		if v.Kind != ActionTurnOn && v.Kind != ActionTurnOff && v.Kind != ActionToggle {
			return fmt.Errorf("%w: device action %q", ErrInvalidRule, v.Kind)
		}
		if v.DeviceID == "" {
			return fmt.Errorf("%w: %s needs a device", ErrInvalidRule, v.Kind)
		}
	case SetAction:
		if v.DeviceID == "" || v.Property == "" {
			return fmt.Errorf("%w: set needs a device and property", ErrInvalidRule)
		}
	case NotifyAction:
		if strings.TrimSpace(v.Message) == "" {
			return fmt.Errorf("%w: notify needs a message", ErrInvalidRule)
		}
	case DelayAction:
		if v.Duration <= 0 {
			return fmt.Errorf("%w: delay must be positive", ErrInvalidRule)
		}
	case SceneAction:
		if v.SceneID == "" {
			return fmt.Errorf("%w: scene needs a scene id", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
	return nil
}

// Validate checks the caller supplied part of a rule
// ValidateConditions checks every condition uses a known logical operator
func ValidateConditions(conds []Condition) error {
	for i, c := range conds {
		if c.Type != LogicalAnd && c.Type != LogicalOr {
			return fmt.Errorf("%w: condition %d type %q", ErrInvalidRule, i, c.Type)
		}
	}
	return nil
}

func (in RuleInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if err := ValidateTrigger(in.Trigger); err != nil {
		return err
	}
	if len(in.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}
	for i, a := range in.Actions {
		if err := ValidateAction(a); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	if err := ValidateConditions(in.Conditions); err != nil {
		return err
	}
	if in.RiskLevel != "" && !ValidRiskLevel(in.RiskLevel) {
		return fmt.Errorf("%w: risk level %q", ErrInvalidRule, in.RiskLevel)
	}
	if in.TrustLevel != "" && !ValidTrustLevel(in.TrustLevel) {
		return fmt.Errorf("%w: trust level %q", ErrInvalidRule, in.TrustLevel)
	}
	if in.CreatedBy != "" && !ValidCreatedBy(in.CreatedBy) {
		return fmt.Errorf("%w: created by %q", ErrInvalidRule, in.CreatedBy)
	}
	return nil
}

// Validate checks a stored rule
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	enabled := r.Enabled
	return RuleInput{
		Name:       r.Name,
		Trigger:    r.Trigger,
		Conditions: r.Conditions,
		Actions:    r.Actions,
		Enabled:    &enabled,
		RiskLevel:  r.RiskLevel,
		TrustLevel: r.TrustLevel,
		CreatedBy:  r.CreatedBy,
	}.Validate()
}
