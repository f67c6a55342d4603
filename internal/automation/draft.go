package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrIncompleteDraft = errors.New("draft is incomplete")

// Draft is a rule under construction. Every field is optional; nothing is
// checked until Build.
type Draft struct {
	Name        *string
	Description *string
	Trigger     Trigger
	Conditions  []Condition
	Actions     []Action
	Location    *string
	Enabled     *bool
	RiskLevel   *RiskLevel
	TrustLevel  *TrustLevel
	CreatedBy   *CreatedBy
}

// Merge returns d with every non-nil field of patch replacing d's
func (d Draft) Merge(patch Draft) Draft {
	out := d
	if patch.Name != nil {
		out.Name = patch.Name
	}
	if patch.Description != nil {
		out.Description = patch.Description
	}
	if patch.Trigger != nil {
		out.Trigger = patch.Trigger
	}
	if patch.Conditions != nil {
		out.Conditions = patch.Conditions
	}
	if patch.Actions != nil {
		out.Actions = patch.Actions
	}
	if patch.Location != nil {
		out.Location = patch.Location
	}
	if patch.Enabled != nil {
		out.Enabled = patch.Enabled
	}
	if patch.RiskLevel != nil {
		out.RiskLevel = patch.RiskLevel
	}
	if patch.TrustLevel != nil {
		out.TrustLevel = patch.TrustLevel
	}
	if patch.CreatedBy != nil {
		out.CreatedBy = patch.CreatedBy
	}
	return out
}

// Missing lists the required fields the draft does not have yet
func (d Draft) Missing() []string {
	var missing []string
	if d.Name == nil || strings.TrimSpace(*d.Name) == "" {
		missing = append(missing, "name")
	}
	if d.Trigger == nil {
		missing = append(missing, "trigger")
	}
	if len(d.Actions) == 0 {
		missing = append(missing, "actions")
	}
	return missing
}

// Build promotes the draft to a validated RuleInput
func (d Draft) Build() (RuleInput, error) {
	if missing := d.Missing(); len(missing) > 0 {
		return RuleInput{}, fmt.Errorf("%w: missing %s", ErrIncompleteDraft, strings.Join(missing, ", "))
	}
	in := RuleInput{
		Name:       *d.Name,
		Trigger:    d.Trigger,
		Conditions: d.Conditions,
		Actions:    append([]Action(nil), d.Actions...),
		Enabled:    d.Enabled,
	}
	if d.Description != nil {
		in.Description = *d.Description
	}
	if d.Location != nil {
		in.Location = *d.Location
	}
	if d.RiskLevel != nil {
		in.RiskLevel = *d.RiskLevel
	}
	if d.TrustLevel != nil {
		in.TrustLevel = *d.TrustLevel
	}
	if d.CreatedBy != nil {
		in.CreatedBy = *d.CreatedBy
	}
	if err := in.Validate(); err != nil {
		return RuleInput{}, err
	}
	return in, nil
}

type draftJSON struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Trigger     json.RawMessage   `json:"trigger,omitempty"`
	Conditions  []Condition       `json:"conditions,omitempty"`
	Actions     []json.RawMessage `json:"actions,omitempty"`
	Location    *string           `json:"location,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	RiskLevel   *RiskLevel        `json:"riskLevel,omitempty"`
	TrustLevel  *TrustLevel       `json:"trustLevel,omitempty"`
	CreatedBy   *CreatedBy        `json:"createdBy,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (d Draft) MarshalJSON() ([]byte, error) {
	doc := draftJSON{
		Name:        d.Name,
		Description: d.Description,
		Conditions:  d.Conditions,
		Location:    d.Location,
		Enabled:     d.Enabled,
		RiskLevel:   d.RiskLevel,
		TrustLevel:  d.TrustLevel,
		CreatedBy:   d.CreatedBy,
	}
	if d.Trigger != nil {
		raw, err := MarshalTrigger(d.Trigger)
		if err != nil {
			return nil, err
		}
		doc.Trigger = raw
	}
	if d.Actions != nil {
		raws, err := MarshalActions(d.Actions)
		if err != nil {
			return nil, err
		}
		doc.Actions = raws
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Draft) UnmarshalJSON(data []byte) error {
	var doc draftJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out := Draft{
		Name:        doc.Name,
		Description: doc.Description,
		Conditions:  doc.Conditions,
		Location:    doc.Location,
		Enabled:     doc.Enabled,
		RiskLevel:   doc.RiskLevel,
		TrustLevel:  doc.TrustLevel,
		CreatedBy:   doc.CreatedBy,
	}
	if len(doc.Trigger) > 0 && string(doc.Trigger) != "null" {
		t, err := UnmarshalTrigger(doc.Trigger)
		if err != nil {
			return err
		}
		out.Trigger = t
	}
	if doc.Actions != nil {
		actions, err := UnmarshalActions(doc.Actions)
		if err != nil {
			return err
		}
		out.Actions = actions
	}
	*d = out
	return nil
}
