package automation

import "time"

// TriggerType is the discriminator of a trigger on the wire
type TriggerType string

const (
	TriggerSensor TriggerType = "sensor"
	TriggerTime   TriggerType = "time"
	TriggerEvent  TriggerType = "event"
	TriggerDevice TriggerType = "device"
)

// ActionType is the discriminator of an action on the wire
type ActionType string

const (
	ActionTurnOn  ActionType = "turn_on"
	ActionTurnOff ActionType = "turn_off"
	ActionToggle  ActionType = "toggle"
	ActionSet     ActionType = "set"
	ActionNotify  ActionType = "notify"
	ActionDelay   ActionType = "delay"
	ActionScene   ActionType = "scene"
)

// Operator is a comparison operator used by triggers and conditions
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpNotEqual     Operator = "!="
)

// Weekday is a lowercase three letter day name
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

// Week lists every weekday in calendar order, starting Monday
var Week = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// RiskLevel grades how disruptive a rule is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// TrustLevel controls whether a rule or action type needs confirmation
type TrustLevel string

const (
	TrustAskAlways   TrustLevel = "ask_always"
	TrustAskOnce     TrustLevel = "ask_once"
	TrustAutoApprove TrustLevel = "auto_approve"
)

// CreatedBy records which flow produced a rule
type CreatedBy string

const (
	CreatedByVoice     CreatedBy = "voice"
	CreatedByManual    CreatedBy = "manual"
	CreatedBySuggested CreatedBy = "suggested"
)

// LogicalOperator joins the two sides of a condition
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Trigger is one of SensorTrigger, TimeTrigger, EventTrigger or DeviceTrigger
type Trigger interface {
	TriggerType() TriggerType
}

// SensorTrigger fires when a sensor reading crosses a threshold
type SensorTrigger struct {
	SensorType string   `json:"sensorType"`
	Operator   Operator `json:"operator"`
	Value      float64  `json:"value"`
	Unit       string   `json:"unit,omitempty"`
}

// TimeTrigger fires at a wall clock time, optionally on selected days
type TimeTrigger struct {
	Time   string    `json:"time"`
	Days   []Weekday `json:"days,omitempty"`
	Repeat bool      `json:"repeat"`
}

// EventTrigger fires on a named home event
type EventTrigger struct {
	EventName string `json:"eventName"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// DeviceTrigger fires when a device property matches a value.
// Value holds a string, float64 or bool.
type DeviceTrigger struct {
	DeviceID string      `json:"deviceId"`
	Property string      `json:"property"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

func (SensorTrigger) TriggerType() TriggerType { return TriggerSensor }
func (TimeTrigger) TriggerType() TriggerType   { return TriggerTime }
func (EventTrigger) TriggerType() TriggerType  { return TriggerEvent }
func (DeviceTrigger) TriggerType() TriggerType { return TriggerDevice }

// Action is one of DeviceAction, SetAction, NotifyAction, DelayAction or SceneAction
type Action interface {
	ActionType() ActionType
}

// DeviceAction switches a device on, off, or toggles it
type DeviceAction struct {
	Kind       ActionType `json:"-"`
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName,omitempty"`
}

// SetAction sets a device property
type SetAction struct {
	DeviceID   string      `json:"deviceId"`
	DeviceName string      `json:"deviceName,omitempty"`
	Property   string      `json:"property"`
	Value      interface{} `json:"value"`
	Unit       string      `json:"unit,omitempty"`
}

// NotifyAction sends the user a notification
type NotifyAction struct {
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

// DelayAction pauses the action sequence
type DelayAction struct {
	Duration int `json:"duration"`
}

// SceneAction activates a scene
type SceneAction struct {
	SceneID   string `json:"sceneId"`
	SceneName string `json:"sceneName,omitempty"`
}

func (a DeviceAction) ActionType() ActionType { return a.Kind }
func (SetAction) ActionType() ActionType      { return ActionSet }
func (NotifyAction) ActionType() ActionType   { return ActionNotify }
func (DelayAction) ActionType() ActionType    { return ActionDelay }
func (SceneAction) ActionType() ActionType    { return ActionScene }

// ConditionExpression is a single comparison
type ConditionExpression struct {
	Operator   Operator    `json:"operator"`
	Value      interface{} `json:"value"`
	SensorType string      `json:"sensorType,omitempty"`
	DeviceID   string      `json:"deviceId,omitempty"`
	Property   string      `json:"property,omitempty"`
}

// Condition narrows when a trigger fires
type Condition struct {
	Type  LogicalOperator     `json:"type"`
	Left  ConditionExpression `json:"left"`
	Right ConditionExpression `json:"right"`
}

// Rule is a stored automation
type Rule struct {
	ID                   string
	Name                 string
	Description          string
	Trigger              Trigger
	Conditions           []Condition
	Actions              []Action
	Location             string
	Enabled              bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
	LastTriggered        *time.Time
	TriggerCount         uint64
	RiskLevel            RiskLevel
	TrustLevel           TrustLevel
	RequiresConfirmation bool
	CreatedBy            CreatedBy
	IsPython             bool
	PythonCode           string
}

// RuleInput carries the caller supplied fields of a new rule
type RuleInput struct {
	Name        string
	Description string
	Trigger     Trigger
	Conditions  []Condition
	Actions     []Action
	Location    string
	Enabled     *bool
	RiskLevel   RiskLevel
	TrustLevel  TrustLevel
	CreatedBy   CreatedBy
	IsPython    bool
	PythonCode  string
}

// RulePatch is merged into an existing rule. Nil fields are left alone.
type RulePatch struct {
	Name        *string
	Description *string
	Trigger     Trigger
	Conditions  *[]Condition
	Actions     *[]Action
	Location    *string
	Enabled     *bool
	RiskLevel   *RiskLevel
	TrustLevel  *TrustLevel
	IsPython    *bool
	PythonCode  *string
}

// Clone returns a deep copy of the rule's slices and pointers
func (r Rule) Clone() Rule {
	out := r
	if r.Conditions != nil {
		out.Conditions = append([]Condition(nil), r.Conditions...)
	}
	if r.Actions != nil {
		out.Actions = append([]Action(nil), r.Actions...)
	}
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		out.LastTriggered = &t
	}
	if tt, ok := r.Trigger.(TimeTrigger); ok && tt.Days != nil {
		tt.Days = append([]Weekday(nil), tt.Days...)
		out.Trigger = tt
	}
	return out
}

// ConfirmationRequired is the trust policy: only ask_always needs confirmation
func ConfirmationRequired(trust TrustLevel) bool {
	return trust == TrustAskAlways
}
