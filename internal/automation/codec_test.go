package automation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerWireShape(t *testing.T) {
	raw, err := MarshalTrigger(SensorTrigger{SensorType: "temperature", Operator: OpGreater, Value: 28, Unit: "°C"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sensor","sensorType":"temperature","operator":">","value":28,"unit":"°C"}`, string(raw))

	raw, err = MarshalTrigger(TimeTrigger{Time: "18:30", Days: []Weekday{Monday, Wednesday}, Repeat: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"time","time":"18:30","days":["mon","wed"],"repeat":true}`, string(raw))
}

func TestUnmarshalTriggerVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Trigger
	}{
		{"sensor", `{"type":"sensor","sensorType":"humidity","operator":"<","value":40}`,
			SensorTrigger{SensorType: "humidity", Operator: OpLess, Value: 40}},
		{"event", `{"type":"event","eventName":"door_opened","deviceId":"front"}`,
			EventTrigger{EventName: "door_opened", DeviceID: "front"}},
		{"device bool", `{"type":"device","deviceId":"tv","property":"power","operator":"=","value":true}`,
			DeviceTrigger{DeviceID: "tv", Property: "power", Operator: OpEqual, Value: true}},
		{"device string", `{"type":"device","deviceId":"lock","property":"state","operator":"!=","value":"locked"}`,
			DeviceTrigger{DeviceID: "lock", Property: "state", Operator: OpNotEqual, Value: "locked"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalTrigger([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownDiscriminators(t *testing.T) {
	_, err := UnmarshalTrigger([]byte(`{"type":"weather"}`))
	assert.ErrorIs(t, err, ErrUnknownTrigger)

	_, err = UnmarshalAction([]byte(`{"type":"dance"}`))
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = MarshalTrigger(nil)
	assert.ErrorIs(t, err, ErrMissingTrigger)

	_, err = MarshalAction(DeviceAction{Kind: ActionNotify, DeviceID: "x"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDeviceActionKindComesFromType(t *testing.T) {
	a, err := UnmarshalAction([]byte(`{"type":"toggle","deviceId":"lamp","deviceName":"desk lamp"}`))
	require.NoError(t, err)
	assert.Equal(t, DeviceAction{Kind: ActionToggle, DeviceID: "lamp", DeviceName: "desk lamp"}, a)

	raw, err := MarshalAction(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"toggle","deviceId":"lamp","deviceName":"desk lamp"}`, string(raw))
}

func TestRuleRoundTripKeepsUnusedFields(t *testing.T) {
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	fired := created.Add(time.Hour)
	rule := Rule{
		ID:      "r1",
		Name:    "Night mode",
		Trigger: TimeTrigger{Time: "22:00", Repeat: true},
		Conditions: []Condition{{
			Type:  LogicalAnd,
			Left:  ConditionExpression{Operator: OpLess, Value: 10.0, SensorType: "light"},
			Right: ConditionExpression{Operator: OpEqual, Value: "home", DeviceID: "presence", Property: "mode"},
		}},
		Actions: []Action{
			SceneAction{SceneID: "night", SceneName: "Night"},
			DelayAction{Duration: 5},
			SetAction{DeviceID: "thermo", Property: "target", Value: 18.5, Unit: "°C"},
			NotifyAction{Message: "Good night", Priority: "low"},
		},
		Enabled:              true,
		CreatedAt:            created,
		UpdatedAt:            created,
		LastTriggered:        &fired,
		TriggerCount:         3,
		RiskLevel:            RiskMedium,
		TrustLevel:           TrustAskOnce,
		RequiresConfirmation: false,
		CreatedBy:            CreatedBySuggested,
		IsPython:             true,
		PythonCode:           "print('hi')",
	}

	data, err := json.Marshal(rule)
	require.NoError(t, err)

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rule.Conditions, back.Conditions)
	assert.Equal(t, rule.Actions, back.Actions)
	assert.Equal(t, rule.Trigger, back.Trigger)
	assert.True(t, back.IsPython)
	assert.Equal(t, "print('hi')", back.PythonCode)
	assert.Equal(t, uint64(3), back.TriggerCount)
	require.NotNil(t, back.LastTriggered)
	assert.True(t, fired.Equal(*back.LastTriggered))
}

func TestDraftJSON(t *testing.T) {
	var d Draft
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Porch","trigger":{"type":"event","eventName":"sunset"}}`), &d))
	require.NotNil(t, d.Name)
	assert.Equal(t, "Porch", *d.Name)
	assert.Equal(t, EventTrigger{EventName: "sunset"}, d.Trigger)
	assert.Nil(t, d.Actions)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Porch","trigger":{"type":"event","eventName":"sunset"}}`, string(data))
}
