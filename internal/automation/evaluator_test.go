package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateConditions(t *testing.T) {
	snap := StateSnapshot{
		Sensors: map[string]interface{}{"temperature": 29.5, "humidity": 40},
		Devices: map[string]map[string]interface{}{
			"window": {"state": "closed"},
			"tv":     {"power": true},
		},
	}

	hot := ConditionExpression{SensorType: "temperature", Operator: OpGreater, Value: 28}
	dry := ConditionExpression{SensorType: "humidity", Operator: OpLess, Value: 30}
	closed := ConditionExpression{DeviceID: "window", Property: "state", Operator: OpEqual, Value: "closed"}
	tvOff := ConditionExpression{DeviceID: "tv", Property: "power", Operator: OpEqual, Value: false}
	missing := ConditionExpression{SensorType: "co2", Operator: OpGreater, Value: 1000}

	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"empty holds", nil, true},
		{"and both true", []Condition{{Type: LogicalAnd, Left: hot, Right: closed}}, true},
		{"and one false", []Condition{{Type: LogicalAnd, Left: hot, Right: dry}}, false},
		{"or one true", []Condition{{Type: LogicalOr, Left: dry, Right: closed}}, true},
		{"or both false", []Condition{{Type: LogicalOr, Left: dry, Right: tvOff}}, false},
		{"missing value is false", []Condition{{Type: LogicalOr, Left: missing, Right: missing}}, false},
		{"every entry must hold", []Condition{
			{Type: LogicalAnd, Left: hot, Right: closed},
			{Type: LogicalAnd, Left: hot, Right: tvOff},
		}, false},
		{"unknown type is false", []Condition{{Type: "xor", Left: hot, Right: closed}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateConditions(tt.conds, snap))
		})
	}
}

func TestEvaluateExpressionUnknownOperator(t *testing.T) {
	snap := StateSnapshot{Sensors: map[string]interface{}{"temperature": 20.0}}
	assert.False(t, EvaluateExpression(ConditionExpression{SensorType: "temperature", Operator: "~", Value: 20}, snap))
	assert.False(t, EvaluateExpression(ConditionExpression{SensorType: "temperature", Operator: OpEqual, Value: 20}, nil))
}
