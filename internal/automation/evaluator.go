package automation

import (
	"artemis/internal/utils"
)

// Snapshot resolves the current value a condition expression refers to
type Snapshot interface {
	Lookup(expr ConditionExpression) (interface{}, bool)
}

// StateSnapshot is a Snapshot over plain maps: sensor readings by sensor type
// and device properties by device id.
type StateSnapshot struct {
	Sensors map[string]interface{}            `json:"sensors"`
	Devices map[string]map[string]interface{} `json:"devices"`
}

// Lookup implements Snapshot. Device lookups win when both a device id and a
// sensor type are set.
func (s StateSnapshot) Lookup(expr ConditionExpression) (interface{}, bool) {
	if expr.DeviceID != "" {
		props, ok := s.Devices[expr.DeviceID]
		if !ok {
			return nil, false
		}
		key := expr.Property
		if key == "" {
			key = expr.SensorType
		}
		v, ok := props[key]
		return v, ok
	}
	if expr.SensorType != "" {
		v, ok := s.Sensors[expr.SensorType]
		return v, ok
	}
	return nil, false
}

// EvaluateExpression compares the resolved value with the expression's value
func EvaluateExpression(expr ConditionExpression, snap Snapshot) bool {
	if snap == nil {
		return false
	}
	actual, ok := snap.Lookup(expr)
	if !ok {
		return false
	}
	return utils.Compare(actual, string(expr.Operator), expr.Value)
}

// EvaluateCondition evaluates a single and/or condition
func EvaluateCondition(cond Condition, snap Snapshot) bool {
	switch cond.Type {
	case LogicalAnd:
		return EvaluateExpression(cond.Left, snap) && EvaluateExpression(cond.Right, snap)
	case LogicalOr:
		return EvaluateExpression(cond.Left, snap) || EvaluateExpression(cond.Right, snap)
	}
	return false
}

// EvaluateConditions holds when every condition holds. An empty list holds.
func EvaluateConditions(conds []Condition, snap Snapshot) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, snap) {
			return false
		}
	}
	return true
}
