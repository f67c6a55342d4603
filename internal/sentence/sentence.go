// Package sentence renders automation rules as plain English.
package sentence

import (
	"fmt"
	"strings"
	"time"

	"artemis/internal/automation"
	"artemis/internal/utils"
)

// Reassurance closes every confirmation message
const Reassurance = "You can pause or change this anytime."

var sensorNames = map[string]string{
	"temperature": "temperature",
	"humidity":    "humidity",
	"light":       "light level",
	"illuminance": "light level",
	"co2":         "CO₂ level",
	"noise":       "noise level",
	"air_quality": "air quality",
	"pressure":    "air pressure",
}

var sensorPhrases = map[automation.Operator]string{
	automation.OpGreater:      "goes above",
	automation.OpLess:         "drops below",
	automation.OpEqual:        "reaches",
	automation.OpGreaterEqual: "reaches or exceeds",
	automation.OpLessEqual:    "reaches or drops below",
}

var deviceWords = map[automation.Operator]string{
	automation.OpEqual:    "is",
	automation.OpNotEqual: "is not",
	automation.OpGreater:  "is above",
	automation.OpLess:     "is below",
}

var eventPhrases = map[string]string{
	"motion_detected":  "motion is detected",
	"motion_cleared":   "motion stops",
	"door_opened":      "the door opens",
	"door_closed":      "the door closes",
	"window_opened":    "a window opens",
	"window_closed":    "a window closes",
	"arrive_home":      "you arrive home",
	"leave_home":       "you leave home",
	"sunrise":          "the sun rises",
	"sunset":           "the sun sets",
	"doorbell_pressed": "someone rings the doorbell",
	"alarm_triggered":  "the alarm goes off",
}

var dayNames = map[automation.Weekday]string{
	automation.Monday:    "Monday",
	automation.Tuesday:   "Tuesday",
	automation.Wednesday: "Wednesday",
	automation.Thursday:  "Thursday",
	automation.Friday:    "Friday",
	automation.Saturday:  "Saturday",
	automation.Sunday:    "Sunday",
}

// Blocks is the two part "when / do" rendering of a rule
type Blocks struct {
	When string   `json:"when"`
	Do   []string `json:"doText"`
}

// FormatTrigger describes when a trigger fires
func FormatTrigger(t automation.Trigger) string {
	switch v := t.(type) {
	case automation.SensorTrigger:
		return formatSensor(v)
	case automation.TimeTrigger:
		return formatTime(v)
	case automation.EventTrigger:
		return formatEvent(v.EventName)
	case automation.DeviceTrigger:
		return formatDevice(v)
	}
	return "something happens"
}

func formatSensor(t automation.SensorTrigger) string {
	name, ok := sensorNames[t.SensorType]
	if !ok {
		name = utils.Humanize(t.SensorType)
	}
	if name == "" {
		name = "sensor reading"
	}
	phrase, ok := sensorPhrases[t.Operator]
	if !ok {
		phrase = "is"
	}
	unit := t.Unit
	if unit == "" && t.SensorType == "temperature" {
		unit = "°C"
	}
	return fmt.Sprintf("the %s %s %s%s", name, phrase, utils.FormatNumber(t.Value), unit)
}

func formatTime(t automation.TimeTrigger) string {
	clock := FormatClock(t.Time)
	days := automation.DistinctDays(t.Days)
	if len(days) > 0 && len(days) < len(automation.Week) {
		names := make([]string, len(days))
		for i, d := range days {
			names[i] = dayNames[d]
		}
		return fmt.Sprintf("it's %s on %s", clock, strings.Join(names, ", "))
	}
	if t.Repeat {
		return fmt.Sprintf("it's %s every day", clock)
	}
	return fmt.Sprintf("it's %s", clock)
}

// FormatClock turns "18:30" into "6:30 PM". Unparseable input is returned as is.
func FormatClock(hhmm string) string {
	hour, minute, err := automation.ParseClock(hhmm)
	if err != nil {
		if s := strings.TrimSpace(hhmm); s != "" {
			return s
		}
		return "the scheduled time"
	}
	return time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC).Format("3:04 PM")
}

func formatEvent(name string) string {
	if phrase, ok := eventPhrases[name]; ok {
		return phrase
	}
	if h := utils.Humanize(name); h != "" {
		return h
	}
	return "an event occurs"
}

func formatDevice(t automation.DeviceTrigger) string {
	word, ok := deviceWords[t.Operator]
	if !ok {
		word = "is"
	}
	parts := []string{t.DeviceID, t.Property, word, utils.FormatValue(t.Value)}
	out := strings.Join(nonEmpty(parts), " ")
	if out == word {
		return "a device changes"
	}
	return out
}

// FormatAction describes what an action does
func FormatAction(a automation.Action) string {
	switch v := a.(type) {
	case automation.DeviceAction:
		verb := map[automation.ActionType]string{
			automation.ActionTurnOn:  "turn on",
			automation.ActionTurnOff: "turn off",
			automation.ActionToggle:  "toggle",
		}[v.Kind]
		if verb == "" {
			verb = "switch"
		}
		return fmt.Sprintf("%s the %s", verb, deviceLabel(v.DeviceName, v.DeviceID))
	case automation.SetAction:
		prop := v.Property
		if prop == "" {
			prop = "value"
		}
		return fmt.Sprintf("set the %s %s to %s%s", deviceLabel(v.DeviceName, v.DeviceID), prop, utils.FormatValue(v.Value), v.Unit)
	case automation.NotifyAction:
		return `send you a notification: "` + v.Message + `"`
	case automation.DelayAction:
		return fmt.Sprintf("wait %d seconds", v.Duration)
	case automation.SceneAction:
		scene := v.SceneName
		if scene == "" {
			scene = v.SceneID
		}
		return `activate the "` + scene + `" scene`
	case nil:
		return "do nothing"
	}
	if h := utils.Humanize(string(a.ActionType())); h != "" {
		return h
	}
	return "run an action"
}

func deviceLabel(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "device"
}

// RuleSentence is the one line description shown when a rule is reviewed
func RuleSentence(rule automation.Rule) string {
	var b strings.Builder
	b.WriteString("I'll ")
	b.WriteString(joinActions(rule.Actions))
	if rule.Location != "" {
		b.WriteString(" in the ")
		b.WriteString(rule.Location)
	}
	b.WriteString(" whenever ")
	b.WriteString(FormatTrigger(rule.Trigger))
	b.WriteString(".")
	return b.String()
}

// RuleSummary is the compact list view of a rule
func RuleSummary(rule automation.Rule) string {
	first := "do nothing"
	if len(rule.Actions) > 0 {
		first = FormatAction(rule.Actions[0])
	}
	s := fmt.Sprintf("When %s → %s", FormatTrigger(rule.Trigger), first)
	if n := len(rule.Actions) - 1; n > 0 {
		s += fmt.Sprintf(" (+%d more)", n)
	}
	return s
}

// RuleBlocks renders the trigger and each action separately
func RuleBlocks(rule automation.Rule) Blocks {
	do := make([]string, len(rule.Actions))
	for i, a := range rule.Actions {
		do[i] = FormatAction(a)
	}
	return Blocks{When: FormatTrigger(rule.Trigger), Do: do}
}

// ConfirmationMessage is read back before a rule is saved
func ConfirmationMessage(rule automation.Rule) string {
	return RuleSentence(rule) + "\n" + Reassurance
}

func joinActions(actions []automation.Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = FormatAction(a)
	}
	switch len(parts) {
	case 0:
		return "do nothing"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
