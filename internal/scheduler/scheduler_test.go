package scheduler

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"artemis/internal/automation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func timeRule(name, at string, repeat bool, days ...automation.Weekday) automation.RuleInput {
	return automation.RuleInput{
		Name:    name,
		Trigger: automation.TimeTrigger{Time: at, Repeat: repeat, Days: days},
		Actions: []automation.Action{automation.DeviceAction{Kind: automation.ActionTurnOn, DeviceID: "lamp"}},
	}
}

func TestSyncTracksEnabledTimeRules(t *testing.T) {
	store := automation.NewStore(automation.WithLogger(testLogger()))
	s := NewScheduler(store, time.UTC, testLogger())

	evening := store.AddRule(timeRule("Evening", "18:30", true))
	store.AddRule(automation.RuleInput{
		Name:    "Hot",
		Trigger: automation.SensorTrigger{SensorType: "temperature", Operator: automation.OpGreater, Value: 28},
		Actions: []automation.Action{automation.NotifyAction{Message: "hot"}},
	})
	s.Sync()
	assert.Equal(t, 1, s.JobCount())

	store.DisableRule(evening)
	s.Sync()
	assert.Equal(t, 0, s.JobCount())
}

func TestStartFollowsStoreChanges(t *testing.T) {
	store := automation.NewStore(automation.WithLogger(testLogger()))
	s := NewScheduler(store, time.UTC, testLogger())
	s.Start()
	defer s.Stop()

	id := store.AddRule(timeRule("Weekdays", "07:00", true, automation.Monday, automation.Friday))
	assert.Equal(t, 1, s.JobCount())

	require.True(t, store.UpdateRule(id, automation.RulePatch{Trigger: automation.TimeTrigger{Time: "07:15", Repeat: true}}))
	assert.Equal(t, 1, s.JobCount())
	next, ok := s.NextRun(id)
	require.True(t, ok)
	assert.Equal(t, 15, next.Minute())

	require.True(t, store.DeleteRule(id))
	assert.Equal(t, 0, s.JobCount())
}

func TestFireRecordsAndRetiresOneShot(t *testing.T) {
	store := automation.NewStore(automation.WithLogger(testLogger()))
	s := NewScheduler(store, time.UTC, testLogger())
	s.Start()
	defer s.Stop()

	daily := store.AddRule(timeRule("Daily", "06:00", true))
	once := store.AddRule(timeRule("Once", "09:00", false))
	require.Equal(t, 2, s.JobCount())

	s.fire(daily, false)
	s.fire(once, true)

	rule, _ := store.Rule(daily)
	assert.EqualValues(t, 1, rule.TriggerCount)
	assert.True(t, rule.Enabled)

	rule, _ = store.Rule(once)
	assert.EqualValues(t, 1, rule.TriggerCount)
	assert.NotNil(t, rule.LastTriggered)
	assert.False(t, rule.Enabled)
	assert.Equal(t, 1, s.JobCount())

	s.fire("missing", false)
}
