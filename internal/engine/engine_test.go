package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"artemis/internal/automation"
	"artemis/internal/conversation"
	"artemis/internal/interaction"
	"artemis/internal/mcp"
	"artemis/internal/mqtt"
	"artemis/internal/persist"
	"artemis/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startEngine(t *testing.T, store persist.Store) (*Engine, *mqtt.FakeClient) {
	t.Helper()
	client := mqtt.NewFakeClient()
	require.NoError(t, client.Connect(context.Background()))
	eng := NewEngine(Options{
		Logger:   testLogger(),
		MQTT:     client,
		QoS:      1,
		Store:    store,
		Watchdog: mcp.WatchdogConfig{ProcessingTimeout: time.Minute, ExecutingTimeout: time.Minute},
	})
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)
	return eng, client
}

func publish(t *testing.T, client *mqtt.FakeClient, typ mcp.EventType, payload interface{}) mcp.Event {
	t.Helper()
	ev, err := mcp.NewEvent(typ, payload)
	require.NoError(t, err)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, client.Publish("artemis/mcp/events", 1, false, data))
	return ev
}

func TestEventsFlowFromMQTT(t *testing.T) {
	eng, client := startEngine(t, nil)
	eng.Machine.StartProcessing()

	publish(t, client, mcp.EventThought, mcp.ThoughtPayload{Reasoning: "Bedroom is warm"})
	publish(t, client, mcp.EventMessage, mcp.MessagePayload{Content: "I can turn on the fan."})

	require.Eventually(t, func() bool {
		return eng.Machine.State() == interaction.Responding
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, eng.Reasoning.Len())
	assert.Equal(t, 1, eng.Conversation.Len())

	require.NoError(t, client.Publish("artemis/mcp/events", 1, false, []byte("not json")))
}

func TestResolveSuggestionPublishesDecision(t *testing.T) {
	eng, client := startEngine(t, nil)
	publish(t, client, mcp.EventSuggestion, mcp.SuggestionPayload{
		Content:          "Turn on the bedroom fan?",
		ActionType:       "turn_on",
		TargetID:         "fan-1",
		RiskLevel:        "low",
		RequiresApproval: true,
	})

	var pending conversation.Entry
	require.Eventually(t, func() bool {
		var ok bool
		pending, ok = eng.Conversation.PendingSuggestion()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.ResolveSuggestion(pending.ID, true))
	assert.ErrorIs(t, eng.ResolveSuggestion(pending.ID, false), ErrNoPendingSuggestion)
	assert.ErrorIs(t, eng.ResolveSuggestion("missing", true), ErrNoPendingSuggestion)

	entry, _ := eng.Conversation.Message(pending.ID)
	require.NotNil(t, entry.Approved)
	assert.True(t, *entry.Approved)

	var decisions []Decision
	for _, m := range client.Messages() {
		if m.Topic == "artemis/mcp/decisions" {
			var d Decision
			require.NoError(t, json.Unmarshal(m.Payload, &d))
			decisions = append(decisions, d)
		}
	}
	require.Len(t, decisions, 1)
	assert.Equal(t, Decision{SuggestionID: pending.ID, Approved: true, TargetID: "fan-1", ActionType: "turn_on"}, decisions[0])
}

func TestConcurrentResolvePublishesOnce(t *testing.T) {
	eng, client := startEngine(t, nil)
	id := eng.Conversation.AddSuggestion("Close the garage?", conversation.SuggestionData{ActionType: "close", TargetID: "garage"})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approved bool) {
			defer wg.Done()
			errs <- eng.ResolveSuggestion(id, approved)
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNoPendingSuggestion)
		}
	}
	assert.Equal(t, 1, succeeded)

	decisions := 0
	for _, m := range client.Messages() {
		if m.Topic == "artemis/mcp/decisions" {
			decisions++
		}
	}
	assert.Equal(t, 1, decisions)
}

func TestPublishFailureBecomesSystemMessage(t *testing.T) {
	eng, client := startEngine(t, nil)
	id := eng.Conversation.AddSuggestion("Dim the lights?", conversation.SuggestionData{ActionType: "set", TargetID: "lamp"})
	client.Disconnect()

	require.NoError(t, eng.ResolveSuggestion(id, false))
	msgs := eng.Conversation.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.TypeSystem, msgs[1].Type)
}

func TestAutoApproval(t *testing.T) {
	tests := []struct {
		name  string
		mode  settings.ApprovalMode
		trust automation.TrustLevel
		data  mcp.SuggestionPayload
		want  bool
	}{
		{"always ask ignores trust", settings.ApproveAlwaysAsk, automation.TrustAutoApprove, mcp.SuggestionPayload{ActionType: "turn_on", RiskLevel: "low"}, false},
		{"smart uses trust", settings.ApproveSmart, automation.TrustAutoApprove, mcp.SuggestionPayload{ActionType: "turn_on", RiskLevel: "medium", RequiresApproval: true}, true},
		{"smart without trust", settings.ApproveSmart, automation.TrustAskAlways, mcp.SuggestionPayload{ActionType: "turn_on", RiskLevel: "low"}, false},
		{"low risk no approval", settings.ApproveAutoLowRisk, automation.TrustAskAlways, mcp.SuggestionPayload{ActionType: "turn_on", RiskLevel: "low"}, true},
		{"low risk needing approval", settings.ApproveAutoLowRisk, automation.TrustAskAlways, mcp.SuggestionPayload{ActionType: "turn_on", RiskLevel: "low", RequiresApproval: true}, false},
		{"high risk never", settings.ApproveAutoLowRisk, automation.TrustAutoApprove, mcp.SuggestionPayload{ActionType: "turn_on", RiskLevel: "high"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(Options{Logger: testLogger()})
			s := settings.Defaults()
			s.Behavior.ApprovalMode = tt.mode
			require.NoError(t, eng.Settings.Set(s))
			require.True(t, eng.Automations.SetActionTrust("turn_on", tt.trust))

			tt.data.Content = "Turn on the fan?"
			ev, err := mcp.NewEvent(mcp.EventSuggestion, tt.data)
			require.NoError(t, err)
			require.NoError(t, eng.Dispatch(ev))

			_, pending := eng.Conversation.PendingSuggestion()
			assert.Equal(t, !tt.want, pending)
		})
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	store := persist.NewMemoryStore()
	eng := NewEngine(Options{Logger: testLogger(), Store: store, PersistDebounce: time.Hour})
	require.NoError(t, eng.Start(context.Background()))
	id := eng.Automations.AddRule(automation.RuleInput{
		Name:    "Evening lights",
		Trigger: automation.TimeTrigger{Time: "18:30", Repeat: true},
		Actions: []automation.Action{automation.DeviceAction{Kind: automation.ActionTurnOn, DeviceID: "lamp"}},
	})
	eng.Stop()

	next := NewEngine(Options{Logger: testLogger(), Store: store})
	require.NoError(t, next.Start(context.Background()))
	defer next.Stop()
	rule, ok := next.Automations.Rule(id)
	require.True(t, ok)
	assert.Equal(t, "Evening lights", rule.Name)

	when, ok := next.NextRun(rule)
	require.True(t, ok)
	assert.Equal(t, 30, when.Minute())
}

func TestSubscribeCoversEveryStore(t *testing.T) {
	eng := NewEngine(Options{Logger: testLogger()})
	n := 0
	cancel := eng.Subscribe(func() { n++ })
	eng.Machine.StartListening()
	eng.Conversation.AddUserMessage("hi")
	eng.Reasoning.Add("thinking", nil, nil)
	eng.Automations.SetActionTrust("scene", automation.TrustAskOnce)
	eng.Settings.Reset()
	assert.Equal(t, 5, n)

	cancel()
	eng.Conversation.AddUserMessage("again")
	assert.Equal(t, 5, n)
}
