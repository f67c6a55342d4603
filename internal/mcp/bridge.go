package mcp

import (
	"fmt"
	"log/slog"
	"strings"

	"artemis/internal/conversation"
	"artemis/internal/interaction"
	"artemis/internal/reasoning"

	lru "github.com/hashicorp/golang-lru/v2"
)

// recentEvents bounds the duplicate filter
const recentEvents = 256

// Dispatcher handles one event to completion
type Dispatcher interface {
	Dispatch(ev Event) error
}

// Bridge applies upstream events to the machine, conversation and reasoning trail.
// It is not safe for concurrent use; run it behind a Loop.
type Bridge struct {
	machine  *interaction.Machine
	convo    *conversation.Log
	thoughts *reasoning.Log
	seen     *lru.Cache[string, struct{}]
	logger   *slog.Logger
}

// NewBridge creates a bridge
func NewBridge(machine *interaction.Machine, convo *conversation.Log, thoughts *reasoning.Log, logger *slog.Logger) *Bridge {
	seen, _ := lru.New[string, struct{}](recentEvents)
	return &Bridge{
		machine:  machine,
		convo:    convo,
		thoughts: thoughts,
		seen:     seen,
		logger:   logger.With("component", "mcp-bridge"),
	}
}

// Dispatch applies one event. Unknown or malformed events are logged and
// dropped; the returned error only tells the caller why.
func (b *Bridge) Dispatch(ev Event) error {
	if ev.ID != "" {
		if b.seen.Contains(ev.ID) {
			b.logger.Debug("Dropping duplicate event", "event_id", ev.ID, "type", ev.Type)
			return nil
		}
		b.seen.Add(ev.ID, struct{}{})
	}

	payload, err := Decode(ev)
	if err != nil {
		b.logger.Warn("Dropping event", "event_id", ev.ID, "type", ev.Type, "error", err)
		return err
	}

	switch p := payload.(type) {
	case ThoughtPayload:
		b.thoughts.Add(p.Reasoning, p.Confidence, p.Step)
	case MessagePayload:
		b.convo.AddAssistantMessage(p.Content, map[string]interface{}{"tts": p.TTS})
		b.machine.StartResponding(p.Content, nil)
	case SuggestionPayload:
		b.convo.AddSuggestion(p.Content, conversation.SuggestionData{
			ActionType:       p.ActionType,
			TargetID:         p.TargetID,
			Parameters:       p.Parameters,
			RiskLevel:        p.RiskLevel,
			RequiresApproval: p.RequiresApproval,
		})
	case ExecutionStartPayload:
		b.convo.AddSystemMessage(p.Description)
		b.machine.StartExecuting()
	case ExecutionResultPayload:
		mark := "✗"
		if p.Success {
			mark = "✓"
		}
		b.convo.AddSystemMessage(fmt.Sprintf("%s %s", mark, p.Message))
		b.machine.FinishExecuting(interaction.ExecutionResult{
			ActionID:        p.ActionID,
			Success:         p.Success,
			Message:         p.Message,
			AffectedDevices: p.AffectedDevices,
		})
	case ErrorPayload:
		if p.Since != nil && !b.stillIn(*p.Since) {
			b.logger.Debug("Dropping stale error", "event_id", ev.ID, "code", p.Code, "state", b.machine.State())
			return nil
		}
		text := p.Message
		if hint := strings.TrimSpace(p.Suggestion); hint != "" {
			text += " " + hint
		}
		b.convo.AddSystemMessage(text)
		b.machine.GoIdle()
		b.logger.Info("Upstream error", "code", p.Code, "recoverable", p.Recoverable)
	}

	b.logger.Debug("Event dispatched", "event_id", ev.ID, "type", ev.Type, "state", b.machine.State())
	return nil
}

func (b *Bridge) stillIn(stay StateStay) bool {
	snap := b.machine.Snapshot()
	return snap.State == stay.State && snap.EnteredAt.Equal(stay.EnteredAt)
}
