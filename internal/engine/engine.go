package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"artemis/internal/automation"
	"artemis/internal/conversation"
	"artemis/internal/interaction"
	"artemis/internal/mcp"
	"artemis/internal/mqtt"
	"artemis/internal/persist"
	"artemis/internal/reasoning"
	"artemis/internal/scheduler"
	"artemis/internal/settings"
)

var ErrNoPendingSuggestion = errors.New("no pending suggestion with that id")

// Options wires the engine to its transports. Zero values fall back to
// in-process defaults.
type Options struct {
	Logger *slog.Logger

	// MQTT is optional; without it events arrive only through Post.
	MQTT           mqtt.Client
	EventsTopic    string
	DecisionsTopic string
	QoS            byte

	Store           persist.Store
	PersistDebounce time.Duration

	ReasoningCapacity int
	LoopBuffer        int
	Watchdog          mcp.WatchdogConfig
	// Deferrer replaces the in-process timer behind PostAfter
	Deferrer mcp.Deferrer

	SchedulerEnabled bool
	Location         *time.Location
}

// Decision is published upstream when the user answers a suggestion
type Decision struct {
	SuggestionID string `json:"suggestionId"`
	Approved     bool   `json:"approved"`
	TargetID     string `json:"targetId"`
	ActionType   string `json:"actionType"`
}

// Engine is the assistant core
type Engine struct {
	Machine      *interaction.Machine
	Conversation *conversation.Log
	Reasoning    *reasoning.Log
	Automations  *automation.Store
	Settings     *settings.Service

	bridge    *mcp.Bridge
	loop      *mcp.Loop
	watchdog  *mcp.Watchdog
	syncer    *persist.Syncer
	scheduler *scheduler.Scheduler

	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewEngine creates an engine instance
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.EventsTopic == "" {
		opts.EventsTopic = "artemis/mcp/events"
	}
	if opts.DecisionsTopic == "" {
		opts.DecisionsTopic = "artemis/mcp/decisions"
	}
	if opts.Store == nil {
		opts.Store = persist.NewMemoryStore()
	}

	e := &Engine{
		Machine:      interaction.NewMachine(interaction.WithLogger(logger)),
		Conversation: conversation.NewLog(),
		Reasoning:    reasoning.NewLog(opts.ReasoningCapacity),
		Automations:  automation.NewStore(automation.WithLogger(logger)),
		Settings:     settings.NewService(),
		opts:         opts,
		logger:       logger.With("component", "engine"),
	}
	e.bridge = mcp.NewBridge(e.Machine, e.Conversation, e.Reasoning, logger)
	e.loop = mcp.NewLoop(e, opts.LoopBuffer, logger)
	if opts.Deferrer != nil {
		e.loop.SetDeferrer(opts.Deferrer)
	}
	e.watchdog = mcp.NewWatchdog(e.Machine, e.loop, opts.Watchdog, logger)
	e.syncer = persist.NewSyncer(opts.Store, e.Automations, e.Settings, opts.PersistDebounce, logger)
	if opts.SchedulerEnabled {
		e.scheduler = scheduler.NewScheduler(e.Automations, opts.Location, logger)
	}
	return e
}

// Start restores stored state, subscribes to upstream events and starts
// the background loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("engine already started")
	}

	if err := e.syncer.Restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	if e.opts.MQTT != nil {
		e.logger.Info("Subscribing to MQTT topic", "topic", e.opts.EventsTopic)
		if err := e.opts.MQTT.Subscribe(e.opts.EventsTopic, e.opts.QoS, e.onEvent); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.spawn(func() { _ = e.loop.Run(runCtx) })
	e.spawn(func() { e.watchdog.Run(runCtx) })
	e.spawn(func() { e.syncer.Run(runCtx) })
	if e.scheduler != nil {
		e.scheduler.Start()
	}
	e.started = true
	e.logger.Info("Engine started", "rules", len(e.Automations.Rules()), "scheduler", e.scheduler != nil)
	return nil
}

func (e *Engine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Stop stops the engine and flushes pending writes
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	e.cancel()
	e.wg.Wait()
	if e.opts.MQTT != nil {
		e.opts.MQTT.Disconnect()
	}
	e.started = false
	e.logger.Info("Engine stopped")
}

// Post queues an upstream event for dispatch
func (e *Engine) Post(ev mcp.Event) error {
	return e.loop.Post(ev)
}

// PostAfter queues an event once delay has passed
func (e *Engine) PostAfter(ctx context.Context, ev mcp.Event, delay time.Duration) error {
	return e.loop.PostAfter(ctx, ev, delay)
}

// SetDeferrer routes delayed events through d. Call before Start.
func (e *Engine) SetDeferrer(d mcp.Deferrer) {
	e.loop.SetDeferrer(d)
}

// SetConnected mirrors upstream connectivity into the machine
func (e *Engine) SetConnected(connected bool) {
	e.Machine.SetOffline(!connected)
}

func (e *Engine) onEvent(topic string, payload []byte) {
	ev, err := mcp.ParseEvent(payload)
	if err != nil {
		e.logger.Warn("Dropping malformed event", "topic", topic, "error", err)
		return
	}
	if err := e.loop.Post(ev); err != nil {
		e.logger.Warn("Event loop not accepting events", "event_id", ev.ID, "error", err)
	}
}

// Dispatch implements mcp.Dispatcher. Suggestions the user's preferences
// allow are answered straight away.
func (e *Engine) Dispatch(ev mcp.Event) error {
	if err := e.bridge.Dispatch(ev); err != nil {
		return err
	}
	if ev.Type != mcp.EventSuggestion {
		return nil
	}
	entry, ok := e.latestPendingSuggestion()
	if !ok || !e.autoApproves(*entry.Suggestion) {
		return nil
	}
	e.logger.Info("Auto-approving suggestion", "entry_id", entry.ID, "action_type", entry.Suggestion.ActionType)
	return e.ResolveSuggestion(entry.ID, true)
}

func (e *Engine) latestPendingSuggestion() (conversation.Entry, bool) {
	msgs := e.Conversation.Messages()
	if len(msgs) == 0 {
		return conversation.Entry{}, false
	}
	last := msgs[len(msgs)-1]
	if last.Type != conversation.TypeSuggestion || !last.IsPending() || last.Suggestion == nil {
		return conversation.Entry{}, false
	}
	return last, true
}

func (e *Engine) autoApproves(s conversation.SuggestionData) bool {
	if s.RiskLevel == string(automation.RiskHigh) {
		return false
	}
	switch e.Settings.Get().Behavior.ApprovalMode {
	case settings.ApproveSmart:
		return e.Automations.ActionTrust(s.ActionType) == automation.TrustAutoApprove
	case settings.ApproveAutoLowRisk:
		if e.Automations.ActionTrust(s.ActionType) == automation.TrustAutoApprove {
			return true
		}
		return s.RiskLevel == string(automation.RiskLow) && !s.RequiresApproval
	}
	return false
}

// ResolveSuggestion records the user's answer and sends it upstream
func (e *Engine) ResolveSuggestion(id string, approved bool) error {
	resolve := e.Conversation.RejectSuggestion
	if approved {
		resolve = e.Conversation.ApproveSuggestion
	}
	if !resolve(id) {
		return ErrNoPendingSuggestion
	}
	entry, ok := e.Conversation.Message(id)
	if !ok || entry.Suggestion == nil {
		return nil
	}

	if e.opts.MQTT == nil {
		return nil
	}
	payload, err := json.Marshal(Decision{
		SuggestionID: id,
		Approved:     approved,
		TargetID:     entry.Suggestion.TargetID,
		ActionType:   entry.Suggestion.ActionType,
	})
	if err != nil {
		return err
	}
	if err := e.opts.MQTT.Publish(e.opts.DecisionsTopic, e.opts.QoS, false, payload); err != nil {
		e.logger.Error("Failed to publish decision", "entry_id", id, "error", err)
		e.Conversation.AddSystemMessage("I couldn't pass that decision on right now.")
	}
	return nil
}

// Subscribe calls fn after any assistant state changes
func (e *Engine) Subscribe(fn func()) func() {
	cancels := []func(){
		e.Machine.Subscribe(fn),
		e.Conversation.Subscribe(fn),
		e.Reasoning.Subscribe(fn),
		e.Automations.Subscribe(fn),
		e.Settings.Subscribe(fn),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// NextRun returns when the scheduler fires a rule next
func (e *Engine) NextRun(rule automation.Rule) (time.Time, bool) {
	tt, ok := rule.Trigger.(automation.TimeTrigger)
	if !ok || !rule.Enabled {
		return time.Time{}, false
	}
	if e.scheduler != nil {
		if next, ok := e.scheduler.NextRun(rule.ID); ok {
			return next, true
		}
	}
	loc := e.opts.Location
	if loc == nil {
		loc = time.Local
	}
	next, err := automation.NextOccurrence(tt, time.Now().In(loc))
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}
