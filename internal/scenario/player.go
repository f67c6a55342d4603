package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"artemis/internal/engine"
	"artemis/internal/mcp"
)

// Options controls a replay
type Options struct {
	// Realtime sleeps for each step's delay. Otherwise only timestamps advance.
	Realtime bool
	// Start is the timestamp of the first event. Zero means now.
	Start time.Time
	// OnStep is called after each step is dispatched
	OnStep func(index int, ev mcp.Event, err error)
}

// Events builds the envelopes for a scenario, timestamped from start
func Events(sc *Scenario, start time.Time) ([]mcp.Event, error) {
	out := make([]mcp.Event, 0, len(sc.Events))
	at := start
	for i, step := range sc.Events {
		ev, err := mcp.NewEvent(mcp.EventType(step.Type), step.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		at = at.Add(time.Duration(step.DelayMs) * time.Millisecond)
		ev.Timestamp = at
		if step.ID != "" {
			ev.ID = step.ID
		} else {
			ev.ID = fmt.Sprintf("%s-%03d", slug(sc.Name), i)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Play dispatches every step into eng in order, then checks expectations.
// eng does not need to be started; dispatch is synchronous.
func Play(ctx context.Context, sc *Scenario, eng *engine.Engine, opts Options) (*Result, error) {
	start := opts.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	events, err := Events(sc, start)
	if err != nil {
		return nil, err
	}

	res := &Result{Scenario: sc, StartTime: time.Now()}
	if sc.Online != nil {
		eng.SetConnected(*sc.Online)
	}
	for i, ev := range events {
		if opts.Realtime && sc.Events[i].DelayMs > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(sc.Events[i].DelayMs) * time.Millisecond):
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := eng.Dispatch(ev)
		if err != nil {
			res.Rejected = append(res.Rejected, StepError{Index: i, Type: string(ev.Type), Err: err})
		} else {
			res.Dispatched++
		}
		if opts.OnStep != nil {
			opts.OnStep(i, ev, err)
		}
	}
	res.EndTime = time.Now()
	if sc.Expect != nil {
		res.Failures = Check(*sc.Expect, eng)
	}
	return res, nil
}

// Check compares the engine's state with an expectation and lists mismatches
func Check(exp Expect, eng *engine.Engine) []string {
	var failures []string
	snap := eng.Machine.Snapshot()
	msgs := eng.Conversation.Messages()

	if exp.State != "" && string(snap.State) != exp.State {
		failures = append(failures, fmt.Sprintf("state: want %s, got %s", exp.State, snap.State))
	}
	if exp.Messages != nil && len(msgs) != *exp.Messages {
		failures = append(failures, fmt.Sprintf("messages: want %d, got %d", *exp.Messages, len(msgs)))
	}
	if exp.Thoughts != nil && eng.Reasoning.Len() != *exp.Thoughts {
		failures = append(failures, fmt.Sprintf("thoughts: want %d, got %d", *exp.Thoughts, eng.Reasoning.Len()))
	}
	if exp.LastMessage != "" {
		got := ""
		if len(msgs) > 0 {
			got = msgs[len(msgs)-1].Content
		}
		if got != exp.LastMessage {
			failures = append(failures, fmt.Sprintf("last message: want %q, got %q", exp.LastMessage, got))
		}
	}
	if exp.PendingReview != nil {
		_, pending := eng.Conversation.PendingSuggestion()
		if pending != *exp.PendingReview {
			failures = append(failures, fmt.Sprintf("pending suggestion: want %t, got %t", *exp.PendingReview, pending))
		}
	}
	for _, want := range exp.Contains {
		found := false
		for _, m := range msgs {
			if strings.Contains(m.Content, want) {
				found = true
				break
			}
		}
		if !found {
			failures = append(failures, fmt.Sprintf("no message contains %q", want))
		}
	}
	return failures
}

func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
