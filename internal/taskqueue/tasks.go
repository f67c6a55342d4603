package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"artemis/internal/mcp"

	"github.com/hibiken/asynq"
)

// TypeDeliverEvent carries one delayed upstream event
const TypeDeliverEvent = "mcp:deliver"

// NewDeliverTask wraps an event for later delivery
func NewDeliverTask(ev mcp.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return asynq.NewTask(TypeDeliverEvent, payload), nil
}

// DeliverHandler posts delivered events into the assistant's event loop
type DeliverHandler struct {
	target mcp.Poster
	logger *slog.Logger
}

func NewDeliverHandler(target mcp.Poster, logger *slog.Logger) *DeliverHandler {
	return &DeliverHandler{target: target, logger: logger.With("component", "taskqueue")}
}

// ProcessTask implements asynq.Handler
func (h *DeliverHandler) ProcessTask(_ context.Context, t *asynq.Task) error {
	ev, err := mcp.ParseEvent(t.Payload())
	if err != nil {
		h.logger.Warn("Dropping undecodable task", "type", t.Type(), "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := h.target.Post(ev); err != nil {
		if err == mcp.ErrLoopStopped {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	h.logger.Debug("Delivered deferred event", "event_id", ev.ID, "type", ev.Type)
	return nil
}

// Enqueuer is the part of asynq.Client used for scheduling
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Deferrer schedules events through the task queue so they survive restarts
type Deferrer struct {
	client Enqueuer
	queue  string
	logger *slog.Logger
}

func NewDeferrer(client Enqueuer, queue string, logger *slog.Logger) *Deferrer {
	if queue == "" {
		queue = "default"
	}
	return &Deferrer{client: client, queue: queue, logger: logger.With("component", "taskqueue")}
}

// Defer implements mcp.Deferrer
func (d *Deferrer) Defer(ctx context.Context, ev mcp.Event, delay time.Duration) error {
	task, err := NewDeliverTask(ev)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue(d.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue event %s: %w", ev.ID, err)
	}
	d.logger.Debug("Deferred event", "event_id", ev.ID, "task_id", info.ID, "delay", delay)
	return nil
}

var _ mcp.Deferrer = (*Deferrer)(nil)
