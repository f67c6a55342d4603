package taskqueue

import (
	"fmt"
	"log/slog"

	"artemis/internal/mcp"

	"github.com/hibiken/asynq"
)

// Options configures the queue connection
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	Concurrency   int
}

// Workers owns the asynq client and server for deferred events
type Workers struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	opts   Options
	logger *slog.Logger
}

// NewWorkers routes delivered events to target
func NewWorkers(opts Options, target mcp.Poster, logger *slog.Logger) *Workers {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	redisOpt := asynq.RedisClientOpt{Addr: opts.RedisAddr, Password: opts.RedisPassword, DB: opts.RedisDB}
	mux := asynq.NewServeMux()
	mux.Handle(TypeDeliverEvent, NewDeliverHandler(target, logger))
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: opts.Concurrency,
		Queues:      map[string]int{opts.Queue: 1},
		Logger:      asynqLogger{logger.With("component", "asynq")},
	})
	return &Workers{
		client: asynq.NewClient(redisOpt),
		server: server,
		mux:    mux,
		opts:   opts,
		logger: logger.With("component", "taskqueue"),
	}
}

// Deferrer returns an mcp.Deferrer backed by this queue
func (w *Workers) Deferrer() *Deferrer {
	return NewDeferrer(w.client, w.opts.Queue, w.logger)
}

// Start begins processing in the background
func (w *Workers) Start() error {
	w.logger.Info("Starting task workers", "redis", w.opts.RedisAddr, "queue", w.opts.Queue)
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start task workers: %w", err)
	}
	return nil
}

// Stop drains in-flight tasks and closes the client
func (w *Workers) Stop() {
	w.logger.Info("Stopping task workers")
	w.server.Shutdown()
	if err := w.client.Close(); err != nil {
		w.logger.Warn("Closing task client", "error", err)
	}
}

type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
