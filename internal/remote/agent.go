// Package remote relays requests from an outside server to the local API
// over an outbound websocket, so the assistant is reachable without an open
// inbound port.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	PublicWS   string // ws://host:port/agent
	LocalURL   string // http://localhost:5069
	AgentID    string
	RetryDelay time.Duration
	Timeout    time.Duration
}

type registerMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type requestMsg struct {
	Type    string            `json:"type"`
	ReqID   string            `json:"reqId"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

type responseMsg struct {
	Type   string          `json:"type"`
	ReqID  string          `json:"reqId"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// forwarded request headers
var passHeaders = []string{"Authorization", "Content-Type"}

type Agent struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func NewAgent(cfg Config, logger *slog.Logger) *Agent {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Agent{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "remote"),
	}
}

// Run keeps the relay connected until ctx ends
func (a *Agent) Run(ctx context.Context) {
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("Relay disconnected, reconnecting", "error", err, "retry_in", a.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.RetryDelay):
		}
	}
}

func (a *Agent) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.PublicWS, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(registerMsg{Type: "register", ID: a.cfg.AgentID}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	a.logger.Info("Relay connected", "url", a.cfg.PublicWS, "agent_id", a.cfg.AgentID)

	// Requests are served concurrently; writes share the connection.
	var writeMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var req requestMsg
		if err := conn.ReadJSON(&req); err != nil {
			return err
		}
		if req.Type != "request" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := a.forward(ctx, req)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(resp); err != nil {
				a.logger.Warn("Failed to write relay response", "req_id", req.ReqID, "error", err)
			}
		}()
	}
}

func (a *Agent) forward(ctx context.Context, req requestMsg) responseMsg {
	resp := responseMsg{Type: "response", ReqID: req.ReqID}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, a.cfg.LocalURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		resp.Status = http.StatusBadRequest
		resp.Body = errorBody("invalid relayed request")
		return resp
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for _, h := range passHeaders {
		if v, ok := req.Headers[h]; ok {
			httpReq.Header.Set(h, v)
		}
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		a.logger.Warn("Local request failed", "path", req.Path, "error", err)
		resp.Status = http.StatusBadGateway
		resp.Body = errorBody("local request failed")
		return resp
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		resp.Status = http.StatusBadGateway
		resp.Body = errorBody("local response unreadable")
		return resp
	}
	resp.Status = res.StatusCode
	if json.Valid(raw) {
		resp.Body = raw
	} else if len(raw) > 0 {
		resp.Body, _ = json.Marshal(string(raw))
	}
	return resp
}

func errorBody(msg string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return raw
}
