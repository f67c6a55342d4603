package remote

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// AgentHeader selects which registered agent a client request goes to
const AgentHeader = "X-Server-ID"

var relayUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type agentConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (a *agentConn) send(v interface{}) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteJSON(v)
}

// Relay is the public side: agents dial in, clients call through
type Relay struct {
	mu      sync.Mutex
	agents  map[string]*agentConn
	pending map[string]chan responseMsg
	timeout time.Duration
	logger  *slog.Logger
}

func NewRelay(timeout time.Duration, logger *slog.Logger) *Relay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Relay{
		agents:  make(map[string]*agentConn),
		pending: make(map[string]chan responseMsg),
		timeout: timeout,
		logger:  logger.With("component", "relay"),
	}
}

// Register mounts the agent socket and forwards every other route
func (r *Relay) Register(router *gin.Engine) {
	router.GET("/agent", r.HandleAgent)
	router.NoRoute(r.HandleClient)
}

// HandleAgent accepts an agent connection and routes its responses
func (r *Relay) HandleAgent(c *gin.Context) {
	conn, err := relayUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var agent *agentConn
	defer func() {
		if agent == nil {
			return
		}
		r.mu.Lock()
		if r.agents[agent.id] == agent {
			delete(r.agents, agent.id)
		}
		r.mu.Unlock()
		r.logger.Info("Agent left", "agent_id", agent.id)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var head struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		switch head.Type {
		case "register":
			if head.ID == "" || agent != nil {
				continue
			}
			agent = &agentConn{id: head.ID, conn: conn}
			r.mu.Lock()
			r.agents[agent.id] = agent
			r.mu.Unlock()
			r.logger.Info("Agent registered", "agent_id", agent.id)
		case "response":
			var resp responseMsg
			if err := json.Unmarshal(raw, &resp); err != nil {
				continue
			}
			r.mu.Lock()
			ch, ok := r.pending[resp.ReqID]
			delete(r.pending, resp.ReqID)
			r.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

// HandleClient forwards a request to the agent named by AgentHeader
func (r *Relay) HandleClient(c *gin.Context) {
	agentID := c.GetHeader(AgentHeader)
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing " + AgentHeader})
		return
	}
	r.mu.Lock()
	agent, ok := r.agents[agentID]
	r.mu.Unlock()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Agent offline"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req := requestMsg{
		Type:    "request",
		ReqID:   uuid.NewString(),
		Method:  c.Request.Method,
		Path:    c.Request.URL.RequestURI(),
		Headers: make(map[string]string),
	}
	if len(body) > 0 && json.Valid(body) {
		req.Body = body
	}
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			req.Headers[key] = values[0]
		}
	}

	ch := make(chan responseMsg, 1)
	r.mu.Lock()
	r.pending[req.ReqID] = ch
	r.mu.Unlock()
	release := func() {
		r.mu.Lock()
		delete(r.pending, req.ReqID)
		r.mu.Unlock()
	}

	if err := agent.send(req); err != nil {
		release()
		c.JSON(http.StatusBadGateway, gin.H{"error": "Agent unreachable"})
		return
	}

	select {
	case resp := <-ch:
		if len(resp.Body) == 0 {
			c.Status(resp.Status)
			return
		}
		c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
	case <-time.After(r.timeout):
		release()
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Timeout"})
	case <-c.Request.Context().Done():
		release()
	}
}

// Agents returns the ids of connected agents
func (r *Relay) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}
