package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"artemis/internal/engine"
	"artemis/internal/web/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type wsClient struct {
	send chan []byte
}

// Hub pushes snapshot frames to every websocket client after changes,
// coalescing bursts within the debounce window.
type Hub struct {
	eng      *engine.Engine
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	notify  chan struct{}
}

func NewHub(eng *engine.Engine, debounce time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		eng:      eng,
		debounce: debounce,
		logger:   logger.With("component", "ws"),
		clients:  make(map[*wsClient]struct{}),
		notify:   make(chan struct{}, 1),
	}
}

func (h *Hub) poke() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run broadcasts until ctx ends
func (h *Hub) Run(ctx context.Context) {
	unsub := h.eng.Subscribe(h.poke)
	defer unsub()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-h.notify:
			if timer == nil {
				timer = time.NewTimer(h.debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			h.broadcast()
		}
	}
}

func (h *Hub) frame() ([]byte, error) {
	frame := models.SnapshotFrame{
		Type:         "snapshot",
		State:        h.eng.Machine.Snapshot(),
		Conversation: h.eng.Conversation.Messages(),
	}
	if h.eng.Settings.Get().Transparency.ShowReasoning {
		frame.Reasoning = h.eng.Reasoning.Thoughts()
	}
	return json.Marshal(frame)
}

func (h *Hub) broadcast() {
	data, err := h.frame()
	if err != nil {
		h.logger.Error("Failed to encode snapshot frame", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client; it catches up on the next frame.
		}
	}
}

// Clients returns the number of connected websocket clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams frames until the client leaves
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &wsClient{send: make(chan []byte, 8)}
	if first, err := h.frame(); err == nil {
		client.send <- first
	}
	h.add(client)
	defer h.remove(client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Unblocks the reader when a write fails.
		defer conn.Close()
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-client.send:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Inbound frames are ignored; reading keeps pong handling alive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			cancel()
			<-writerDone
			return
		}
	}
}
