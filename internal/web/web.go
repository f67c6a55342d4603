package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"artemis/auth"
	"artemis/internal/engine"
	"artemis/internal/web/api"
	"artemis/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

type WebServer struct {
	router *gin.Engine
	hub    *api.Hub
	srv    *http.Server
	logger *slog.Logger
}

// NewWebServer builds the router. Call Run to serve.
func NewWebServer(eng *engine.Engine, authModule *auth.AuthModule, broadcastDebounce time.Duration, logger *slog.Logger) (*WebServer, error) {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	renderer, err := api.NewRenderer(0, eng.NextRun)
	if err != nil {
		return nil, err
	}
	hub := api.NewHub(eng, broadcastDebounce, logger)
	middlewareManager := middleware.NewMiddlewareManager(authModule)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": eng.Machine.State()})
	})
	api.RegisterAuthRoutes(router, authModule)
	api.RegisterAssistantRoutes(router, middlewareManager, eng)
	api.RegisterConversationRoutes(router, middlewareManager, eng)
	api.RegisterAutomationRoutes(router, middlewareManager, eng, renderer)
	api.RegisterSettingsRoutes(router, middlewareManager, eng)
	router.GET("/ws", middlewareManager.RequireAuth(), hub.ServeWS)

	return &WebServer{router: router, hub: hub, logger: logger.With("component", "web")}, nil
}

// Handler exposes the router for tests and the remote relay
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Run serves on addr until ctx ends, then shuts down gracefully
func (ws *WebServer) Run(ctx context.Context, addr string) error {
	ws.srv = &http.Server{Addr: addr, Handler: ws.router, ReadHeaderTimeout: 10 * time.Second}
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ws.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		ws.logger.Info("HTTP server listening", "addr", addr)
		errCh <- ws.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return ws.srv.Shutdown(shutdownCtx)
	}
}

// Hub returns the websocket broadcaster
func (ws *WebServer) Hub() *api.Hub {
	return ws.hub
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
