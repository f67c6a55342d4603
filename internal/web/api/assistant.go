package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"artemis/internal/engine"
	"artemis/internal/interaction"
	"artemis/internal/mcp"
	"artemis/internal/web/middleware"
	"artemis/internal/web/models"

	"github.com/gin-gonic/gin"
)

// respondTransition writes the new snapshot, or 409 when the machine refused
func respondTransition(c *gin.Context, m *interaction.Machine, ok bool) {
	snap := m.Snapshot()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "not allowed in state " + string(snap.State), "state": snap.State})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func RegisterAssistantRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, eng *engine.Engine) {
	m := eng.Machine
	assistant := r.Group("/assistant")
	assistant.Use(middleware.RequireAuth())
	{
		assistant.GET("/state", func(c *gin.Context) {
			c.JSON(http.StatusOK, m.Snapshot())
		})
		assistant.GET("/behavior", func(c *gin.Context) {
			state := m.State()
			c.JSON(http.StatusOK, gin.H{"state": state, "behavior": interaction.BehaviorFor(state)})
		})

		assistant.POST("/listen/start", func(c *gin.Context) {
			respondTransition(c, m, m.StartListening())
		})
		assistant.POST("/listen/stop", func(c *gin.Context) {
			var req models.StopListeningRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			respondTransition(c, m, m.StopListening(req.Text))
		})
		assistant.POST("/listen/cancel", func(c *gin.Context) {
			respondTransition(c, m, m.CancelListening())
		})
		assistant.PUT("/listen/voice", func(c *gin.Context) {
			var req models.VoiceRequest
			if err := c.ShouldBindJSON(&req); err != nil || (req.Transcription == nil && req.Amplitude == nil) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "transcription or amplitude is required"})
				return
			}
			ok := true
			if req.Transcription != nil {
				ok = m.SetTranscription(*req.Transcription) && ok
			}
			if req.Amplitude != nil {
				ok = m.SetAmplitude(*req.Amplitude) && ok
			}
			respondTransition(c, m, ok)
		})

		assistant.POST("/processing/start", func(c *gin.Context) {
			respondTransition(c, m, m.StartProcessing())
		})
		assistant.POST("/responding/start", func(c *gin.Context) {
			var req models.RespondRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			respondTransition(c, m, m.StartResponding(req.Text, req.Suggestion))
		})
		assistant.POST("/responding/finish", func(c *gin.Context) {
			respondTransition(c, m, m.FinishResponding())
		})

		assistant.POST("/suggestion", func(c *gin.Context) {
			var req interaction.Suggestion
			if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "suggestion title is required"})
				return
			}
			respondTransition(c, m, m.ShowSuggestion(req))
		})
		assistant.POST("/suggestion/approve", func(c *gin.Context) {
			respondTransition(c, m, m.ApproveSuggestion())
		})
		assistant.POST("/suggestion/decline", func(c *gin.Context) {
			respondTransition(c, m, m.DeclineSuggestion())
		})

		assistant.POST("/executing/start", func(c *gin.Context) {
			respondTransition(c, m, m.StartExecuting())
		})
		assistant.POST("/executing/finish", func(c *gin.Context) {
			var req interaction.ExecutionResult
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			respondTransition(c, m, m.FinishExecuting(req))
		})
		assistant.POST("/idle", func(c *gin.Context) {
			respondTransition(c, m, m.GoIdle())
		})
		assistant.PUT("/connectivity", func(c *gin.Context) {
			var req models.ConnectivityRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "online is required"})
				return
			}
			respondTransition(c, m, m.SetOffline(!*req.Online))
		})

		// Events posted here take the same path as MQTT deliveries.
		// delayMs defers delivery.
		assistant.POST("/events", func(c *gin.Context) {
			body, err := c.GetRawData()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			ev, err := mcp.ParseEvent(body)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if _, err := mcp.Decode(ev); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			delay := time.Duration(0)
			if raw := c.Query("delayMs"); raw != "" {
				ms, err := strconv.Atoi(raw)
				if err != nil || ms < 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "delayMs must be a non-negative integer"})
					return
				}
				delay = time.Duration(ms) * time.Millisecond
			}
			// The request context ends with the response; deferred delivery must outlive it.
			if err := eng.PostAfter(context.Background(), ev, delay); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"id": ev.ID})
		})
	}
}
