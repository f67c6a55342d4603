package api

import (
	"errors"
	"net/http"

	"artemis/internal/conversation"
	"artemis/internal/engine"
	"artemis/internal/web/middleware"
	"artemis/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterConversationRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, eng *engine.Engine) {
	log := eng.Conversation
	convo := r.Group("/conversation")
	convo.Use(middleware.RequireAuth())
	{
		convo.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, log.Messages())
		})
		convo.POST("/messages", func(c *gin.Context) {
			var req models.MessageRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			var id string
			switch req.Role {
			case conversation.TypeUser, "":
				id = log.AddUserMessage(req.Content)
			case conversation.TypeAssistant:
				id = log.AddAssistantMessage(req.Content, nil)
			case conversation.TypeSystem:
				id = log.AddSystemMessage(req.Content)
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user, assistant or system"})
				return
			}
			entry, _ := log.Message(id)
			c.JSON(http.StatusCreated, entry)
		})

		resolve := func(approved bool) gin.HandlerFunc {
			return func(c *gin.Context) {
				id := c.Param("id")
				err := eng.ResolveSuggestion(id, approved)
				if errors.Is(err, engine.ErrNoPendingSuggestion) {
					c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
					return
				}
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				entry, _ := log.Message(id)
				c.JSON(http.StatusOK, entry)
			}
		}
		convo.POST("/suggestions/:id/approve", resolve(true))
		convo.POST("/suggestions/:id/reject", resolve(false))

		convo.DELETE("/messages/:id", func(c *gin.Context) {
			if !log.RemoveMessage(c.Param("id")) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
				return
			}
			c.Status(http.StatusNoContent)
		})
		convo.DELETE("", func(c *gin.Context) {
			log.Clear()
			c.Status(http.StatusNoContent)
		})
		convo.GET("/reasoning", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"capacity": eng.Reasoning.Capacity(),
				"thoughts": eng.Reasoning.Thoughts(),
			})
		})
	}
}
