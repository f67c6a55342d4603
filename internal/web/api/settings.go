package api

import (
	"net/http"

	"artemis/internal/engine"
	"artemis/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterSettingsRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, eng *engine.Engine) {
	svc := eng.Settings
	settings := r.Group("/settings")
	settings.Use(middleware.RequireAuth())
	{
		settings.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, svc.Get())
		})
		settings.PATCH("", func(c *gin.Context) {
			body, err := c.GetRawData()
			if err != nil || len(body) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			next, err := svc.Update(body)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, next)
		})
		settings.DELETE("", func(c *gin.Context) {
			c.JSON(http.StatusOK, svc.Reset())
		})
	}
}
