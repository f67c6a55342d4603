package api

import (
	"errors"
	"net/http"

	"artemis/auth"
	"artemis/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterAuthRoutes(router *gin.Engine, authModule *auth.AuthModule) {
	r := router.Group("/auth")
	{
		r.POST("/token", func(c *gin.Context) {
			var req models.TokenRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, exp, err := authModule.Pair(req.Passphrase)
			switch {
			case errors.Is(err, auth.ErrPairingDisabled):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			case err != nil:
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, models.TokenResponse{Token: token, ExpiresAt: exp})
		})
	}
}
