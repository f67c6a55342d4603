package api

import (
	"errors"
	"net/http"

	"artemis/internal/automation"
	"artemis/internal/engine"
	"artemis/internal/sentence"
	"artemis/internal/web/middleware"
	"artemis/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterAutomationRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, eng *engine.Engine, renderer *Renderer) {
	store := eng.Automations

	ruleResponse := func(c *gin.Context, status int, id string) {
		rule, ok := store.Rule(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(status, renderer.View(rule))
	}
	ruleOp := func(op func(string) bool) gin.HandlerFunc {
		return func(c *gin.Context) {
			id := c.Param("id")
			if !op(id) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
				return
			}
			ruleResponse(c, http.StatusOK, id)
		}
	}

	automations := r.Group("/automations")
	automations.Use(middleware.RequireAuth())
	{
		automations.GET("/rules", func(c *gin.Context) {
			rules := store.Rules()
			if c.Query("enabled") == "true" {
				rules = store.EnabledRules()
			}
			c.JSON(http.StatusOK, renderer.Views(rules))
		})
		automations.POST("/rules", func(c *gin.Context) {
			var req models.RuleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			in, err := req.ToInput()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ruleResponse(c, http.StatusCreated, store.AddRule(in))
		})
		automations.GET("/rules/:id", func(c *gin.Context) {
			ruleResponse(c, http.StatusOK, c.Param("id"))
		})
		automations.PATCH("/rules/:id", func(c *gin.Context) {
			var req models.RulePatchRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			patch, err := req.ToPatch()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id := c.Param("id")
			if !store.UpdateRule(id, patch) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
				return
			}
			ruleResponse(c, http.StatusOK, id)
		})
		automations.DELETE("/rules/:id", func(c *gin.Context) {
			if !store.DeleteRule(c.Param("id")) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
				return
			}
			c.Status(http.StatusNoContent)
		})
		automations.POST("/rules/:id/toggle", ruleOp(store.ToggleRule))
		automations.POST("/rules/:id/enable", ruleOp(store.EnableRule))
		automations.POST("/rules/:id/disable", ruleOp(store.DisableRule))
		automations.POST("/rules/:id/trigger", ruleOp(store.RecordTrigger))
		// Dry run of the rule's conditions against readings the caller supplies
		automations.POST("/rules/:id/conditions", func(c *gin.Context) {
			rule, ok := store.Rule(c.Param("id"))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
				return
			}
			var snap automation.StateSnapshot
			if err := c.ShouldBindJSON(&snap); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			results := make([]bool, len(rule.Conditions))
			for i, cond := range rule.Conditions {
				results[i] = automation.EvaluateCondition(cond, snap)
			}
			c.JSON(http.StatusOK, gin.H{
				"met":        automation.EvaluateConditions(rule.Conditions, snap),
				"conditions": results,
			})
		})
		automations.PUT("/rules/:id/trust", func(c *gin.Context) {
			var req models.TrustRequest
			if err := c.ShouldBindJSON(&req); err != nil || !automation.ValidTrustLevel(req.TrustLevel) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "trustLevel must be ask_always, ask_once or auto_approve"})
				return
			}
			id := c.Param("id")
			if !store.SetRuleTrust(id, req.TrustLevel) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
				return
			}
			ruleResponse(c, http.StatusOK, id)
		})

		automations.POST("/preview", func(c *gin.Context) {
			var req models.RuleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			in, err := req.ToInput()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			rule := models.PreviewRule(in)
			c.JSON(http.StatusOK, gin.H{
				"sentence":     sentence.RuleSentence(rule),
				"summary":      sentence.RuleSummary(rule),
				"blocks":       sentence.RuleBlocks(rule),
				"confirmation": sentence.ConfirmationMessage(rule),
			})
		})

		automations.GET("/draft", func(c *gin.Context) {
			draft, ok := store.Draft()
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "No draft"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"draft": draft, "missing": draft.Missing()})
		})
		automations.PUT("/draft", func(c *gin.Context) {
			var draft automation.Draft
			if err := c.ShouldBindJSON(&draft); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store.SetDraft(draft)
			c.JSON(http.StatusOK, gin.H{"draft": draft, "missing": draft.Missing()})
		})
		automations.PATCH("/draft", func(c *gin.Context) {
			var patch automation.Draft
			if err := c.ShouldBindJSON(&patch); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store.UpdateDraft(patch)
			draft, _ := store.Draft()
			c.JSON(http.StatusOK, gin.H{"draft": draft, "missing": draft.Missing()})
		})
		automations.DELETE("/draft", func(c *gin.Context) {
			store.ClearDraft()
			c.Status(http.StatusNoContent)
		})
		automations.POST("/draft/promote", func(c *gin.Context) {
			id, err := store.PromoteDraft()
			if errors.Is(err, automation.ErrIncompleteDraft) || errors.Is(err, automation.ErrInvalidRule) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ruleResponse(c, http.StatusCreated, id)
		})

		automations.GET("/trust", func(c *gin.Context) {
			c.JSON(http.StatusOK, store.TrustLevels())
		})
		automations.PUT("/trust/:actionType", func(c *gin.Context) {
			var req models.TrustRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			actionType := c.Param("actionType")
			if !store.SetActionTrust(actionType, req.TrustLevel) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "trustLevel must be ask_always, ask_once or auto_approve"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"actionType": actionType, "trustLevel": store.ActionTrust(actionType)})
		})
	}
}
