package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trend4media/billing_backend/models"
)

type ruleSetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

func listRuleSetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleSets, err := models.ListRuleSets(c.Request.Context())
		if err != nil {
			respondError(c, "listRuleSetsHandler", err)
			return
		}
		c.JSON(http.StatusOK, ruleSets)
	}
}

func createRuleSetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewRuleSet
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "invalid request")
			return
		}
		ruleSet, err := models.CreateRuleSet(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "createRuleSetHandler", err)
			return
		}
		c.JSON(http.StatusCreated, ruleSet)
	}
}

func updateRuleSetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ruleSetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
			badRequest(c, "is_active is required")
			return
		}
		ruleSet, err := models.SetRuleSetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
		if err != nil {
			respondError(c, "updateRuleSetHandler", err)
			return
		}
		c.JSON(http.StatusOK, ruleSet)
	}
}
