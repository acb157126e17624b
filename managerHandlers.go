package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/workflow"
)

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func listManagersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("active") == "true"
		managers, err := models.ListManagers(c.Request.Context(), activeOnly)
		if err != nil {
			respondError(c, "listManagersHandler", err)
			return
		}
		c.JSON(http.StatusOK, managers)
	}
}

func createManagerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "invalid request")
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "createManagerHandler", err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func updateManagerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		var input models.UpdateUserInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "invalid request")
			return
		}
		user, err := models.UpdateUser(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, "updateManagerHandler", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func getGenealogyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tree, err := models.GetOrgTree(ctx)
		if err != nil {
			respondError(c, "getGenealogyHandler", err)
			return
		}
		// all=true adds closed edges for the history view
		var edges []*models.OrgEdge
		if c.Query("all") == "true" {
			edges, err = models.ListOrgEdges(ctx)
		} else {
			edges, err = models.ListActiveOrgEdges(ctx)
		}
		if err != nil {
			respondError(c, "getGenealogyHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tree": tree, "edges": edges})
	}
}

func createEdgeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrgEdge
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "invalid request")
			return
		}
		edge, err := workflow.CreateOrgEdge(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "createEdgeHandler", err)
			return
		}
		c.JSON(http.StatusCreated, edge)
	}
}

func removeEdgeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		edgeId, ok := intParam(c, "edgeId")
		if !ok {
			return
		}
		edge, err := workflow.RemoveOrgEdge(c.Request.Context(), edgeId)
		if err != nil {
			respondError(c, "removeEdgeHandler", err)
			return
		}
		c.JSON(http.StatusOK, edge)
	}
}
