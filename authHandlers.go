package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			respondError(c, "loginHandler", err)
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if utils.IsValidationError(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			respondError(c, "loginHandler", err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			respondError(c, "logoutHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": ok})
	}
}

func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			respondError(c, "changePasswordHandler", err)
			return
		}
		if err := models.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
			respondError(c, "changePasswordHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		user, err := models.GetUser(c.Request.Context(), userId)
		if err != nil {
			respondError(c, "meHandler", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
