package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/trend4media/billing_backend/workflow"
)

type payoutRequest struct {
	PeriodId string `json:"period_id" validate:"required,periodid"`
}

func listPayoutsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.PayoutFilter{
			PeriodId: c.Query("periodId"),
			Status:   models.PayoutStatus(c.Query("status")),
		}
		if filter.Status != "" && !filter.Status.IsValid() {
			badRequest(c, "invalid status")
			return
		}
		if raw := c.Query("managerId"); raw != "" {
			managerId, err := strconv.Atoi(raw)
			if err != nil {
				badRequest(c, "invalid managerId")
				return
			}
			filter.ManagerId = managerId
		}
		payouts, err := models.ListPayouts(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "listPayoutsHandler", err)
			return
		}
		c.JSON(http.StatusOK, payouts)
	}
}

func getPayoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payoutId, ok := intParam(c, "payoutId")
		if !ok {
			return
		}
		payout, err := models.GetPayout(c.Request.Context(), payoutId)
		if err != nil {
			respondError(c, "getPayoutHandler", err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

func updatePayoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payoutId, ok := intParam(c, "payoutId")
		if !ok {
			return
		}
		var input models.UpdatePayoutStatusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "invalid request")
			return
		}
		payout, err := workflow.UpdatePayoutStatus(c.Request.Context(), payoutId, &input)
		if err != nil {
			respondError(c, "updatePayoutHandler", err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

// requestPayoutHandler always requests for the session user.
func requestPayoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			respondError(c, "requestPayoutHandler", err)
			return
		}
		managerId, _ := utils.GetUserIdFromContext(c.Request.Context())
		payout, err := workflow.RequestPayout(c.Request.Context(), req.PeriodId, managerId)
		if err != nil {
			respondError(c, "requestPayoutHandler", err)
			return
		}
		c.JSON(http.StatusCreated, payout)
	}
}

func myPayoutsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		managerId, _ := utils.GetUserIdFromContext(c.Request.Context())
		payouts, err := models.ListPayouts(c.Request.Context(), models.PayoutFilter{
			PeriodId:  c.Query("periodId"),
			ManagerId: managerId,
		})
		if err != nil {
			respondError(c, "myPayoutsHandler", err)
			return
		}
		c.JSON(http.StatusOK, payouts)
	}
}
