package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/exchangerate"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/trend4media/billing_backend/workflow"
)

type periodStatusRequest struct {
	Status models.PeriodStatus `json:"status" validate:"required"`
}

type periodRateRequest struct {
	Rate   decimal.Decimal   `json:"rate"`
	Source models.RateSource `json:"source"`
}

type importRequest struct {
	FileName string                   `json:"file_name" validate:"max=255"`
	Rows     []models.RevenueRowInput `json:"rows" validate:"required,min=1"`
}

func periodParam(c *gin.Context) (string, bool) {
	periodId := c.Param("periodId")
	if err := utils.ValidatePeriodId(periodId); err != nil {
		respondError(c, "periodParam", err)
		return "", false
	}
	return periodId, true
}

func listPeriodsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periods, err := models.ListPeriods(c.Request.Context())
		if err != nil {
			respondError(c, "listPeriodsHandler", err)
			return
		}
		c.JSON(http.StatusOK, periods)
	}
}

func createPeriodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPeriod
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "invalid request")
			return
		}
		period, err := models.CreatePeriod(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "createPeriodHandler", err)
			return
		}
		c.JSON(http.StatusCreated, period)
	}
}

func getPeriodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		period, err := models.GetPeriodWithCounts(c.Request.Context(), periodId)
		if err != nil {
			respondError(c, "getPeriodHandler", err)
			return
		}
		c.JSON(http.StatusOK, period)
	}
}

func updatePeriodStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		var req periodStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
		period, err := models.UpdatePeriodStatus(c.Request.Context(), periodId, req.Status)
		if err != nil {
			respondError(c, "updatePeriodStatusHandler", err)
			return
		}
		c.JSON(http.StatusOK, period)
	}
}

func setPeriodRateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		var req periodRateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
		source := req.Source
		if source == "" {
			source = models.RateSourceManual
		}
		period, err := models.SetPeriodRate(c.Request.Context(), periodId, req.Rate, source)
		if err != nil {
			respondError(c, "setPeriodRateHandler", err)
			return
		}
		c.JSON(http.StatusOK, period)
	}
}

func refreshPeriodRateHandler(rates *exchangerate.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		force := c.Query("force") == "true"
		period, err := workflow.RefreshPeriodRate(c.Request.Context(), rates, periodId, force)
		if err != nil {
			respondError(c, "refreshPeriodRateHandler", err)
			return
		}
		c.JSON(http.StatusOK, period)
	}
}

func exchangeRateHandler(rates *exchangerate.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		year, month, err := utils.ParsePeriodId(periodId)
		if err != nil {
			respondError(c, "exchangeRateHandler", err)
			return
		}
		result, err := rates.GetMonthlyRate(c.Request.Context(), year, month)
		if err != nil {
			respondError(c, "exchangeRateHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"periodId":  periodId,
			"rate":      result.Rate,
			"source":    result.Source,
			"rateDate":  result.RateDate,
			"formatted": exchangerate.FormatRate(result.Rate),
		})
	}
}

func recalculateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		summary, err := workflow.CalculateAllCommissions(c.Request.Context(), periodId)
		if err != nil {
			respondError(c, "recalculateHandler", err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func periodLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		summary, rows, err := workflow.GetPeriodLedgerSummary(c.Request.Context(), periodId)
		if err != nil {
			respondError(c, "periodLedgerHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary, "rows": rows})
	}
}

func importRevenueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		var req importRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			respondError(c, "importRevenueHandler", err)
			return
		}
		batch, err := models.ImportRevenueRows(c.Request.Context(), periodId, req.FileName, req.Rows)
		if err != nil {
			respondError(c, "importRevenueHandler", err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func listImportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		batches, err := models.ListImportBatches(c.Request.Context(), periodId)
		if err != nil {
			respondError(c, "listImportsHandler", err)
			return
		}
		c.JSON(http.StatusOK, batches)
	}
}
