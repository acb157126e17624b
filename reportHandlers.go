package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models/reports"
	"github.com/trend4media/billing_backend/utils"
)

func exportPeriodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		periodId, ok := periodParam(c)
		if !ok {
			return
		}
		format := c.DefaultQuery("format", "xlsx")
		if format != "xlsx" && format != "json" {
			badRequest(c, "format must be xlsx or json")
			return
		}

		ctx := c.Request.Context()
		export, err := reports.BuildPeriodExport(ctx, periodId)
		if err != nil {
			respondError(c, "exportPeriodHandler", err)
			return
		}
		if format == "json" {
			c.JSON(http.StatusOK, export)
			return
		}

		data, err := reports.WritePeriodWorkbook(export)
		if err != nil {
			respondError(c, "exportPeriodHandler", err)
			return
		}
		if c.Query("archive") == "true" {
			// archiving is best-effort, the download still succeeds
			if uri, err := reports.ArchivePeriodWorkbook(ctx, export, data); err == nil && uri != "" {
				c.Header("X-Export-Archive", uri)
			}
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reports.WorkbookFileName(periodId)))
		c.Data(http.StatusOK, utils.XlsxContentType, data)
	}
}

func dashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		periodId := c.Query("periodId")
		if periodId == "" {
			periodId = utils.CurrentPeriodId(time.Now().In(config.BusinessLocation()))
		}
		if err := utils.ValidatePeriodId(periodId); err != nil {
			respondError(c, "dashboardHandler", err)
			return
		}
		managerId, _ := utils.GetUserIdFromContext(ctx)
		dashboard, err := reports.GetManagerDashboard(ctx, periodId, managerId)
		if err != nil {
			respondError(c, "dashboardHandler", err)
			return
		}
		c.JSON(http.StatusOK, dashboard)
	}
}
