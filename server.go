package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/exchangerate"
	"github.com/trend4media/billing_backend/middlewares"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("billing_backend")

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

func readinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if c.Writer.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = true
	return cors.New(corsConfig)
}

func registerRoutes(r *gin.Engine, rates *exchangerate.Service) {
	admin := middlewares.RequireRole(models.UserRoleAdmin)
	manager := middlewares.RequireRole(models.UserRoleTeamLeader, models.UserRoleSalesRep)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	auth := r.Group("/auth")
	auth.POST("/login", loginHandler())
	auth.POST("/logout", middlewares.RequireLogin(), logoutHandler())
	auth.GET("/me", middlewares.RequireLogin(), meHandler())
	auth.POST("/password", middlewares.RequireLogin(), changePasswordHandler())

	adminGroup := r.Group("/admin", admin)
	adminGroup.GET("/managers", listManagersHandler())
	adminGroup.POST("/managers", createManagerHandler())
	adminGroup.PATCH("/managers/:id", updateManagerHandler())
	adminGroup.GET("/genealogy", getGenealogyHandler())
	adminGroup.POST("/genealogy", createEdgeHandler())
	adminGroup.DELETE("/genealogy/:edgeId", removeEdgeHandler())
	adminGroup.GET("/rulesets", listRuleSetsHandler())
	adminGroup.POST("/rulesets", createRuleSetHandler())
	adminGroup.PATCH("/rulesets/:id", updateRuleSetHandler())
	adminGroup.GET("/payouts", listPayoutsHandler())
	adminGroup.GET("/payouts/:payoutId", getPayoutHandler())
	adminGroup.PATCH("/payouts/:payoutId", updatePayoutHandler())
	adminGroup.GET("/export/:periodId", exportPeriodHandler())

	periods := r.Group("/periods", admin)
	periods.GET("", listPeriodsHandler())
	periods.POST("", createPeriodHandler())
	periods.GET("/:periodId", getPeriodHandler())
	periods.PATCH("/:periodId", updatePeriodStatusHandler())
	periods.PUT("/:periodId/rate", setPeriodRateHandler())
	periods.POST("/:periodId/rate/refresh", refreshPeriodRateHandler(rates))
	periods.POST("/:periodId/recalculate", recalculateHandler())
	periods.GET("/:periodId/ledger", periodLedgerHandler())
	periods.POST("/:periodId/imports", importRevenueHandler())
	periods.GET("/:periodId/imports", listImportsHandler())

	r.GET("/exchange-rate/:periodId", admin, exchangeRateHandler(rates))

	r.POST("/payouts/request", manager, requestPayoutHandler())
	r.GET("/payouts", manager, myPayoutsHandler())
	r.GET("/dashboard", manager, dashboardHandler())

	r.NoRoute(customNotFoundHandler)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func listenPort() string {
	for _, key := range []string{"API_PORT", "PORT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return defaultPort
}

func newRouter(logger *logrus.Logger, rates *exchangerate.Service) *gin.Engine {
	r := gin.New()
	r.Use(correlationMiddleware())
	r.Use(readinessGate())
	r.Use(corsMiddleware())
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		r.Use(middlewares.RateLimiterFromEnv().Middleware)
	}
	r.Use(tracingMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r, rates)
	return r
}

// prepareSchema migrates unless SKIP_MIGRATIONS is set and seeds the default rule set.
func prepareSchema(ctx context.Context, logger *logrus.Logger) {
	if config.SkipMigrations() {
		logger.WithField("field", "migrations").Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	} else {
		models.MigrateTable()
	}

	if _, created, err := models.EnsureDefaultRuleSet(ctx); err != nil {
		config.LogError(logger, "server.go", "prepareSchema", "EnsureDefaultRuleSet", nil, err)
	} else if created {
		logger.WithField("field", "rulesets").Info("default rule set created")
	}
}

func main() {
	logger := config.GetLogger()
	port := listenPort()

	// SIGTERM on revision shutdown; drain gracefully.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Listen first; app endpoints return 503 until DB and Redis are ready.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(logger, exchangerate.NewService()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if sqlDB, err := config.GetDB().DB(); err == nil {
		defer sqlDB.Close()
	}
	defer func() {
		if err := config.CloseRedis(); err != nil {
			logger.WithError(err).Warn("redis close failed")
		}
	}()

	prepareSchema(sigCtx, logger)
	logger.WithField("port", port).Info("billing api ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("field", "http").WithError(err).Error("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithField("field", "http").WithError(err).Error("graceful shutdown failed")
	}
	config.StopBillingEvents()
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
