package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/utils"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", utils.NewValidationError("bad"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("ctx: %w", utils.NewValidationError("bad")), http.StatusBadRequest},
		{"not found", utils.NewNotFoundError("period", "202405"), http.StatusNotFound},
		{"configuration", utils.NewConfigurationError("locked"), http.StatusConflict},
		{"lock busy", fmt.Errorf("recalculate: %w", utils.NewBusyError("period:202405 is busy")), http.StatusConflict},
		{"temporal", utils.NewTemporalError("later"), http.StatusTooEarly},
		{"external", &utils.ExternalServiceError{Reason: "down", FallbackRate: decimal.RequireFromString("0.92")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorStatus(tc.err); got != tc.want {
				t.Fatalf("errorStatus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRespondErrorBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name      string
		err       error
		wantCode  int
		wantKey   string
		notInBody string
	}{
		{"external carries fallback", &utils.ExternalServiceError{Reason: "down", FallbackRate: decimal.RequireFromString("0.92")}, http.StatusBadGateway, "fallbackRate", ""},
		{"internal hides detail", errors.New("secret sql detail"), http.StatusInternalServerError, "correlation_id", "secret sql detail"},
		{"validation message", utils.NewValidationError("no commissions found"), http.StatusBadRequest, "error", ""},
		{"busy lock is retryable", utils.NewBusyError("recalc:202405 is busy, try again later"), http.StatusConflict, "error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(correlationMiddleware())
			r.GET("/x", func(c *gin.Context) { respondError(c, "test", tc.err) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("x-correlation-id", "cid-1")
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if _, ok := body[tc.wantKey]; !ok {
				t.Fatalf("body %v missing %q", body, tc.wantKey)
			}
			if tc.notInBody != "" && body["error"] == tc.notInBody {
				t.Fatalf("internal error leaked to client")
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := c.Request.Context()
		if role := c.GetHeader("x-test-role"); role != "" {
			ctx = utils.SetUserIdInContext(ctx, 1)
			ctx = utils.SetUserRoleInContext(ctx, role)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	registerRoutes(r, nil)

	cases := []struct {
		method, path, role string
		want               int
	}{
		{http.MethodGet, "/periods", "", http.StatusUnauthorized},
		{http.MethodGet, "/periods", "SALES_REP", http.StatusForbidden},
		{http.MethodGet, "/admin/payouts", "TEAM_LEADER", http.StatusForbidden},
		{http.MethodGet, "/dashboard", "ADMIN", http.StatusForbidden},
		{http.MethodPost, "/payouts/request", "", http.StatusUnauthorized},
		{http.MethodGet, "/healthz", "", http.StatusNoContent},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.role != "" {
			req.Header.Set("x-test-role", tc.role)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %s as %q: status %d, want %d", tc.method, tc.path, tc.role, w.Code, tc.want)
		}
	}
}

func TestPeriodParamRejectsMalformedIds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p/:periodId", func(c *gin.Context) {
		if id, ok := periodParam(c); ok {
			c.String(http.StatusOK, id)
		}
	})
	for path, want := range map[string]int{"/p/202405": http.StatusOK, "/p/2024-5": http.StatusBadRequest, "/p/abc": http.StatusBadRequest} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Fatalf("%s: status %d, want %d", path, w.Code, want)
		}
	}
}
