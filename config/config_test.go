package config

import (
	"context"
	"strings"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/trend4media/billing_backend/appctx"
)

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "billing")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "billing")
	t.Setenv("DB_ISOLATION_LEVEL", "")

	t.Run("tcp", func(t *testing.T) {
		t.Setenv("DB_HOST", "10.0.0.5")
		t.Setenv("DB_PORT", "")
		cfg, err := mysqldriver.ParseDSN(DatabaseDSN())
		if err != nil {
			t.Fatalf("ParseDSN: %v", err)
		}
		if cfg.Net != "tcp" || cfg.Addr != "10.0.0.5:3306" || cfg.DBName != "billing" || !cfg.ParseTime {
			t.Fatalf("unexpected config %+v", cfg)
		}
		if !strings.Contains(cfg.Params["transaction_isolation"], "READ-COMMITTED") {
			t.Fatalf("isolation param = %q", cfg.Params["transaction_isolation"])
		}
	})

	t.Run("cloud sql socket", func(t *testing.T) {
		t.Setenv("DB_HOST", "/cloudsql/project:region:instance")
		t.Setenv("DB_ISOLATION_LEVEL", "serializable")
		cfg, err := mysqldriver.ParseDSN(DatabaseDSN())
		if err != nil {
			t.Fatalf("ParseDSN: %v", err)
		}
		if cfg.Net != "unix" || cfg.Addr != "/cloudsql/project:region:instance" {
			t.Fatalf("unexpected socket config %s %s", cfg.Net, cfg.Addr)
		}
		if !strings.Contains(cfg.Params["transaction_isolation"], "SERIALIZABLE") {
			t.Fatalf("isolation param = %q", cfg.Params["transaction_isolation"])
		}
	})
}

func TestIsolationLevelRejectsUnknown(t *testing.T) {
	t.Setenv("DB_ISOLATION_LEVEL", "chaos")
	if got := isolationLevel(); got != "READ-COMMITTED" {
		t.Fatalf("isolationLevel = %q", got)
	}
}

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{1: 2 * time.Second, 3: 8 * time.Second, 5: 30 * time.Second, 9: 30 * time.Second}
	for attempt, want := range cases {
		if got := backoff(attempt); got != want {
			t.Fatalf("backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SOME_INT", " 42 ")
	if got := intFromEnv("SOME_INT", 1); got != 42 {
		t.Fatalf("intFromEnv = %d", got)
	}
	t.Setenv("SOME_INT", "x")
	if got := intFromEnv("SOME_INT", 7); got != 7 {
		t.Fatalf("intFromEnv fallback = %d", got)
	}

	for v, want := range map[string]bool{"true": true, "YES": true, "1": true, "no": false, "": false} {
		t.Setenv("PAYOUT_LENIENT_TRANSITIONS", v)
		if got := LenientPayoutTransitions(); got != want {
			t.Fatalf("LenientPayoutTransitions(%q) = %v", v, got)
		}
	}
}

func TestBusinessLocation(t *testing.T) {
	t.Setenv("RATE_TIMEZONE", "")
	if loc := BusinessLocation(); loc.String() != "Europe/Berlin" {
		t.Fatalf("default location = %s", loc)
	}
	t.Setenv("RATE_TIMEZONE", "Not/AZone")
	if loc := BusinessLocation(); loc != time.UTC {
		t.Fatalf("invalid zone must fall back to UTC, got %s", loc)
	}
}

func TestContextLoggerFields(t *testing.T) {
	ctx := appctx.With(context.Background(), appctx.CorrelationId, "cid-9")
	ctx = appctx.With(ctx, appctx.UserId, 3)
	entry := ContextLogger(ctx)
	if entry.Data["correlationId"] != "cid-9" || entry.Data["userId"] != 3 {
		t.Fatalf("unexpected fields %v", entry.Data)
	}
	if len(ContextLogger(context.Background()).Data) != 0 {
		t.Fatalf("anonymous context must add no fields")
	}
}
