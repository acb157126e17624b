package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
)

func positiveEnvInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return def
}

func reportCacheEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// REPORT_CACHE_TTL_SECONDS, default 120.
func reportCacheTTL() time.Duration {
	return time.Duration(positiveEnvInt("REPORT_CACHE_TTL_SECONDS", 120)) * time.Second
}

// REPORT_SLOW_MS, default 500.
func reportSlowThreshold() time.Duration {
	return time.Duration(positiveEnvInt("REPORT_SLOW_MS", 500)) * time.Millisecond
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra logrus.Fields) {
	d := time.Since(started)
	if d < reportSlowThreshold() {
		return
	}
	config.ContextLogger(ctx).WithFields(extra).WithFields(logrus.Fields{
		"report": name,
		"ms":     d.Milliseconds(),
	}).Warn("slow report")
}

// cached returns the value stored under key or computes and stores it. Redis trouble
// is logged and never fails the report.
func cached[T any](ctx context.Context, key string, compute func() (*T, error)) (*T, error) {
	if !reportCacheEnabled() {
		return compute()
	}
	var hit T
	if ok, err := config.GetRedisObject(ctx, key, &hit); err == nil && ok {
		return &hit, nil
	}
	value, err := compute()
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(ctx, key, value, reportCacheTTL()); err != nil {
		config.ContextLogger(ctx).WithField("cacheKey", key).WithError(err).Warn("report cache write failed")
	}
	return value, nil
}
