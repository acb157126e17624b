package config

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/appctx"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetOutput(os.Stdout)
	logg.SetLevel(levelFromEnv())
	// LOG_FORMAT=text for local runs; JSON otherwise.
	if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "text") {
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logg.SetFormatter(&logrus.JSONFormatter{})
	}
}

// LOG_LEVEL accepts any logrus level name; unknown values fall back to info.
func levelFromEnv() logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ContextLogger tags entries with the request's correlation id and user.
func ContextLogger(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if cid, ok := appctx.Value[string](ctx, appctx.CorrelationId); ok && cid != "" {
		fields["correlationId"] = cid
	}
	if uid, ok := appctx.Value[int](ctx, appctx.UserId); ok && uid > 0 {
		fields["userId"] = uid
	}
	return logg.WithFields(fields)
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
