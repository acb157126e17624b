package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// DatabaseDSN builds the MySQL DSN from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME.
// DB_HOST=/cloudsql/<CONNECTION_NAME> dials the Cloud SQL proxy socket instead of TCP.
func DatabaseDSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Applied to every pooled connection; commission runs rely on it.
	cfg.Params = map[string]string{
		"transaction_isolation": "'" + isolationLevel() + "'",
	}

	host := strings.TrimSpace(os.Getenv("DB_HOST"))
	if strings.HasPrefix(host, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = host
	} else {
		port := strings.TrimSpace(os.Getenv("DB_PORT"))
		if port == "" {
			port = "3306"
		}
		cfg.Net = "tcp"
		cfg.Addr = host + ":" + port
	}
	return cfg.FormatDSN()
}

// isolationLevel reads DB_ISOLATION_LEVEL (default READ-COMMITTED).
func isolationLevel() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("DB_ISOLATION_LEVEL")))
	switch v {
	case "READ-UNCOMMITTED", "READ-COMMITTED", "REPEATABLE-READ", "SERIALIZABLE":
		return v
	default:
		return "READ-COMMITTED"
	}
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
//
// Pool env:
// - DB_MAX_OPEN_CONNS (default 25)
// - DB_MAX_IDLE_CONNS (default 10)
// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
func ConnectDatabaseWithRetry() {
	logger := GetLogger()
	dsn := DatabaseDSN()

	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				if n := intFromEnv("DB_MAX_OPEN_CONNS", 25); n > 0 {
					sqlDB.SetMaxOpenConns(n)
				}
				if n := intFromEnv("DB_MAX_IDLE_CONNS", 10); n >= 0 {
					sqlDB.SetMaxIdleConns(n)
				}
				if n := intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300); n > 0 {
					sqlDB.SetConnMaxLifetime(time.Duration(n) * time.Second)
				}
			}
			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				logger.WithError(pluginErr).Warn("db connected but failed to install otelgorm plugin")
			}
			db = conn
			logger.WithField("attempt", attempt).Info("connected to database")
			return
		}

		sleep := backoff(attempt)
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"retryIn": sleep.String(),
		}).WithError(err).Warn("failed to connect database")
		time.Sleep(sleep)
	}
}

// backoff doubles from 2s and caps at 30s.
func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormLogger(),
		NamingStrategy: &schema.NamingStrategy{SingularTable: false},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// gormLogger routes gorm's slow-query and error lines through logrus.
func gormLogger() logger.Interface {
	level := logger.Error
	if GetLogger().IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return logger.New(
		GetLogger(),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  level,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}
