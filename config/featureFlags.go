package config

import (
	"os"
	"strings"
	"time"
	// Embedded zone data so RATE_TIMEZONE resolves in minimal images.
	_ "time/tzdata"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// LenientPayoutTransitions disables the payout status transition table and accepts
// any target status, matching the pre-enforcement behavior.
//
// Set via env:
// - PAYOUT_LENIENT_TRANSITIONS=true
func LenientPayoutTransitions() bool {
	return envBool("PAYOUT_LENIENT_TRANSITIONS")
}

// SkipMigrations skips AutoMigrate on startup (run migrations as a separate job instead).
func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS")
}

// SessionLifespan is how long a login token stays valid in Redis.
//
// Set via env:
// - SESSION_HOUR_LIFESPAN (default 12)
func SessionLifespan() time.Duration {
	return time.Duration(intFromEnv("SESSION_HOUR_LIFESPAN", 12)) * time.Hour
}

// BusinessLocation is the timezone used for the monthly exchange-rate instant.
//
// Set via env:
// - RATE_TIMEZONE (default Europe/Berlin)
func BusinessLocation() *time.Location {
	name := strings.TrimSpace(os.Getenv("RATE_TIMEZONE"))
	if name == "" {
		name = "Europe/Berlin"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PhoneDefaultRegion is the region used to parse manager phone numbers without a country prefix.
func PhoneDefaultRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	if v == "" {
		return "DE"
	}
	return v
}
