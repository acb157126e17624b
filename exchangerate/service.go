package exchangerate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("billing_backend/exchangerate")

var (
	minSaneRate = decimal.RequireFromString("0.7")
	maxSaneRate = decimal.RequireFromString("1.3")
	fallback    = decimal.RequireFromString("0.92")
)

// RateDay and RateHour fix the monthly rate instant: the 6th at noon, business time.
const (
	RateDay  = 6
	RateHour = 12
)

type RateResult struct {
	Rate     decimal.Decimal   `json:"rate"`
	Source   models.RateSource `json:"source"`
	RateDate time.Time         `json:"rateDate"`
}

// Service resolves the monthly USD/EUR rate from a primary and a backup source.
type Service struct {
	primary  *rateClient
	backup   *rateClient
	location *time.Location
	now      func() time.Time
}

// NewService reads source URLs and the timeout from the environment.
func NewService() *Service {
	timeout := timeoutFromEnv()
	return NewServiceWithURLs(
		envOrDefault("EXCHANGE_RATE_PRIMARY_URL", defaultPrimaryURL),
		envOrDefault("EXCHANGE_RATE_BACKUP_URL", defaultBackupURL),
		timeout,
	)
}

func NewServiceWithURLs(primaryURL string, backupURL string, timeout time.Duration) *Service {
	return &Service{
		primary:  newRateClient("primary", primaryURL, timeout),
		backup:   newRateClient("backup", backupURL, timeout),
		location: config.BusinessLocation(),
		now:      time.Now,
	}
}

// WithClock replaces the clock and timezone, for tests and backfills.
func (s *Service) WithClock(now func() time.Time, location *time.Location) *Service {
	s.now = now
	if location != nil {
		s.location = location
	}
	return s
}

// RateInstant is the moment whose rate applies to a month.
func (s *Service) RateInstant(year int, month int) time.Time {
	return time.Date(year, time.Month(month), RateDay, RateHour, 0, 0, 0, s.location)
}

// GetMonthlyRate fetches the rate for a month. Nothing is persisted here.
func (s *Service) GetMonthlyRate(ctx context.Context, year int, month int) (*RateResult, error) {
	ctx, span := tracer.Start(ctx, "GetMonthlyRate")
	defer span.End()
	span.SetAttributes(attribute.Int("rate.year", year), attribute.Int("rate.month", month))

	result, err := s.getMonthlyRate(ctx, year, month)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("rate.source", string(result.Source)))
	return result, nil
}

func (s *Service) getMonthlyRate(ctx context.Context, year int, month int) (*RateResult, error) {
	if month < 1 || month > 12 {
		return nil, utils.NewValidationError("month must be between 1 and 12")
	}
	logger := config.GetLogger()
	instant := s.RateInstant(year, month)
	if instant.After(s.now()) {
		return nil, utils.NewTemporalError("rate instant %s has not been reached yet", instant.Format("2006-01-02 15:04 MST"))
	}

	sources := []struct {
		client *rateClient
		source models.RateSource
	}{
		{s.primary, models.RateSourcePrimary},
		{s.backup, models.RateSourceBackup},
	}
	var causes []error
	for _, src := range sources {
		rate, err := src.client.fetchEur(ctx)
		if err == nil && !IsSaneRate(rate) {
			err = fmt.Errorf("%s: rate %s outside %s..%s", src.client.name, rate, minSaneRate, maxSaneRate)
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"source": src.client.name,
				"year":   year,
				"month":  month,
			}).WithError(err).Warn("exchange rate source failed")
			causes = append(causes, err)
			continue
		}
		logger.WithFields(logrus.Fields{
			"source": src.client.name,
			"rate":   FormatRate(rate),
		}).Info("exchange rate fetched")
		return &RateResult{Rate: rate, Source: src.source, RateDate: instant}, nil
	}

	return nil, &utils.ExternalServiceError{
		Reason:       "could not fetch the USD/EUR rate from any source",
		FallbackRate: FallbackRate(),
		Causes:       causes,
	}
}

// IsSaneRate rejects quotes outside 0.7..1.3.
func IsSaneRate(rate decimal.Decimal) bool {
	return !rate.LessThan(minSaneRate) && !rate.GreaterThan(maxSaneRate)
}

// FallbackRate is offered to operators when both sources fail.
func FallbackRate() decimal.Decimal {
	return fallback
}

func FormatRate(rate decimal.Decimal) string {
	return fmt.Sprintf("1 USD = %s EUR", rate.StringFixed(6))
}
