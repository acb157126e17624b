package workflow

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/exchangerate"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
)

type MonthlyRateFetcher interface {
	GetMonthlyRate(ctx context.Context, year int, month int) (*exchangerate.RateResult, error)
}

// RefreshPeriodRate fetches the period's rate and stores it. An existing rate is kept
// unless force is set; nothing is written when every source fails.
func RefreshPeriodRate(ctx context.Context, fetcher MonthlyRateFetcher, periodId string, force bool) (*models.Period, error) {
	period, err := models.GetPeriod(ctx, periodId)
	if err != nil {
		return nil, err
	}
	if err := period.EnsureMutable(); err != nil {
		return nil, err
	}
	if period.UsdEurRate != nil && !force {
		return period, nil
	}

	year, month, err := utils.ParsePeriodId(periodId)
	if err != nil {
		return nil, err
	}
	result, err := fetcher.GetMonthlyRate(ctx, year, month)
	if err != nil {
		return nil, err
	}

	period, err = models.StorePeriodRate(ctx, periodId, result.Rate, result.Source, result.RateDate, force)
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"periodId": periodId,
		"rate":     exchangerate.FormatRate(result.Rate),
		"source":   result.Source,
	}).Info("period rate stored")
	publishEvent(ctx, config.BillingEvent{
		Type:     EventPeriodRateStored,
		PeriodId: periodId,
		Payload:  map[string]interface{}{"rate": result.Rate.String(), "source": result.Source},
	})
	return period, nil
}
