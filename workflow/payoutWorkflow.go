package workflow

import (
	"context"

	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
)

func RequestPayout(ctx context.Context, periodId string, managerId int) (*models.Payout, error) {
	payout, err := models.RequestPayout(ctx, periodId, managerId)
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, config.BillingEvent{
		Type:        EventPayoutRequested,
		PeriodId:    periodId,
		ManagerId:   managerId,
		ReferenceId: payout.ID,
		Payload:     map[string]interface{}{"amountEur": payout.AmountEur.StringFixed(2), "lines": len(payout.Lines)},
	})
	return payout, nil
}

func UpdatePayoutStatus(ctx context.Context, payoutId int, input *models.UpdatePayoutStatusInput) (*models.Payout, error) {
	payout, previous, err := models.UpdatePayoutStatus(ctx, payoutId, input)
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, config.BillingEvent{
		Type:        EventPayoutStatusChanged,
		PeriodId:    payout.PeriodId,
		ManagerId:   payout.ManagerId,
		ReferenceId: payout.ID,
		Payload:     map[string]interface{}{"from": previous, "to": payout.Status},
	})
	return payout, nil
}
