package workflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
)

const (
	EventCommissionRecalculated = "commission.recalculated"
	EventPayoutRequested        = "payout.requested"
	EventPayoutStatusChanged    = "payout.status_changed"
	EventHierarchyChanged       = "hierarchy.changed"
	EventPeriodRateStored       = "period.rate_stored"
)

// publishEvent is fire-and-forget: the database change has already committed, so a
// publish failure is logged and never returned.
func publishEvent(ctx context.Context, event config.BillingEvent) {
	if !config.BillingEventsEnabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.CorrelationId == "" {
		event.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	msgId, err := config.PublishBillingEvent(pubCtx, event)
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "publishEvent", "publish billing event", event, err)
		return
	}
	config.GetLogger().WithFields(logrus.Fields{
		"eventType": event.Type,
		"periodId":  event.PeriodId,
		"messageId": msgId,
	}).Debug("billing event published")
}
