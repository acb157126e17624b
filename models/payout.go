package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Payout snapshots a manager's ledger for a period at request time.
type Payout struct {
	ID          int             `gorm:"primary_key" json:"id"`
	PeriodId    string          `gorm:"size:6;not null;uniqueIndex:idx_payout_period_manager" json:"period_id"`
	ManagerId   int             `gorm:"not null;uniqueIndex:idx_payout_period_manager;index" json:"manager_id"`
	AmountEur   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_eur"`
	Status      PayoutStatus    `gorm:"size:20;not null;index" json:"status"`
	Notes       *string         `gorm:"type:text" json:"notes"`
	RequestedAt time.Time       `gorm:"not null" json:"requested_at"`
	ProcessedAt *time.Time      `json:"processed_at"`
	ProcessedBy *int            `json:"processed_by"`
	Lines       []PayoutLine    `gorm:"foreignKey:PayoutId" json:"lines"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayoutLine is an immutable copy of one ledger row.
type PayoutLine struct {
	ID             int              `gorm:"primary_key" json:"id"`
	PayoutId       int              `gorm:"not null;index" json:"payout_id"`
	LedgerId       int              `gorm:"not null" json:"ledger_id"`
	Component      ComponentType    `gorm:"size:40;not null" json:"component"`
	AmountUsd      *decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount_usd"`
	AmountEur      decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"amount_eur"`
	LedgerRevision int              `gorm:"not null" json:"ledger_revision"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type UpdatePayoutStatusInput struct {
	Status PayoutStatus `json:"status" validate:"required"`
	Notes  *string      `json:"notes"`
}

type PayoutFilter struct {
	PeriodId  string
	Status    PayoutStatus
	ManagerId int
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusSubmitted:  {PayoutStatusInProgress, PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusInProgress: {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:   {PayoutStatusPaid},
}

// CanTransitionPayout reports whether the payout state machine allows from -> to.
// PAID and REJECTED are terminal.
func CanTransitionPayout(from PayoutStatus, to PayoutStatus) bool {
	for _, s := range payoutTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RequestPayout snapshots the manager's ledger rows into a SUBMITTED payout.
func RequestPayout(ctx context.Context, periodId string, managerId int) (*Payout, error) {
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}

	var payout Payout
	err := PeriodTransaction(ctx, periodId, func(tx *gorm.DB) error {
		period, err := GetPeriodTx(tx, periodId, false)
		if err != nil {
			return err
		}
		if err := period.EnsureMutable(); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&Payout{}).Where("period_id = ? AND manager_id = ?", periodId, managerId).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationError("payout already requested for period %s", periodId)
		}

		rows, err := GetLedgerRowsTx(tx, periodId, managerId)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return utils.NewValidationError("no commissions found for period %s", periodId)
		}
		total := SumEur(rows)
		if !total.IsPositive() {
			return utils.NewValidationError("payout total must be greater than zero")
		}

		payout = Payout{
			PeriodId:    periodId,
			ManagerId:   managerId,
			AmountEur:   total,
			Status:      PayoutStatusSubmitted,
			RequestedAt: time.Now().UTC(),
		}
		for _, r := range rows {
			payout.Lines = append(payout.Lines, PayoutLine{
				LedgerId:       r.ID,
				Component:      r.Component,
				AmountUsd:      r.AmountUsd,
				AmountEur:      r.AmountEur,
				LedgerRevision: r.Revision,
			})
		}
		if err := tx.Create(&payout).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return utils.NewValidationError("payout already requested for period %s", periodId)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"periodId":  periodId,
		"managerId": managerId,
		"payoutId":  payout.ID,
		"amountEur": payout.AmountEur.StringFixed(2),
	}).Info("payout requested")
	return &payout, nil
}

// UpdatePayoutStatus advances a payout. processedAt is stamped on APPROVED, PAID and
// REJECTED and cleared otherwise. Status moves are allowed on locked periods.
func UpdatePayoutStatus(ctx context.Context, payoutId int, input *UpdatePayoutStatusInput) (*Payout, PayoutStatus, error) {
	if !input.Status.IsValid() {
		return nil, "", utils.NewValidationError("invalid payout status %q", input.Status)
	}
	processedBy, _ := utils.GetUserIdFromContext(ctx)

	var payout Payout
	var previous PayoutStatus
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", payoutId).Take(&payout).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("payout", payoutId)
			}
			return err
		}
		previous = payout.Status

		if !config.LenientPayoutTransitions() && !CanTransitionPayout(payout.Status, input.Status) {
			return utils.NewValidationError("cannot move payout from %s to %s", payout.Status, input.Status)
		}

		updates := map[string]interface{}{
			"status": input.Status,
		}
		if input.Notes != nil {
			updates["notes"] = input.Notes
		}
		if input.Status.setsProcessedAt() {
			now := time.Now().UTC()
			updates["processed_at"] = &now
			if processedBy > 0 {
				updates["processed_by"] = processedBy
			}
		} else {
			updates["processed_at"] = nil
			updates["processed_by"] = nil
		}
		if err := tx.Model(&payout).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Preload("Lines").Where("id = ?", payoutId).Take(&payout).Error
	})
	if err != nil {
		return nil, "", err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"payoutId": payoutId,
		"from":     previous,
		"to":       payout.Status,
	}).Info("payout status changed")
	return &payout, previous, nil
}

func GetPayout(ctx context.Context, payoutId int) (*Payout, error) {
	var payout Payout
	if err := config.GetDB().WithContext(ctx).Preload("Lines").Where("id = ?", payoutId).Take(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("payout", payoutId)
		}
		return nil, err
	}
	return &payout, nil
}

// ListPayouts orders by status then newest request first.
func ListPayouts(ctx context.Context, filter PayoutFilter) ([]*Payout, error) {
	dbCtx := config.GetDB().WithContext(ctx).Preload("Lines")
	if filter.PeriodId != "" {
		if err := utils.ValidatePeriodId(filter.PeriodId); err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("period_id = ?", filter.PeriodId)
	}
	if filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, utils.NewValidationError("invalid payout status %q", filter.Status)
		}
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.ManagerId > 0 {
		dbCtx = dbCtx.Where("manager_id = ?", filter.ManagerId)
	}

	var results []*Payout
	if err := dbCtx.Order("status, requested_at DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetManagerPayout returns nil when the manager has not requested a payout for the period.
func GetManagerPayout(ctx context.Context, periodId string, managerId int) (*Payout, error) {
	var payout Payout
	err := config.GetDB().WithContext(ctx).Preload("Lines").
		Where("period_id = ? AND manager_id = ?", periodId, managerId).
		Take(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}
