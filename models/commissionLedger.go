package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CalculationMethod string

const (
	// USD revenue x rate, rounded, then converted to EUR at the period rate
	CalculationMethodRate CalculationMethod = "rate"
	// milestone count x fixed EUR bonus
	CalculationMethodFixed CalculationMethod = "fixed"
	// flat EUR amount
	CalculationMethodFlat CalculationMethod = "flat"
)

// CalculationDetail is stored with every ledger row and reproduces its amounts.
type CalculationDetail struct {
	Method            CalculationMethod `json:"method"`
	RevenueUsd        *decimal.Decimal  `json:"revenueUsd,omitempty"`
	Rate              *decimal.Decimal  `json:"rate,omitempty"`
	UsdEurRate        *decimal.Decimal  `json:"usdEurRate,omitempty"`
	Count             *int              `json:"count,omitempty"`
	BonusPerMilestone *decimal.Decimal  `json:"bonusPerMilestone,omitempty"`
	FlatAmountEur     *decimal.Decimal  `json:"flatAmountEur,omitempty"`
	DescendantId      *int              `json:"descendantId,omitempty"`
	DescendantName    string            `json:"descendantName,omitempty"`
	Level             *int              `json:"level,omitempty"`
	MinTeamRevenue    *decimal.Decimal  `json:"minTeamRevenue,omitempty"`
	TargetMet         *bool             `json:"targetMet,omitempty"`
}

// Recompute evaluates the stored inputs again. amountUsd is nil for EUR-only components.
func (d CalculationDetail) Recompute() (*decimal.Decimal, decimal.Decimal, error) {
	switch d.Method {
	case CalculationMethodRate:
		if d.RevenueUsd == nil || d.Rate == nil || d.UsdEurRate == nil {
			return nil, decimal.Zero, fmt.Errorf("rate calculation is missing inputs")
		}
		usd := round2(d.RevenueUsd.Mul(*d.Rate))
		return &usd, round2(usd.Mul(*d.UsdEurRate)), nil
	case CalculationMethodFixed:
		if d.Count == nil || d.BonusPerMilestone == nil {
			return nil, decimal.Zero, fmt.Errorf("fixed calculation is missing inputs")
		}
		return nil, round2(decimal.NewFromInt(int64(*d.Count)).Mul(*d.BonusPerMilestone)), nil
	case CalculationMethodFlat:
		if d.FlatAmountEur == nil {
			return nil, decimal.Zero, fmt.Errorf("flat calculation is missing inputs")
		}
		return nil, round2(*d.FlatAmountEur), nil
	}
	return nil, decimal.Zero, fmt.Errorf("unknown calculation method %q", d.Method)
}

// CommissionLedger is one computed component for a manager in a period. A recalculation
// replaces every row of the period and stamps them with the period's new revision.
type CommissionLedger struct {
	ID        int                                   `gorm:"primary_key" json:"id"`
	PeriodId  string                                `gorm:"size:6;not null;index:idx_ledger_period_manager" json:"period_id"`
	ManagerId int                                   `gorm:"not null;index:idx_ledger_period_manager" json:"manager_id"`
	Component ComponentType                         `gorm:"size:40;not null" json:"component"`
	AmountUsd *decimal.Decimal                      `gorm:"type:decimal(15,2)" json:"amount_usd"`
	AmountEur decimal.Decimal                       `gorm:"type:decimal(15,2);not null" json:"amount_eur"`
	Calc      datatypes.JSONType[CalculationDetail] `gorm:"column:calculation" json:"calculation"`
	Revision  int                                   `gorm:"not null;default:0" json:"revision"`
	CreatedAt time.Time                             `gorm:"autoCreateTime" json:"created_at"`
}

// VerifyAmounts checks the stored amounts against their calculation detail.
func (l CommissionLedger) VerifyAmounts() error {
	usd, eur, err := l.Calc.Data().Recompute()
	if err != nil {
		return err
	}
	if !eur.Equal(l.AmountEur) {
		return fmt.Errorf("ledger %d: amount_eur %s does not match recomputed %s", l.ID, l.AmountEur, eur)
	}
	if (usd == nil) != (l.AmountUsd == nil) || (usd != nil && !usd.Equal(*l.AmountUsd)) {
		return fmt.Errorf("ledger %d: amount_usd does not match recomputed value", l.ID)
	}
	return nil
}

func DeletePeriodLedgerTx(tx *gorm.DB, periodId string) error {
	return tx.Where("period_id = ?", periodId).Delete(&CommissionLedger{}).Error
}

func InsertLedgerRowsTx(tx *gorm.DB, rows []*CommissionLedger) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, 500).Error
}

// GetLedgerRows returns a manager's rows for a period in insertion order.
func GetLedgerRows(ctx context.Context, periodId string, managerId int) ([]*CommissionLedger, error) {
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}
	return GetLedgerRowsTx(config.GetDB().WithContext(ctx), periodId, managerId)
}

func GetLedgerRowsTx(tx *gorm.DB, periodId string, managerId int) ([]*CommissionLedger, error) {
	var results []*CommissionLedger
	if err := tx.Where("period_id = ? AND manager_id = ?", periodId, managerId).
		Order("id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetPeriodLedger(ctx context.Context, periodId string) ([]*CommissionLedger, error) {
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}
	var results []*CommissionLedger
	if err := config.GetDB().WithContext(ctx).
		Where("period_id = ?", periodId).
		Order("manager_id, id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SumEur adds EUR amounts, rounding after each addition.
func SumEur(rows []*CommissionLedger) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = round2(total.Add(r.AmountEur))
	}
	return total
}
