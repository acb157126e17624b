package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	minManualRate = decimal.NewFromFloat(0.1)
	maxManualRate = decimal.NewFromInt(2)
)

// Period is one billing month keyed by YYYYMM.
type Period struct {
	ID                  string           `gorm:"primary_key;size:6" json:"id"`
	Year                int              `gorm:"not null" json:"year"`
	Month               int              `gorm:"not null" json:"month"`
	UsdEurRate          *decimal.Decimal `gorm:"type:decimal(10,6)" json:"usd_eur_rate"`
	RateSource          *RateSource      `gorm:"size:20" json:"rate_source"`
	RateDate            *time.Time       `json:"rate_date"`
	Status              PeriodStatus     `gorm:"size:20;not null;default:ACTIVE" json:"status"`
	LockedAt            *time.Time       `json:"locked_at"`
	CalculatedAt        *time.Time       `json:"calculated_at"`
	CalculationRevision int              `gorm:"not null;default:0" json:"calculation_revision"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type PeriodCounts struct {
	RevenueItems int64 `json:"revenue_items"`
	LedgerRows   int64 `json:"ledger_rows"`
	Payouts      int64 `json:"payouts"`
}

type PeriodWithCounts struct {
	Period
	Counts PeriodCounts `json:"counts"`
}

type NewPeriod struct {
	Id         string           `json:"id" validate:"required,periodid"`
	Year       int              `json:"year" validate:"required,min=2020,max=2100"`
	Month      int              `json:"month" validate:"required,min=1,max=12"`
	UsdEurRate *decimal.Decimal `json:"usd_eur_rate"`
	Status     PeriodStatus     `json:"status"`
}

var periodTransitions = map[PeriodStatus][]PeriodStatus{
	PeriodStatusDraft:  {PeriodStatusActive},
	PeriodStatusActive: {PeriodStatusLocked},
	PeriodStatusLocked: {PeriodStatusActive},
}

// CanTransitionPeriod reports whether a period may move from one status to another.
func CanTransitionPeriod(from PeriodStatus, to PeriodStatus) bool {
	for _, s := range periodTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (p *Period) IsLocked() bool {
	return p.Status == PeriodStatusLocked
}

// EnsureMutable rejects mutations of a locked period.
func (p *Period) EnsureMutable() error {
	if p.IsLocked() {
		return utils.NewConfigurationError("period %s is locked", p.ID)
	}
	return nil
}

// ValidateManualRate checks the range accepted for operator-entered rates.
func ValidateManualRate(rate decimal.Decimal) error {
	if rate.LessThan(minManualRate) || rate.GreaterThan(maxManualRate) {
		return utils.NewValidationError("rate %s must be between %s and %s", rate.String(), minManualRate.String(), maxManualRate.String())
	}
	return nil
}

func (input *NewPeriod) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	year, month, err := utils.ParsePeriodId(input.Id)
	if err != nil {
		return err
	}
	if year != input.Year || month != input.Month {
		return utils.NewValidationError("period id %s does not match year %d and month %d", input.Id, input.Year, input.Month)
	}
	if input.UsdEurRate != nil {
		if err := ValidateManualRate(*input.UsdEurRate); err != nil {
			return err
		}
	}
	if input.Status != "" && input.Status != PeriodStatusDraft && input.Status != PeriodStatusActive {
		return utils.NewValidationError("a new period must be DRAFT or ACTIVE")
	}
	return nil
}

func CreatePeriod(ctx context.Context, input *NewPeriod) (*Period, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&Period{}).Where("id = ?", input.Id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("period %s already exists", input.Id)
	}

	status := input.Status
	if status == "" {
		status = PeriodStatusActive
	}
	period := Period{
		ID:     input.Id,
		Year:   input.Year,
		Month:  input.Month,
		Status: status,
	}
	if input.UsdEurRate != nil {
		rate := input.UsdEurRate.Round(6)
		source := RateSourceManual
		now := time.Now().UTC()
		period.UsdEurRate = &rate
		period.RateSource = &source
		period.RateDate = &now
	}

	if err := db.WithContext(ctx).Create(&period).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, utils.NewValidationError("period %s already exists", input.Id)
		}
		return nil, err
	}
	return &period, nil
}

func GetPeriod(ctx context.Context, periodId string) (*Period, error) {
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}
	return GetPeriodTx(config.GetDB().WithContext(ctx), periodId, false)
}

// GetPeriodTx loads a period, optionally with a row lock held until the transaction ends.
func GetPeriodTx(tx *gorm.DB, periodId string, forUpdate bool) (*Period, error) {
	var period Period
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", periodId).Take(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("period", periodId)
		}
		return nil, err
	}
	return &period, nil
}

func GetPeriodWithCounts(ctx context.Context, periodId string) (*PeriodWithCounts, error) {
	period, err := GetPeriod(ctx, periodId)
	if err != nil {
		return nil, err
	}
	result := PeriodWithCounts{Period: *period}
	db := config.GetDB().WithContext(ctx)
	if err := db.Model(&RevenueItem{}).Where("period_id = ?", periodId).Count(&result.Counts.RevenueItems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&CommissionLedger{}).Where("period_id = ?", periodId).Count(&result.Counts.LedgerRows).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Payout{}).Where("period_id = ?", periodId).Count(&result.Counts.Payouts).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func ListPeriods(ctx context.Context) ([]*Period, error) {
	var results []*Period
	if err := config.GetDB().WithContext(ctx).Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdatePeriodStatus moves a period through DRAFT -> ACTIVE -> LOCKED (and LOCKED -> ACTIVE).
func UpdatePeriodStatus(ctx context.Context, periodId string, status PeriodStatus) (*Period, error) {
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, utils.NewValidationError("invalid period status %q", status)
	}

	var period *Period
	err := PeriodTransaction(ctx, periodId, func(tx *gorm.DB) error {
		var err error
		period, err = GetPeriodTx(tx, periodId, true)
		if err != nil {
			return err
		}
		if period.Status == status {
			return nil
		}
		if !CanTransitionPeriod(period.Status, status) {
			if period.IsLocked() {
				return utils.NewValidationError("a locked period can only be unlocked")
			}
			return utils.NewValidationError("cannot move period from %s to %s", period.Status, status)
		}

		updates := map[string]interface{}{"status": status}
		if status == PeriodStatusLocked {
			now := time.Now().UTC()
			updates["locked_at"] = &now
		} else {
			updates["locked_at"] = nil
		}
		if err := tx.Model(period).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", periodId).Take(period).Error
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}

// SetPeriodRate stores an operator-supplied rate or an accepted fallback.
func SetPeriodRate(ctx context.Context, periodId string, rate decimal.Decimal, source RateSource) (*Period, error) {
	if source != RateSourceManual && source != RateSourceFallback {
		return nil, utils.NewValidationError("rate source must be MANUAL or FALLBACK")
	}
	if err := ValidateManualRate(rate); err != nil {
		return nil, err
	}
	return StorePeriodRate(ctx, periodId, rate, source, time.Now().UTC(), true)
}

// StorePeriodRate persists a rate. An existing rate is kept unless overwrite is set.
func StorePeriodRate(ctx context.Context, periodId string, rate decimal.Decimal, source RateSource, rateDate time.Time, overwrite bool) (*Period, error) {
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}
	if !source.IsValid() {
		return nil, utils.NewValidationError("invalid rate source %q", source)
	}

	var period *Period
	err := PeriodTransaction(ctx, periodId, func(tx *gorm.DB) error {
		var err error
		period, err = GetPeriodTx(tx, periodId, true)
		if err != nil {
			return err
		}
		if err := period.EnsureMutable(); err != nil {
			return err
		}
		if period.UsdEurRate != nil && !overwrite {
			return nil
		}

		rounded := rate.Round(6)
		period.UsdEurRate = &rounded
		period.RateSource = &source
		period.RateDate = &rateDate
		return tx.Model(period).Updates(map[string]interface{}{
			"usd_eur_rate": rounded,
			"rate_source":  source,
			"rate_date":    rateDate,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}
