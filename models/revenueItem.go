package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevenueItem is one creator's imported revenue for a period. ManagerId is the
// attribution at import time and survives later creator reassignment.
type RevenueItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PeriodId       string          `gorm:"size:6;not null;uniqueIndex:idx_revenue_period_creator;index:idx_revenue_period_manager" json:"period_id"`
	CreatorId      int             `gorm:"not null;uniqueIndex:idx_revenue_period_creator" json:"creator_id"`
	ManagerId      int             `gorm:"not null;index:idx_revenue_period_manager" json:"manager_id"`
	Handle         string          `gorm:"size:150;not null" json:"handle"`
	Diamonds       int64           `gorm:"not null;default:0" json:"diamonds"`
	EstBaseUsd     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"est_base_usd"`
	EstActivityUsd decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"est_activity_usd"`
	M0_5           bool            `gorm:"column:m0_5;not null;default:false" json:"m0_5"`
	M1             bool            `gorm:"column:m1;not null;default:false" json:"m1"`
	M1Retention    bool            `gorm:"column:m1_retention;not null;default:false" json:"m1_retention"`
	M2             bool            `gorm:"column:m2;not null;default:false" json:"m2"`
	ImportBatchId  *int            `gorm:"index" json:"import_batch_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RevenueRowInput is a validated, manager-matched row produced by the import parser.
// Milestone columns carry counts in the sheet; any value above zero sets the flag.
type RevenueRowInput struct {
	CreatorHandle  string          `json:"creator_handle" validate:"required,max=150"`
	ManagerId      int             `json:"manager_id" validate:"required,gt=0"`
	Diamonds       int64           `json:"diamonds" validate:"gte=0"`
	EstBaseUsd     decimal.Decimal `json:"est_base_usd"`
	EstActivityUsd decimal.Decimal `json:"est_activity_usd"`
	M0_5           int             `json:"m0_5" validate:"gte=0"`
	M1             int             `json:"m1" validate:"gte=0"`
	M1Retention    int             `json:"m1_retention" validate:"gte=0"`
	M2             int             `json:"m2" validate:"gte=0"`
}

func (row *RevenueRowInput) validate() error {
	if err := utils.ValidateStruct(row); err != nil {
		return err
	}
	if row.EstBaseUsd.IsNegative() || row.EstActivityUsd.IsNegative() {
		return utils.NewValidationError("revenue amounts cannot be negative")
	}
	if normalizeHandle(row.CreatorHandle) == "" {
		return utils.NewValidationError("creator handle is required")
	}
	return nil
}

// ImportRevenueRows upserts revenue rows for a period and records the batch outcome.
// Rows naming an unknown or inactive manager are skipped with a warning.
func ImportRevenueRows(ctx context.Context, periodId string, fileName string, rows []RevenueRowInput) (*ImportBatch, error) {
	period, err := GetPeriod(ctx, periodId)
	if err != nil {
		return nil, err
	}
	if err := period.EnsureMutable(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, utils.NewValidationError("no rows to import")
	}

	db := config.GetDB().WithContext(ctx)
	batch := ImportBatch{
		PeriodId: periodId,
		FileName: fileName,
		Status:   ImportStatusProcessing,
		RowCount: len(rows),
	}
	if err := db.Create(&batch).Error; err != nil {
		return nil, err
	}

	summary := ImportSummary{TotalRows: len(rows)}
	err = PeriodTransaction(ctx, periodId, func(tx *gorm.DB) error {
		// the period may have been locked while the batch was created
		locked, err := GetPeriodTx(tx, periodId, false)
		if err != nil {
			return err
		}
		if err := locked.EnsureMutable(); err != nil {
			return err
		}

		managers, err := activeManagerIds(tx)
		if err != nil {
			return err
		}

		for i := range rows {
			rowNumber := i + 1
			row := rows[i]
			if !managers[row.ManagerId] {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("row %d: manager %d not found or inactive, skipped", rowNumber, row.ManagerId))
				continue
			}
			var warning string
			rowErr := row.validate()
			if rowErr == nil {
				// savepoint per row so one bad row does not abort the batch
				rowErr = tx.Transaction(func(rtx *gorm.DB) error {
					var err error
					warning, err = upsertRevenueRow(rtx, periodId, batch.ID, row)
					return err
				})
			}
			if rowErr != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %v", rowNumber, rowErr))
				continue
			}
			if warning != "" {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("row %d: %s", rowNumber, warning))
			}
			summary.SuccessfulRows++
		}
		return nil
	})
	summary.FailedRows = len(summary.Errors)

	status := ImportStatusCompleted
	if err != nil || summary.FailedRows > 0 {
		status = ImportStatusFailed
	}
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}
	if uerr := batch.finish(ctx, status, summary); uerr != nil {
		return nil, uerr
	}
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"periodId":   periodId,
		"batchId":    batch.ID,
		"successful": summary.SuccessfulRows,
		"failed":     summary.FailedRows,
		"warnings":   len(summary.Warnings),
	}).Info("revenue import finished")
	return &batch, nil
}

func upsertRevenueRow(tx *gorm.DB, periodId string, batchId int, row RevenueRowInput) (string, error) {
	handle := normalizeHandle(row.CreatorHandle)
	creator, warning, err := upsertCreator(tx, handle, row.ManagerId)
	if err != nil {
		return "", err
	}

	item := RevenueItem{
		PeriodId:       periodId,
		CreatorId:      creator.ID,
		ManagerId:      row.ManagerId,
		Handle:         handle,
		Diamonds:       row.Diamonds,
		EstBaseUsd:     row.EstBaseUsd.Round(2),
		EstActivityUsd: row.EstActivityUsd.Round(2),
		M0_5:           row.M0_5 > 0,
		M1:             row.M1 > 0,
		M1Retention:    row.M1Retention > 0,
		M2:             row.M2 > 0,
		ImportBatchId:  &batchId,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period_id"}, {Name: "creator_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"manager_id", "handle", "diamonds", "est_base_usd", "est_activity_usd",
			"m0_5", "m1", "m1_retention", "m2", "import_batch_id", "updated_at",
		}),
	}).Create(&item).Error
	return warning, err
}

func activeManagerIds(tx *gorm.DB) (map[int]bool, error) {
	var ids []int
	if err := tx.Model(&User{}).
		Where("role IN ? AND is_active = ?", []UserRole{UserRoleTeamLeader, UserRoleSalesRep}, true).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	result := make(map[int]bool, len(ids))
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

// GetPeriodRevenueItems returns every revenue row of a period ordered by manager then creator.
func GetPeriodRevenueItems(ctx context.Context, periodId string) ([]*RevenueItem, error) {
	return GetPeriodRevenueItemsTx(config.GetDB().WithContext(ctx), periodId)
}

func GetPeriodRevenueItemsTx(tx *gorm.DB, periodId string) ([]*RevenueItem, error) {
	var results []*RevenueItem
	if err := tx.Where("period_id = ?", periodId).Order("manager_id, creator_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func CountPeriodRevenueItems(tx *gorm.DB, periodId string) (int64, error) {
	var count int64
	err := tx.Model(&RevenueItem{}).Where("period_id = ?", periodId).Count(&count).Error
	return count, err
}

func GetManagerRevenueItems(ctx context.Context, periodId string, managerId int) ([]*RevenueItem, error) {
	var results []*RevenueItem
	if err := config.GetDB().WithContext(ctx).
		Where("period_id = ? AND manager_id = ?", periodId, managerId).
		Order("handle").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
