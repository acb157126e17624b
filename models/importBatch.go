package models

import (
	"context"
	"time"

	"github.com/trend4media/billing_backend/config"
	"gorm.io/datatypes"
)

type ImportSummary struct {
	TotalRows      int      `json:"totalRows"`
	SuccessfulRows int      `json:"successfulRows"`
	FailedRows     int      `json:"failedRows"`
	Warnings       []string `json:"warnings"`
	Errors         []string `json:"errors"`
}

type ImportBatch struct {
	ID        int                               `gorm:"primary_key" json:"id"`
	PeriodId  string                            `gorm:"size:6;not null;index" json:"period_id"`
	FileName  string                            `gorm:"size:255" json:"file_name"`
	Status    ImportStatus                      `gorm:"size:20;not null" json:"status"`
	RowCount  int                               `gorm:"not null;default:0" json:"row_count"`
	Summary   datatypes.JSONType[ImportSummary] `json:"summary"`
	CreatedAt time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *ImportBatch) finish(ctx context.Context, status ImportStatus, summary ImportSummary) error {
	b.Status = status
	b.Summary = datatypes.NewJSONType(summary)
	return config.GetDB().WithContext(ctx).Model(b).Updates(map[string]interface{}{
		"status":  status,
		"summary": b.Summary,
	}).Error
}

func ListImportBatches(ctx context.Context, periodId string) ([]*ImportBatch, error) {
	var results []*ImportBatch
	if err := config.GetDB().WithContext(ctx).
		Where("period_id = ?", periodId).
		Order("created_at DESC, id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
