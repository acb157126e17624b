package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
)

// Creator is a revenue-producing account owned by one manager at a time.
type Creator struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Handle    string    `gorm:"size:150;not null;unique" json:"handle"`
	ManagerId int       `gorm:"index;not null" json:"manager_id"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func normalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// upsertCreator finds the creator by handle or creates it. When the import names another
// manager the creator is reassigned and a warning is returned.
func upsertCreator(tx *gorm.DB, handle string, managerId int) (*Creator, string, error) {
	var creator Creator
	err := tx.Where("handle = ?", handle).Take(&creator).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
		creator = Creator{
			Handle:    handle,
			ManagerId: managerId,
			IsActive:  utils.NewTrue(),
		}
		if err := tx.Create(&creator).Error; err != nil {
			return nil, "", err
		}
		return &creator, "", nil
	}

	warning := ""
	if creator.ManagerId != managerId {
		warning = "creator " + handle + " reassigned to a different manager"
		if err := tx.Model(&creator).Update("manager_id", managerId).Error; err != nil {
			return nil, "", err
		}
	}
	return &creator, warning, nil
}

func ListCreatorsByManager(ctx context.Context, managerId int) ([]*Creator, error) {
	var results []*Creator
	if err := config.GetDB().WithContext(ctx).
		Where("manager_id = ?", managerId).
		Order("handle").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
