package workflow

import (
	"github.com/trend4media/billing_backend/models"
	"gorm.io/gorm"
)

// CalculationSnapshot is everything the engine reads for one period.
type CalculationSnapshot struct {
	Period       *models.Period
	Managers     []*models.User
	Relations    []*models.OrgRelation
	RevenueItems []*models.RevenueItem
}

// loadCalculationSnapshot reads the period (row locked), every TL/SR, the closure and
// the revenue items inside the recalculation transaction.
func loadCalculationSnapshot(tx *gorm.DB, periodId string) (*CalculationSnapshot, error) {
	period, err := models.GetPeriodTx(tx, periodId, true)
	if err != nil {
		return nil, err
	}

	var managers []*models.User
	if err := tx.Where("role IN ?", []models.UserRole{models.UserRoleTeamLeader, models.UserRoleSalesRep}).
		Order("id").
		Find(&managers).Error; err != nil {
		return nil, err
	}

	relations, err := models.ListOrgRelationsTx(tx)
	if err != nil {
		return nil, err
	}

	items, err := models.GetPeriodRevenueItemsTx(tx, periodId)
	if err != nil {
		return nil, err
	}

	return &CalculationSnapshot{
		Period:       period,
		Managers:     managers,
		Relations:    relations,
		RevenueItems: items,
	}, nil
}
