package workflow

import (
	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/models"
)

// PersonalRevenue is one manager's own revenue for a period.
type PersonalRevenue struct {
	ManagerId    int             `json:"managerId"`
	BaseUsd      decimal.Decimal `json:"baseUsd"`
	ActivityUsd  decimal.Decimal `json:"activityUsd"`
	TotalUsd     decimal.Decimal `json:"totalUsd"`
	M0_5         int             `json:"m0_5"`
	M1           int             `json:"m1"`
	M1Retention  int             `json:"m1_retention"`
	M2           int             `json:"m2"`
	CreatorCount int             `json:"creatorCount"`
	Diamonds     int64           `json:"diamonds"`
}

// AggregatePersonalRevenue sums the items attributed to managerId. Items of other
// managers are ignored, so callers may pass the whole period.
func AggregatePersonalRevenue(managerId int, items []*models.RevenueItem) PersonalRevenue {
	result := PersonalRevenue{
		ManagerId:   managerId,
		BaseUsd:     decimal.Zero,
		ActivityUsd: decimal.Zero,
		TotalUsd:    decimal.Zero,
	}
	for _, item := range items {
		if item.ManagerId != managerId {
			continue
		}
		result.BaseUsd = result.BaseUsd.Add(item.EstBaseUsd)
		result.ActivityUsd = result.ActivityUsd.Add(item.EstActivityUsd)
		result.Diamonds += item.Diamonds
		result.CreatorCount++
		if item.M0_5 {
			result.M0_5++
		}
		if item.M1 {
			result.M1++
		}
		if item.M1Retention {
			result.M1Retention++
		}
		if item.M2 {
			result.M2++
		}
	}
	result.TotalUsd = result.BaseUsd.Add(result.ActivityUsd)
	return result
}

// groupRevenueByManager aggregates every manager appearing in items in one pass.
func groupRevenueByManager(items []*models.RevenueItem) map[int]PersonalRevenue {
	byManager := map[int][]*models.RevenueItem{}
	for _, item := range items {
		byManager[item.ManagerId] = append(byManager[item.ManagerId], item)
	}
	result := make(map[int]PersonalRevenue, len(byManager))
	for managerId, managerItems := range byManager {
		result[managerId] = AggregatePersonalRevenue(managerId, managerItems)
	}
	return result
}
