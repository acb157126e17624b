package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/trend4media/billing_backend/workflow"
)

type ExportCreator struct {
	Handle      string          `json:"handle"`
	Diamonds    int64           `json:"diamonds"`
	BaseUsd     decimal.Decimal `json:"baseUsd"`
	ActivityUsd decimal.Decimal `json:"activityUsd"`
	M0_5        bool            `json:"m0_5"`
	M1          bool            `json:"m1"`
	M1Retention bool            `json:"m1_retention"`
	M2          bool            `json:"m2"`
}

type ManagerExport struct {
	ManagerId          int                                      `json:"managerId"`
	ManagerName        string                                   `json:"managerName"`
	ManagerEmail       string                                   `json:"managerEmail"`
	Role               models.UserRole                          `json:"role"`
	PersonalRevenue    workflow.PersonalRevenue                 `json:"personalRevenue"`
	Commissions        map[models.ComponentType]decimal.Decimal `json:"commissions"`
	TotalCommissionEur decimal.Decimal                          `json:"totalCommissionEur"`
	PayoutStatus       *models.PayoutStatus                     `json:"payoutStatus"`
	Creators           []ExportCreator                          `json:"creators"`
}

type ExportTotals struct {
	TotalManagers       int             `json:"totalManagers"`
	TotalRevenueUsd     decimal.Decimal `json:"totalRevenue"`
	TotalCommissionsEur decimal.Decimal `json:"totalCommissions"`
	TotalCreators       int             `json:"totalCreators"`
	TotalDiamonds       int64           `json:"totalDiamonds"`
}

type PeriodExport struct {
	Period      *models.Period             `json:"period"`
	Managers    []ManagerExport            `json:"managerSummaries"`
	Ledger      []*models.CommissionLedger `json:"ledger"`
	Totals      ExportTotals               `json:"totals"`
	GeneratedAt time.Time                  `json:"generatedAt"`
}

// BuildPeriodExport collects every active manager with revenue in the period.
func BuildPeriodExport(ctx context.Context, periodId string) (*PeriodExport, error) {
	started := time.Now()
	defer logSlowReport(ctx, "BuildPeriodExport", started, logrus.Fields{"periodId": periodId})

	period, err := models.GetPeriod(ctx, periodId)
	if err != nil {
		return nil, err
	}
	managers, err := models.ListManagers(ctx, true)
	if err != nil {
		return nil, err
	}
	items, err := models.GetPeriodRevenueItems(ctx, periodId)
	if err != nil {
		return nil, err
	}
	ledger, err := models.GetPeriodLedger(ctx, periodId)
	if err != nil {
		return nil, err
	}
	payouts, err := models.ListPayouts(ctx, models.PayoutFilter{PeriodId: periodId})
	if err != nil {
		return nil, err
	}
	return assemblePeriodExport(period, managers, items, ledger, payouts), nil
}

func assemblePeriodExport(period *models.Period, managers []*models.User, items []*models.RevenueItem, ledger []*models.CommissionLedger, payouts []*models.Payout) *PeriodExport {
	itemsByManager := map[int][]*models.RevenueItem{}
	for _, item := range items {
		itemsByManager[item.ManagerId] = append(itemsByManager[item.ManagerId], item)
	}
	ledgerByManager := map[int][]*models.CommissionLedger{}
	for _, row := range ledger {
		ledgerByManager[row.ManagerId] = append(ledgerByManager[row.ManagerId], row)
	}
	payoutStatus := map[int]models.PayoutStatus{}
	for _, p := range payouts {
		payoutStatus[p.ManagerId] = p.Status
	}

	export := &PeriodExport{
		Period:      period,
		Managers:    []ManagerExport{},
		Ledger:      ledger,
		GeneratedAt: time.Now().UTC(),
		Totals: ExportTotals{
			TotalRevenueUsd:     decimal.Zero,
			TotalCommissionsEur: decimal.Zero,
		},
	}

	for _, m := range managers {
		managerItems := itemsByManager[m.ID]
		if len(managerItems) == 0 {
			continue
		}
		me := ManagerExport{
			ManagerId:       m.ID,
			ManagerName:     m.Name,
			ManagerEmail:    utils.DereferencePtr(m.Email, ""),
			Role:            m.Role,
			PersonalRevenue: workflow.AggregatePersonalRevenue(m.ID, managerItems),
			Commissions:     map[models.ComponentType]decimal.Decimal{},
		}
		for _, row := range ledgerByManager[m.ID] {
			me.Commissions[row.Component] = utils.Round2(me.Commissions[row.Component].Add(row.AmountEur))
		}
		me.TotalCommissionEur = models.SumEur(ledgerByManager[m.ID])
		if status, ok := payoutStatus[m.ID]; ok {
			me.PayoutStatus = &status
		}
		for _, item := range managerItems {
			me.Creators = append(me.Creators, ExportCreator{
				Handle:      item.Handle,
				Diamonds:    item.Diamonds,
				BaseUsd:     item.EstBaseUsd,
				ActivityUsd: item.EstActivityUsd,
				M0_5:        item.M0_5,
				M1:          item.M1,
				M1Retention: item.M1Retention,
				M2:          item.M2,
			})
		}

		export.Managers = append(export.Managers, me)
		export.Totals.TotalManagers++
		export.Totals.TotalRevenueUsd = export.Totals.TotalRevenueUsd.Add(me.PersonalRevenue.TotalUsd)
		export.Totals.TotalCommissionsEur = utils.Round2(export.Totals.TotalCommissionsEur.Add(me.TotalCommissionEur))
		export.Totals.TotalCreators += me.PersonalRevenue.CreatorCount
		export.Totals.TotalDiamonds += me.PersonalRevenue.Diamonds
	}
	return export
}
