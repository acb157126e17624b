package workflow

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
)

type ComponentTotal struct {
	Count    int             `json:"count"`
	TotalEur decimal.Decimal `json:"totalEur"`
}

type ManagerSummary struct {
	ManagerId      int             `json:"managerId"`
	Name           string          `json:"name,omitempty"`
	Role           models.UserRole `json:"role"`
	TotalEur       decimal.Decimal `json:"totalEur"`
	ComponentCount int             `json:"componentCount"`
}

// CalculationSummary is the response of a recalculation and of the ledger view.
type CalculationSummary struct {
	PeriodId           string                                  `json:"periodId"`
	Revision           int                                     `json:"revision"`
	RuleSetId          string                                  `json:"ruleSetId,omitempty"`
	TotalManagers      int                                     `json:"totalManagers"`
	TotalCommissionEur decimal.Decimal                         `json:"totalCommissionEur"`
	TotalRevenueItems  int                                     `json:"totalRevenueItems"`
	ComponentBreakdown map[models.ComponentType]ComponentTotal `json:"componentBreakdown"`
	Managers           []ManagerSummary                        `json:"managers"`
}

func summarizeCommissions(periodId string, revision int, revenueItems int, results []*ManagerCommission) CalculationSummary {
	summary := CalculationSummary{
		PeriodId:           periodId,
		Revision:           revision,
		TotalManagers:      len(results),
		TotalCommissionEur: decimal.Zero,
		TotalRevenueItems:  revenueItems,
		ComponentBreakdown: map[models.ComponentType]ComponentTotal{},
		Managers:           make([]ManagerSummary, 0, len(results)),
	}
	for _, mc := range results {
		for _, row := range mc.Rows {
			ct := summary.ComponentBreakdown[row.Component]
			ct.Count++
			ct.TotalEur = utils.Round2(ct.TotalEur.Add(row.AmountEur))
			summary.ComponentBreakdown[row.Component] = ct
		}
		summary.TotalCommissionEur = utils.Round2(summary.TotalCommissionEur.Add(mc.TotalEur))
		summary.Managers = append(summary.Managers, ManagerSummary{
			ManagerId:      mc.ManagerId,
			Name:           mc.Name,
			Role:           mc.Role,
			TotalEur:       mc.TotalEur,
			ComponentCount: len(mc.Rows),
		})
	}
	return summary
}

// SummarizeLedger rebuilds the summary from persisted rows. Managers without rows do
// not appear, unlike the summary returned by a recalculation.
func SummarizeLedger(periodId string, revision int, revenueItems int, rows []*models.CommissionLedger, managers []*models.User) CalculationSummary {
	byId := make(map[int]*models.User, len(managers))
	for _, m := range managers {
		byId[m.ID] = m
	}

	grouped := map[int]*ManagerCommission{}
	for _, row := range rows {
		mc, ok := grouped[row.ManagerId]
		if !ok {
			mc = &ManagerCommission{ManagerId: row.ManagerId}
			if m, found := byId[row.ManagerId]; found {
				mc.Name = m.Name
				mc.Role = m.Role
			}
			grouped[row.ManagerId] = mc
		}
		mc.Rows = append(mc.Rows, row)
	}

	results := make([]*ManagerCommission, 0, len(grouped))
	for _, mc := range grouped {
		mc.TotalEur = models.SumEur(mc.Rows)
		results = append(results, mc)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ManagerId < results[j].ManagerId })
	return summarizeCommissions(periodId, revision, revenueItems, results)
}

// GetPeriodLedgerSummary loads the persisted ledger of a period and summarizes it.
func GetPeriodLedgerSummary(ctx context.Context, periodId string) (*CalculationSummary, []*models.CommissionLedger, error) {
	period, err := models.GetPeriod(ctx, periodId)
	if err != nil {
		return nil, nil, err
	}
	rows, err := models.GetPeriodLedger(ctx, periodId)
	if err != nil {
		return nil, nil, err
	}
	managers, err := models.ListManagers(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	count, err := models.CountPeriodRevenueItems(config.GetDB().WithContext(ctx), periodId)
	if err != nil {
		return nil, nil, err
	}
	summary := SummarizeLedger(periodId, period.CalculationRevision, int(count), rows, managers)
	return &summary, rows, nil
}
