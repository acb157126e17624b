package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/trend4media/billing_backend/workflow"
)

const payoutHistoryLimit = 5

type MilestoneCounts struct {
	M0_5        int `json:"m0_5"`
	M1          int `json:"m1"`
	M1Retention int `json:"m1_retention"`
	M2          int `json:"m2"`
}

type DashboardKpis struct {
	TotalEarnings         decimal.Decimal `json:"totalEarnings"`
	BaseCommission        decimal.Decimal `json:"baseCommission"`
	ActivityCommission    decimal.Decimal `json:"activityCommission"`
	BonusTotal            decimal.Decimal `json:"bonusTotal"`
	DownlineTotal         decimal.Decimal `json:"downlineTotal"`
	TeamBonus             decimal.Decimal `json:"teamBonus"`
	CreatorCount          int             `json:"creatorCount"`
	ActiveCreators        int             `json:"activeCreators"`
	TotalDiamonds         int64           `json:"totalDiamonds"`
	PersonalRevenueUsd    decimal.Decimal `json:"personalRevenueUsd"`
	MilestoneAchievements MilestoneCounts `json:"milestoneAchievements"`
}

type DashboardCreator struct {
	Id         int              `json:"id"`
	Handle     string           `json:"handle"`
	Diamonds   int64            `json:"diamonds"`
	RevenueUsd decimal.Decimal  `json:"revenue"`
	Milestones *MilestoneCounts `json:"milestones"`
}

type DownlineMember struct {
	Level         int             `json:"level"`
	LevelName     string          `json:"levelName"`
	ManagerId     int             `json:"managerId"`
	Name          string          `json:"name"`
	Role          models.UserRole `json:"role"`
	RevenueUsd    decimal.Decimal `json:"personalRevenue"`
	CommissionEur decimal.Decimal `json:"commission"`
}

type ManagerDashboard struct {
	PeriodId           string                                   `json:"periodId"`
	Revision           int                                      `json:"revision"`
	Kpis               DashboardKpis                            `json:"kpis"`
	ComponentBreakdown map[models.ComponentType]decimal.Decimal `json:"componentBreakdown"`
	Creators           []DashboardCreator                       `json:"creators"`
	Downline           []DownlineMember                         `json:"downline"`
	Payout             *models.Payout                           `json:"payout"`
	PayoutHistory      []*models.Payout                         `json:"payoutHistory"`
}

func dashboardCacheKey(periodId string, managerId int, revision int) string {
	return fmt.Sprintf("Dashboard:%s:%d:%d", periodId, managerId, revision)
}

// GetManagerDashboard is the manager's own view of a period. When ENABLE_REPORT_CACHE
// is set it is cached per ledger revision for REPORT_CACHE_TTL_SECONDS.
func GetManagerDashboard(ctx context.Context, periodId string, managerId int) (*ManagerDashboard, error) {
	started := time.Now()
	defer logSlowReport(ctx, "GetManagerDashboard", started, logrus.Fields{"periodId": periodId, "managerId": managerId})

	period, err := models.GetPeriod(ctx, periodId)
	if err != nil {
		return nil, err
	}
	manager, err := models.GetUser(ctx, managerId)
	if err != nil {
		return nil, err
	}

	return cached(ctx, dashboardCacheKey(periodId, managerId, period.CalculationRevision), func() (*ManagerDashboard, error) {
		return loadManagerDashboard(ctx, period, manager)
	})
}

func loadManagerDashboard(ctx context.Context, period *models.Period, manager *models.User) (*ManagerDashboard, error) {
	periodId, managerId := period.ID, manager.ID
	ledger, err := models.GetLedgerRows(ctx, periodId, managerId)
	if err != nil {
		return nil, err
	}
	creators, err := models.ListCreatorsByManager(ctx, managerId)
	if err != nil {
		return nil, err
	}
	items, err := models.GetManagerRevenueItems(ctx, periodId, managerId)
	if err != nil {
		return nil, err
	}

	dashboard := buildManagerDashboard(periodId, period.CalculationRevision, ledger, creators, items)

	if manager.Role == models.UserRoleTeamLeader {
		dashboard.Downline, err = loadDownline(ctx, periodId, managerId, ledger)
		if err != nil {
			return nil, err
		}
	}

	dashboard.Payout, err = models.GetManagerPayout(ctx, periodId, managerId)
	if err != nil {
		return nil, err
	}
	history, err := models.ListPayouts(ctx, models.PayoutFilter{ManagerId: managerId})
	if err != nil {
		return nil, err
	}
	if len(history) > payoutHistoryLimit {
		history = history[:payoutHistoryLimit]
	}
	dashboard.PayoutHistory = history
	return dashboard, nil
}

func buildManagerDashboard(periodId string, revision int, ledger []*models.CommissionLedger, creators []*models.Creator, items []*models.RevenueItem) *ManagerDashboard {
	d := &ManagerDashboard{
		PeriodId:           periodId,
		Revision:           revision,
		ComponentBreakdown: map[models.ComponentType]decimal.Decimal{},
		Creators:           []DashboardCreator{},
		Downline:           []DownlineMember{},
		Kpis: DashboardKpis{
			TotalEarnings:      decimal.Zero,
			BaseCommission:     decimal.Zero,
			ActivityCommission: decimal.Zero,
			BonusTotal:         decimal.Zero,
			DownlineTotal:      decimal.Zero,
			TeamBonus:          decimal.Zero,
			PersonalRevenueUsd: decimal.Zero,
		},
	}

	k := &d.Kpis
	for _, row := range ledger {
		amount := row.AmountEur
		k.TotalEarnings = utils.Round2(k.TotalEarnings.Add(amount))
		d.ComponentBreakdown[row.Component] = utils.Round2(d.ComponentBreakdown[row.Component].Add(amount))
		switch row.Component.Group() {
		case "base":
			k.BaseCommission = k.BaseCommission.Add(amount)
		case "activity":
			k.ActivityCommission = k.ActivityCommission.Add(amount)
		case "bonus":
			k.BonusTotal = k.BonusTotal.Add(amount)
		case "downline":
			k.DownlineTotal = k.DownlineTotal.Add(amount)
		case "team":
			k.TeamBonus = k.TeamBonus.Add(amount)
		}
	}

	byCreator := map[int]*models.RevenueItem{}
	for _, item := range items {
		byCreator[item.CreatorId] = item
	}
	personal := workflow.AggregatePersonalRevenue(0, nil)
	if len(items) > 0 {
		personal = workflow.AggregatePersonalRevenue(items[0].ManagerId, items)
	}
	k.TotalDiamonds = personal.Diamonds
	k.PersonalRevenueUsd = personal.TotalUsd
	k.MilestoneAchievements = MilestoneCounts{
		M0_5:        personal.M0_5,
		M1:          personal.M1,
		M1Retention: personal.M1Retention,
		M2:          personal.M2,
	}

	for _, c := range creators {
		if !utils.DereferencePtr(c.IsActive, true) {
			continue
		}
		k.CreatorCount++
		dc := DashboardCreator{Id: c.ID, Handle: c.Handle, RevenueUsd: decimal.Zero}
		if item, ok := byCreator[c.ID]; ok {
			k.ActiveCreators++
			dc.Diamonds = item.Diamonds
			dc.RevenueUsd = item.EstBaseUsd.Add(item.EstActivityUsd)
			dc.Milestones = &MilestoneCounts{
				M0_5:        boolToInt(item.M0_5),
				M1:          boolToInt(item.M1),
				M1Retention: boolToInt(item.M1Retention),
				M2:          boolToInt(item.M2),
			}
		}
		d.Creators = append(d.Creators, dc)
	}
	return d
}

// loadDownline lists depth 1..3 members with their revenue and the commission earned on them.
func loadDownline(ctx context.Context, periodId string, managerId int, ledger []*models.CommissionLedger) ([]DownlineMember, error) {
	relations, err := models.GetDownline(ctx, managerId)
	if err != nil {
		return nil, err
	}
	managers, err := models.ListManagers(ctx, false)
	if err != nil {
		return nil, err
	}
	items, err := models.GetPeriodRevenueItems(ctx, periodId)
	if err != nil {
		return nil, err
	}

	users := map[int]*models.User{}
	for _, m := range managers {
		users[m.ID] = m
	}
	earned := map[int]decimal.Decimal{}
	for _, row := range ledger {
		if row.Component.Group() != "downline" {
			continue
		}
		if id := row.Calc.Data().DescendantId; id != nil {
			earned[*id] = earned[*id].Add(row.AmountEur)
		}
	}

	members := make([]DownlineMember, 0, len(relations))
	for _, r := range relations {
		member := DownlineMember{
			Level:         r.Depth,
			LevelName:     levelName(r.Depth),
			ManagerId:     r.DescendantId,
			RevenueUsd:    workflow.AggregatePersonalRevenue(r.DescendantId, items).TotalUsd,
			CommissionEur: earned[r.DescendantId],
		}
		if u, ok := users[r.DescendantId]; ok {
			member.Name = u.Name
			member.Role = u.Role
		}
		members = append(members, member)
	}
	return members, nil
}

func levelName(depth int) string {
	switch depth {
	case 1:
		return "A"
	case 2:
		return "B"
	case 3:
		return "C"
	}
	return ""
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
