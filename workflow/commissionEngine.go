package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("billing_backend/workflow")

const recalcLockTTL = 2 * time.Minute

// CommissionEngine turns a period snapshot into ledger rows. It holds the resolved
// rules and rate so Calculate has no hidden inputs.
type CommissionEngine struct {
	PeriodId   string
	Rules      models.CommissionRules
	UsdEurRate decimal.Decimal
	Revision   int
}

// ManagerCommission is one manager's computed rows and running total.
type ManagerCommission struct {
	ManagerId int
	Name      string
	Role      models.UserRole
	Personal  PersonalRevenue
	Rows      []*models.CommissionLedger
	TotalEur  decimal.Decimal
}

func NewCommissionEngine(rules models.CommissionRules, period *models.Period, revision int) (*CommissionEngine, error) {
	if period == nil {
		return nil, utils.NewConfigurationError("period is required")
	}
	if period.UsdEurRate == nil || !period.UsdEurRate.IsPositive() {
		return nil, utils.NewConfigurationError("period %s has no USD/EUR rate", period.ID)
	}
	return &CommissionEngine{
		PeriodId:   period.ID,
		Rules:      rules,
		UsdEurRate: *period.UsdEurRate,
		Revision:   revision,
	}, nil
}

// Calculate runs the personal, downline and team passes for every active TL/SR with
// at least one revenue row. Managers come out in ascending id order.
func (e *CommissionEngine) Calculate(snapshot *CalculationSnapshot) []*ManagerCommission {
	revenue := groupRevenueByManager(snapshot.RevenueItems)

	names := make(map[int]string, len(snapshot.Managers))
	for _, m := range snapshot.Managers {
		names[m.ID] = m.Name
	}

	downline := map[int][]*models.OrgRelation{}
	for _, r := range snapshot.Relations {
		if r.Depth < 1 || r.Depth > models.MaxOrgDepth {
			continue
		}
		downline[r.AncestorId] = append(downline[r.AncestorId], r)
	}
	for id := range downline {
		rels := downline[id]
		sort.Slice(rels, func(i, j int) bool {
			if rels[i].Depth != rels[j].Depth {
				return rels[i].Depth < rels[j].Depth
			}
			return rels[i].DescendantId < rels[j].DescendantId
		})
	}

	managers := make([]*models.User, 0, len(snapshot.Managers))
	for _, m := range snapshot.Managers {
		if !m.Active() || !m.Role.IsManager() {
			continue
		}
		if _, ok := revenue[m.ID]; !ok {
			continue
		}
		managers = append(managers, m)
	}
	sort.Slice(managers, func(i, j int) bool { return managers[i].ID < managers[j].ID })

	results := make([]*ManagerCommission, 0, len(managers))
	for _, m := range managers {
		personal := revenue[m.ID]
		mc := &ManagerCommission{
			ManagerId: m.ID,
			Name:      m.Name,
			Role:      m.Role,
			Personal:  personal,
		}
		e.personalPass(mc)
		if m.Role == models.UserRoleTeamLeader {
			rels := downline[m.ID]
			e.downlinePass(mc, rels, revenue, names)
			e.teamPass(mc, rels, revenue)
		}
		mc.TotalEur = models.SumEur(mc.Rows)
		results = append(results, mc)
	}
	return results
}

func (e *CommissionEngine) personalPass(mc *ManagerCommission) {
	rates := e.Rules.ForRole(mc.Role)
	p := mc.Personal

	if p.BaseUsd.IsPositive() {
		e.addRateRow(mc, models.ComponentBaseCommission, p.BaseUsd, rates.BaseCommission, models.CalculationDetail{})
	}
	if p.ActivityUsd.IsPositive() {
		e.addRateRow(mc, models.ComponentActivityCommission, p.ActivityUsd, rates.ActivityCommission, models.CalculationDetail{})
	}

	milestones := []struct {
		component models.ComponentType
		count     int
		bonus     decimal.Decimal
	}{
		{models.ComponentM0_5Bonus, p.M0_5, rates.FixedBonuses.M0_5},
		{models.ComponentM1Bonus, p.M1, rates.FixedBonuses.M1},
		{models.ComponentM1RetentionBonus, p.M1Retention, rates.FixedBonuses.M1Retention},
		{models.ComponentM2Bonus, p.M2, rates.FixedBonuses.M2},
	}
	for _, ms := range milestones {
		if ms.count > 0 {
			e.addFixedRow(mc, ms.component, ms.count, ms.bonus)
		}
	}
}

func (e *CommissionEngine) downlinePass(mc *ManagerCommission, rels []*models.OrgRelation, revenue map[int]PersonalRevenue, names map[int]string) {
	levels := e.Rules.TeamLeader.DownlineRates
	for _, r := range rels {
		component, ok := models.DownlineComponent(r.Depth)
		if !ok {
			continue
		}
		rate, _ := levels.ForDepth(r.Depth)
		descendant := revenue[r.DescendantId]
		if !descendant.TotalUsd.IsPositive() {
			continue
		}
		descendantId := r.DescendantId
		level := r.Depth
		e.addRateRow(mc, component, descendant.TotalUsd, rate, models.CalculationDetail{
			DescendantId:   &descendantId,
			DescendantName: names[r.DescendantId],
			Level:          &level,
		})
	}
}

// teamPass counts every recorded descendant. Recruitment and graduation are flat
// once the threshold is met.
func (e *CommissionEngine) teamPass(mc *ManagerCommission, rels []*models.OrgRelation, revenue map[int]PersonalRevenue) {
	teamRevenue := mc.Personal.TotalUsd
	for _, r := range rels {
		teamRevenue = teamRevenue.Add(revenue[r.DescendantId].TotalUsd)
	}

	minRevenue := e.Rules.TeamTargets.MinTeamRevenue
	if teamRevenue.LessThan(minRevenue) {
		return
	}

	targetMet := true
	bonus := e.Rules.TeamLeader.TeamBonus
	e.addRateRow(mc, models.ComponentTeamBonus, teamRevenue, bonus.Rate, models.CalculationDetail{
		MinTeamRevenue: &minRevenue,
		TargetMet:      &targetMet,
	})
	e.addFlatRow(mc, models.ComponentTeamRecruitment, bonus.Recruitment)
	e.addFlatRow(mc, models.ComponentTeamGraduation, bonus.Graduation)
}

func (e *CommissionEngine) addRateRow(mc *ManagerCommission, component models.ComponentType, revenueUsd decimal.Decimal, rate decimal.Decimal, detail models.CalculationDetail) {
	usd := utils.Round2(revenueUsd.Mul(rate))
	eur := utils.Round2(usd.Mul(e.UsdEurRate))
	fx := e.UsdEurRate

	detail.Method = models.CalculationMethodRate
	detail.RevenueUsd = &revenueUsd
	detail.Rate = &rate
	detail.UsdEurRate = &fx
	e.appendRow(mc, component, &usd, eur, detail)
}

func (e *CommissionEngine) addFixedRow(mc *ManagerCommission, component models.ComponentType, count int, bonus decimal.Decimal) {
	eur := utils.Round2(decimal.NewFromInt(int64(count)).Mul(bonus))
	e.appendRow(mc, component, nil, eur, models.CalculationDetail{
		Method:            models.CalculationMethodFixed,
		Count:             &count,
		BonusPerMilestone: &bonus,
	})
}

func (e *CommissionEngine) addFlatRow(mc *ManagerCommission, component models.ComponentType, amount decimal.Decimal) {
	e.appendRow(mc, component, nil, utils.Round2(amount), models.CalculationDetail{
		Method:        models.CalculationMethodFlat,
		FlatAmountEur: &amount,
	})
}

func (e *CommissionEngine) appendRow(mc *ManagerCommission, component models.ComponentType, usd *decimal.Decimal, eur decimal.Decimal, detail models.CalculationDetail) {
	mc.Rows = append(mc.Rows, &models.CommissionLedger{
		PeriodId:  e.PeriodId,
		ManagerId: mc.ManagerId,
		Component: component,
		AmountUsd: usd,
		AmountEur: eur,
		Calc:      datatypes.NewJSONType(detail),
		Revision:  e.Revision,
	})
}

// CalculateAllCommissions replaces the period's ledger with a fresh calculation.
// Running it twice on unchanged inputs yields the same rows under a new revision.
func CalculateAllCommissions(ctx context.Context, periodId string) (*CalculationSummary, error) {
	ctx, span := tracer.Start(ctx, "CalculateAllCommissions")
	defer span.End()
	span.SetAttributes(attribute.String("period.id", periodId))

	summary, err := calculateAllCommissions(ctx, periodId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("calculation.revision", summary.Revision),
		attribute.Int("calculation.managers", summary.TotalManagers),
	)
	return summary, nil
}

func calculateAllCommissions(ctx context.Context, periodId string) (*CalculationSummary, error) {
	logger := config.GetLogger()
	if err := utils.ValidatePeriodId(periodId); err != nil {
		return nil, err
	}

	ruleSet, err := models.GetActiveRuleSet(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	period, err := models.GetPeriod(ctx, periodId)
	if err != nil {
		return nil, err
	}
	if err := ensureCalculable(period); err != nil {
		return nil, err
	}
	count, err := models.CountPeriodRevenueItems(config.GetDB().WithContext(ctx), periodId)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, utils.NewValidationError("no revenue items found for period %s", periodId)
	}

	release, err := utils.ObtainLock(ctx, fmt.Sprintf("recalc:%s", periodId), recalcLockTTL, "workflow", "CalculateAllCommissions")
	if err != nil {
		return nil, err
	}
	if release != nil {
		defer release()
	}

	var summary CalculationSummary
	err = models.PeriodTransaction(ctx, periodId, func(tx *gorm.DB) error {
		snapshot, err := loadCalculationSnapshot(tx, periodId)
		if err != nil {
			return err
		}
		// status or rate may have moved between the pre-check and the lock
		if err := ensureCalculable(snapshot.Period); err != nil {
			return err
		}

		revision := snapshot.Period.CalculationRevision + 1
		engine, err := NewCommissionEngine(ruleSet.Rules.Data(), snapshot.Period, revision)
		if err != nil {
			return err
		}
		results := engine.Calculate(snapshot)

		if err := models.DeletePeriodLedgerTx(tx, periodId); err != nil {
			return err
		}
		var rows []*models.CommissionLedger
		for _, mc := range results {
			rows = append(rows, mc.Rows...)
		}
		if err := models.InsertLedgerRowsTx(tx, rows); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(snapshot.Period).Updates(map[string]interface{}{
			"calculated_at":        &now,
			"calculation_revision": revision,
		}).Error; err != nil {
			return err
		}

		summary = summarizeCommissions(periodId, revision, len(snapshot.RevenueItems), results)
		summary.RuleSetId = ruleSet.ID
		return nil
	})
	if err != nil {
		config.LogError(logger, "workflow", "CalculateAllCommissions", "recalculation failed", periodId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"periodId":           periodId,
		"revision":           summary.Revision,
		"ruleSetId":          summary.RuleSetId,
		"totalManagers":      summary.TotalManagers,
		"totalCommissionEur": summary.TotalCommissionEur.StringFixed(2),
	}).Info("commissions recalculated")

	publishEvent(ctx, config.BillingEvent{
		Type:     EventCommissionRecalculated,
		PeriodId: periodId,
		Payload: map[string]interface{}{
			"revision":           summary.Revision,
			"totalManagers":      summary.TotalManagers,
			"totalCommissionEur": summary.TotalCommissionEur.StringFixed(2),
		},
	})
	return &summary, nil
}

func ensureCalculable(period *models.Period) error {
	if period.IsLocked() {
		return utils.NewConfigurationError("period %s is locked", period.ID)
	}
	if period.UsdEurRate == nil {
		return utils.NewConfigurationError("period %s has no USD/EUR rate", period.ID)
	}
	return nil
}
