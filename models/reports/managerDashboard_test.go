package reports

import (
	"testing"

	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
)

func TestBuildManagerDashboard(t *testing.T) {
	ledger := []*models.CommissionLedger{
		ledgerRow(1, models.ComponentBaseCommission, "322.00"),
		ledgerRow(1, models.ComponentActivityCommission, "32.20"),
		ledgerRow(1, models.ComponentM1Bonus, "165.00"),
		ledgerRow(1, models.ComponentDownlineA, "184.00"),
		ledgerRow(1, models.ComponentDownlineB, "69.00"),
		ledgerRow(1, models.ComponentTeamBonus, "920.00"),
		ledgerRow(1, models.ComponentTeamRecruitment, "50.00"),
	}
	creators := []*models.Creator{
		{ID: 10, Handle: "alpha", ManagerId: 1, IsActive: utils.NewTrue()},
		{ID: 11, Handle: "idle", ManagerId: 1, IsActive: utils.NewTrue()},
		{ID: 12, Handle: "gone", ManagerId: 1, IsActive: utils.NewFalse()},
	}
	items := []*models.RevenueItem{
		{ManagerId: 1, CreatorId: 10, Handle: "alpha", Diamonds: 300, EstBaseUsd: d("1000"), EstActivityUsd: d("100"), M1: true, M2: true},
	}

	dash := buildManagerDashboard("202405", 3, ledger, creators, items)
	k := dash.Kpis

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"total", k.TotalEarnings.StringFixed(2), "1742.20"},
		{"base", k.BaseCommission.StringFixed(2), "322.00"},
		{"activity", k.ActivityCommission.StringFixed(2), "32.20"},
		{"bonus", k.BonusTotal.StringFixed(2), "165.00"},
		{"downline", k.DownlineTotal.StringFixed(2), "253.00"},
		{"team", k.TeamBonus.StringFixed(2), "970.00"},
		{"personal revenue", k.PersonalRevenueUsd.StringFixed(2), "1100.00"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if k.CreatorCount != 2 || k.ActiveCreators != 1 || k.TotalDiamonds != 300 {
		t.Fatalf("unexpected creator kpis %+v", k)
	}
	if k.MilestoneAchievements.M1 != 1 || k.MilestoneAchievements.M2 != 1 || k.MilestoneAchievements.M0_5 != 0 {
		t.Fatalf("unexpected milestones %+v", k.MilestoneAchievements)
	}
	if len(dash.Creators) != 2 || dash.Creators[1].Milestones != nil {
		t.Fatalf("creator without revenue must have no milestones: %+v", dash.Creators)
	}
	if dash.Revision != 3 || dash.PeriodId != "202405" {
		t.Fatalf("unexpected header %+v", dash)
	}
}

func TestBuildManagerDashboardEmpty(t *testing.T) {
	dash := buildManagerDashboard("202405", 0, nil, nil, nil)
	if !dash.Kpis.TotalEarnings.IsZero() || len(dash.Creators) != 0 || len(dash.ComponentBreakdown) != 0 {
		t.Fatalf("empty dashboard expected, got %+v", dash)
	}
}

func TestLevelName(t *testing.T) {
	for depth, want := range map[int]string{1: "A", 2: "B", 3: "C"} {
		if got := levelName(depth); got != want {
			t.Fatalf("levelName(%d) = %q, want %q", depth, got, want)
		}
	}
}
