package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/utils"
)

func TestDefaultCommissionRulesAreValid(t *testing.T) {
	rules := DefaultCommissionRules()
	if err := rules.Validate(); err != nil {
		t.Fatalf("default rules must validate: %v", err)
	}
	if !rules.ForRole(UserRoleSalesRep).BaseCommission.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("unexpected sales rep base rate")
	}
	if !rules.ForRole(UserRoleTeamLeader).BaseCommission.Equal(decimal.RequireFromString("0.35")) {
		t.Fatalf("unexpected team leader base rate")
	}
}

func TestCommissionRulesValidate(t *testing.T) {
	negative := DefaultCommissionRules()
	negative.SalesRep.FixedBonuses.M1 = decimal.NewFromInt(-1)

	overOne := DefaultCommissionRules()
	overOne.TeamLeader.DownlineRates.LevelB = decimal.RequireFromString("1.5")

	cases := []struct {
		name    string
		rules   CommissionRules
		wantErr string
	}{
		{"negative bonus", negative, "salesRep.fixedBonuses.m1 cannot be negative"},
		{"rate above one", overOne, "teamLeader.downlineRates.levelB must be between 0 and 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rules.Validate()
			if !utils.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected %q in %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestCommissionRulesJSONShape(t *testing.T) {
	raw := `{
		"salesRep": {"baseCommission": "0.30", "activityCommission": "0.30",
			"fixedBonuses": {"m0_5": 75, "m1": 150, "m1_retention": 100, "m2": 400}},
		"teamLeader": {"baseCommission": "0.35", "activityCommission": "0.35",
			"fixedBonuses": {"m0_5": 80, "m1": 165, "m1_retention": 120, "m2": 450},
			"downlineRates": {"levelA": 0.1, "levelB": 0.075, "levelC": 0.05},
			"teamBonus": {"rate": 0.1, "recruitment": 50, "graduation": 50}},
		"teamTargets": {"minTeamRevenue": 10000}
	}`
	var rules CommissionRules
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := DefaultCommissionRules()
	checks := []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"tl base", rules.TeamLeader.BaseCommission, want.TeamLeader.BaseCommission},
		{"tl m2", rules.TeamLeader.FixedBonuses.M2, want.TeamLeader.FixedBonuses.M2},
		{"level B", rules.TeamLeader.DownlineRates.LevelB, want.TeamLeader.DownlineRates.LevelB},
		{"recruitment", rules.TeamLeader.TeamBonus.Recruitment, want.TeamLeader.TeamBonus.Recruitment},
		{"min team revenue", rules.TeamTargets.MinTeamRevenue, want.TeamTargets.MinTeamRevenue},
		{"sr retention", rules.SalesRep.FixedBonuses.M1Retention, want.SalesRep.FixedBonuses.M1Retention},
	}
	for _, c := range checks {
		if !c.got.Equal(c.want) {
			t.Fatalf("%s: got %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestDownlineRatesForDepth(t *testing.T) {
	d := DefaultCommissionRules().TeamLeader.DownlineRates
	for depth, want := range map[int]string{1: "0.10", 2: "0.075", 3: "0.05"} {
		got, ok := d.ForDepth(depth)
		if !ok || !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("depth %d: got %s ok=%v", depth, got, ok)
		}
		if _, ok := DownlineComponent(depth); !ok {
			t.Fatalf("depth %d must map to a component", depth)
		}
	}
	if _, ok := d.ForDepth(4); ok {
		t.Fatalf("depth 4 has no rate")
	}
	if _, ok := DownlineComponent(0); ok {
		t.Fatalf("depth 0 has no component")
	}
}

func TestCalculationDetailRecompute(t *testing.T) {
	d := func(s string) *decimal.Decimal {
		v := decimal.RequireFromString(s)
		return &v
	}
	count := 3
	cases := []struct {
		name    string
		detail  CalculationDetail
		wantUsd string
		wantEur string
		wantErr bool
	}{
		{"rate", CalculationDetail{Method: CalculationMethodRate, RevenueUsd: d("1000"), Rate: d("0.30"), UsdEurRate: d("0.92")}, "300", "276", false},
		{"rate rounds usd first", CalculationDetail{Method: CalculationMethodRate, RevenueUsd: d("10.05"), Rate: d("0.35"), UsdEurRate: d("0.9")}, "3.52", "3.17", false},
		{"fixed", CalculationDetail{Method: CalculationMethodFixed, Count: &count, BonusPerMilestone: d("75")}, "", "225", false},
		{"flat", CalculationDetail{Method: CalculationMethodFlat, FlatAmountEur: d("50")}, "", "50", false},
		{"missing inputs", CalculationDetail{Method: CalculationMethodRate}, "", "", true},
		{"unknown", CalculationDetail{Method: "other"}, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			usd, eur, err := tc.detail.Recompute()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Recompute: %v", err)
			}
			if tc.wantUsd == "" && usd != nil {
				t.Fatalf("expected no usd amount, got %s", usd)
			}
			if tc.wantUsd != "" && (usd == nil || !usd.Equal(decimal.RequireFromString(tc.wantUsd))) {
				t.Fatalf("usd: got %v, want %s", usd, tc.wantUsd)
			}
			if !eur.Equal(decimal.RequireFromString(tc.wantEur)) {
				t.Fatalf("eur: got %s, want %s", eur, tc.wantEur)
			}
		})
	}
}

func TestSumEurRoundsEachStep(t *testing.T) {
	rows := []*CommissionLedger{
		{AmountEur: decimal.RequireFromString("0.10")},
		{AmountEur: decimal.RequireFromString("0.20")},
		{AmountEur: decimal.RequireFromString("276.00")},
	}
	if got := SumEur(rows); !got.Equal(decimal.RequireFromString("276.30")) {
		t.Fatalf("SumEur = %s", got)
	}
	if got := SumEur(nil); !got.IsZero() {
		t.Fatalf("empty sum must be zero, got %s", got)
	}
}
