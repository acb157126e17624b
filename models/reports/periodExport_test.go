package reports

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ledgerRow(managerId int, component models.ComponentType, eur string) *models.CommissionLedger {
	return &models.CommissionLedger{
		PeriodId:  "202405",
		ManagerId: managerId,
		Component: component,
		AmountEur: d(eur),
		Calc:      datatypes.NewJSONType(models.CalculationDetail{Method: models.CalculationMethodFlat}),
		Revision:  2,
	}
}

func exportFixture() *PeriodExport {
	rate := d("0.92")
	email := "lm@example.com"
	period := &models.Period{ID: "202405", Status: models.PeriodStatusActive, UsdEurRate: &rate, CalculationRevision: 2}
	managers := []*models.User{
		{ID: 1, Name: "Team Lead", Role: models.UserRoleTeamLeader, IsActive: utils.NewTrue()},
		{ID: 2, Name: "Live Manager", Email: &email, Role: models.UserRoleSalesRep, IsActive: utils.NewTrue()},
		{ID: 3, Name: "No Revenue", Role: models.UserRoleSalesRep, IsActive: utils.NewTrue()},
	}
	items := []*models.RevenueItem{
		{ManagerId: 1, CreatorId: 10, Handle: "alpha", Diamonds: 100, EstBaseUsd: d("1000"), EstActivityUsd: d("0"), M1: true},
		{ManagerId: 2, CreatorId: 20, Handle: "beta", Diamonds: 50, EstBaseUsd: d("1000"), EstActivityUsd: d("500")},
		{ManagerId: 2, CreatorId: 21, Handle: "gamma", Diamonds: 5, EstBaseUsd: d("10"), EstActivityUsd: d("0")},
	}
	ledger := []*models.CommissionLedger{
		ledgerRow(1, models.ComponentBaseCommission, "322.00"),
		ledgerRow(1, models.ComponentM1Bonus, "165.00"),
		ledgerRow(2, models.ComponentBaseCommission, "276.00"),
		ledgerRow(2, models.ComponentBaseCommission, "2.76"),
		ledgerRow(2, models.ComponentActivityCommission, "138.00"),
	}
	payouts := []*models.Payout{{ManagerId: 2, PeriodId: "202405", Status: models.PayoutStatusSubmitted}}
	return assemblePeriodExport(period, managers, items, ledger, payouts)
}

func TestAssemblePeriodExport(t *testing.T) {
	export := exportFixture()

	if len(export.Managers) != 2 {
		t.Fatalf("managers without revenue are skipped, got %d", len(export.Managers))
	}
	lm := export.Managers[1]
	if lm.ManagerId != 2 || lm.ManagerEmail != "lm@example.com" {
		t.Fatalf("unexpected manager %+v", lm)
	}
	if !lm.Commissions[models.ComponentBaseCommission].Equal(d("278.76")) {
		t.Fatalf("base commission = %s", lm.Commissions[models.ComponentBaseCommission])
	}
	if !lm.TotalCommissionEur.Equal(d("416.76")) {
		t.Fatalf("total = %s", lm.TotalCommissionEur)
	}
	if lm.PayoutStatus == nil || *lm.PayoutStatus != models.PayoutStatusSubmitted {
		t.Fatalf("payout status missing")
	}
	if export.Managers[0].PayoutStatus != nil {
		t.Fatalf("manager without payout must have nil status")
	}
	if len(lm.Creators) != 2 || !lm.PersonalRevenue.TotalUsd.Equal(d("1510")) {
		t.Fatalf("unexpected creators/revenue: %+v", lm.PersonalRevenue)
	}

	totals := export.Totals
	if totals.TotalManagers != 2 || totals.TotalCreators != 3 || totals.TotalDiamonds != 155 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if !totals.TotalRevenueUsd.Equal(d("2510")) || !totals.TotalCommissionsEur.Equal(d("903.76")) {
		t.Fatalf("unexpected money totals %+v", totals)
	}
}

func TestWritePeriodWorkbook(t *testing.T) {
	data, err := WritePeriodWorkbook(exportFixture())
	if err != nil {
		t.Fatalf("WritePeriodWorkbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{sheetSummary, sheetCommissions, sheetCreators, sheetLedger}
	if len(sheets) != len(want) {
		t.Fatalf("sheets = %v", sheets)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Fatalf("sheet %d = %q, want %q", i, sheets[i], want[i])
		}
	}

	if v, _ := f.GetCellValue(sheetSummary, "B3"); v != "202405" {
		t.Fatalf("summary period = %q", v)
	}
	if v, _ := f.GetCellValue(sheetSummary, "B5"); v != "0.920000" {
		t.Fatalf("summary rate = %q", v)
	}
	if v, _ := f.GetCellValue(sheetCommissions, "C3"); v != "Live Manager" {
		t.Fatalf("role display = %q", v)
	}
	creatorRows, err := f.GetRows(sheetCreators)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(creatorRows) != 4 {
		t.Fatalf("expected header + 3 creators, got %d rows", len(creatorRows))
	}
	if creatorRows[1][8] != "Yes" {
		t.Fatalf("M1 column for alpha = %q", creatorRows[1][8])
	}
	ledgerRows, _ := f.GetRows(sheetLedger)
	if len(ledgerRows) != 6 {
		t.Fatalf("expected header + 5 ledger rows, got %d", len(ledgerRows))
	}
}

func TestWorkbookNames(t *testing.T) {
	if got := WorkbookFileName("202405"); got != "Trend4Media_Billing_202405.xlsx" {
		t.Fatalf("WorkbookFileName = %q", got)
	}
	for _, c := range models.AllComponentTypes {
		if ComponentDisplayName(c) == string(c) {
			t.Fatalf("%s has no display name", c)
		}
	}
}
