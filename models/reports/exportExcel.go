package reports

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary     = "Summary"
	sheetCommissions = "Commissions"
	sheetCreators    = "Creators"
	sheetLedger      = "Ledger"
)

var componentDisplayNames = map[models.ComponentType]string{
	models.ComponentBaseCommission:     "Base Commission",
	models.ComponentActivityCommission: "Activity Commission",
	models.ComponentM0_5Bonus:          "M0.5 Bonus",
	models.ComponentM1Bonus:            "M1 Bonus",
	models.ComponentM1RetentionBonus:   "M1 Retention Bonus",
	models.ComponentM2Bonus:            "M2 Bonus",
	models.ComponentDownlineA:          "Downline Level A",
	models.ComponentDownlineB:          "Downline Level B",
	models.ComponentDownlineC:          "Downline Level C",
	models.ComponentTeamBonus:          "Team Bonus",
	models.ComponentTeamRecruitment:    "Team Recruitment",
	models.ComponentTeamGraduation:     "Team Graduation",
}

func ComponentDisplayName(c models.ComponentType) string {
	if name, ok := componentDisplayNames[c]; ok {
		return name
	}
	return string(c)
}

func roleDisplayName(role models.UserRole) string {
	if role == models.UserRoleTeamLeader {
		return "Team Leader"
	}
	return "Live Manager"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// WorkbookFileName is the download name of a period export.
func WorkbookFileName(periodId string) string {
	return fmt.Sprintf("Trend4Media_Billing_%s.xlsx", periodId)
}

func setRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// WritePeriodWorkbook renders the export as xlsx bytes.
func WritePeriodWorkbook(export *PeriodExport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetCommissions, sheetCreators, sheetLedger} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	if err := writeSummarySheet(f, export); err != nil {
		return nil, err
	}
	if err := writeCommissionsSheet(f, export); err != nil {
		return nil, err
	}
	if err := writeCreatorsSheet(f, export); err != nil {
		return nil, err
	}
	if err := writeLedgerSheet(f, export); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, export *PeriodExport) error {
	rate := "Not set"
	if export.Period.UsdEurRate != nil {
		rate = export.Period.UsdEurRate.StringFixed(6)
	}
	rows := [][]interface{}{
		{"Trend4Media Billing Export"},
		{},
		{"Period:", export.Period.ID},
		{"Status:", string(export.Period.Status)},
		{"USD/EUR Rate:", rate},
		{"Calculation Revision:", export.Period.CalculationRevision},
		{"Export Date:", export.GeneratedAt.Format("2006-01-02 15:04")},
		{},
		{"Totals:"},
		{"Total Managers:", export.Totals.TotalManagers},
		{"Total Creators:", export.Totals.TotalCreators},
		{"Total Diamonds:", export.Totals.TotalDiamonds},
		{"Total Revenue (USD):", export.Totals.TotalRevenueUsd.StringFixed(2)},
		{"Total Commissions (EUR):", export.Totals.TotalCommissionsEur.StringFixed(2)},
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func writeCommissionsSheet(f *excelize.File, export *PeriodExport) error {
	header := []interface{}{
		"Manager Name", "Email", "Role", "Creator Count", "Total Diamonds",
		"Base Revenue (USD)", "Activity Revenue (USD)", "Total Revenue (USD)",
	}
	for _, c := range models.AllComponentTypes {
		header = append(header, ComponentDisplayName(c)+" (EUR)")
	}
	header = append(header, "Total Commission (EUR)", "Payout Status")
	if err := setRow(f, sheetCommissions, 1, header); err != nil {
		return err
	}

	for i, m := range export.Managers {
		p := m.PersonalRevenue
		row := []interface{}{
			m.ManagerName, m.ManagerEmail, roleDisplayName(m.Role), p.CreatorCount, p.Diamonds,
			p.BaseUsd.StringFixed(2), p.ActivityUsd.StringFixed(2), p.TotalUsd.StringFixed(2),
		}
		for _, c := range models.AllComponentTypes {
			row = append(row, m.Commissions[c].StringFixed(2))
		}
		status := ""
		if m.PayoutStatus != nil {
			status = string(*m.PayoutStatus)
		}
		row = append(row, m.TotalCommissionEur.StringFixed(2), status)
		if err := setRow(f, sheetCommissions, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeCreatorsSheet(f *excelize.File, export *PeriodExport) error {
	header := []interface{}{
		"Manager Name", "Manager Email", "Creator Handle", "Diamonds",
		"Base Revenue (USD)", "Activity Revenue (USD)", "Total Revenue (USD)",
		"M0.5", "M1", "M1 Retention", "M2",
	}
	if err := setRow(f, sheetCreators, 1, header); err != nil {
		return err
	}
	rowNo := 2
	for _, m := range export.Managers {
		for _, c := range m.Creators {
			row := []interface{}{
				m.ManagerName, m.ManagerEmail, c.Handle, c.Diamonds,
				c.BaseUsd.StringFixed(2), c.ActivityUsd.StringFixed(2), c.BaseUsd.Add(c.ActivityUsd).StringFixed(2),
				yesNo(c.M0_5), yesNo(c.M1), yesNo(c.M1Retention), yesNo(c.M2),
			}
			if err := setRow(f, sheetCreators, rowNo, row); err != nil {
				return err
			}
			rowNo++
		}
	}
	return nil
}

// writeLedgerSheet lists the persisted rows, so the USD leg is available here.
func writeLedgerSheet(f *excelize.File, export *PeriodExport) error {
	names := map[int]string{}
	for _, m := range export.Managers {
		names[m.ManagerId] = m.ManagerName
	}
	header := []interface{}{"Manager Id", "Manager Name", "Component", "Amount USD", "Amount EUR", "Method", "Revision"}
	if err := setRow(f, sheetLedger, 1, header); err != nil {
		return err
	}
	for i, l := range export.Ledger {
		usd := ""
		if l.AmountUsd != nil {
			usd = l.AmountUsd.StringFixed(2)
		}
		row := []interface{}{
			l.ManagerId, names[l.ManagerId], ComponentDisplayName(l.Component),
			usd, l.AmountEur.StringFixed(2), string(l.Calc.Data().Method), l.Revision,
		}
		if err := setRow(f, sheetLedger, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

// ArchivePeriodWorkbook copies a rendered workbook to EXPORT_BUCKET. It returns ""
// without error when archiving is not configured.
func ArchivePeriodWorkbook(ctx context.Context, export *PeriodExport, data []byte) (string, error) {
	if utils.ExportBucket() == "" {
		return "", nil
	}
	periodId := export.Period.ID
	objectName := fmt.Sprintf("exports/%s/r%d_%s_%s", periodId, export.Period.CalculationRevision,
		export.GeneratedAt.UTC().Format("20060102T150405Z"), WorkbookFileName(periodId))
	metadata := map[string]string{
		"period_id": periodId,
		"revision":  strconv.Itoa(export.Period.CalculationRevision),
		"managers":  strconv.Itoa(export.Totals.TotalManagers),
	}
	uri, err := utils.UploadBytesToGCS(ctx, objectName, data, utils.XlsxContentType, metadata)
	if err != nil {
		config.LogError(config.GetLogger(), "reports", "ArchivePeriodWorkbook", "upload export", objectName, err)
		return "", err
	}
	config.ContextLogger(ctx).WithFields(logrus.Fields{
		"periodId": periodId,
		"uri":      uri,
	}).Info("period export archived")
	return uri, nil
}
