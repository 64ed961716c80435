package recon

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/recon_backend/models"
)

var exportHeaders = []string{
	"Match Status",
	"Discrepancy",
	"Business Key",
	"Vima Amount",
	"PayShack Amount",
	"Amount Diff",
	"Vima Status",
	"PayShack Status",
	"Recon Date",
}

// ExportRunXlsx writes one run's results as an XLSX workbook.
func ExportRunXlsx(w io.Writer, run *models.ReconciliationRun, results []models.ReconciliationResult) error {
	f := excelize.NewFile()
	sheetName := "Reconciliation"
	f.SetSheetName("Sheet1", sheetName)

	col := 'A'
	for _, h := range exportHeaders {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	for i, r := range results {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, r.MatchStatus)
		f.SetCellValue(sheetName, "B"+row, derefString(r.DiscrepancyType))
		f.SetCellValue(sheetName, "C"+row, derefString(r.ClientOperationId))
		f.SetCellValue(sheetName, "D"+row, nullDecimalString(r.VimaAmount))
		f.SetCellValue(sheetName, "E"+row, nullDecimalString(r.PayshackAmount))
		f.SetCellValue(sheetName, "F"+row, nullDecimalString(r.AmountDiff))
		f.SetCellValue(sheetName, "G"+row, derefString(r.VimaStatus))
		f.SetCellValue(sheetName, "H"+row, derefString(r.PayshackStatus))
		f.SetCellValue(sheetName, "I"+row, run.ReconDate.Format("2006-01-02"))
	}

	summaryRow := fmt.Sprint(len(results) + 3)
	f.SetCellValue(sheetName, "A"+summaryRow, fmt.Sprintf(
		"Run %d: %d matched, %d discrepancies, %d missing in vima, %d missing in payshack, %d unreconcilable",
		run.ID, run.Matched, run.Discrepancies, run.MissingVima, run.MissingPayshack, run.Unreconcilable,
	))

	return f.Write(w)
}

// ExportFilename builds the attachment name for a run.
func ExportFilename(run *models.ReconciliationRun) string {
	return fmt.Sprintf("reconciliation_%s_run%d_%s.xlsx",
		run.ReconDate.Format("2006-01-02"), run.ID, time.Now().UTC().Format("20060102T150405"))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
