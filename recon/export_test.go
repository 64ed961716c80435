package recon

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/recon_backend/models"
)

func TestExportRunXlsx(t *testing.T) {
	discrepancy := models.DiscrepancyTypeAmount
	key := "order-1"
	vimaStatus := models.TxnStatusSuccess
	payshackStatus := models.TxnStatusFailed

	run := &models.ReconciliationRun{
		ID:            7,
		ReconDate:     time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		Matched:       1,
		Discrepancies: 1,
	}
	results := []models.ReconciliationResult{
		{
			MatchStatus:       models.MatchStatusDiscrepancy,
			DiscrepancyType:   &discrepancy,
			ClientOperationId: &key,
			VimaAmount:        decimal.NewNullDecimal(decimal.RequireFromString("100.50")),
			PayshackAmount:    decimal.NewNullDecimal(decimal.RequireFromString("105.50")),
			AmountDiff:        decimal.NewNullDecimal(decimal.RequireFromString("5")),
			VimaStatus:        &vimaStatus,
			PayshackStatus:    &payshackStatus,
		},
		{
			MatchStatus:       models.MatchStatusMatched,
			ClientOperationId: &key,
		},
	}

	var buf bytes.Buffer
	if err := ExportRunXlsx(&buf, run, results); err != nil {
		t.Fatalf("ExportRunXlsx error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Reconciliation", "A1")
	if err != nil || got != "Match Status" {
		t.Fatalf("expected header in A1, got %q (%v)", got, err)
	}
	got, _ = f.GetCellValue("Reconciliation", "A2")
	if got != models.MatchStatusDiscrepancy {
		t.Fatalf("expected discrepancy row first, got %q", got)
	}
	got, _ = f.GetCellValue("Reconciliation", "F2")
	if got != "5" {
		t.Fatalf("expected amount diff 5, got %q", got)
	}
	got, _ = f.GetCellValue("Reconciliation", "I2")
	if got != "2026-08-27" {
		t.Fatalf("expected recon date, got %q", got)
	}
}

func TestExportFilename(t *testing.T) {
	run := &models.ReconciliationRun{ID: 7, ReconDate: time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)}
	name := ExportFilename(run)
	if !strings.HasPrefix(name, "reconciliation_2026-08-27_run7_") {
		t.Fatalf("unexpected filename prefix: %s", name)
	}
	if !strings.HasSuffix(name, ".xlsx") {
		t.Fatalf("expected .xlsx suffix: %s", name)
	}
}
