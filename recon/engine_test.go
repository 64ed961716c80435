package recon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/recon_backend/models"
)

type fakeStore struct {
	vima     []models.Transaction
	payshack []models.Transaction
	existing *models.ReconciliationRun

	nextRunID uint
	completed *models.ReconciliationRun
	results   []*models.ReconciliationResult
	failed    bool
}

func (s *fakeStore) TransactionsForDate(_ context.Context, source string, _ time.Time) ([]models.Transaction, error) {
	if source == models.SourceVima {
		return s.vima, nil
	}
	return s.payshack, nil
}

func (s *fakeStore) CreateReconciliationRun(_ context.Context, day time.Time) (*models.ReconciliationRun, error) {
	s.nextRunID++
	return &models.ReconciliationRun{
		ID:        s.nextRunID,
		ReconDate: day,
		StartedAt: time.Now().UTC(),
		Status:    models.ReconStatusRunning,
	}, nil
}

func (s *fakeStore) LatestRunForDate(_ context.Context, _ time.Time) (*models.ReconciliationRun, error) {
	return s.existing, nil
}

func (s *fakeStore) CompleteRun(_ context.Context, run *models.ReconciliationRun, results []*models.ReconciliationResult) error {
	s.completed = run
	s.results = results
	return nil
}

func (s *fakeStore) FailRun(_ context.Context, _ uint, _ error) error {
	s.failed = true
	return nil
}

func strPtr(s string) *string { return &s }

func vimaTxn(id uint, key, amount, status string) models.Transaction {
	return models.Transaction{
		ID:                id,
		Source:            models.SourceVima,
		ClientOperationId: strPtr(key),
		Amount:            decimal.RequireFromString(amount),
		Status:            status,
	}
}

func payshackTxn(id uint, orderId, amount, status string) models.Transaction {
	return models.Transaction{
		ID:      id,
		Source:  models.SourcePayShack,
		OrderId: strPtr(orderId),
		Amount:  decimal.RequireFromString(amount),
		Status:  status,
	}
}

func runDate() time.Time {
	return time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
}

func TestRunForDate_MatchesWithinTolerance(t *testing.T) {
	store := &fakeStore{
		vima:     []models.Transaction{vimaTxn(1, "order-1", "100.00", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "order-1", "100.01", models.TxnStatusSuccess)},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.Matched != 1 || run.Discrepancies != 0 {
		t.Fatalf("one-paisa difference must match: %+v", run)
	}
	if len(store.results) != 1 || store.results[0].MatchStatus != models.MatchStatusMatched {
		t.Fatalf("expected one matched result, got %+v", store.results)
	}
}

func TestRunForDate_PercentToleranceForLargeAmounts(t *testing.T) {
	// 0.1% of 10000 is 10, larger than the fixed 0.01 tolerance.
	store := &fakeStore{
		vima:     []models.Transaction{vimaTxn(1, "order-1", "10000", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "order-1", "10009", models.TxnStatusSuccess)},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.Matched != 1 {
		t.Fatalf("difference inside percent tolerance must match: %+v", run)
	}
}

func TestRunForDate_AmountDiscrepancy(t *testing.T) {
	store := &fakeStore{
		vima:     []models.Transaction{vimaTxn(1, "order-1", "100.00", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "order-1", "105.00", models.TxnStatusSuccess)},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.Discrepancies != 1 || run.Matched != 0 {
		t.Fatalf("expected amount discrepancy: %+v", run)
	}
	res := store.results[0]
	if res.DiscrepancyType == nil || *res.DiscrepancyType != models.DiscrepancyTypeAmount {
		t.Fatalf("expected amount discrepancy type, got %v", res.DiscrepancyType)
	}
	if !res.AmountDiff.Valid || res.AmountDiff.Decimal.String() != "5" {
		t.Fatalf("expected amount diff 5, got %v", res.AmountDiff)
	}
}

func TestRunForDate_AmountBeatsStatus(t *testing.T) {
	store := &fakeStore{
		vima:     []models.Transaction{vimaTxn(1, "order-1", "100.00", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "order-1", "105.00", models.TxnStatusFailed)},
	}
	_, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	res := store.results[0]
	if res.DiscrepancyType == nil || *res.DiscrepancyType != models.DiscrepancyTypeAmount {
		t.Fatalf("amount must take precedence over status, got %v", res.DiscrepancyType)
	}
	if len(res.Details) == 0 {
		t.Fatal("both discrepancies must be recorded in details")
	}
}

func TestRunForDate_StatusDiscrepancy(t *testing.T) {
	store := &fakeStore{
		vima:     []models.Transaction{vimaTxn(1, "order-1", "100.00", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "order-1", "100.00", models.TxnStatusPending)},
	}
	_, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	res := store.results[0]
	if res.DiscrepancyType == nil || *res.DiscrepancyType != models.DiscrepancyTypeStatus {
		t.Fatalf("expected status discrepancy, got %v", res.DiscrepancyType)
	}
}

func TestRunForDate_MissingBothDirections(t *testing.T) {
	store := &fakeStore{
		vima:     []models.Transaction{vimaTxn(1, "only-vima", "50", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "only-payshack", "60", models.TxnStatusSuccess)},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.MissingPayshack != 1 || run.MissingVima != 1 {
		t.Fatalf("expected one missing on each side: %+v", run)
	}
	if len(store.results) != 2 {
		t.Fatalf("expected 2 result rows, got %d", len(store.results))
	}
	for _, res := range store.results {
		if res.DiscrepancyType == nil || *res.DiscrepancyType != models.DiscrepancyTypeMissing {
			t.Fatalf("expected missing discrepancy type, got %v", res.DiscrepancyType)
		}
	}
}

func TestRunForDate_UnreconcilableRowsAreCountedNotWritten(t *testing.T) {
	noKey := models.Transaction{ID: 1, Source: models.SourceVima, Amount: decimal.New(10, 0), Status: models.TxnStatusSuccess}
	noKeyPayshack := models.Transaction{ID: 10, Source: models.SourcePayShack, Amount: decimal.New(10, 0), Status: models.TxnStatusSuccess}
	store := &fakeStore{
		vima:     []models.Transaction{noKey},
		payshack: []models.Transaction{noKeyPayshack},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.Unreconcilable != 2 {
		t.Fatalf("expected 2 unreconcilable, got %d", run.Unreconcilable)
	}
	if len(store.results) != 0 {
		t.Fatalf("unreconcilable rows must not produce result rows, got %d", len(store.results))
	}
}

func TestRunForDate_ExistingCompletedRunShortCircuits(t *testing.T) {
	existing := &models.ReconciliationRun{ID: 99, Status: models.ReconStatusCompleted}
	store := &fakeStore{existing: existing}

	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.ID != 99 {
		t.Fatalf("expected the existing run back, got %d", run.ID)
	}
	if store.completed != nil {
		t.Fatal("no new run must be written")
	}
}

func TestRunForDate_ForceRerunsCompletedDate(t *testing.T) {
	existing := &models.ReconciliationRun{ID: 99, Status: models.ReconStatusCompleted}
	store := &fakeStore{
		existing: existing,
		vima:     []models.Transaction{vimaTxn(1, "order-1", "100", models.TxnStatusSuccess)},
		payshack: []models.Transaction{payshackTxn(10, "order-1", "100", models.TxnStatusSuccess)},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), true)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.ID == 99 {
		t.Fatal("force must create a new run")
	}
	if run.Matched != 1 {
		t.Fatalf("expected a fresh run with 1 match, got %+v", run)
	}
}

func TestRunForDate_TotalsReflectBothSides(t *testing.T) {
	store := &fakeStore{
		vima: []models.Transaction{
			vimaTxn(1, "a", "10", models.TxnStatusSuccess),
			vimaTxn(2, "b", "20", models.TxnStatusSuccess),
		},
		payshack: []models.Transaction{payshackTxn(10, "a", "10", models.TxnStatusSuccess)},
	}
	run, err := NewEngine(store, nil).RunForDate(context.Background(), runDate(), false)
	if err != nil {
		t.Fatalf("RunForDate error: %v", err)
	}
	if run.TotalVima != 2 || run.TotalPayshack != 1 {
		t.Fatalf("totals wrong: %+v", run)
	}
	if run.Matched != 1 || run.MissingPayshack != 1 {
		t.Fatalf("expected 1 match and 1 missing: %+v", run)
	}
}
