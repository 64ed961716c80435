// Package recon audits one UTC calendar date of the ledger: it pairs
// vima operations with payshack transactions on the shared business
// key and records every outcome on an append-only run.
package recon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
)

const moduleName = "recon"

const eventReconCompleted = "reconciliation_completed"

// Store is the persistence surface the engine needs.
type Store interface {
	TransactionsForDate(ctx context.Context, source string, day time.Time) ([]models.Transaction, error)
	CreateReconciliationRun(ctx context.Context, day time.Time) (*models.ReconciliationRun, error)
	LatestRunForDate(ctx context.Context, day time.Time) (*models.ReconciliationRun, error)
	CompleteRun(ctx context.Context, run *models.ReconciliationRun, results []*models.ReconciliationResult) error
	FailRun(ctx context.Context, runID uint, runErr error) error
}

type Events interface {
	Publish(evtType, source string, payload interface{})
}

type Engine struct {
	store  Store
	events Events
}

func NewEngine(store Store, events Events) *Engine {
	return &Engine{store: store, events: events}
}

// RunForDate reconciles one date. When force is false and a completed
// run already exists for the date, that run is returned untouched.
func (e *Engine) RunForDate(ctx context.Context, day time.Time, force bool) (*models.ReconciliationRun, error) {
	if !force {
		existing, err := e.store.LatestRunForDate(ctx, day)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status == models.ReconStatusCompleted {
			return existing, nil
		}
	}

	run, err := e.store.CreateReconciliationRun(ctx, day)
	if err != nil {
		return nil, err
	}

	vimaTxns, err := e.store.TransactionsForDate(ctx, models.SourceVima, day)
	if err != nil {
		return nil, e.fail(ctx, run, err)
	}
	payshackTxns, err := e.store.TransactionsForDate(ctx, models.SourcePayShack, day)
	if err != nil {
		return nil, e.fail(ctx, run, err)
	}

	results := e.match(run, vimaTxns, payshackTxns)

	if err := e.store.CompleteRun(ctx, run, results); err != nil {
		return nil, e.fail(ctx, run, err)
	}
	run.Status = models.ReconStatusCompleted

	config.GetLogger().WithFields(logrus.Fields{
		"module":           moduleName,
		"date":             run.ReconDate.Format("2006-01-02"),
		"run_id":           run.ID,
		"matched":          run.Matched,
		"discrepancies":    run.Discrepancies,
		"missing_vima":     run.MissingVima,
		"missing_payshack": run.MissingPayshack,
		"unreconcilable":   run.Unreconcilable,
	}).Info("reconciliation completed")

	if e.events != nil {
		e.events.Publish(eventReconCompleted, "", run)
	}
	return run, nil
}

func (e *Engine) fail(ctx context.Context, run *models.ReconciliationRun, cause error) error {
	if err := e.store.FailRun(ctx, run.ID, cause); err != nil {
		config.LogError(config.GetLogger(), moduleName, "fail", "persist run failure", run.ID, err)
	}
	return cause
}

// match pairs the two ledgers and fills the run counters in place.
// Matching key: vima client_operation_id against payshack order_id,
// falling back to payshack client_operation_id.
func (e *Engine) match(run *models.ReconciliationRun, vimaTxns, payshackTxns []models.Transaction) []*models.ReconciliationResult {
	run.TotalVima = len(vimaTxns)
	run.TotalPayshack = len(payshackTxns)

	index := make(map[string]*models.Transaction, len(payshackTxns))
	for i := range payshackTxns {
		txn := &payshackTxns[i]
		switch {
		case txn.OrderId != nil && *txn.OrderId != "":
			index[*txn.OrderId] = txn
		case txn.ClientOperationId != nil && *txn.ClientOperationId != "":
			index[*txn.ClientOperationId] = txn
		}
	}

	results := make([]*models.ReconciliationResult, 0, len(vimaTxns)+len(payshackTxns))
	consumed := make(map[uint]bool, len(payshackTxns))

	for i := range vimaTxns {
		vima := &vimaTxns[i]
		if vima.ClientOperationId == nil || *vima.ClientOperationId == "" {
			// No business key means nothing to pair against. Counted,
			// not written as a result row.
			run.Unreconcilable++
			continue
		}
		key := *vima.ClientOperationId

		payshack, found := index[key]
		if !found {
			run.MissingPayshack++
			missing := models.DiscrepancyTypeMissing
			results = append(results, &models.ReconciliationResult{
				VimaTxnId:         &vima.ID,
				ClientOperationId: &key,
				MatchStatus:       models.MatchStatusMissingPayShack,
				DiscrepancyType:   &missing,
				VimaAmount:        decimal.NewNullDecimal(vima.Amount),
				VimaStatus:        &vima.Status,
			})
			continue
		}

		consumed[payshack.ID] = true
		result := compare(vima, payshack)
		switch result.MatchStatus {
		case models.MatchStatusMatched:
			run.Matched++
		case models.MatchStatusDiscrepancy:
			run.Discrepancies++
		}
		results = append(results, result)
	}

	for i := range payshackTxns {
		payshack := &payshackTxns[i]
		if consumed[payshack.ID] {
			continue
		}
		key := payshack.OrderId
		if key == nil || *key == "" {
			key = payshack.ClientOperationId
		}
		if key == nil || *key == "" {
			run.Unreconcilable++
			continue
		}
		run.MissingVima++
		missing := models.DiscrepancyTypeMissing
		results = append(results, &models.ReconciliationResult{
			PayshackTxnId:     &payshack.ID,
			ClientOperationId: key,
			MatchStatus:       models.MatchStatusMissingVima,
			DiscrepancyType:   &missing,
			PayshackAmount:    decimal.NewNullDecimal(payshack.Amount),
			PayshackStatus:    &payshack.Status,
		})
	}

	return results
}

// compare evaluates one matched pair. Amounts match within
// max(fixed tolerance, vima amount * percent tolerance); amount beats
// status when both differ.
func compare(vima, payshack *models.Transaction) *models.ReconciliationResult {
	result := &models.ReconciliationResult{
		VimaTxnId:         &vima.ID,
		PayshackTxnId:     &payshack.ID,
		ClientOperationId: vima.ClientOperationId,
		VimaAmount:        decimal.NewNullDecimal(vima.Amount),
		PayshackAmount:    decimal.NewNullDecimal(payshack.Amount),
		VimaStatus:        &vima.Status,
		PayshackStatus:    &payshack.Status,
	}

	var discrepancies []string

	diff := vima.Amount.Sub(payshack.Amount).Abs()
	tolerance := config.AmountTolerance()
	if pct := vima.Amount.Mul(config.AmountTolerancePercent()); pct.GreaterThan(tolerance) {
		tolerance = pct
	}
	if diff.GreaterThan(tolerance) {
		discrepancies = append(discrepancies, models.DiscrepancyTypeAmount)
		result.AmountDiff = decimal.NewNullDecimal(diff)
	}

	if vima.Status != payshack.Status {
		discrepancies = append(discrepancies, models.DiscrepancyTypeStatus)
	}

	if len(discrepancies) == 0 {
		result.MatchStatus = models.MatchStatusMatched
		return result
	}

	result.MatchStatus = models.MatchStatusDiscrepancy
	result.DiscrepancyType = &discrepancies[0]
	details, _ := json.Marshal(map[string][]string{"discrepancies": discrepancies})
	result.Details = details
	return result
}
