package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// ReconciliationRun is one audit pass over a single UTC calendar date.
// Runs are append-only; a re-run of the same date creates a new row.
type ReconciliationRun struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	ReconDate       time.Time  `gorm:"type:date;not null;index" json:"recon_date"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	TotalVima       int        `gorm:"not null;default:0" json:"total_vima"`
	TotalPayshack   int        `gorm:"not null;default:0" json:"total_payshack"`
	Matched         int        `gorm:"not null;default:0" json:"matched"`
	Discrepancies   int        `gorm:"not null;default:0" json:"discrepancies"`
	MissingVima     int        `gorm:"not null;default:0" json:"missing_vima"`
	MissingPayshack int        `gorm:"not null;default:0" json:"missing_payshack"`
	Unreconcilable  int        `gorm:"not null;default:0" json:"unreconcilable"`
	Status          string     `gorm:"size:20;not null;default:running" json:"status"`
	ErrorMessage    string     `gorm:"size:500" json:"error_message"`
}

// ReconciliationResult is one pairing outcome inside a run.
type ReconciliationResult struct {
	ID                uint                `gorm:"primary_key" json:"id"`
	ReconRunId        uint                `gorm:"not null;index" json:"recon_run_id"`
	ReconDate         time.Time           `gorm:"type:date;not null" json:"recon_date"`
	VimaTxnId         *uint               `json:"vima_txn_id"`
	PayshackTxnId     *uint               `json:"payshack_txn_id"`
	ClientOperationId *string             `gorm:"size:255;index" json:"client_operation_id"`
	MatchStatus       string              `gorm:"size:30;not null" json:"match_status"`
	DiscrepancyType   *string             `gorm:"size:20" json:"discrepancy_type"`
	VimaAmount        decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"vima_amount"`
	PayshackAmount    decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"payshack_amount"`
	AmountDiff        decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"amount_diff"`
	VimaStatus        *string             `gorm:"size:30" json:"vima_status"`
	PayshackStatus    *string             `gorm:"size:30" json:"payshack_status"`
	Details           []byte              `gorm:"type:json" json:"details"`
	CreatedAt         time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func (s *Store) CreateReconciliationRun(ctx context.Context, day time.Time) (*ReconciliationRun, error) {
	run := ReconciliationRun{
		ReconDate: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		StartedAt: time.Now().UTC(),
		Status:    ReconStatusRunning,
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRunForDate returns the newest run for the date, or nil when the
// date has never been reconciled.
func (s *Store) LatestRunForDate(ctx context.Context, day time.Time) (*ReconciliationRun, error) {
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var run ReconciliationRun
	err := s.db.WithContext(ctx).
		Where("recon_date = ?", date).
		Order("id DESC").
		First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CompleteRun writes the result rows and finalizes the run counters in a
// single transaction, so a run is either fully visible or not at all.
func (s *Store) CompleteRun(ctx context.Context, run *ReconciliationRun, results []*ReconciliationResult) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(results) > 0 {
			for _, r := range results {
				r.ReconRunId = run.ID
				r.ReconDate = run.ReconDate
			}
			if err := tx.CreateInBatches(&results, 200).Error; err != nil {
				return err
			}
		}
		return tx.Model(&ReconciliationRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"completed_at":     now,
				"total_vima":       run.TotalVima,
				"total_payshack":   run.TotalPayshack,
				"matched":          run.Matched,
				"discrepancies":    run.Discrepancies,
				"missing_vima":     run.MissingVima,
				"missing_payshack": run.MissingPayshack,
				"unreconcilable":   run.Unreconcilable,
				"status":           ReconStatusCompleted,
			}).Error
	})
}

func (s *Store) FailRun(ctx context.Context, runID uint, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = utils.Truncate(runErr.Error(), ErrorMessageLimit)
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&ReconciliationRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":        ReconStatusFailed,
			"error_message": msg,
			"completed_at":  now,
		}).Error
}

func (s *Store) ListRuns(ctx context.Context, date *time.Time, limit int) ([]ReconciliationRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 30
	}
	query := s.db.WithContext(ctx)
	if date != nil {
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		query = query.Where("recon_date = ?", day)
	}
	var runs []ReconciliationRun
	err := query.
		Order("recon_date DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (s *Store) RunByID(ctx context.Context, id uint) (*ReconciliationRun, error) {
	var run ReconciliationRun
	err := s.db.WithContext(ctx).First(&run, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) ResultsForRun(ctx context.Context, runID uint, matchStatus string) ([]ReconciliationResult, error) {
	query := s.db.WithContext(ctx).Where("recon_run_id = ?", runID)
	if matchStatus != "" {
		query = query.Where("match_status = ?", matchStatus)
	}
	var results []ReconciliationResult
	err := query.Order("id").Find(&results).Error
	return results, err
}
