package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// Transaction is the canonical, provider-agnostic ledger row. One row per
// payment event per source; deduplicated by DataHash across the whole store.
type Transaction struct {
	ID uint `gorm:"primary_key" json:"id"`

	Source   string `gorm:"size:20;not null;index:idx_txn_source_date,priority:1" json:"source"`
	SourceId string `gorm:"size:255;not null;index:idx_txn_source_source_id" json:"source_id"`

	// Matching keys. ClientOperationId (Vima) and OrderId (PayShack) carry
	// the same business key under different provider names.
	ReferenceId       *string `gorm:"size:255;index" json:"reference_id"`
	ClientOperationId *string `gorm:"size:255;index" json:"client_operation_id"`
	OrderId           *string `gorm:"size:255;index" json:"order_id"`

	Project    string `gorm:"size:100;index" json:"project"`
	MerchantId string `gorm:"size:255" json:"merchant_id"`

	// Amount and Currency are immutable once committed; upserts never
	// touch them.
	Amount   decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency string              `gorm:"size:3;not null;default:INR" json:"currency"`
	Fee      decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"fee"`

	// Derived USD figures are informational, never authoritative.
	AmountUsd    decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"amount_usd"`
	FeeUsd       decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"fee_usd"`
	ExchangeRate decimal.NullDecimal `gorm:"type:decimal(12,8)" json:"exchange_rate"`

	Status         string `gorm:"size:30;not null;index" json:"status"`
	OriginalStatus string `gorm:"size:50" json:"original_status"`

	UserId    *string `gorm:"size:255" json:"user_id"`
	UserEmail *string `gorm:"size:255" json:"user_email"`
	UserPhone *string `gorm:"size:50" json:"user_phone"`
	UserName  *string `gorm:"size:255" json:"user_name"`
	Country   *string `gorm:"size:2" json:"country"`

	// UTR is PayShack-specific (Unique Transaction Reference).
	Utr *string `gorm:"size:100" json:"utr"`

	PaymentMethod  string `gorm:"size:50" json:"payment_method"`
	PaymentProduct string `gorm:"size:100" json:"payment_product"`

	// Provider-side timestamps, normalized to UTC. CreatedAt is nil when
	// the provider sent nothing parseable.
	CreatedAt   *time.Time `gorm:"autoCreateTime:false;index:idx_txn_source_date,priority:2" json:"created_at"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`

	SourceCreateCursor *string `gorm:"size:100" json:"source_create_cursor"`
	SourceUpdateCursor *string `gorm:"size:100" json:"source_update_cursor"`

	// RawData preserves the untouched provider payload for audit/replay.
	RawData []byte `gorm:"type:json" json:"raw_data"`

	DataHash string `gorm:"size:64;uniqueIndex;not null" json:"data_hash"`

	IngestedAt time.Time `gorm:"autoCreateTime" json:"ingested_at"`
}

// mutable columns an upsert may overwrite on dedup-hash conflict.
// Identity and amount columns are deliberately absent.
var transactionUpsertColumns = []string{
	"status",
	"original_status",
	"updated_at",
	"completed_at",
	"amount_usd",
	"fee_usd",
	"exchange_rate",
	"source_update_cursor",
	"raw_data",
}

// UpsertTransactions inserts the batch, updating only mutable fields for
// rows whose dedup hash already exists. Returns how many rows were new,
// so replaying a page is a safe no-op that reports zero new records.
func (s *Store) UpsertTransactions(ctx context.Context, batch []*Transaction) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	hashes := make([]string, 0, len(batch))
	for _, txn := range batch {
		hashes = append(hashes, txn.DataHash)
	}

	var existing []string
	if err := s.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("data_hash IN ?", hashes).
		Pluck("data_hash", &existing).Error; err != nil {
		return 0, err
	}
	inserted := countNewHashes(hashes, existing)

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "data_hash"}},
			DoUpdates: clause.AssignmentColumns(transactionUpsertColumns),
		}).
		Create(&batch).Error
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// countNewHashes reports how many distinct hashes are absent from the
// ledger. Duplicates inside one batch collapse into a single row, so
// they count once.
func countNewHashes(hashes, existing []string) int {
	seen := make(map[string]bool, len(existing))
	for _, h := range existing {
		seen[h] = true
	}
	inserted := 0
	for _, h := range hashes {
		if !seen[h] {
			inserted++
			seen[h] = true
		}
	}
	return inserted
}

// CountTransactions reports the ledger size; zero means first run.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Transaction{}).Count(&count).Error
	return count, err
}

// TransactionsForDate loads one source's rows whose provider creation
// timestamp falls inside the UTC day.
func (s *Store) TransactionsForDate(ctx context.Context, source string, day time.Time) ([]Transaction, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var txns []Transaction
	err := s.db.WithContext(ctx).
		Where("source = ? AND created_at >= ? AND created_at < ?", source, start, end).
		Order("created_at").
		Find(&txns).Error
	return txns, err
}

// TransactionFilter narrows read-only ledger queries from the API.
type TransactionFilter struct {
	Source      string
	Status      string
	Project     string
	BusinessKey string
	Date        *time.Time
	Page        int
	Limit       int
}

func (s *Store) QueryTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&Transaction{})

	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Project != "" {
		q = q.Where("project = ?", f.Project)
	}
	if f.BusinessKey != "" {
		q = q.Where("client_operation_id = ? OR order_id = ?", f.BusinessKey, f.BusinessKey)
	}
	if f.Date != nil {
		start := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		q = q.Where("created_at >= ? AND created_at < ?", start, start.Add(24*time.Hour))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	var txns []Transaction
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&txns).Error
	return txns, total, err
}
