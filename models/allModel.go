package models

import "gorm.io/gorm"

const (
	SourceVima     = "vima"
	SourcePayShack = "payshack"
)

func ValidSource(source string) bool {
	return source == SourceVima || source == SourcePayShack
}

// Canonical transaction statuses. Provider vocabularies are folded into
// these five values; anything unknown becomes pending.
const (
	TxnStatusSuccess    = "success"
	TxnStatusFailed     = "failed"
	TxnStatusPending    = "pending"
	TxnStatusProcessing = "processing"
	TxnStatusRefunded   = "refunded"
)

const (
	SyncStatusIdle    = "idle"
	SyncStatusRunning = "running"
	SyncStatusFailed  = "failed"
)

const (
	ReconStatusRunning   = "running"
	ReconStatusCompleted = "completed"
	ReconStatusFailed    = "failed"
)

const (
	MatchStatusMatched         = "matched"
	MatchStatusDiscrepancy     = "discrepancy"
	MatchStatusMissingVima     = "missing_vima"
	MatchStatusMissingPayShack = "missing_payshack"
)

const (
	DiscrepancyTypeAmount  = "amount"
	DiscrepancyTypeStatus  = "status"
	DiscrepancyTypeMissing = "missing"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduler = "scheduler"
	SyncTriggeredPubSub    = "pubsub"
	SyncTriggeredBootstrap = "bootstrap"
)

// ErrorMessageLimit bounds error text persisted into status columns.
const ErrorMessageLimit = 500

// Store wraps all ledger persistence. Engines receive it explicitly;
// nothing in this package reaches for a global DB handle.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Transaction{},
		&SyncState{},
		&ReconciliationRun{},
		&ReconciliationResult{},
	)
}
