package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Env-backed settings. Everything operational is tunable without a rebuild;
// defaults mirror the values both providers have been observed to tolerate.

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// --- Vima collector API ---

func VimaAPIKey() string { return os.Getenv("VIMA_API_KEY") }

func VimaBaseURL() string {
	return envDefault("VIMA_BASE_URL", "https://payment.woozuki.com/collector1/api/v1")
}

func VimaSyncInterval() time.Duration {
	return time.Duration(intFromEnv("VIMA_SYNC_INTERVAL_SECONDS", 30)) * time.Second
}

// VimaMaxBatches caps cursor pagination per sync run (100 records per batch).
func VimaMaxBatches() int { return intFromEnv("VIMA_MAX_BATCHES", 100) }

// --- PayShack API ---

func PayShackEmail() string    { return os.Getenv("PAYSHACK_EMAIL") }
func PayShackPassword() string { return os.Getenv("PAYSHACK_PASSWORD") }

func PayShackBaseURL() string {
	return envDefault("PAYSHACK_API_URL", "https://api.payshack.in")
}

func PayShackSyncInterval() time.Duration {
	return time.Duration(intFromEnv("PAYSHACK_SYNC_INTERVAL_SECONDS", 60)) * time.Second
}

// PayShackMaxPages is the hard pagination ceiling regardless of the
// server-reported total page count.
func PayShackMaxPages() int { return intFromEnv("PAYSHACK_MAX_PAGES", 500) }

// --- Sync engine ---

func SyncBatchSize() int { return intFromEnv("SYNC_BATCH_SIZE", 100) }

// InitialSyncDays is the historical window loaded when the ledger is empty.
func InitialSyncDays() int { return intFromEnv("INITIAL_SYNC_DAYS", 7) }

// InterPageDelay spaces provider page requests to respect rate limits.
func InterPageDelay() time.Duration {
	return time.Duration(intFromEnv("SYNC_INTER_PAGE_DELAY_MS", 300)) * time.Millisecond
}

// --- Reconciliation ---

func ReconciliationHourUTC() int { return intFromEnv("RECON_HOUR_UTC", 1) }

// AmountTolerance is the fixed component of the amount comparison
// tolerance (one minor currency unit).
func AmountTolerance() decimal.Decimal {
	if d, err := decimal.NewFromString(envDefault("RECON_AMOUNT_TOLERANCE", "0.01")); err == nil {
		return d
	}
	return decimal.NewFromFloat(0.01)
}

// AmountTolerancePercent is the proportional component (0.1%).
func AmountTolerancePercent() decimal.Decimal {
	if d, err := decimal.NewFromString(envDefault("RECON_AMOUNT_TOLERANCE_PERCENT", "0.001")); err == nil {
		return d
	}
	return decimal.NewFromFloat(0.001)
}

// --- Event notifier ---

func SyncEventTopic() string { return envDefault("SYNC_EVENT_TOPIC", "recon-sync-events") }

func PublishSyncEvents() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PUBLISH_SYNC_EVENTS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// --- Currency rates ---

func CurrencyCacheTTL() time.Duration {
	return time.Duration(intFromEnv("CURRENCY_CACHE_TTL_SECONDS", 3600)) * time.Second
}

func CurrencyRatesURL() string {
	return envDefault("CURRENCY_RATES_URL", "https://api.exchangerate-api.com/v4/latest/USD")
}
