package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ComputeDataHash derives the deduplication key for a ledger row from
// its identity fields. Two fetches of the same provider event always
// hash to the same value, so replays collapse onto one row.
func ComputeDataHash(source, sourceId string, amount decimal.Decimal, currency string, createdAt *time.Time) string {
	createdStr := ""
	if createdAt != nil {
		createdStr = createdAt.UTC().Format(time.RFC3339Nano)
	}
	input := fmt.Sprintf("%s|%s|%s|%s|%s", source, sourceId, amount.String(), currency, createdStr)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
