package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// Truncate bounds error messages before they are persisted into status
// columns (sync state, reconciliation runs).
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
