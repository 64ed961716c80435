// Package provider holds the contract shared by all payment feed
// connectors: a cursor-paged fetch surface plus the error taxonomy the
// retry layer keys on.
package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Page is one fetched batch of raw provider records. NextCursor carries
// whatever the connector needs to resume: a page number, an operation
// id, or empty when the feed shape is date-bound.
type Page struct {
	Records    []json.RawMessage
	NextCursor string
	Done       bool
	// Total is the upstream's reported record count for the whole
	// window, 0 when the feed does not report one.
	Total int
}

// Filters narrow a fetch to a window. Connectors ignore fields their
// upstream cannot express.
type Filters struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Status   string
}

// TransientError marks a failure worth retrying: timeouts, 5xx, rate
// limits.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError marks a rejected credential. Connectors re-authenticate once
// before surfacing it.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// FatalError marks a failure retrying cannot fix: malformed request,
// 4xx other than auth, contract violation.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
