package provider

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/recon_backend/models"
)

type FetchFunc func(ctx context.Context, cursor string, f Filters) (Page, error)

type NormalizeFunc func(ctx context.Context, raw json.RawMessage) (*models.Transaction, error)

// Stream is one independently paged feed within a source. A connector
// with several upstream endpoints exposes one stream per endpoint.
type Stream struct {
	Name      string
	Fetch     FetchFunc
	Normalize NormalizeFunc
}

// Connector is a fully wired payment provider integration.
type Connector interface {
	// Source returns the canonical source name stored on ledger rows.
	Source() string

	Streams() []Stream

	// CursorPersistent reports whether the stream cursor survives
	// across runs. Cursor feeds resume where they stopped; page feeds
	// restart from the first page with a date window instead.
	CursorPersistent() bool

	// MaxPages bounds a single run so a misbehaving upstream cannot
	// loop forever.
	MaxPages() int
}
