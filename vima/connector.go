// Package vima integrates the Vima collector: an apikey-authenticated
// operation feed paged by a monotonic operation_create_id cursor.
package vima

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/provider"
)

type Connector struct {
	client *client
}

func NewConnector() (*Connector, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	return &Connector{client: c}, nil
}

func (c *Connector) Source() string { return models.SourceVima }

// The create-id cursor is monotonic across runs, so incremental syncs
// resume exactly where the previous run stopped.
func (c *Connector) CursorPersistent() bool { return true }

func (c *Connector) MaxPages() int { return config.VimaMaxBatches() }

func (c *Connector) Streams() []provider.Stream {
	return []provider.Stream{
		{Name: "operations", Fetch: c.fetchOperations, Normalize: Normalize},
	}
}

func (c *Connector) fetchOperations(ctx context.Context, cursor string, f provider.Filters) (provider.Page, error) {
	ops, err := c.client.getOperations(ctx, cursor, f)
	if err != nil {
		return provider.Page{}, err
	}
	if len(ops) == 0 {
		return provider.Page{Done: true}, nil
	}

	next := lastCreateId(ops)
	// A cursor that fails to advance would refetch the same batch
	// forever; treat it as end of feed.
	done := next == "" || next == cursor
	return provider.Page{Records: ops, NextCursor: next, Done: done}, nil
}

func lastCreateId(ops []json.RawMessage) string {
	var tail struct {
		OperationCreateId json.Number `json:"operation_create_id"`
	}
	if err := json.Unmarshal(ops[len(ops)-1], &tail); err != nil {
		return ""
	}
	return tail.OperationCreateId.String()
}
