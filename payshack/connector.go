// Package payshack integrates the PayShack payment gateway: an
// authenticated JSON API with page-number pagination over separate
// pay-in and pay-out feeds.
package payshack

import (
	"context"
	"strconv"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/provider"
)

type Connector struct {
	client *client
	norm   *Normalizer
}

func NewConnector(rates Rates) (*Connector, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	return &Connector{client: c, norm: NewNormalizer(rates)}, nil
}

func (c *Connector) Source() string { return models.SourcePayShack }

// Page feeds restart from page one each run with a date window, so the
// cursor is run-local.
func (c *Connector) CursorPersistent() bool { return false }

func (c *Connector) MaxPages() int { return config.PayShackMaxPages() }

func (c *Connector) Streams() []provider.Stream {
	return []provider.Stream{
		{Name: "payin", Fetch: c.fetchPayins, Normalize: c.norm.NormalizePayin},
		{Name: "payout", Fetch: c.fetchPayouts, Normalize: c.norm.NormalizePayout},
	}
}

func (c *Connector) fetchPayins(ctx context.Context, cursor string, f provider.Filters) (provider.Page, error) {
	page := pageFromCursor(cursor)
	resp, err := c.client.getPayins(ctx, page, f)
	if err != nil {
		return provider.Page{}, err
	}
	return pageFromResponse(resp, page), nil
}

func (c *Connector) fetchPayouts(ctx context.Context, cursor string, f provider.Filters) (provider.Page, error) {
	page := pageFromCursor(cursor)
	resp, err := c.client.getPayouts(ctx, page, f)
	if err != nil {
		return provider.Page{}, err
	}
	return pageFromResponse(resp, page), nil
}

func pageFromCursor(cursor string) int {
	if cursor == "" {
		return 1
	}
	page, err := strconv.Atoi(cursor)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func pageFromResponse(resp listResponse, page int) provider.Page {
	done := len(resp.Data.Transactions) == 0 ||
		(resp.Data.TotalPages > 0 && page >= resp.Data.TotalPages)
	return provider.Page{
		Records:    resp.Data.Transactions,
		NextCursor: strconv.Itoa(page + 1),
		Done:       done,
		Total:      resp.Data.TotalRecords,
	}
}
