package vima

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/provider"
)

const batchLimit = 100

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   provider.RetryPolicy
	limiter <-chan time.Time
}

func newClient() (*client, error) {
	apiKey := config.VimaAPIKey()
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("vima api key is empty")
	}
	return &client{
		baseURL: strings.TrimRight(config.VimaBaseURL(), "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   provider.DefaultRetryPolicy(),
		limiter: time.Tick(500 * time.Millisecond),
	}, nil
}

// getOperations fetches one batch, oldest first. The API authenticates
// via an apikey query parameter and returns either a bare JSON array or
// a wrapped object depending on deployment.
func (c *client) getOperations(ctx context.Context, cursor string, f provider.Filters) ([]json.RawMessage, error) {
	<-c.limiter

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("count", strconv.Itoa(batchLimit))
	params.Set("descending", "false")
	if cursor != "" {
		params.Set("from_operation_create_id", cursor)
	}
	if f.Status != "" {
		params.Set("status", f.Status)
	}
	if f.DateFrom != nil {
		params.Set("from", f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		params.Set("to", f.DateTo.Format("2006-01-02"))
	}

	var ops []json.RawMessage
	err := c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/operation?"+params.Encode(), nil)
		if err != nil {
			return &provider.FatalError{Err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &provider.TransientError{Err: err}
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &provider.AuthError{Err: fmt.Errorf("status %d", resp.StatusCode)}
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &provider.TransientError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(raw))}
		case resp.StatusCode != http.StatusOK:
			return &provider.FatalError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(raw))}
		}

		ops, err = decodeOperations(raw)
		if err != nil {
			return &provider.FatalError{Err: err}
		}
		return nil
	})
	return ops, err
}

func decodeOperations(raw []byte) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped wrappedResponse
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Operations != nil {
		return wrapped.Operations, nil
	}
	return nil, fmt.Errorf("unexpected response shape: %s", truncateBody(raw))
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
