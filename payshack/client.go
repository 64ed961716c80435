package payshack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/provider"
)

const (
	loginPath  = "/indigate-user-svc/api/v1/auth/login"
	payinPath  = "/indigate-payin-svc/api/v1/payin/transaction/fetch"
	payoutPath = "/indigate-payout-svc/api/v1/wallet/transactions"

	pageLimit = 100

	// Tokens live 30 minutes; refresh 5 minutes early so an in-flight
	// page never races expiry.
	tokenLifetime    = 30 * time.Minute
	tokenExpiryGrace = 5 * time.Minute
)

type client struct {
	baseURL  string
	email    string
	password string
	http     *http.Client
	retry    provider.RetryPolicy
	limiter  <-chan time.Time

	mu             sync.Mutex
	token          string
	clientId       string
	tokenExpiresAt time.Time
}

func newClient() (*client, error) {
	email := config.PayShackEmail()
	password := config.PayShackPassword()
	if email == "" || password == "" {
		return nil, errors.New("payshack credentials are empty")
	}
	return &client{
		baseURL:  strings.TrimRight(config.PayShackBaseURL(), "/"),
		email:    email,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
		retry:    provider.DefaultRetryPolicy(),
		limiter:  time.Tick(config.InterPageDelay()),
	}, nil
}

func (c *client) ensureAuth(ctx context.Context) error {
	c.mu.Lock()
	valid := c.token != "" && time.Now().Before(c.tokenExpiresAt.Add(-tokenExpiryGrace))
	c.mu.Unlock()
	if valid {
		return nil
	}
	return c.login(ctx)
}

func (c *client) login(ctx context.Context) error {
	return c.retry.Do(ctx, func() error {
		body, _ := json.Marshal(loginRequest{Email: c.email, Password: c.password})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
		if err != nil {
			return &provider.FatalError{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &provider.TransientError{Err: err}
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return &provider.TransientError{Err: fmt.Errorf("login status %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return &provider.AuthError{Err: fmt.Errorf("login status %d: %s", resp.StatusCode, truncateBody(raw))}
		}

		var parsed loginResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return &provider.FatalError{Err: fmt.Errorf("login decode: %w", err)}
		}
		if !parsed.Success || parsed.Data.Token == "" {
			return &provider.AuthError{Err: fmt.Errorf("login rejected: %s", parsed.Message)}
		}

		c.mu.Lock()
		c.token = parsed.Data.Token
		c.clientId = parsed.Data.ClientId
		c.tokenExpiresAt = time.Now().Add(tokenLifetime)
		c.mu.Unlock()
		return nil
	})
}

// fetchList GETs one page from a transaction endpoint. A 401/403 drops
// the cached token, re-authenticates once, and replays the request.
func (c *client) fetchList(ctx context.Context, path string, params url.Values) (listResponse, error) {
	if err := c.ensureAuth(ctx); err != nil {
		return listResponse{}, err
	}

	parsed, err := c.doList(ctx, path, params)
	if err != nil && provider.IsAuth(err) {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if err = c.ensureAuth(ctx); err != nil {
			return listResponse{}, err
		}
		parsed, err = c.doList(ctx, path, params)
	}
	return parsed, err
}

func (c *client) doList(ctx context.Context, path string, params url.Values) (listResponse, error) {
	<-c.limiter
	var parsed listResponse
	err := c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return &provider.FatalError{Err: err}
		}
		c.mu.Lock()
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("reseller-id", c.clientId)
		c.mu.Unlock()
		req.Header.Set("Accept", "*/*")

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

		if err := json.Unmarshal(raw, &parsed); err != nil {
			return &provider.FatalError{Err: fmt.Errorf("decode: %w", err)}
		}
		if !parsed.Success {
			return &provider.FatalError{Err: fmt.Errorf("api rejected request: %s", parsed.Message)}
		}
		return nil
	})
	return parsed, err
}

func (c *client) getPayins(ctx context.Context, page int, f provider.Filters) (listResponse, error) {
	return c.fetchList(ctx, payinPath, listParams(page, f))
}

func (c *client) getPayouts(ctx context.Context, page int, f provider.Filters) (listResponse, error) {
	return c.fetchList(ctx, payoutPath, listParams(page, f))
}

func listParams(page int, f provider.Filters) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(pageLimit))
	if f.Status != "" {
		params.Set("status", f.Status)
	}
	if f.DateFrom != nil {
		params.Set("dateFrom", f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		params.Set("dateTo", f.DateTo.Format("2006-01-02"))
	}
	return params
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
