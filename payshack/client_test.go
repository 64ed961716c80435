package payshack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/provider"
)

func testClient(baseURL string) *client {
	return &client{
		baseURL:  baseURL,
		email:    "ops@example.com",
		password: "secret",
		http:     &http.Client{Timeout: 5 * time.Second},
		retry:    provider.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		limiter:  time.Tick(time.Millisecond),
	}
}

func loginOK(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    map[string]string{"token": "tok-1", "clientId": "client-1"},
	})
}

func payinPage(w http.ResponseWriter, totalPages int, ids ...string) {
	txns := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		txns = append(txns, map[string]interface{}{"txnId": id, "amount": 1, "txnStatus": "success"})
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"transactions": txns,
			"totalPages":   totalPages,
			"totalRecords": len(ids),
		},
	})
}

func TestClient_LoginThenFetch(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case loginPath:
			logins.Add(1)
			var body loginRequest
			json.NewDecoder(r.Body).Decode(&body)
			if body.Email != "ops@example.com" || body.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			loginOK(w)
		case payinPath:
			if r.Header.Get("Authorization") != "Bearer tok-1" || r.Header.Get("reseller-id") != "client-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			payinPage(w, 1, "PS-1")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.getPayins(context.Background(), 1, provider.Filters{})
	if err != nil {
		t.Fatalf("getPayins error: %v", err)
	}
	if len(resp.Data.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(resp.Data.Transactions))
	}
	if logins.Load() != 1 {
		t.Fatalf("expected exactly one login, got %d", logins.Load())
	}

	// The token is cached; a second page must not log in again.
	if _, err := c.getPayins(context.Background(), 2, provider.Filters{}); err != nil {
		t.Fatalf("second page error: %v", err)
	}
	if logins.Load() != 1 {
		t.Fatalf("cached token must be reused, got %d logins", logins.Load())
	}
}

func TestClient_ExpiredTokenReauthAndReplay(t *testing.T) {
	var logins, rejected atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case loginPath:
			n := logins.Add(1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]string{"token": "tok-" + string(rune('0'+n)), "clientId": "client-1"},
			})
		case payinPath:
			if r.Header.Get("Authorization") == "Bearer tok-0" {
				rejected.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			payinPage(w, 1, "PS-1")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	// Seed a token the server now rejects; re-login mints tok-1.
	c.token = "tok-0"
	c.clientId = "client-1"
	c.tokenExpiresAt = time.Now().Add(tokenLifetime)

	resp, err := c.getPayins(context.Background(), 1, provider.Filters{})
	if err != nil {
		t.Fatalf("expected re-auth and replay, got %v", err)
	}
	if len(resp.Data.Transactions) != 1 {
		t.Fatalf("expected replayed page, got %d transactions", len(resp.Data.Transactions))
	}
	if rejected.Load() == 0 {
		t.Fatal("server never saw the stale token")
	}
	if logins.Load() != 1 {
		t.Fatalf("expected one re-login, got %d", logins.Load())
	}
}

func TestClient_LoginRejectionIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "bad credentials"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).getPayins(context.Background(), 1, provider.Filters{})
	if !provider.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestPageFromResponse(t *testing.T) {
	cases := []struct {
		name       string
		records    int
		totalPages int
		page       int
		done       bool
		next       string
	}{
		{"mid stream", 2, 3, 1, false, "2"},
		{"last page", 2, 3, 3, true, "4"},
		{"past reported total", 2, 3, 5, true, "6"},
		{"empty page", 0, 3, 1, true, "2"},
		{"no total reported", 2, 0, 1, false, "2"},
	}
	for _, tc := range cases {
		resp := listResponse{}
		resp.Data.TotalPages = tc.totalPages
		resp.Data.TotalRecords = tc.records * tc.totalPages
		for i := 0; i < tc.records; i++ {
			resp.Data.Transactions = append(resp.Data.Transactions, json.RawMessage(`{}`))
		}
		page := pageFromResponse(resp, tc.page)
		if page.Done != tc.done {
			t.Fatalf("%s: done = %v, want %v", tc.name, page.Done, tc.done)
		}
		if page.NextCursor != tc.next {
			t.Fatalf("%s: next = %q, want %q", tc.name, page.NextCursor, tc.next)
		}
		if page.Total != tc.records*tc.totalPages {
			t.Fatalf("%s: total = %d, want %d", tc.name, page.Total, tc.records*tc.totalPages)
		}
	}
}

func TestPageFromCursor(t *testing.T) {
	cases := []struct {
		cursor   string
		expected int
	}{
		{"", 1},
		{"1", 1},
		{"7", 7},
		{"garbage", 1},
		{"-3", 1},
	}
	for _, tc := range cases {
		if got := pageFromCursor(tc.cursor); got != tc.expected {
			t.Fatalf("pageFromCursor(%q) = %d, want %d", tc.cursor, got, tc.expected)
		}
	}
}
