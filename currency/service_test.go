package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRateToUSD_USDIsAlwaysOne(t *testing.T) {
	s := NewService()
	if got := s.RateToUSD(context.Background(), "USD"); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1, got %s", got)
	}
	if got := s.RateToUSD(context.Background(), " usd "); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("case and whitespace must not matter, got %s", got)
	}
}

func TestRateToUSD_FetchesAndInvertsApiRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base": "USD", "rates": {"INR": 80, "EUR": 0.5}}`))
	}))
	defer srv.Close()
	t.Setenv("CURRENCY_RATES_URL", srv.URL)

	s := NewService()
	if got := s.RateToUSD(context.Background(), "INR"); got.String() != "0.0125" {
		t.Fatalf("expected inverted INR rate 0.0125, got %s", got)
	}
	if got := s.RateToUSD(context.Background(), "EUR"); got.String() != "2" {
		t.Fatalf("expected inverted EUR rate 2, got %s", got)
	}
}

func TestRateToUSD_StaticFallbackWhenApiDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("CURRENCY_RATES_URL", srv.URL)

	s := NewService()
	if got := s.RateToUSD(context.Background(), "INR"); got.String() != "0.012" {
		t.Fatalf("expected static INR rate, got %s", got)
	}
}

func TestRateToUSD_UnknownCurrencyIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates": {"INR": 80}}`))
	}))
	defer srv.Close()
	t.Setenv("CURRENCY_RATES_URL", srv.URL)

	s := NewService()
	if got := s.RateToUSD(context.Background(), "XYZ"); !got.IsZero() {
		t.Fatalf("unknown currency must convert with zero, got %s", got)
	}
}

func TestConvert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates": {"INR": 80}}`))
	}))
	defer srv.Close()
	t.Setenv("CURRENCY_RATES_URL", srv.URL)

	s := NewService()
	got := s.Convert(context.Background(), decimal.NewFromInt(1000), "INR")
	if got.String() != "12.5" {
		t.Fatalf("expected 12.5 USD, got %s", got)
	}
	if got := s.Convert(context.Background(), decimal.NewFromInt(100), "XYZ"); !got.IsZero() {
		t.Fatalf("unknown currency converts to zero, got %s", got)
	}
}

func TestRateToUSD_InMemoryCacheAvoidsRefetch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"rates": {"INR": 80}}`))
	}))
	defer srv.Close()
	t.Setenv("CURRENCY_RATES_URL", srv.URL)

	s := NewService()
	s.RateToUSD(context.Background(), "INR")
	s.RateToUSD(context.Background(), "INR")
	if calls != 1 {
		t.Fatalf("expected one API call, got %d", calls)
	}
}
