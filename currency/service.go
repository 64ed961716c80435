// Package currency resolves conversion rates to USD, with a redis
// cache in front of a free rates API and static rates as the final
// fallback.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
)

const moduleName = "currency"

const cacheKey = "exchange_rates:usd"

// staticRatesToUSD covers the currencies the ledger actually sees.
// Used when both cache and API are unavailable.
var staticRatesToUSD = map[string]string{
	"USD": "1.0",
	"INR": "0.012",
	"EUR": "1.08",
	"GBP": "1.27",
	"RUB": "0.011",
	"AED": "0.27",
	"BRL": "0.20",
	"CAD": "0.74",
	"AUD": "0.65",
	"JPY": "0.0067",
	"CNY": "0.14",
	"KRW": "0.00075",
}

type Service struct {
	http *http.Client

	mu        sync.Mutex
	rates     map[string]string
	fetchedAt time.Time
}

func NewService() *Service {
	return &Service{http: &http.Client{Timeout: 10 * time.Second}}
}

// RateToUSD returns the multiplier converting one unit of currency to
// USD. Unknown currencies convert with rate zero so the USD columns
// stay null rather than wrong.
func (s *Service) RateToUSD(ctx context.Context, cur string) decimal.Decimal {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if cur == "USD" {
		return decimal.NewFromInt(1)
	}
	rates := s.getRates(ctx)
	raw, ok := rates[cur]
	if !ok {
		config.GetLogger().WithFields(logrus.Fields{
			"module":   moduleName,
			"currency": cur,
		}).Warn("no usd rate for currency")
		return decimal.Zero
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// Convert converts an amount to USD, rounded to 4 places.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, cur string) decimal.Decimal {
	rate := s.RateToUSD(ctx, cur)
	if rate.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(rate).Round(4)
}

// RefreshRates bypasses both caches and refetches from the API.
func (s *Service) RefreshRates(ctx context.Context) error {
	rates, err := s.fetchRates(ctx)
	if err != nil {
		return err
	}
	s.store(rates)
	return nil
}

func (s *Service) getRates(ctx context.Context) map[string]string {
	s.mu.Lock()
	if s.rates != nil && time.Since(s.fetchedAt) < config.CurrencyCacheTTL() {
		rates := s.rates
		s.mu.Unlock()
		return rates
	}
	s.mu.Unlock()

	var cached map[string]string
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found && len(cached) > 0 {
		s.store(cached)
		return cached
	}

	rates, err := s.fetchRates(ctx)
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "getRates", "fetch rates, using static fallback", nil, err)
		return staticRatesToUSD
	}
	s.store(rates)
	return rates
}

func (s *Service) store(rates map[string]string) {
	s.mu.Lock()
	s.rates = rates
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	if err := config.SetRedisObject(cacheKey, rates, config.CurrencyCacheTTL()); err != nil {
		config.LogError(config.GetLogger(), moduleName, "store", "cache rates", nil, err)
	}
}

// fetchRates pulls USD-base rates and inverts them, since the ledger
// needs currency-to-USD multipliers.
func (s *Service) fetchRates(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.CurrencyRatesURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Rates) == 0 {
		return nil, fmt.Errorf("rates api returned no rates")
	}

	one := decimal.NewFromInt(1)
	inverted := make(map[string]string, len(parsed.Rates)+1)
	for cur, num := range parsed.Rates {
		rate, err := decimal.NewFromString(num.String())
		if err != nil || !rate.IsPositive() {
			continue
		}
		inverted[strings.ToUpper(cur)] = one.DivRound(rate, 8).String()
	}
	inverted["USD"] = "1.0"
	return inverted, nil
}
