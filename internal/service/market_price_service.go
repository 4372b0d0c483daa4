package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

// ErrMissingPrices marks a feed response that lacked some requested symbols.
// The prices that did arrive are still returned alongside it.
var ErrMissingPrices = errors.New("missing prices")

// CoinGeckoFeed fetches USD prices from the CoinGecko simple price API
type CoinGeckoFeed struct {
	client *resty.Client
}

// NewCoinGeckoFeed creates a feed against baseURL, e.g. https://api.coingecko.com/api/v3
func NewCoinGeckoFeed(baseURL string, opts ...func(*resty.Client)) (*CoinGeckoFeed, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	for _, opt := range opts {
		opt(client)
	}

	return &CoinGeckoFeed{client: client}, nil
}

// FetchPrices fetches current prices for the instruments, keyed by symbol
func (f *CoinGeckoFeed) FetchPrices(ctx context.Context, instruments []domain.Instrument) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	if len(instruments) == 0 {
		return prices, nil
	}

	ids := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		ids = append(ids, inst.CoinGeckoID)
	}

	var payload map[string]map[string]decimal.Decimal
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           strings.Join(ids, ","),
			"vs_currencies": "usd",
		}).
		SetResult(&payload).
		Get("/simple/price")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices from CoinGecko: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("CoinGecko API error: status=%d, body=%s", resp.StatusCode(), resp.String())
	}

	var missing []string
	for _, inst := range instruments {
		quote, ok := payload[inst.CoinGeckoID]["usd"]
		if !ok || !quote.IsPositive() {
			missing = append(missing, inst.Symbol)
			continue
		}
		prices[inst.Symbol] = quote
	}

	if len(missing) > 0 {
		return prices, fmt.Errorf("%w for symbols: %v", ErrMissingPrices, missing)
	}

	return prices, nil
}
