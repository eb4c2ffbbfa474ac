// Package eodhd reads market data from the EOD Historical Data API: the
// latest price of a ticker, its daily closes and its stock splits.
//
// Tickers are given as the ledger knows them. A ticker without an exchange
// suffix is looked up on the client's default exchange.
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://eodhd.com/api"

// Client queries the EODHD API.
type Client struct {
	apiKey   string
	baseURL  string
	exchange string
	http     *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") } }

// WithExchange sets the exchange code of tickers without a suffix, US by default.
func WithExchange(code string) Option { return func(c *Client) { c.exchange = code } }

// WithHTTPClient replaces the default daily disk cached HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRateLimit limits outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client authenticated with apiKey. Unless replaced, responses
// are cached on disk for the day.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		exchange: "US",
		limiter:  rate.NewLimiter(5, 1),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   30 * time.Second,
			Transport: &diskCache{base: http.DefaultTransport, dir: filepath.Join(os.TempDir(), "shl-eodhd"), log: c.log},
		}
	}
	return c
}

// symbol returns the EODHD symbol of a ledger ticker.
func (c *Client) symbol(ticker string) string {
	if strings.Contains(ticker, ".") || c.exchange == "" {
		return ticker
	}
	return ticker + "." + c.exchange
}

func (c *Client) url(endpoint, ticker string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	return fmt.Sprintf("%s/%s/%s?%s", c.baseURL, endpoint, url.PathEscape(c.symbol(ticker)), params.Encode())
}

// CurrentPrice returns the latest traded price of ticker, in its trading
// currency. The second result is false when the API has no price for it.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	// https://eodhd.com/api/real-time/AAPL.US?api_token=demo&fmt=json
	// {"code":"AAPL.US","timestamp":1718386800,"open":213.85,"close":212.49,...}
	var payload any
	if err := c.jget(ctx, c.url("real-time", ticker, nil), &payload); err != nil {
		return decimal.Zero, false, fmt.Errorf("current price of %s: %w", ticker, err)
	}
	v, err := jsonpath.Get("$.close", payload)
	if err != nil {
		return decimal.Zero, false, nil
	}
	price, ok := toDecimal(v)
	if !ok || !price.IsPositive() {
		// unknown tickers come back with "NA" values
		return decimal.Zero, false, nil
	}
	return price, true, nil
}

// DailyCloses returns the close price of ticker on every trading day from
// from to to, both included.
func (c *Client) DailyCloses(ctx context.Context, ticker string, from, to date.Date) (*date.History[decimal.Decimal], error) {
	// [{"date":"2024-02-13","open":675.066,"high":684.219,"low":648.659,"close":668.445,"adjusted_close":67.705,"volume":0}]
	type info struct {
		Date  date.Date   `json:"date"`
		Close json.Number `json:"close"`
	}
	var content []info
	addr := c.url("eod", ticker, url.Values{"from": {from.String()}, "to": {to.String()}})
	if err := c.jget(ctx, addr, &content); err != nil {
		return nil, fmt.Errorf("daily prices of %s: %w", ticker, err)
	}
	h := new(date.History[decimal.Decimal])
	for _, i := range content {
		p, err := decimal.NewFromString(i.Close.String())
		if err != nil {
			return nil, fmt.Errorf("close of %s on %s: %w", ticker, i.Date, err)
		}
		h.Append(i.Date, p)
	}
	return h, nil
}

// Splits returns the stock splits of ticker dated from from to to. EODHD
// reports splits as "new/old" share counts, possibly with decimals.
func (c *Client) Splits(ctx context.Context, ticker string, from, to date.Date) ([]accounting.StockSplit, error) {
	type apiSplit struct {
		Date  date.Date `json:"date"`
		Split string    `json:"split"`
	}
	var content []apiSplit
	addr := c.url("splits", ticker, url.Values{"from": {from.String()}, "to": {to.String()}})
	if err := c.jget(ctx, addr, &content); err != nil {
		return nil, fmt.Errorf("splits of %s: %w", ticker, err)
	}

	var errs []error
	var splits []accounting.StockSplit
	for _, s := range content {
		sp, err := parseSplit(ticker, s.Date, s.Split)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		splits = append(splits, sp)
	}
	return splits, errors.Join(errs...)
}

// parseSplit parses a "new/old" split ratio.
func parseSplit(ticker string, on date.Date, ratio string) (accounting.StockSplit, error) {
	parts := strings.Split(ratio, "/")
	if len(parts) != 2 {
		return accounting.StockSplit{}, fmt.Errorf("invalid split format from API: %q", ratio)
	}
	numDecimal, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return accounting.StockSplit{}, fmt.Errorf("invalid numerator in split %q: %w", ratio, err)
	}
	denDecimal, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return accounting.StockSplit{}, fmt.Errorf("invalid denominator in split %q: %w", ratio, err)
	}
	num, den := simplifyDecimalRatio(numDecimal, denDecimal)
	return accounting.NewSplit(ticker, on, den, num)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(x), true
	}
	return decimal.Zero, false
}
