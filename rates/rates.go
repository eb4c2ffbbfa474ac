// Package rates fetches daily reference exchange rates published by the
// European Central Bank through the Frankfurter API.
//
// The Client implements accounting.RateSource: it returns the value in one
// currency of one unit of another on a given day, falling back to previous
// days when the requested day has no publication (weekends, holidays).
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/patrickmn/go-cache"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Frankfurter endpoint.
const DefaultBaseURL = "https://api.frankfurter.app"

// errNoRate means the day has no published rate for the pair.
var errNoRate = errors.New("no rate published")

// Client is an exchange rate source backed by Frankfurter.
type Client struct {
	baseURL    string
	maxBackoff int
	http       *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, for a self hosted instance or tests.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithMaxBackoff sets how many previous days are tried when a day has no rate.
func WithMaxBackoff(days int) Option { return func(c *Client) { c.maxBackoff = days } }

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRateLimit limits outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithCacheTTL sets how long fetched rates are kept in memory.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = cache.New(ttl, 2*ttl) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a Client with a 7 day back off, 5 requests per second and a
// 24 hour cache unless configured otherwise.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		maxBackoff: 7,
		http:       &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(5, 1),
		cache:      cache.New(24*time.Hour, 48*time.Hour),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rate returns the value in currency to of one unit of currency from on day
// on. When on has no rate, up to the configured number of previous days are
// tried. A *accounting.MissingExchangeRateError is returned when none has one.
func (c *Client) Rate(ctx context.Context, from, to string, on date.Date) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := fmt.Sprintf("%s/%s/%s", from, to, on)
	if v, found := c.cache.Get(key); found {
		return v.(decimal.Decimal), nil
	}

	day := on
	var lastErr error
	for i := 0; i <= c.maxBackoff; i++ {
		r, err := c.fetch(ctx, from, to, day)
		if err == nil {
			if day != on {
				c.log.Debug("exchange rate taken from an earlier day", "from", from, "to", to, "requested", on, "used", day)
			}
			c.cache.Set(key, r, cache.DefaultExpiration)
			return r, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, errNoRate) {
			break
		}
		day = day.Add(-1)
	}
	return decimal.Zero, &accounting.MissingExchangeRateError{From: from, To: to, On: on, Err: lastErr}
}

// fetch returns the rate published on day exactly. errNoRate means the day
// has none.
func (c *Client) fetch(ctx context.Context, from, to string, day date.Date) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	q := url.Values{"from": {from}, "to": {to}}
	addr := fmt.Sprintf("%s/%s?%s", c.baseURL, day, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("GET %s: %w", addr, err)
	}
	defer resp.Body.Close()
	c.log.Debug("exchange rate request", "url", addr, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, errNoRate
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("GET %s: %s", addr, resp.Status)
	}

	var payload any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode %s: %w", addr, err)
	}
	// Frankfurter answers a day without publication with the previous one,
	// so a missing pair is the only case left.
	v, err := jsonpath.Get("$.rates."+to, payload)
	if err != nil {
		return decimal.Zero, errNoRate
	}
	r, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate %s/%s on %s: %w", from, to, day, err)
	}
	if !r.IsPositive() {
		return decimal.Zero, errNoRate
	}
	return r, nil
}

// toDecimal converts a JSON value to a decimal.
func toDecimal(v any) (decimal.Decimal, error) {
	// jsonpath may wrap a single answer in a list.
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}
	switch x := v.(type) {
	case json.Number:
		return decimal.NewFromString(x.String())
	case float64:
		return decimal.NewFromFloat(x), nil
	case string:
		return decimal.NewFromString(x)
	}
	return decimal.Zero, fmt.Errorf("not a number: %v", v)
}
