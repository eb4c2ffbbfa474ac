package accounting

import (
	"context"
	"sync"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// RateSource returns the value, in currency to, of one unit of currency from
// on a given day. Implementations return a *MissingExchangeRateError when no
// rate exists.
type RateSource interface {
	Rate(ctx context.Context, from, to string, on date.Date) (decimal.Decimal, error)
}

// PriceSource returns security prices in the security's trading currency.
// A false second result means no price is known.
type PriceSource interface {
	CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error)
	ManualPrice(ctx context.Context, ticker string, asOf date.Date) (decimal.Decimal, bool, error)
}

// RateFunc adapts a function to RateSource.
type RateFunc func(ctx context.Context, from, to string, on date.Date) (decimal.Decimal, error)

func (f RateFunc) Rate(ctx context.Context, from, to string, on date.Date) (decimal.Decimal, error) {
	return f(ctx, from, to, on)
}

// noRates is the RateSource used when none is configured.
type noRates struct{}

func (noRates) Rate(_ context.Context, from, to string, on date.Date) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	return decimal.Zero, &MissingExchangeRateError{From: from, To: to, On: on}
}

// LivePrices returns the latest traded price of a ticker.
type LivePrices interface {
	CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error)
}

// Prices combines a live price provider with manually entered prices into a
// PriceSource. Either may be nil.
type Prices struct {
	Live   LivePrices
	Manual *ManualPrices
}

func (p Prices) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	if p.Live == nil {
		return decimal.Zero, false, nil
	}
	return p.Live.CurrentPrice(ctx, ticker)
}

func (p Prices) ManualPrice(ctx context.Context, ticker string, asOf date.Date) (decimal.Decimal, bool, error) {
	if p.Manual == nil {
		return decimal.Zero, false, nil
	}
	return p.Manual.ManualPrice(ctx, ticker, asOf)
}

// ManualPrices holds manually entered prices per ticker.
type ManualPrices struct {
	mu      sync.RWMutex
	history map[string]*date.History[decimal.Decimal]
}

// NewManualPrices returns an empty set of manual prices.
func NewManualPrices() *ManualPrices {
	return &ManualPrices{history: make(map[string]*date.History[decimal.Decimal])}
}

// Set records the price of ticker on a day, replacing any previous one.
func (m *ManualPrices) Set(ticker string, on date.Date, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[ticker]
	if !ok {
		h = new(date.History[decimal.Decimal])
		m.history[ticker] = h
	}
	h.Append(on, price)
}

// ManualPrice returns the latest price of ticker entered on or before asOf.
func (m *ManualPrices) ManualPrice(_ context.Context, ticker string, asOf date.Date) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.history[ticker]
	if !ok {
		return decimal.Zero, false, nil
	}
	p, ok := h.ValueAsOf(asOf)
	return p, ok, nil
}
