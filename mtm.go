package accounting

import (
	"context"
	"fmt"
	"slices"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// MarkSecurities revalues open security lots at market and posts the change
// in unrealized gain since the last revaluation. It returns nil when the
// change is below the adjustment threshold. Tickers without a current or
// manual price are skipped.
func (s *System) MarkSecurities(ctx context.Context, asOf date.Date) (*JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.markSecurities(ctx, asOf)
	if e == nil || err != nil {
		return nil, err
	}
	c := e.clone()
	return &c, nil
}

func (s *System) markSecurities(ctx context.Context, asOf date.Date) (*JournalEntry, error) {
	byTicker := make(map[string][]*SecurityLot)
	for _, l := range s.book.lots {
		if l.Remaining.IsPositive() && !l.PurchaseDate.After(asOf) {
			byTicker[l.Ticker] = append(byTicker[l.Ticker], l)
		}
	}
	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	slices.Sort(tickers)

	var unrealized decimal.Decimal
	for _, ticker := range tickers {
		price, ok, err := s.price(ctx, ticker, asOf)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Warn("no price, ticker not revalued", "ticker", ticker, "as_of", asOf)
			continue
		}
		var quantity, cost decimal.Decimal
		currency := byTicker[ticker][0].Currency
		for _, l := range byTicker[ticker] {
			quantity = quantity.Add(l.Remaining)
			cost = cost.Add(l.Remaining.Mul(l.CostPerShareBase))
		}
		rate, err := s.rate(ctx, currency, s.book.base, asOf)
		if err != nil {
			return nil, err
		}
		unrealized = unrealized.Add(quantity.Mul(price).Mul(rate).Sub(cost))
	}

	fva, err := s.chart.Account(RoleFairValueAdjustment)
	if err != nil {
		return nil, err
	}
	delta := unrealized.Sub(s.balance(fva, asOf))
	if isNegligible(delta) {
		return nil, nil
	}
	delta = roundTo(delta, s.book.base)
	b := s.newBuilder()
	if delta.IsPositive() {
		b.debit(RoleFairValueAdjustment, delta, s.book.base, one, "Fair value increase")
		b.credit(RoleUnrealizedGains, delta, s.book.base, one, "Unrealized gain on investments")
	} else {
		b.debit(RoleUnrealizedLosses, delta.Neg(), s.book.base, one, "Unrealized loss on investments")
		b.credit(RoleFairValueAdjustment, delta.Neg(), s.book.base, one, "Fair value decrease")
	}
	return s.record(b, asOf, AdjustmentEntry, "Mark securities to market", refSecuritiesMTM)
}

// price returns the current price of ticker, else its latest manual price.
func (s *System) price(ctx context.Context, ticker string, asOf date.Date) (decimal.Decimal, bool, error) {
	if s.prices == nil {
		return decimal.Zero, false, nil
	}
	p, ok, err := s.prices.CurrentPrice(ctx, ticker)
	if err != nil {
		s.log.Warn("current price unavailable", "ticker", ticker, "error", err)
	}
	if ok && p.IsPositive() {
		return p, true, nil
	}
	p, ok, err = s.prices.ManualPrice(ctx, ticker, asOf)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("manual price of %s: %w", ticker, err)
	}
	return p, ok && p.IsPositive(), nil
}

// MarkCurrency revalues the foreign currency cash still held, taken from
// open currency lots oldest first up to the cash balance of each currency,
// and posts the change since the last currency revaluation against Cash. It
// returns nil when the change is below the adjustment threshold.
func (s *System) MarkCurrency(ctx context.Context, asOf date.Date) (*JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.markCurrency(ctx, asOf)
	if e == nil || err != nil {
		return nil, err
	}
	c := e.clone()
	return &c, nil
}

func (s *System) markCurrency(ctx context.Context, asOf date.Date) (*JournalEntry, error) {
	held, err := s.foreignCash(asOf)
	if err != nil {
		return nil, err
	}
	var book, current decimal.Decimal
	rates := make(map[string]decimal.Decimal)
	for _, l := range s.book.sortedCurrencyLots() {
		if !l.Remaining.IsPositive() || l.ConversionDate.After(asOf) || l.ToCurrency == s.book.base || l.FromCurrency != s.book.base {
			continue
		}
		left := held[l.ToCurrency]
		if left.LessThanOrEqual(adjustThreshold) {
			continue
		}
		amount := decimal.Min(l.Remaining, left)
		held[l.ToCurrency] = left.Sub(amount)
		rate, ok := rates[l.ToCurrency]
		if !ok {
			if rate, err = s.rate(ctx, l.ToCurrency, s.book.base, asOf); err != nil {
				return nil, err
			}
			rates[l.ToCurrency] = rate
		}
		book = book.Add(l.FromAmount.Mul(amount).Div(l.ToAmount))
		current = current.Add(amount.Mul(rate))
	}

	gains, err := s.chart.Account(RoleUnrealizedCurrencyGains)
	if err != nil {
		return nil, err
	}
	losses, err := s.chart.Account(RoleUnrealizedCurrencyLosses)
	if err != nil {
		return nil, err
	}
	var existing decimal.Decimal
	for _, e := range s.book.entries {
		if e.Status != Posted || e.Reference != refCurrencyMTM || e.EntryDate.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			switch l.AccountID {
			case gains.ID:
				existing = existing.Add(l.Credit).Sub(l.Debit)
			case losses.ID:
				existing = existing.Sub(l.Debit).Add(l.Credit)
			}
		}
	}

	delta := current.Sub(book).Sub(existing)
	if isNegligible(delta) {
		return nil, nil
	}
	delta = roundTo(delta, s.book.base)
	b := s.newBuilder()
	if delta.IsPositive() {
		b.debit(RoleCash, delta, s.book.base, one, "Foreign currency revaluation gain")
		b.credit(RoleUnrealizedCurrencyGains, delta, s.book.base, one, "Unrealized currency gain")
	} else {
		b.debit(RoleUnrealizedCurrencyLosses, delta.Neg(), s.book.base, one, "Unrealized currency loss")
		b.credit(RoleCash, delta.Neg(), s.book.base, one, "Foreign currency revaluation loss")
	}
	return s.record(b, asOf, AdjustmentEntry, "Mark foreign currency cash to market", refCurrencyMTM)
}

// foreignCash sums the posted Cash lines tagged with a foreign currency as
// of asOf, by currency.
func (s *System) foreignCash(asOf date.Date) (map[string]decimal.Decimal, error) {
	cash, err := s.chart.Account(RoleCash)
	if err != nil {
		return nil, err
	}
	held := make(map[string]decimal.Decimal)
	for _, e := range s.book.entries {
		if e.Status != Posted || e.EntryDate.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != cash.ID || !l.IsForeign() || l.ForeignCurrency == s.book.base {
				continue
			}
			amount := l.ForeignAmount
			if l.Credit.IsPositive() {
				amount = amount.Neg()
			}
			held[l.ForeignCurrency] = held[l.ForeignCurrency].Add(amount)
		}
	}
	return held, nil
}
