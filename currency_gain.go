package accounting

import (
	"context"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// conversionWindow is how many days around a sale a conversion of its
// proceeds may happen.
const conversionWindow = 7

// conversionMatch is the largest relative difference between sale proceeds
// and the converted amount.
var conversionMatch = decimal.New(1, -2)

// batch is the part of a purchase still held, with the rate it was paid at.
type batch struct {
	lot       *SecurityLot
	remaining decimal.Decimal // current lot units
	rate      decimal.Decimal // base per unit of security currency
}

// exposure is foreign cost still carried at the rate it was paid: cost of
// shares held, or of shares sold into foreign cash.
type exposure struct {
	cost decimal.Decimal // in the security currency
	rate decimal.Decimal // base per unit, as paid
}

// currencyWalk matches the sales of holding against its purchases FIFO, each
// purchase carrying the rate it was funded at. Cost whose sale proceeds were
// converted back to the base currency realizes cost × (conversion rate −
// rate paid); any other cost is returned as exposure. Purchases and sales
// after asOf are ignored, a zero asOf has no bound.
func (s *System) currencyWalk(holding string, asOf date.Date) (currency string, realized decimal.Decimal, exposed []exposure, err error) {
	within := func(d date.Date) bool { return asOf.IsZero() || !d.After(asOf) }
	lots := s.book.fifo(holding)
	if len(lots) == 0 {
		return "", decimal.Zero, nil, nil
	}
	currency = lots[0].Currency
	if currency == s.book.base {
		return currency, decimal.Zero, nil, nil
	}

	batches := make([]*batch, 0, len(lots))
	for _, l := range lots {
		if !within(l.PurchaseDate) {
			continue
		}
		rate, ok := s.weightedAverageRate(func(a CurrencyAllocation) bool { return a.PurchaseTransactionID == l.TransactionID })
		if !ok {
			rate = l.ExchangeRate
		}
		if !rate.IsPositive() {
			return currency, decimal.Zero, nil, &MissingExchangeRateError{From: currency, To: s.book.base, On: l.PurchaseDate}
		}
		batches = append(batches, &batch{lot: l, remaining: l.Quantity, rate: rate})
	}

	for _, sell := range s.book.sortedTransactions() {
		if sell.Holding != holding || sell.Type != Sell || !within(sell.Date) {
			continue
		}
		conv, matched := s.proceedsConversion(sell, currency)
		var convRate decimal.Decimal
		if matched {
			convRate = conv.Amount.Div(conv.FromAmount)
		}
		need := sell.Quantity
		for _, b := range batches {
			if !need.IsPositive() {
				break
			}
			if !b.remaining.IsPositive() || b.lot.PurchaseDate.After(sell.Date) {
				continue
			}
			f := s.book.splitFactor(b.lot, sell.Date)
			take := decimal.Min(need, b.remaining.Div(f))
			units := take.Mul(f)
			b.remaining = b.remaining.Sub(units)
			need = need.Sub(take)
			cost := units.Mul(b.lot.CostPerShare)
			if matched {
				realized = realized.Add(cost.Mul(convRate.Sub(b.rate)))
			} else {
				exposed = append(exposed, exposure{cost: cost, rate: b.rate})
			}
		}
	}
	for _, b := range batches {
		if b.remaining.IsPositive() {
			exposed = append(exposed, exposure{cost: b.remaining.Mul(b.lot.CostPerShare), rate: b.rate})
		}
	}
	return currency, realized, exposed, nil
}

// RealizedCurrencyGain returns the exchange rate gain realized on sales of a
// holding whose proceeds were converted back to the base currency. Sales are
// matched against purchases FIFO, each purchase carrying the rate it was
// funded at. Sales whose proceeds stayed in the foreign currency realize no
// exchange gain.
func (s *System) RealizedCurrencyGain(holding string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realizedCurrencyGain(holding)
}

func (s *System) realizedCurrencyGain(holding string) (decimal.Decimal, error) {
	_, realized, _, err := s.currencyWalk(holding, date.Date{})
	if err != nil {
		return decimal.Zero, err
	}
	return roundTo(realized, s.book.base), nil
}

// proceedsConversion finds the credit conversion leg that brought the
// proceeds of sell back into the base currency.
func (s *System) proceedsConversion(sell Transaction, currency string) (Transaction, bool) {
	proceeds := sell.Gross()
	if !proceeds.IsPositive() {
		return Transaction{}, false
	}
	from, to := sell.Date.Add(-conversionWindow), sell.Date.Add(conversionWindow)
	for _, tx := range s.book.sortedTransactions() {
		if tx.Type != Conversion || tx.Direction != Credit || tx.Account != sell.Account {
			continue
		}
		if tx.FromCurrency != currency || tx.Currency != s.book.base || !tx.FromAmount.IsPositive() {
			continue
		}
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		if tx.FromAmount.Sub(proceeds).Abs().Div(proceeds).LessThan(conversionMatch) {
			return tx, true
		}
	}
	return Transaction{}, false
}

// UnrealizedCurrencyGain returns the exchange rate gain as of asOf on the
// cost of a holding not converted back to the base currency yet: shares
// still held and sales whose proceeds stayed in foreign cash, each valued at
// cost × (current rate − rate paid). Together with RealizedCurrencyGain it
// covers the whole exchange rate effect on the cost of the holding.
func (s *System) UnrealizedCurrencyGain(ctx context.Context, holding string, asOf date.Date) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	currency, _, exposed, err := s.currencyWalk(holding, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if currency == "" || currency == s.book.base || len(exposed) == 0 {
		return decimal.Zero, nil
	}
	current, err := s.rate(ctx, currency, s.book.base, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	var gain decimal.Decimal
	for _, e := range exposed {
		gain = gain.Add(e.cost.Mul(current.Sub(e.rate)))
	}
	return roundTo(gain, s.book.base), nil
}
