package accounting

import (
	"errors"
	"fmt"
	"slices"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// CurrencyLot is a batch of foreign currency bought by one conversion.
// ExchangeRate is ToAmount/FromAmount, units received per unit given.
type CurrencyLot struct {
	ID             string
	Account        string
	ConversionID   string
	FromCurrency   string
	ToCurrency     string
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	Remaining      decimal.Decimal
	ExchangeRate   decimal.Decimal
	ConversionDate date.Date
}

// CurrencyAllocation links a currency lot to the purchase it funded.
type CurrencyAllocation struct {
	ID                    string
	LotID                 string
	PurchaseTransactionID string
	Holding               string
	Amount                decimal.Decimal
}

// CreateCurrencyLot opens the currency lot of a credit CONVERSION leg. A
// conversion owns at most one lot: creating it again returns the existing
// lot.
func (s *System) CreateCurrencyLot(tx Transaction) (CurrencyLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.createCurrencyLot(tx)
	var dup *DuplicateLotError
	if errors.As(err, &dup) {
		return *l, nil
	}
	if err != nil {
		return CurrencyLot{}, err
	}
	return *l, nil
}

// createCurrencyLot returns a *DuplicateLotError along with the existing lot
// when the conversion already has one.
func (s *System) createCurrencyLot(tx Transaction) (*CurrencyLot, error) {
	if tx.Type != Conversion || tx.Direction != Credit {
		return nil, fmt.Errorf("transaction %s is not a credit conversion leg", tx.ID)
	}
	if !tx.FromAmount.IsPositive() || !tx.Amount.IsPositive() {
		return nil, fmt.Errorf("conversion %s has no amounts", tx.ID)
	}
	for _, l := range s.book.currencyLots {
		if l.ConversionID == tx.ID {
			return l, &DuplicateLotError{ConversionID: tx.ID, LotID: l.ID}
		}
	}
	lot := &CurrencyLot{
		ID:             NewID(),
		Account:        tx.Account,
		ConversionID:   tx.ID,
		FromCurrency:   tx.FromCurrency,
		ToCurrency:     tx.Currency,
		FromAmount:     tx.FromAmount,
		ToAmount:       tx.Amount,
		Remaining:      tx.Amount,
		ExchangeRate:   tx.Amount.Div(tx.FromAmount),
		ConversionDate: tx.Date,
	}
	s.book.currencyLots = append(s.book.currencyLots, lot)
	return lot, nil
}

// CurrencyLots returns every currency lot in FIFO order.
func (s *System) CurrencyLots() []CurrencyLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CurrencyLot
	for _, l := range s.book.sortedCurrencyLots() {
		out = append(out, *l)
	}
	return out
}

func (b *Book) sortedCurrencyLots() []*CurrencyLot {
	lots := slices.Clone(b.currencyLots)
	slices.SortStableFunc(lots, func(x, y *CurrencyLot) int { return x.ConversionDate.Compare(y.ConversionDate) })
	return lots
}

// AllocatePurchase funds amount of a foreign purchase from currency lots of
// the same account, oldest conversion first. The whole amount must be
// available; otherwise nothing is allocated. A purchase that already has
// allocations gets them back unchanged.
func (s *System) AllocatePurchase(tx Transaction, amount decimal.Decimal) ([]CurrencyAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocatePurchase(tx, amount)
}

func (s *System) allocatePurchase(tx Transaction, amount decimal.Decimal) ([]CurrencyAllocation, error) {
	if tx.Type != Buy && tx.Type != Fee {
		return nil, fmt.Errorf("cannot fund a %s transaction from currency lots", tx.Type)
	}
	if existing := s.book.allocationsOf(tx.ID); len(existing) > 0 {
		return existing, nil
	}
	var candidates []*CurrencyLot
	var available decimal.Decimal
	for _, l := range s.book.sortedCurrencyLots() {
		if l.Account != tx.Account || l.ToCurrency != tx.Currency || l.ConversionDate.After(tx.Date) || !l.Remaining.IsPositive() {
			continue
		}
		candidates = append(candidates, l)
		available = available.Add(l.Remaining)
	}
	if len(candidates) == 0 || amount.Sub(available).GreaterThan(adjustThreshold) {
		return nil, &InsufficientCurrencyError{Currency: tx.Currency, Requested: amount, Available: available}
	}

	var out []CurrencyAllocation
	need := amount
	for _, l := range candidates {
		if need.LessThanOrEqual(adjustThreshold) {
			break
		}
		take := decimal.Min(need, l.Remaining)
		if take.LessThan(adjustThreshold) {
			continue
		}
		l.Remaining = l.Remaining.Sub(take)
		need = need.Sub(take)
		a := CurrencyAllocation{
			ID:                    NewID(),
			LotID:                 l.ID,
			PurchaseTransactionID: tx.ID,
			Holding:               tx.Holding,
			Amount:                take,
		}
		s.book.currencyAllocs = append(s.book.currencyAllocs, a)
		out = append(out, a)
	}
	s.log.Debug("allocated purchase to currency lots", "transaction", tx.ID, "amount", amount, "currency", tx.Currency, "lots", len(out))
	return out, nil
}

// WeightedAverageRate returns the base currency paid per unit of foreign
// currency spent on a holding, weighted by allocated amounts: 1000 EUR
// converted to 1100 USD gives 0.9091 EUR per dollar. It returns false when
// no purchase of the holding was funded from currency lots.
func (s *System) WeightedAverageRate(holding string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weightedAverageRate(func(a CurrencyAllocation) bool { return a.Holding == holding })
}

// WeightedAverageLotRate returns the same average quoted like currency lots,
// foreign currency received per unit of base currency: 1.10 dollars per euro
// for the conversion above.
func (s *System) WeightedAverageLotRate(holding string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	foreign, base := s.allocated(func(a CurrencyAllocation) bool { return a.Holding == holding })
	if base.IsZero() {
		return decimal.Zero, false
	}
	return foreign.Div(base), true
}

func (s *System) weightedAverageRate(match func(CurrencyAllocation) bool) (decimal.Decimal, bool) {
	foreign, base := s.allocated(match)
	if foreign.IsZero() {
		return decimal.Zero, false
	}
	return base.Div(foreign), true
}

// allocated sums the matching allocations in foreign currency and in the
// base currency they cost at their lot's rate.
func (s *System) allocated(match func(CurrencyAllocation) bool) (foreign, base decimal.Decimal) {
	for _, a := range s.book.currencyAllocs {
		if !match(a) {
			continue
		}
		l, ok := s.book.currencyLot(a.LotID)
		if !ok || !l.ExchangeRate.IsPositive() {
			continue
		}
		foreign = foreign.Add(a.Amount)
		base = base.Add(a.Amount.Div(l.ExchangeRate))
	}
	return foreign, base
}
