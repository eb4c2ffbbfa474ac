package accounting

import (
	"context"
	"fmt"
	"slices"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// SecurityLot is the cost basis of one purchase. Quantities and per share
// costs are rescaled in place by stock splits, totals never change.
type SecurityLot struct {
	ID               string
	Holding          string
	TransactionID    string
	Ticker           string
	PurchaseDate     date.Date
	Quantity         decimal.Decimal
	Remaining        decimal.Decimal
	CostPerShare     decimal.Decimal
	TotalCost        decimal.Decimal
	CostPerShareBase decimal.Decimal
	TotalCostBase    decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	Closed           bool
	AppliedSplits    []string // split ids, in application order
}

func (l *SecurityLot) clone() SecurityLot {
	c := *l
	c.AppliedSplits = slices.Clone(l.AppliedSplits)
	return c
}

// hasSplit reports whether the split was already applied to the lot.
func (l *SecurityLot) hasSplit(id string) bool { return slices.Contains(l.AppliedSplits, id) }

// SecurityAllocation links a lot to the SELL transaction that consumed it.
// Quantity is expressed in shares as of the sale date. Amounts are in the
// base currency.
type SecurityAllocation struct {
	ID                string
	LotID             string
	SellTransactionID string
	Quantity          decimal.Decimal
	CostBasis         decimal.Decimal
	Proceeds          decimal.Decimal
	RealizedGainLoss  decimal.Decimal
}

// StockSplit turns From shares into To shares of Ticker on Date.
type StockSplit struct {
	ID     string
	Ticker string
	Date   date.Date
	From   int64
	To     int64
	Ratio  decimal.Decimal // new shares per old share
	Notes  string
}

// NewSplit returns a split of ticker where from old shares become to new shares.
func NewSplit(ticker string, on date.Date, from, to int64) (StockSplit, error) {
	if from <= 0 || to <= 0 {
		return StockSplit{}, fmt.Errorf("invalid split %d:%d for %s", to, from, ticker)
	}
	return StockSplit{
		ID:     NewID(),
		Ticker: ticker,
		Date:   on,
		From:   from,
		To:     to,
		Ratio:  decimal.NewFromInt(to).Div(decimal.NewFromInt(from)),
	}, nil
}

// putSplit registers a split unless one for the same ticker and date exists.
func (b *Book) putSplit(sp StockSplit) StockSplit {
	for _, x := range b.splits {
		if x.ID == sp.ID || (x.Ticker == sp.Ticker && x.Date == sp.Date) {
			return x
		}
	}
	if sp.ID == "" {
		sp.ID = NewID()
	}
	if sp.Ratio.IsZero() && sp.From > 0 {
		sp.Ratio = decimal.NewFromInt(sp.To).Div(decimal.NewFromInt(sp.From))
	}
	b.splits = append(b.splits, sp)
	return sp
}

func (b *Book) split(id string) (StockSplit, bool) {
	for _, sp := range b.splits {
		if sp.ID == id {
			return sp, true
		}
	}
	return StockSplit{}, false
}

// sortedSplits returns every split ordered by date.
func (b *Book) sortedSplits() []StockSplit {
	splits := slices.Clone(b.splits)
	slices.SortStableFunc(splits, func(x, y StockSplit) int { return x.Date.Compare(y.Date) })
	return splits
}

// createLot opens the lot of a BUY transaction. A transaction owns at most one lot.
func (s *System) createLot(tx Transaction, rate decimal.Decimal) (*SecurityLot, error) {
	if tx.Type != Buy {
		return nil, fmt.Errorf("cannot create a lot from a %s transaction", tx.Type)
	}
	if l, ok := s.book.lotFor(tx.ID); ok {
		return l, nil
	}
	total := tx.Quantity.Mul(tx.Price)
	lot := &SecurityLot{
		ID:               NewID(),
		Holding:          tx.Holding,
		TransactionID:    tx.ID,
		Ticker:           tx.Ticker,
		PurchaseDate:     tx.Date,
		Quantity:         tx.Quantity,
		Remaining:        tx.Quantity,
		CostPerShare:     tx.Price,
		TotalCost:        total,
		CostPerShareBase: tx.Price.Mul(rate),
		TotalCostBase:    roundTo(total.Mul(rate), s.book.base),
		Currency:         tx.Currency,
		ExchangeRate:     rate,
	}
	if tx.Currency == s.book.base {
		lot.TotalCostBase = roundTo(total, s.book.base)
	}
	s.book.lots = append(s.book.lots, lot)
	return lot, nil
}

// CreateLot opens the security lot of a BUY transaction without posting it.
// It returns the existing lot when the transaction already has one.
func (s *System) CreateLot(ctx context.Context, tx Transaction) (SecurityLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.Validate(); err != nil {
		return SecurityLot{}, err
	}
	rate, err := s.rateOf(ctx, tx)
	if err != nil {
		return SecurityLot{}, err
	}
	l, err := s.createLot(tx, rate)
	if err != nil {
		return SecurityLot{}, err
	}
	return l.clone(), nil
}

// Lots returns the lots of a holding in FIFO order.
func (s *System) Lots(holding string) []SecurityLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SecurityLot
	for _, l := range s.book.fifo(holding) {
		out = append(out, l.clone())
	}
	return out
}

// Allocations returns the lot allocations of a SELL transaction.
func (s *System) Allocations(sellID string) []SecurityAllocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SecurityAllocation
	for _, a := range s.book.allocations {
		if a.SellTransactionID == sellID {
			out = append(out, a)
		}
	}
	return out
}

// fifo returns the lots of a holding ordered by purchase date then creation.
func (b *Book) fifo(holding string) []*SecurityLot {
	var lots []*SecurityLot
	for _, l := range b.lots {
		if l.Holding == holding {
			lots = append(lots, l)
		}
	}
	slices.SortStableFunc(lots, func(x, y *SecurityLot) int { return x.PurchaseDate.Compare(y.PurchaseDate) })
	return lots
}

// splitFactor returns how many current lot units make one share as of day:
// the product of the ratios of applied splits dated after day.
func (b *Book) splitFactor(l *SecurityLot, day date.Date) decimal.Decimal {
	f := decimal.NewFromInt(1)
	for _, id := range l.AppliedSplits {
		if sp, ok := b.split(id); ok && sp.Date.After(day) {
			f = f.Mul(sp.Ratio)
		}
	}
	return f
}

// pendingSplit returns the earliest split of a holding dated on or before day
// that still has eligible lots to rescale.
func (b *Book) pendingSplit(holding string, day date.Date) (StockSplit, bool) {
	for _, sp := range b.sortedSplits() {
		if sp.Date.After(day) {
			break
		}
		for _, l := range b.lots {
			if l.Holding == holding && l.Ticker == sp.Ticker && l.PurchaseDate.Before(sp.Date) && !l.hasSplit(sp.ID) {
				return sp, true
			}
		}
	}
	return StockSplit{}, false
}

// fifoTake is one lot consumed by a sale.
type fifoTake struct {
	lot      *SecurityLot
	shares   decimal.Decimal // in shares as of the sale date
	units    decimal.Decimal // in current lot units
	costBase decimal.Decimal
}

// fifoPlan is a FIFO allocation computed without mutating any lot.
type fifoPlan []fifoTake

func (p fifoPlan) cost() decimal.Decimal {
	var c decimal.Decimal
	for _, t := range p {
		c = c.Add(t.costBase)
	}
	return c
}

// planFIFO matches quantity shares of holding sold on day against open lots.
func (s *System) planFIFO(holding string, quantity decimal.Decimal, day date.Date) (fifoPlan, error) {
	if sp, ok := s.book.pendingSplit(holding, day); ok {
		return nil, &PendingSplitError{Ticker: sp.Ticker, SplitDate: sp.Date}
	}
	var plan fifoPlan
	var available decimal.Decimal
	need := quantity
	for _, l := range s.book.fifo(holding) {
		if !l.Remaining.IsPositive() || l.PurchaseDate.After(day) {
			continue
		}
		f := s.book.splitFactor(l, day)
		open := l.Remaining.Div(f)
		available = available.Add(open)
		if !need.IsPositive() {
			continue
		}
		take := decimal.Min(open, need)
		units := take.Mul(f)
		if take.Equal(open) {
			units = l.Remaining
		}
		plan = append(plan, fifoTake{lot: l, shares: take, units: units, costBase: units.Mul(l.CostPerShareBase)})
		need = need.Sub(take)
	}
	if need.GreaterThan(lotEpsilon) {
		return nil, &InsufficientLotsError{Holding: holding, Requested: quantity, Available: available}
	}
	return plan, nil
}

// commitFIFO applies a plan and records the allocations of sale sellID.
// proceeds, in the base currency, are spread pro rata over the lots.
func (s *System) commitFIFO(plan fifoPlan, sellID string, proceeds decimal.Decimal) []SecurityAllocation {
	var shares decimal.Decimal
	for _, t := range plan {
		shares = shares.Add(t.shares)
	}
	var out []SecurityAllocation
	left := proceeds
	for i, t := range plan {
		t.lot.Remaining = t.lot.Remaining.Sub(t.units)
		if t.lot.Remaining.LessThan(lotEpsilon) {
			t.lot.Remaining = decimal.Zero
			t.lot.Closed = true
		}
		part := left
		if i < len(plan)-1 && shares.IsPositive() {
			part = roundTo(proceeds.Mul(t.shares).Div(shares), s.book.base)
		}
		left = left.Sub(part)
		cost := roundTo(t.costBase, s.book.base)
		a := SecurityAllocation{
			ID:                NewID(),
			LotID:             t.lot.ID,
			SellTransactionID: sellID,
			Quantity:          t.shares,
			CostBasis:         cost,
			Proceeds:          part,
			RealizedGainLoss:  part.Sub(cost),
		}
		s.book.allocations = append(s.book.allocations, a)
		out = append(out, a)
	}
	return out
}

// AllocateFIFO consumes open lots of the sale's holding, oldest first, and
// records one allocation per lot. Nothing is mutated when the open quantity
// is insufficient or a split preceding the sale is not applied yet.
func (s *System) AllocateFIFO(ctx context.Context, sell Transaction) ([]SecurityAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sell.Type != Sell {
		return nil, fmt.Errorf("cannot allocate lots to a %s transaction", sell.Type)
	}
	rate, err := s.rateOf(ctx, sell)
	if err != nil {
		return nil, err
	}
	plan, err := s.planFIFO(sell.Holding, sell.Quantity, sell.Date)
	if err != nil {
		return nil, err
	}
	return s.commitFIFO(plan, sell.ID, roundTo(sell.Gross().Mul(rate), s.book.base)), nil
}

// ApplySplit rescales every lot of the split's ticker purchased strictly
// before the split date and returns the number of lots changed. Lots already
// rescaled by this split are left alone.
func (s *System) ApplySplit(sp StockSplit) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applySplit(sp)
}

func (s *System) applySplit(sp StockSplit) (int, error) {
	if !sp.Ratio.IsPositive() && sp.From <= 0 {
		return 0, fmt.Errorf("split of %s on %s has no ratio", sp.Ticker, sp.Date)
	}
	sp = s.book.putSplit(sp)
	n := 0
	for _, l := range s.book.lots {
		if l.Ticker != sp.Ticker || !l.PurchaseDate.Before(sp.Date) || l.hasSplit(sp.ID) {
			continue
		}
		l.Quantity = l.Quantity.Mul(sp.Ratio)
		l.Remaining = l.Remaining.Mul(sp.Ratio)
		l.CostPerShare = l.CostPerShare.Div(sp.Ratio)
		l.CostPerShareBase = l.CostPerShareBase.Div(sp.Ratio)
		l.AppliedSplits = append(l.AppliedSplits, sp.ID)
		n++
	}
	if n > 0 {
		s.log.Info("applied stock split", "ticker", sp.Ticker, "date", sp.Date, "ratio", sp.Ratio, "lots", n)
	}
	return n, nil
}

// applyPendingSplits applies, in date order, every split of the holding's
// lots dated on or before day.
func (s *System) applyPendingSplits(holding string, day date.Date) error {
	for {
		sp, ok := s.book.pendingSplit(holding, day)
		if !ok {
			return nil
		}
		if _, err := s.applySplit(sp); err != nil {
			return err
		}
	}
}

// unwindSell gives the lots back what sale sellID consumed and deletes its
// allocations.
func (s *System) unwindSell(sell Transaction) {
	keep := s.book.allocations[:0]
	for _, a := range s.book.allocations {
		if a.SellTransactionID != sell.ID {
			keep = append(keep, a)
			continue
		}
		if l, ok := s.book.lot(a.LotID); ok {
			l.Remaining = decimal.Min(l.Quantity, l.Remaining.Add(a.Quantity.Mul(s.book.splitFactor(l, sell.Date))))
			l.Closed = l.Remaining.LessThan(lotEpsilon)
		}
	}
	s.book.allocations = keep
}
