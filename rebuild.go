package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// RebuildOptions controls Rebuild.
type RebuildOptions struct {
	// DryRun computes everything and then restores the book as it was.
	DryRun bool
	// AsOf is the mark-to-market day, today when zero.
	AsOf date.Date
}

// RebuildReport summarizes a batch run.
type RebuildReport struct {
	RunID            string
	DryRun           bool
	AsOf             date.Date
	Duration         time.Duration
	Transactions     int
	Posted           int
	RealizedFX       int
	SplitsApplied    int
	SellsReprocessed int
	MarkToMarket     int
	Cleared          bool
	Errors           []*TransactionError
}

// Err joins every per transaction error, nil when there is none.
func (r RebuildReport) Err() error { return joinTxErrors(r.Errors) }

// Rebuild deletes every journal entry, lot and allocation, then replays all
// registered transactions and splits: posting, currency lot allocation with
// realized exchange gains, stock splits, sale reprocessing, mark-to-market
// and the clearing sweep.
//
// Transactions failing for their own reasons are reported and skipped. A
// fatal error restores the book as it was before the call and is returned.
func (s *System) Rebuild(ctx context.Context, opts RebuildOptions) (RebuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := RebuildReport{RunID: uuid.NewString(), DryRun: opts.DryRun, AsOf: opts.AsOf}
	if report.AsOf.IsZero() {
		report.AsOf = s.today()
	}
	log := s.log.With("run", report.RunID)
	backup := s.book.Snapshot()

	fail := func(err error) (RebuildReport, error) {
		s.book.restore(backup)
		s.chart = newChart(s.book.accounts)
		log.Error("rebuild aborted, ledger restored", "error", err)
		return report, err
	}

	s.book.clean()
	if err := s.initChart(); err != nil {
		return fail(err)
	}

	failed := make(map[string]*TransactionError)
	var order []string
	record := func(te *TransactionError) {
		if _, ok := failed[te.TransactionID]; !ok {
			order = append(order, te.TransactionID)
		}
		failed[te.TransactionID] = te
	}

	txs := s.book.sortedTransactions()
	report.Transactions = len(txs)
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if _, err := s.post(ctx, tx); err != nil {
			if errors.Is(err, ErrFatal) {
				return fail(err)
			}
			log.Warn("transaction not posted", "transaction", tx.ID, "type", tx.Type, "date", tx.Date, "error", err)
			record(txError(tx, err))
		}
	}

	n, errs, err := s.allocateCurrencyLots(ctx)
	if err != nil {
		return fail(err)
	}
	report.RealizedFX = n
	for _, te := range errs {
		record(te)
	}

	if report.SplitsApplied, err = s.applyAllSplits(); err != nil {
		return fail(err)
	}

	n, errs, err = s.reprocessSells(ctx)
	if err != nil {
		return fail(err)
	}
	report.SellsReprocessed = n
	for _, te := range errs {
		record(te)
	}
	// A sale that went through on reprocessing is no longer an error.
	for id := range failed {
		if tx, ok := s.book.transaction(id); ok && tx.Type == Sell {
			if _, posted := s.book.entryFor(id); posted {
				delete(failed, id)
			}
		}
	}

	if report.MarkToMarket, err = s.runMarkToMarket(ctx, report.AsOf); err != nil {
		return fail(err)
	}
	e, err := s.sweepClearing(report.AsOf)
	if err != nil {
		return fail(err)
	}
	report.Cleared = e != nil

	for _, tx := range txs {
		if _, ok := s.book.entryFor(tx.ID); ok {
			report.Posted++
		}
	}

	for _, id := range order {
		if te, ok := failed[id]; ok {
			report.Errors = append(report.Errors, te)
		}
	}
	report.Duration = time.Since(start)
	if opts.DryRun {
		s.book.restore(backup)
		s.chart = newChart(s.book.accounts)
	}
	log.Info("rebuild finished", "dry_run", opts.DryRun, "transactions", report.Transactions, "posted", report.Posted, "errors", len(report.Errors), "duration", report.Duration)
	return report, nil
}

func txError(tx Transaction, err error) *TransactionError {
	return &TransactionError{TransactionID: tx.ID, Type: tx.Type, Date: tx.Date, Err: err}
}

// clean deletes every derived record, keeping accounts, transactions and splits.
func (b *Book) clean() {
	b.entries = nil
	b.lots = nil
	b.allocations = nil
	b.currencyLots = nil
	b.currencyAllocs = nil
}

// AllocateCurrencyLotsAndPostRealizedFX funds every foreign purchase and fee
// not funded yet from currency lots and posts the realized exchange gain or
// loss between the lot rates and the spot rate of the purchase. It returns
// the number of entries posted and the per transaction failures joined.
func (s *System) AllocateCurrencyLotsAndPostRealizedFX(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, errs, err := s.allocateCurrencyLots(ctx)
	if err != nil {
		return n, err
	}
	return n, joinTxErrors(errs)
}

func (s *System) allocateCurrencyLots(ctx context.Context) (int, []*TransactionError, error) {
	var errs []*TransactionError
	n := 0
	for _, tx := range s.book.sortedTransactions() {
		if (tx.Type != Buy && tx.Type != Fee) || tx.Currency == s.book.base {
			continue
		}
		if len(s.book.allocationsOf(tx.ID)) > 0 {
			continue
		}
		allocs, err := s.allocatePurchase(tx, tx.Gross())
		if err != nil {
			s.log.Warn("purchase not funded from currency lots", "transaction", tx.ID, "error", err)
			errs = append(errs, txError(tx, err))
			continue
		}
		spot, err := s.rateOf(ctx, tx)
		if err != nil {
			errs = append(errs, txError(tx, err))
			continue
		}
		var realized decimal.Decimal
		for _, a := range allocs {
			l, ok := s.book.currencyLot(a.LotID)
			if !ok || l.FromCurrency != s.book.base {
				continue
			}
			realized = realized.Add(a.Amount.Mul(spot.Sub(one.Div(l.ExchangeRate))))
		}
		if isNegligible(realized) {
			continue
		}
		realized = roundTo(realized, s.book.base)
		b := s.newBuilder()
		if realized.IsPositive() {
			b.debit(RoleCash, realized, s.book.base, one, "Currency cost below spot")
			b.credit(RoleCurrencyGains, realized, s.book.base, one, "Realized currency gain")
		} else {
			b.debit(RoleCurrencyLosses, realized.Neg(), s.book.base, one, "Realized currency loss")
			b.credit(RoleCash, realized.Neg(), s.book.base, one, "Currency cost above spot")
		}
		desc := fmt.Sprintf("Realized FX on %s %s", tx.Type, tx.ID)
		if _, err := s.record(b, tx.Date, AdjustmentEntry, desc, refRealizedFX+tx.ID); err != nil {
			return n, errs, err
		}
		n++
	}
	return n, errs, nil
}

// ApplyAllStockSplits applies every registered split in date order and
// returns the number of lots rescaled.
func (s *System) ApplyAllStockSplits() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyAllSplits()
}

func (s *System) applyAllSplits() (int, error) {
	total := 0
	for _, sp := range s.book.sortedSplits() {
		n, err := s.applySplit(sp)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ReprocessSells unwinds every SELL entry and its lot allocations and posts
// all SELL transactions again in order, so that sales see the lots as
// rescaled by splits. It returns the number of sales posted and the per
// transaction failures joined.
func (s *System) ReprocessSells(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, errs, err := s.reprocessSells(ctx)
	if err != nil {
		return n, err
	}
	return n, joinTxErrors(errs)
}

func (s *System) reprocessSells(ctx context.Context) (int, []*TransactionError, error) {
	var sells []Transaction
	for _, tx := range s.book.sortedTransactions() {
		if tx.Type == Sell {
			sells = append(sells, tx)
		}
	}
	for i := len(sells) - 1; i >= 0; i-- {
		tx := sells[i]
		if e, ok := s.book.entryFor(tx.ID); ok {
			s.unwindSell(tx)
			s.book.removeEntry(e.ID)
		}
	}
	var errs []*TransactionError
	n := 0
	for _, tx := range sells {
		if _, err := s.post(ctx, tx); err != nil {
			if errors.Is(err, ErrFatal) {
				return n, errs, err
			}
			errs = append(errs, txError(tx, err))
			continue
		}
		n++
	}
	return n, errs, nil
}

// RunMarkToMarket revalues securities then foreign currency as of asOf and
// returns the number of entries posted.
func (s *System) RunMarkToMarket(ctx context.Context, asOf date.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runMarkToMarket(ctx, asOf)
}

func (s *System) runMarkToMarket(ctx context.Context, asOf date.Date) (int, error) {
	n := 0
	e, err := s.markSecurities(ctx, asOf)
	if err != nil {
		return n, fmt.Errorf("mark securities to market: %w", err)
	}
	if e != nil {
		n++
	}
	e, err = s.markCurrency(ctx, asOf)
	if err != nil {
		return n, fmt.Errorf("mark currency to market: %w", err)
	}
	if e != nil {
		n++
	}
	return n, nil
}

// SweepClearing closes the Currency Exchange Clearing balance left by
// conversions into realized currency gains or losses.
func (s *System) SweepClearing(asOf date.Date) (*JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.sweepClearing(asOf)
	if e == nil || err != nil {
		return nil, err
	}
	c := e.clone()
	return &c, nil
}

func (s *System) sweepClearing(asOf date.Date) (*JournalEntry, error) {
	clearing, err := s.chart.Account(RoleCurrencyClearing)
	if err != nil {
		return nil, err
	}
	bal := s.balance(clearing, asOf)
	if isNegligible(bal) {
		return nil, nil
	}
	bal = roundTo(bal, s.book.base)
	b := s.newBuilder()
	if bal.IsPositive() {
		b.debit(RoleCurrencyLosses, bal, s.book.base, one, "Conversion loss")
		b.credit(RoleCurrencyClearing, bal, s.book.base, one, "Clear conversions")
	} else {
		b.debit(RoleCurrencyClearing, bal.Neg(), s.book.base, one, "Clear conversions")
		b.credit(RoleCurrencyGains, bal.Neg(), s.book.base, one, "Conversion gain")
	}
	return s.record(b, asOf, AdjustmentEntry, "Currency exchange clearing", refClearing)
}

func joinTxErrors(errs []*TransactionError) error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}
