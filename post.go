package accounting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// Post records tx as exactly one balanced journal entry and returns a copy
// of it.
//
// BUY transactions also open a security lot, SELL transactions consume lots
// FIFO and credit-leg CONVERSION transactions into a foreign currency open a
// currency lot.
func (s *System) Post(ctx context.Context, tx Transaction) (JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.post(ctx, tx)
	if err != nil {
		return JournalEntry{}, err
	}
	return e.clone(), nil
}

func (s *System) post(ctx context.Context, tx Transaction) (*JournalEntry, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if e, ok := s.book.entryFor(tx.ID); ok {
		return nil, fmt.Errorf("%w: %s is entry %d", ErrAlreadyPosted, tx.ID, e.Number)
	}
	s.book.putTransaction(tx)

	rate, err := s.rateOf(ctx, tx)
	if err != nil {
		return nil, err
	}
	b := s.newBuilder()
	// after runs once the entry is known to balance.
	var after func(entry *JournalEntry) error

	gross := tx.Gross()
	switch tx.Type {
	case Buy:
		b.debit(RoleInvestments, gross, tx.Currency, rate, fmt.Sprintf("Buy %s %s", tx.Quantity, tx.Ticker))
		b.credit(RoleCash, gross, tx.Currency, rate, "Cash payment for purchase")
		after = func(*JournalEntry) error {
			_, err := s.createLot(tx, rate)
			return err
		}

	case Sell:
		after, err = s.postSell(b, tx, rate)
		if err != nil {
			return nil, err
		}

	case Dividend, Distribution:
		s.postIncome(b, tx, rate, RoleDividendIncome)

	case Interest:
		s.postIncome(b, tx, rate, RoleInterestIncome)

	case Reward:
		s.postIncome(b, tx, rate, RoleDividendIncome)

	case Deposit:
		b.debit(RoleCash, tx.Amount, tx.Currency, rate, "Deposit to account")
		b.credit(RoleCapital, tx.Amount, tx.Currency, rate, "Capital contribution")

	case Withdrawal:
		b.debit(RoleCapital, tx.Amount, tx.Currency, rate, "Withdrawal from account")
		b.credit(RoleCash, tx.Amount, tx.Currency, rate, "Cash withdrawal")

	case Fee:
		b.debit(RoleFees, tx.Amount, tx.Currency, rate, "Fee charged")
		b.credit(RoleCash, tx.Amount, tx.Currency, rate, "Cash payment for fee")

	case Tax:
		b.debit(RoleTaxes, tx.Amount, tx.Currency, rate, "Tax payment")
		b.credit(RoleCash, tx.Amount, tx.Currency, rate, "Cash payment for tax")

	case Conversion:
		if tx.Direction == Debit {
			b.debit(RoleCurrencyClearing, tx.Amount, tx.Currency, rate, "Currency sold")
			b.credit(RoleCash, tx.Amount, tx.Currency, rate, fmt.Sprintf("%s converted out", tx.Currency))
		} else {
			b.debit(RoleCash, tx.Amount, tx.Currency, rate, fmt.Sprintf("%s converted in", tx.Currency))
			b.credit(RoleCurrencyClearing, tx.Amount, tx.Currency, rate, "Currency bought")
			if tx.Currency != s.book.base {
				after = func(*JournalEntry) error {
					_, err := s.createCurrencyLot(tx)
					var dup *DuplicateLotError
					if errors.As(err, &dup) {
						return nil
					}
					return err
				}
			}
		}

	case Adjustment:
		amount := tx.Amount.Abs()
		if tx.Direction == Credit {
			b.debit(RoleCash, amount, tx.Currency, rate, "Cash adjustment")
			b.credit(RoleCapital, amount, tx.Currency, rate, "Capital adjustment")
		} else {
			b.debit(RoleCapital, amount, tx.Currency, rate, "Capital adjustment")
			b.credit(RoleCash, amount, tx.Currency, rate, "Cash adjustment")
		}
	}

	description := fmt.Sprintf("%s: %s", tx.Type, tx.Notes)
	entry, err := s.record(b, tx.Date, TransactionEntry, strings.TrimSpace(description), tx.ID)
	if err != nil {
		return nil, err
	}
	if after != nil {
		if err := after(entry); err != nil {
			s.book.removeEntry(entry.ID)
			return nil, err
		}
	}
	return entry, nil
}

// postIncome posts cash income net of withheld tax.
func (s *System) postIncome(b *entryBuilder, tx Transaction, rate decimal.Decimal, income Role) {
	net := tx.Amount.Sub(tx.TaxAmount)
	b.debit(RoleCash, net, tx.Currency, rate, fmt.Sprintf("%s received (net of tax)", strings.ToLower(string(tx.Type))))
	if tx.TaxAmount.IsPositive() {
		b.debit(RoleTaxes, tx.TaxAmount, tx.Currency, rate, "Withholding tax")
	}
	b.credit(income, tx.Amount, tx.Currency, rate, fmt.Sprintf("%s income", strings.ToLower(string(tx.Type))))
}

// postSell consumes lots FIFO and builds the sale lines. The returned
// function commits the lot allocation once the entry balances.
func (s *System) postSell(b *entryBuilder, tx Transaction, rate decimal.Decimal) (func(*JournalEntry) error, error) {
	if err := s.applyPendingSplits(tx.Ticker, tx.Date); err != nil {
		return nil, err
	}
	plan, err := s.planFIFO(tx.Holding, tx.Quantity, tx.Date)
	if err != nil {
		return nil, err
	}
	proceeds := tx.Gross()
	proceedsBase := roundTo(proceeds.Mul(rate), s.book.base)
	if tx.Currency == s.book.base {
		proceedsBase = roundTo(proceeds, s.book.base)
	}
	costBase := roundTo(plan.cost(), s.book.base)

	b.debit(RoleCash, proceeds, tx.Currency, rate, fmt.Sprintf("Proceeds from sale of %s %s", tx.Quantity, tx.Ticker))
	if s.recognizeGains {
		b.credit(RoleInvestments, costBase, s.book.base, one, "Cost basis of shares sold")
		switch gain := proceedsBase.Sub(costBase); {
		case gain.IsPositive():
			b.credit(RoleCapitalGains, gain, s.book.base, one, "Realized gain")
		case gain.IsNegative():
			b.debit(RoleCapitalLosses, gain.Neg(), s.book.base, one, "Realized loss")
		}
	} else {
		b.credit(RoleInvestments, proceeds, tx.Currency, rate, "Reduce investment balance")
	}
	return func(*JournalEntry) error {
		s.commitFIFO(plan, tx.ID, proceedsBase)
		return nil
	}, nil
}

var one = decimal.NewFromInt(1)

// rateOf returns the base currency value of one unit of the transaction currency.
func (s *System) rateOf(ctx context.Context, tx Transaction) (decimal.Decimal, error) {
	if tx.Currency == s.book.base {
		return one, nil
	}
	if tx.Type == Conversion && tx.Direction == Credit && tx.FromCurrency == s.book.base {
		return tx.FromAmount.Div(tx.Amount), nil
	}
	if tx.rateIsSet() {
		return tx.ExchangeRate, nil
	}
	return s.rate(ctx, tx.Currency, s.book.base, tx.Date)
}

// rate fetches a rate from the configured source.
func (s *System) rate(ctx context.Context, from, to string, on date.Date) (decimal.Decimal, error) {
	if from == to {
		return one, nil
	}
	r, err := s.rates.Rate(ctx, from, to, on)
	if err != nil {
		return decimal.Zero, err
	}
	if !r.IsPositive() {
		return decimal.Zero, &MissingExchangeRateError{From: from, To: to, On: on}
	}
	return r, nil
}

// entryBuilder accumulates base currency lines for one entry.
type entryBuilder struct {
	chart *Chart
	base  string
	lines []JournalLine
	err   error
}

func (s *System) newBuilder() *entryBuilder {
	return &entryBuilder{chart: s.chart, base: s.book.base}
}

func (b *entryBuilder) debit(role Role, amount decimal.Decimal, cur string, rate decimal.Decimal, desc string) {
	b.add(role, DebitSide, amount, cur, rate, desc)
}

func (b *entryBuilder) credit(role Role, amount decimal.Decimal, cur string, rate decimal.Decimal, desc string) {
	b.add(role, CreditSide, amount, cur, rate, desc)
}

// add converts amount into the base currency and appends a line. Amounts
// that round to zero are dropped.
func (b *entryBuilder) add(role Role, side Side, amount decimal.Decimal, cur string, rate decimal.Decimal, desc string) {
	if b.err != nil {
		return
	}
	account, err := b.chart.Account(role)
	if err != nil {
		b.err = err
		return
	}
	line := JournalLine{
		ID:          NewID(),
		AccountID:   account.ID,
		Currency:    b.base,
		Description: desc,
	}
	value := roundTo(amount, b.base)
	if cur != b.base {
		value = roundTo(amount.Mul(rate), b.base)
		line.ForeignAmount = amount
		line.ForeignCurrency = cur
		line.ExchangeRate = rate
	}
	if value.IsZero() {
		return
	}
	if side == DebitSide {
		line.Debit = value
	} else {
		line.Credit = value
	}
	b.lines = append(b.lines, line)
}

// settle absorbs a conversion rounding residue no larger than the balance
// tolerance into the last line of the lighter side.
func (b *entryBuilder) settle() {
	var debits, credits decimal.Decimal
	foreign := false
	for _, l := range b.lines {
		debits = debits.Add(l.Debit)
		credits = credits.Add(l.Credit)
		foreign = foreign || l.IsForeign()
	}
	residue := debits.Sub(credits)
	if !foreign || residue.IsZero() || residue.Abs().GreaterThan(balanceTolerance) {
		return
	}
	for i := len(b.lines) - 1; i >= 0; i-- {
		l := &b.lines[i]
		if residue.IsPositive() && !l.Credit.IsZero() {
			l.Credit = l.Credit.Add(residue)
			return
		}
		if residue.IsNegative() && !l.Debit.IsZero() {
			l.Debit = l.Debit.Sub(residue)
			return
		}
	}
}

// record numbers, validates and appends a posted entry built by b.
func (s *System) record(b *entryBuilder, on date.Date, typ EntryType, description, reference string) (*JournalEntry, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.settle()
	entry := &JournalEntry{
		ID:          NewID(),
		PortfolioID: s.book.portfolio,
		Number:      s.book.nextEntryNumber(),
		EntryDate:   on,
		PostingDate: s.today(),
		Type:        typ,
		Status:      Posted,
		Description: description,
		Reference:   reference,
		Lines:       b.lines,
	}
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
		entry.Lines[i].LineNumber = i + 1
	}
	if err := entry.validate(); err != nil {
		return nil, err
	}
	s.book.entries = append(s.book.entries, entry)
	return entry, nil
}

// Balance returns the balance of the account playing role, on its normal
// side, over posted entries dated on or before asOf.
func (s *System) Balance(role Role, asOf date.Date) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.chart.Account(role)
	if err != nil {
		return decimal.Zero, err
	}
	return s.balance(a, asOf), nil
}

// AccountBalance is like Balance for an account id.
func (s *System) AccountBalance(accountID string, asOf date.Date) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.chart.ByID(accountID)
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown account %q", accountID)
	}
	return s.balance(a, asOf), nil
}

func (s *System) balance(a ChartAccount, asOf date.Date) decimal.Decimal {
	return s.activity(a, date.Date{}, asOf, nil)
}

// activity sums posted lines of account a dated in [from, to] on its normal
// side. A zero from means no lower bound; skip excludes entries.
func (s *System) activity(a ChartAccount, from, to date.Date, skip func(*JournalEntry) bool) decimal.Decimal {
	var net decimal.Decimal
	for _, e := range s.book.entries {
		if e.Status != Posted || e.EntryDate.After(to) || (!from.IsZero() && e.EntryDate.Before(from)) {
			continue
		}
		if skip != nil && skip(e) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == a.ID {
				net = net.Add(l.Net())
			}
		}
	}
	if a.NormalSide == CreditSide {
		return net.Neg()
	}
	return net
}

// sortEntries orders entries by number.
func sortEntries(entries []JournalEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
}
