package accounting

import (
	"fmt"
	"slices"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// TrialBalanceRow is the balance of one account, shown on its debit or
// credit column.
type TrialBalanceRow struct {
	Account ChartAccount
	Debit   Money
	Credit  Money
}

// TrialBalance lists every account balance as of a day.
type TrialBalance struct {
	AsOf         date.Date
	Rows         []TrialBalanceRow
	TotalDebits  Money
	TotalCredits Money
	Balanced     bool
}

// TrialBalance returns the balance of every active account as of asOf. A
// balance opposite to the account's normal side appears in the other column.
func (s *System) TrialBalance(asOf date.Date) TrialBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.book.base
	tb := TrialBalance{AsOf: asOf, TotalDebits: M(0, base), TotalCredits: M(0, base)}
	for _, a := range s.chart.Accounts() {
		if !a.Active {
			continue
		}
		bal := s.balance(a, asOf)
		if a.NormalSide == CreditSide {
			bal = bal.Neg()
		}
		row := TrialBalanceRow{Account: a, Debit: M(0, base), Credit: M(0, base)}
		if bal.IsNegative() {
			row.Credit = M(bal.Neg(), base)
		} else {
			row.Debit = M(bal, base)
		}
		tb.TotalDebits = tb.TotalDebits.Add(row.Debit)
		tb.TotalCredits = tb.TotalCredits.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	tb.Balanced = tb.TotalDebits.Sub(tb.TotalCredits).Decimal().Abs().LessThanOrEqual(balanceTolerance)
	return tb
}

// ReportLine is an account with an amount on its normal side.
type ReportLine struct {
	Account ChartAccount
	Amount  Money
}

// BalanceSheet is the financial position as of a day.
type BalanceSheet struct {
	AsOf             date.Date
	Assets           []ReportLine
	Liabilities      []ReportLine
	Equity           []ReportLine
	TotalAssets      Money
	TotalLiabilities Money
	NetIncome        Money // revenue less expenses not closed yet
	TotalEquity      Money // including NetIncome
	Balanced         bool
}

// BalanceSheet returns assets, liabilities and equity as of asOf.
func (s *System) BalanceSheet(asOf date.Date) BalanceSheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.book.base
	bs := BalanceSheet{AsOf: asOf, TotalAssets: M(0, base), TotalLiabilities: M(0, base), TotalEquity: M(0, base), NetIncome: M(0, base)}
	for _, a := range s.chart.Accounts() {
		amount := M(s.balance(a, asOf), base)
		line := ReportLine{Account: a, Amount: amount}
		switch a.Type {
		case Asset:
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(amount)
		case Liability:
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(amount)
		case Equity:
			bs.Equity = append(bs.Equity, line)
			bs.TotalEquity = bs.TotalEquity.Add(amount)
		case Revenue:
			bs.NetIncome = bs.NetIncome.Add(amount)
		case Expense:
			bs.NetIncome = bs.NetIncome.Sub(amount)
		}
	}
	bs.TotalEquity = bs.TotalEquity.Add(bs.NetIncome)
	diff := bs.TotalAssets.Sub(bs.TotalLiabilities).Sub(bs.TotalEquity)
	bs.Balanced = diff.Decimal().Abs().LessThanOrEqual(balanceTolerance)
	return bs
}

// IncomeStatement is the performance over a period.
type IncomeStatement struct {
	Range         date.Range
	Revenue       []ReportLine
	Expenses      []ReportLine
	TotalRevenue  Money
	TotalExpenses Money
	NetIncome     Money
}

// IncomeStatement returns revenue and expenses recorded in r. Closing entries
// are ignored so a closed period still reports its income.
func (s *System) IncomeStatement(r date.Range) IncomeStatement {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.book.base
	is := IncomeStatement{Range: r, TotalRevenue: M(0, base), TotalExpenses: M(0, base)}
	closing := func(e *JournalEntry) bool { return e.Type == ClosingEntry }
	for _, a := range s.chart.Accounts() {
		if a.Type != Revenue && a.Type != Expense {
			continue
		}
		amount := M(s.activity(a, r.From, r.To, closing), base)
		if amount.IsZero() {
			continue
		}
		if a.Type == Revenue {
			is.Revenue = append(is.Revenue, ReportLine{Account: a, Amount: amount})
			is.TotalRevenue = is.TotalRevenue.Add(amount)
		} else {
			is.Expenses = append(is.Expenses, ReportLine{Account: a, Amount: amount})
			is.TotalExpenses = is.TotalExpenses.Add(amount)
		}
	}
	is.NetIncome = is.TotalRevenue.Sub(is.TotalExpenses)
	return is
}

// LedgerLine is one journal line of a general ledger with the running balance
// of the account after it.
type LedgerLine struct {
	Date        date.Date
	EntryNumber int
	Description string
	Debit       Money
	Credit      Money
	Balance     Money
}

// GeneralLedger lists the activity of one account over a period.
type GeneralLedger struct {
	Account ChartAccount
	Range   date.Range
	Opening Money
	Lines   []LedgerLine
	Closing Money
}

// GeneralLedger returns every posted line of the account playing role in r,
// in entry order, with a running balance on the account's normal side.
func (s *System) GeneralLedger(role Role, r date.Range) (GeneralLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.chart.Account(role)
	if err != nil {
		return GeneralLedger{}, err
	}
	base := s.book.base
	running := decimal.Zero
	if !r.From.IsZero() {
		running = s.balance(a, r.From.Add(-1))
	}
	gl := GeneralLedger{Account: a, Range: r, Opening: M(running, base)}

	entries := make([]JournalEntry, 0, len(s.book.entries))
	for _, e := range s.book.entries {
		if e.Status == Posted && r.Contains(e.EntryDate) {
			entries = append(entries, *e)
		}
	}
	sortEntriesByDate(entries)
	for _, e := range entries {
		for _, l := range e.Lines {
			if l.AccountID != a.ID {
				continue
			}
			net := l.Net()
			if a.NormalSide == CreditSide {
				net = net.Neg()
			}
			running = running.Add(net)
			desc := l.Description
			if desc == "" {
				desc = e.Description
			}
			gl.Lines = append(gl.Lines, LedgerLine{
				Date:        e.EntryDate,
				EntryNumber: e.Number,
				Description: desc,
				Debit:       M(l.Debit, base),
				Credit:      M(l.Credit, base),
				Balance:     M(running, base),
			})
		}
	}
	gl.Closing = M(running, base)
	return gl, nil
}

// sortEntriesByDate orders entries by date then number.
func sortEntriesByDate(entries []JournalEntry) {
	slices.SortStableFunc(entries, func(x, y JournalEntry) int {
		if c := x.EntryDate.Compare(y.EntryDate); c != 0 {
			return c
		}
		return x.Number - y.Number
	})
}

// ClosePeriod moves the balance of every revenue and expense account as of
// asOf into Retained Earnings with one CLOSING entry. It returns nil when
// there is nothing to close.
func (s *System) ClosePeriod(asOf date.Date) (*JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.newBuilder()
	var net decimal.Decimal
	for _, a := range s.chart.Accounts() {
		if a.Type != Revenue && a.Type != Expense {
			continue
		}
		bal := roundTo(s.balance(a, asOf), s.book.base)
		if bal.IsZero() {
			continue
		}
		// Post the balance on the opposite side of the account.
		side := DebitSide
		if a.NormalSide == DebitSide {
			side = CreditSide
		}
		if bal.IsNegative() {
			side = a.NormalSide
		}
		b.add(a.Role, side, bal.Abs(), s.book.base, one, "Close "+a.Name)
		if a.Type == Revenue {
			net = net.Add(bal)
		} else {
			net = net.Sub(bal)
		}
	}
	if len(b.lines) == 0 {
		return nil, nil
	}
	switch {
	case net.IsPositive():
		b.credit(RoleRetainedEarnings, net, s.book.base, one, "Net income for the period")
	case net.IsNegative():
		b.debit(RoleRetainedEarnings, net.Neg(), s.book.base, one, "Net loss for the period")
	}
	e, err := s.record(b, asOf, ClosingEntry, fmt.Sprintf("Close period ending %s", asOf), refClose)
	if err != nil {
		return nil, err
	}
	c := e.clone()
	return &c, nil
}
