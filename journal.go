package accounting

import (
	"fmt"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// EntryType is the nature of a journal entry.
type EntryType string

const (
	OpeningBalance   EntryType = "OPENING_BALANCE"
	TransactionEntry EntryType = "TRANSACTION"
	AdjustmentEntry  EntryType = "ADJUSTMENT"
	AccrualEntry     EntryType = "ACCRUAL"
	ReversalEntry    EntryType = "REVERSAL"
	ClosingEntry     EntryType = "CLOSING"
)

// EntryStatus is the lifecycle state of a journal entry. Only posted entries
// contribute to balances.
type EntryStatus string

const (
	Draft    EntryStatus = "DRAFT"
	Posted   EntryStatus = "POSTED"
	Reversed EntryStatus = "REVERSED"
)

// References of system generated entries.
const (
	refSecuritiesMTM = "mark-to-market:securities"
	refCurrencyMTM   = "mark-to-market:currency"
	refClearing      = "currency-clearing"
	refClose         = "period-close"
	refRealizedFX    = "realized-fx:" // followed by the purchase transaction id
)

// JournalEntry is a dated, numbered set of journal lines.
// Reference holds the source transaction id for transaction entries.
type JournalEntry struct {
	ID          string
	PortfolioID string
	Number      int
	EntryDate   date.Date
	PostingDate date.Date
	Type        EntryType
	Status      EntryStatus
	Description string
	Reference   string
	Lines       []JournalLine
}

// JournalLine is a single debit or credit on one account, in the base currency.
// Lines originating in another currency keep the original amount, currency
// and rate in the Foreign fields.
type JournalLine struct {
	ID              string
	EntryID         string
	AccountID       string
	LineNumber      int
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Currency        string
	ForeignAmount   decimal.Decimal
	ForeignCurrency string
	ExchangeRate    decimal.Decimal
	Description     string
}

// IsForeign reports whether the line was converted from another currency.
func (l JournalLine) IsForeign() bool { return l.ForeignCurrency != "" }

// Net returns debit minus credit.
func (l JournalLine) Net() decimal.Decimal { return l.Debit.Sub(l.Credit) }

// Totals returns the sum of debits and credits of the entry.
func (e *JournalEntry) Totals() (debits, credits decimal.Decimal) {
	for _, l := range e.Lines {
		debits = debits.Add(l.Debit)
		credits = credits.Add(l.Credit)
	}
	return debits, credits
}

// IsBalanced reports whether debits equal credits within the balance tolerance.
func (e *JournalEntry) IsBalanced() bool {
	d, c := e.Totals()
	return d.Sub(c).Abs().LessThanOrEqual(balanceTolerance)
}

// validate checks line shape and balance. An unbalanced entry is fatal.
func (e *JournalEntry) validate() error {
	if len(e.Lines) < 2 {
		return fmt.Errorf("journal entry %d has %d lines, want at least 2", e.Number, len(e.Lines))
	}
	for _, l := range e.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("journal entry %d line %d has a negative amount", e.Number, l.LineNumber)
		}
		if l.Debit.IsZero() == l.Credit.IsZero() {
			return fmt.Errorf("journal entry %d line %d must have exactly one of debit or credit", e.Number, l.LineNumber)
		}
	}
	if !e.IsBalanced() {
		d, c := e.Totals()
		return &UnbalancedEntryError{EntryNumber: e.Number, Debits: d, Credits: c}
	}
	return nil
}

// clone returns a deep copy of the entry.
func (e *JournalEntry) clone() JournalEntry {
	c := *e
	c.Lines = append([]JournalLine(nil), e.Lines...)
	return c
}
