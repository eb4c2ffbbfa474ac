package accounting

import (
	"errors"
	"fmt"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// ErrFatal is matched by errors that must abort a batch and restore the
// pre-batch state: unbalanced entries and an inconsistent chart of accounts.
var ErrFatal = errors.New("fatal ledger inconsistency")

// ErrAlreadyPosted is returned when a transaction already has a journal entry.
var ErrAlreadyPosted = errors.New("transaction already posted")

// UnbalancedEntryError reports a journal entry whose debits and credits differ.
type UnbalancedEntryError struct {
	EntryNumber int
	Debits      decimal.Decimal
	Credits     decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("journal entry %d is not balanced: DR=%s CR=%s", e.EntryNumber, e.Debits, e.Credits)
}

func (e *UnbalancedEntryError) Is(target error) bool { return target == ErrFatal }

// MissingAccountError reports a role absent from the chart of accounts.
type MissingAccountError struct {
	Role Role
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("chart of accounts has no %q account", e.Role)
}

func (e *MissingAccountError) Is(target error) bool { return target == ErrFatal }

// InsufficientLotsError reports a sale larger than the open quantity of a holding.
type InsufficientLotsError struct {
	Holding   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient lots to sell %s shares of %s: only %s available", e.Requested, e.Holding, e.Available)
}

// InsufficientCurrencyError reports a foreign purchase that currency lots cannot fund.
type InsufficientCurrencyError struct {
	Currency  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCurrencyError) Error() string {
	if e.Available.IsZero() {
		return fmt.Sprintf("no %s currency lots available for %s", e.Currency, e.Requested)
	}
	return fmt.Sprintf("insufficient %s currency lots: need %s, only %s available", e.Currency, e.Requested, e.Available)
}

// MissingExchangeRateError reports that no rate could be found for a currency pair.
type MissingExchangeRateError struct {
	From, To string
	On       date.Date
	Err      error
}

func (e *MissingExchangeRateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no %s/%s exchange rate on %s: %v", e.From, e.To, e.On, e.Err)
	}
	return fmt.Sprintf("no %s/%s exchange rate on %s", e.From, e.To, e.On)
}

func (e *MissingExchangeRateError) Unwrap() error { return e.Err }

// DuplicateLotError reports a second currency lot for the same conversion.
// CreateCurrencyLot treats it as a no-op and returns the existing lot.
type DuplicateLotError struct {
	ConversionID string
	LotID        string
}

func (e *DuplicateLotError) Error() string {
	return fmt.Sprintf("conversion %s already has currency lot %s", e.ConversionID, e.LotID)
}

// PendingSplitError reports a sale processed before a split that precedes it.
type PendingSplitError struct {
	Ticker    string
	SplitDate date.Date
}

func (e *PendingSplitError) Error() string {
	return fmt.Sprintf("split of %s on %s must be applied before selling", e.Ticker, e.SplitDate)
}

// TransactionError ties a batch failure to its source transaction.
type TransactionError struct {
	TransactionID string
	Type          TransactionType
	Date          date.Date
	Err           error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s (%s, %s): %v", e.TransactionID, e.Date, e.Type, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
