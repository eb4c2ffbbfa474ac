package accounting

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// TransactionType is the kind of a brokerage transaction.
type TransactionType string

const (
	Buy          TransactionType = "BUY"
	Sell         TransactionType = "SELL"
	Dividend     TransactionType = "DIVIDEND"
	Distribution TransactionType = "DISTRIBUTION"
	Interest     TransactionType = "INTEREST"
	Reward       TransactionType = "REWARD"
	Deposit      TransactionType = "DEPOSIT"
	Withdrawal   TransactionType = "WITHDRAWAL"
	Conversion   TransactionType = "CONVERSION"
	Fee          TransactionType = "FEE"
	Tax          TransactionType = "TAX"
	Adjustment   TransactionType = "ADJUSTMENT"
)

var transactionTypes = []TransactionType{Buy, Sell, Dividend, Distribution, Interest, Reward, Deposit, Withdrawal, Conversion, Fee, Tax, Adjustment}

// ParseTransactionType parses a transaction type, case insensitive.
func ParseTransactionType(s string) (TransactionType, error) {
	for _, t := range transactionTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type: %q", s)
}

// Direction tells which side of the cash account a conversion leg or an
// adjustment hits.
type Direction string

const (
	Debit  Direction = "D" // cash leaves the account
	Credit Direction = "C" // cash arrives in the account
)

// Transaction is a normalized brokerage transaction. It is input to the
// ledger and is never modified by it.
//
// A currency conversion is recorded as two CONVERSION legs: the debit leg
// (Direction D) for the currency given up and the credit leg (Direction C)
// for the currency received. On the credit leg FromCurrency and FromAmount
// describe what was given up.
//
// ExchangeRate is the base currency value of one unit of Currency. A zero or
// exactly 1 rate on a foreign transaction means the rate is unknown and is
// looked up when posting.
type Transaction struct {
	ID           string          `json:"id"`
	Seq          int64           `json:"seq,omitzero"`
	Account      string          `json:"account,omitzero"`
	Holding      string          `json:"holding,omitzero"`
	Ticker       string          `json:"ticker,omitzero"`
	Type         TransactionType `json:"type"`
	Date         date.Date       `json:"date"`
	Quantity     decimal.Decimal `json:"quantity,omitzero"`
	Price        decimal.Decimal `json:"price,omitzero"`
	Amount       decimal.Decimal `json:"amount,omitzero"`
	Currency     string          `json:"currency"`
	Fees         decimal.Decimal `json:"fees,omitzero"`
	TaxAmount    decimal.Decimal `json:"tax_amount,omitzero"`
	ExchangeRate decimal.Decimal `json:"exchange_rate,omitzero"`
	Direction    Direction       `json:"direction,omitzero"`
	FromCurrency string          `json:"from_currency,omitzero"`
	FromAmount   decimal.Decimal `json:"from_amount,omitzero"`
	Notes        string          `json:"notes,omitzero"`
}

// Gross returns quantity×price for trades, or Amount when either is missing.
func (tx Transaction) Gross() decimal.Decimal {
	if !tx.Quantity.IsZero() && !tx.Price.IsZero() {
		return tx.Quantity.Mul(tx.Price)
	}
	return tx.Amount
}

// rateIsSet reports whether the stored exchange rate can be used as is.
func (tx Transaction) rateIsSet() bool {
	return tx.ExchangeRate.IsPositive() && !tx.ExchangeRate.Equal(decimal.NewFromInt(1))
}

// Validate checks the fields required by the transaction type.
func (tx Transaction) Validate() error {
	var errs []error
	if tx.ID == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if tx.Currency == "" {
		errs = append(errs, errors.New("missing currency"))
	}
	if tx.ExchangeRate.IsNegative() {
		errs = append(errs, errors.New("exchange rate must be positive"))
	}
	switch tx.Type {
	case Buy, Sell:
		if tx.Holding == "" || tx.Ticker == "" {
			errs = append(errs, fmt.Errorf("%s requires a holding and a ticker", tx.Type))
		}
		if !tx.Quantity.IsPositive() || !tx.Price.IsPositive() {
			errs = append(errs, fmt.Errorf("%s requires a positive quantity and price", tx.Type))
		}
	case Dividend, Distribution, Interest, Reward, Deposit, Withdrawal, Fee, Tax:
		if !tx.Amount.IsPositive() {
			errs = append(errs, fmt.Errorf("%s requires a positive amount", tx.Type))
		}
		if tx.TaxAmount.IsNegative() || tx.TaxAmount.GreaterThan(tx.Amount) {
			errs = append(errs, fmt.Errorf("tax amount %s out of range", tx.TaxAmount))
		}
	case Conversion:
		if !tx.Amount.IsPositive() {
			errs = append(errs, errors.New("CONVERSION requires a positive amount"))
		}
		if tx.Direction != Debit && tx.Direction != Credit {
			errs = append(errs, fmt.Errorf("CONVERSION requires direction D or C, got %q", tx.Direction))
		}
		if tx.Direction == Credit && (tx.FromCurrency == "" || !tx.FromAmount.IsPositive()) {
			errs = append(errs, errors.New("CONVERSION credit leg requires from currency and amount"))
		}
	case Adjustment:
		if tx.Amount.IsZero() {
			errs = append(errs, errors.New("ADJUSTMENT requires a non zero amount"))
		}
		if tx.Direction != Debit && tx.Direction != Credit {
			errs = append(errs, fmt.Errorf("ADJUSTMENT requires direction D or C, got %q", tx.Direction))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transaction type %q", tx.Type))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid transaction %s: %w", tx.ID, err)
	}
	return nil
}

// SortTransactions sorts transactions by date, then by sequence, then by id.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
}

// DecodeTransactions reads transactions from a JSONL stream.
func DecodeTransactions(r io.Reader) ([]Transaction, error) {
	var txs []Transaction
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal([]byte(text), &tx); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tx.Seq == 0 {
			tx.Seq = int64(line)
		}
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

// EncodeTransaction writes a single transaction as one JSONL line.
func EncodeTransaction(w io.Writer, tx Transaction) error {
	b, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
