package accounting

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// EUR is a helper for test to create euro money from const
func EUR(v float64) Money { return M(v, "EUR") }

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// day parses a test date.
func day(s string) date.Date { return date.MustParse(s) }

// decimals compares decimals by value and dates by day.
var decimals = cmp.Options{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b date.Date) bool { return a == b }),
	cmp.Comparer(func(a, b Money) bool { return a.Equal(b) }),
}

// fixedRates is a RateSource with one rate per currency to EUR.
type fixedRates map[string]float64

func (r fixedRates) Rate(_ context.Context, from, to string, on date.Date) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if to == "EUR" {
		if v, ok := r[from]; ok {
			return D(v), nil
		}
	}
	return decimal.Zero, &MissingExchangeRateError{From: from, To: to, On: on}
}

// livePrices is a LivePrices backed by a map.
type livePrices map[string]float64

func (p livePrices) CurrentPrice(_ context.Context, ticker string) (decimal.Decimal, bool, error) {
	v, ok := p[ticker]
	return D(v), ok, nil
}

// newTestSystem returns a System keeping an empty EUR book.
func newTestSystem(t *testing.T, opts ...Option) *System {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() date.Date { return day("2025-06-30") }),
	}, opts...)
	s, err := NewSystem(NewBook("test", "EUR"), opts...)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	return s
}

// mustPost posts transactions and fails the test on the first error.
func mustPost(t *testing.T, s *System, txs ...Transaction) {
	t.Helper()
	for _, tx := range txs {
		if _, err := s.Post(context.Background(), tx); err != nil {
			t.Fatalf("Post(%s) error = %v", tx.ID, err)
		}
	}
}

// balance returns the balance of role as of a far away day.
func balance(t *testing.T, s *System, role Role) decimal.Decimal {
	t.Helper()
	b, err := s.Balance(role, day("2100-01-01"))
	if err != nil {
		t.Fatalf("Balance(%s) error = %v", role, err)
	}
	return b
}

func buy(id, on, holding string, qty, price float64, cur string) Transaction {
	return Transaction{ID: id, Type: Buy, Date: day(on), Holding: holding, Ticker: holding, Quantity: D(qty), Price: D(price), Currency: cur}
}

func sell(id, on, holding string, qty, price float64, cur string) Transaction {
	return Transaction{ID: id, Type: Sell, Date: day(on), Holding: holding, Ticker: holding, Quantity: D(qty), Price: D(price), Currency: cur}
}

func cash(id string, typ TransactionType, on string, amount float64, cur string) Transaction {
	return Transaction{ID: id, Type: typ, Date: day(on), Amount: D(amount), Currency: cur}
}

// convert returns both legs of a conversion of amount from into received to.
func convert(id, on string, amount float64, from string, received float64, to string) (Transaction, Transaction) {
	d := Transaction{ID: id + "-d", Type: Conversion, Date: day(on), Direction: Debit, Amount: D(amount), Currency: from}
	c := Transaction{ID: id + "-c", Type: Conversion, Date: day(on), Direction: Credit, Amount: D(received), Currency: to, FromCurrency: from, FromAmount: D(amount)}
	return d, c
}
