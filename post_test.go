package accounting

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestPost_Dividend(t *testing.T) {
	s := newTestSystem(t)
	tx := cash("div", Dividend, "2025-03-01", 100, "EUR")
	tx.TaxAmount = D(15)

	e, err := s.Post(context.Background(), tx)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if len(e.Lines) != 3 || !e.IsBalanced() {
		t.Fatalf("Post() = %d lines, balanced %v, want 3 balanced lines", len(e.Lines), e.IsBalanced())
	}
	if e.Type != TransactionEntry || e.Status != Posted || e.Reference != "div" || e.Number != 1 {
		t.Errorf("Post() entry = %+v", e)
	}

	want := map[Role]decimal.Decimal{
		RoleCash:           D(85),
		RoleTaxes:          D(15),
		RoleDividendIncome: D(100),
	}
	for role, w := range want {
		if got := balance(t, s, role); !got.Equal(w) {
			t.Errorf("Balance(%s) = %s, want %s", role, got, w)
		}
	}
}

func TestPost_Rules(t *testing.T) {
	testCases := []struct {
		name  string
		tx    Transaction
		debit Role
		cred  Role
	}{
		{"deposit", cash("t", Deposit, "2025-01-01", 50, "EUR"), RoleCash, RoleCapital},
		{"withdrawal", cash("t", Withdrawal, "2025-01-01", 50, "EUR"), RoleCapital, RoleCash},
		{"fee", cash("t", Fee, "2025-01-01", 50, "EUR"), RoleFees, RoleCash},
		{"tax", cash("t", Tax, "2025-01-01", 50, "EUR"), RoleTaxes, RoleCash},
		{"interest", cash("t", Interest, "2025-01-01", 50, "EUR"), RoleCash, RoleInterestIncome},
		{"reward", cash("t", Reward, "2025-01-01", 50, "EUR"), RoleCash, RoleDividendIncome},
		{"distribution", cash("t", Distribution, "2025-01-01", 50, "EUR"), RoleCash, RoleDividendIncome},
		{"buy", buy("t", "2025-01-01", "AAPL", 5, 10, "EUR"), RoleInvestments, RoleCash},
		{"adjustment in", Transaction{ID: "t", Type: Adjustment, Date: day("2025-01-01"), Amount: D(50), Currency: "EUR", Direction: Credit}, RoleCash, RoleCapital},
		{"adjustment out", Transaction{ID: "t", Type: Adjustment, Date: day("2025-01-01"), Amount: D(50), Currency: "EUR", Direction: Debit}, RoleCapital, RoleCash},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSystem(t)
			e, err := s.Post(context.Background(), tc.tx)
			if err != nil {
				t.Fatalf("Post() error = %v", err)
			}
			if len(e.Lines) != 2 {
				t.Fatalf("Post() = %d lines, want 2", len(e.Lines))
			}
			dr, _ := s.Chart().Account(tc.debit)
			cr, _ := s.Chart().Account(tc.cred)
			if e.Lines[0].AccountID != dr.ID || !e.Lines[0].Debit.Equal(D(50)) {
				t.Errorf("line 1 = %s DR %s, want %s DR 50", e.Lines[0].AccountID, e.Lines[0].Debit, dr.Name)
			}
			if e.Lines[1].AccountID != cr.ID || !e.Lines[1].Credit.Equal(D(50)) {
				t.Errorf("line 2 = %s CR %s, want %s CR 50", e.Lines[1].AccountID, e.Lines[1].Credit, cr.Name)
			}
		})
	}
}

func TestPost_AlreadyPosted(t *testing.T) {
	s := newTestSystem(t)
	tx := cash("dep", Deposit, "2025-01-01", 10, "EUR")
	mustPost(t, s, tx)
	if _, err := s.Post(context.Background(), tx); !errors.Is(err, ErrAlreadyPosted) {
		t.Errorf("Post() twice error = %v, want ErrAlreadyPosted", err)
	}
	if got := len(s.Entries()); got != 1 {
		t.Errorf("Entries() = %d, want 1", got)
	}
}

func TestPost_Invalid(t *testing.T) {
	s := newTestSystem(t)
	tx := cash("dep", Deposit, "2025-01-01", -10, "EUR")
	if _, err := s.Post(context.Background(), tx); err == nil {
		t.Error("Post() negative deposit succeeded")
	}
}

func TestPost_ForeignCurrency(t *testing.T) {
	s := newTestSystem(t, WithRates(fixedRates{"USD": 0.9}))
	e, err := s.Post(context.Background(), cash("dep", Deposit, "2025-01-01", 500, "USD"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	want := JournalLine{
		Debit:           D(450),
		Currency:        "EUR",
		ForeignAmount:   D(500),
		ForeignCurrency: "USD",
		ExchangeRate:    D(0.9),
		Description:     "Deposit to account",
	}
	got := e.Lines[0]
	got.ID, got.EntryID, got.AccountID, got.LineNumber = "", "", "", 0
	if diff := cmp.Diff(want, got, decimals); diff != "" {
		t.Errorf("Post() cash line mismatch (-want +got):\n%s", diff)
	}
}

func TestPost_StoredRate(t *testing.T) {
	s := newTestSystem(t)
	tx := cash("dep", Deposit, "2025-01-01", 100, "USD")
	tx.ExchangeRate = D(0.8)
	mustPost(t, s, tx)
	if got := balance(t, s, RoleCash); !got.Equal(D(80)) {
		t.Errorf("Balance(cash) = %s, want 80", got)
	}
}

func TestPost_MissingRate(t *testing.T) {
	s := newTestSystem(t)
	tx := cash("dep", Deposit, "2025-01-01", 100, "USD")
	tx.ExchangeRate = D(1) // unset
	_, err := s.Post(context.Background(), tx)
	var missing *MissingExchangeRateError
	if !errors.As(err, &missing) {
		t.Fatalf("Post() error = %v, want MissingExchangeRateError", err)
	}
	if missing.From != "USD" || missing.To != "EUR" {
		t.Errorf("MissingExchangeRateError = %+v", missing)
	}
	if len(s.Entries()) != 0 {
		t.Error("Post() left an entry behind")
	}
}

func TestPost_RoundingResidue(t *testing.T) {
	s := newTestSystem(t, WithRates(fixedRates{"USD": 0.333}))
	tx := cash("div", Dividend, "2025-01-01", 1, "USD")
	tx.TaxAmount = D(0.5)
	e, err := s.Post(context.Background(), tx)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	debits, credits := e.Totals()
	if !debits.Equal(credits) {
		t.Errorf("Totals() = %s / %s, want equal", debits, credits)
	}
	if got := balance(t, s, RoleDividendIncome); !got.Equal(D(0.34)) {
		t.Errorf("Balance(dividend income) = %s, want 0.34", got)
	}
}

func TestPost_Conversion(t *testing.T) {
	s := newTestSystem(t)
	d, c := convert("fx", "2025-01-05", 1000, "EUR", 1100, "USD")
	mustPost(t, s, cash("dep", Deposit, "2025-01-01", 1000, "EUR"), d, c)

	if got := balance(t, s, RoleCurrencyClearing); !got.IsZero() {
		t.Errorf("Balance(clearing) = %s, want 0", got)
	}
	if got := balance(t, s, RoleCash); !got.Equal(D(1000)) {
		t.Errorf("Balance(cash) = %s, want 1000", got)
	}
	lots := s.CurrencyLots()
	if len(lots) != 1 || lots[0].ConversionID != c.ID || !lots[0].Remaining.Equal(D(1100)) {
		t.Errorf("CurrencyLots() = %+v, want one lot of 1100 USD", lots)
	}
}

func TestPost_ConversionWithExistingLot(t *testing.T) {
	s := newTestSystem(t)
	_, c := convert("fx", "2025-01-05", 1000, "EUR", 1100, "USD")
	lot, err := s.CreateCurrencyLot(c)
	if err != nil {
		t.Fatalf("CreateCurrencyLot() error = %v", err)
	}

	e, err := s.Post(context.Background(), c)
	if err != nil {
		t.Fatalf("Post() error = %v, want the leg posted", err)
	}
	if e.Reference != c.ID || len(s.Entries()) != 1 {
		t.Errorf("Post() = %+v, want one entry for %s", e, c.ID)
	}
	lots := s.CurrencyLots()
	if len(lots) != 1 || lots[0].ID != lot.ID {
		t.Errorf("CurrencyLots() = %+v, want the existing lot only", lots)
	}
}

func TestPost_SellRecognizesGain(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("b1", "2025-01-10", "AAPL", 10, 100, "EUR"),
		sell("s1", "2025-02-10", "AAPL", 4, 150, "EUR"),
	)
	want := map[Role]decimal.Decimal{
		RoleInvestments:  D(600),
		RoleCash:         D(-400),
		RoleCapitalGains: D(200),
	}
	for role, w := range want {
		if got := balance(t, s, role); !got.Equal(w) {
			t.Errorf("Balance(%s) = %s, want %s", role, got, w)
		}
	}
	allocs := s.Allocations("s1")
	if len(allocs) != 1 {
		t.Fatalf("Allocations() = %d, want 1", len(allocs))
	}
	wantAlloc := SecurityAllocation{Quantity: D(4), CostBasis: D(400), Proceeds: D(600), RealizedGainLoss: D(200)}
	got := allocs[0]
	got.ID, got.LotID, got.SellTransactionID = "", "", ""
	if diff := cmp.Diff(wantAlloc, got, decimals); diff != "" {
		t.Errorf("Allocations() mismatch (-want +got):\n%s", diff)
	}
}

func TestPost_SellLoss(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("b1", "2025-01-10", "AAPL", 10, 100, "EUR"),
		sell("s1", "2025-02-10", "AAPL", 10, 80, "EUR"),
	)
	if got := balance(t, s, RoleCapitalLosses); !got.Equal(D(200)) {
		t.Errorf("Balance(capital losses) = %s, want 200", got)
	}
	if got := balance(t, s, RoleInvestments); !got.IsZero() {
		t.Errorf("Balance(investments) = %s, want 0", got)
	}
}

func TestPost_SellAtProceeds(t *testing.T) {
	s := newTestSystem(t, WithRealizedGains(false))
	mustPost(t, s,
		buy("b1", "2025-01-10", "AAPL", 10, 100, "EUR"),
		sell("s1", "2025-02-10", "AAPL", 4, 150, "EUR"),
	)
	if got := balance(t, s, RoleInvestments); !got.Equal(D(400)) {
		t.Errorf("Balance(investments) = %s, want 400", got)
	}
	if got := balance(t, s, RoleCapitalGains); !got.IsZero() {
		t.Errorf("Balance(capital gains) = %s, want 0", got)
	}
}

func TestPost_SellInsufficient(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s, buy("b1", "2025-01-10", "AAPL", 10, 100, "EUR"))
	_, err := s.Post(context.Background(), sell("s1", "2025-02-10", "AAPL", 11, 150, "EUR"))
	var insufficient *InsufficientLotsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Post() error = %v, want InsufficientLotsError", err)
	}
	if !insufficient.Available.Equal(D(10)) {
		t.Errorf("Available = %s, want 10", insufficient.Available)
	}
	if errors.Is(err, ErrFatal) {
		t.Error("InsufficientLotsError must not be fatal")
	}
	if lots := s.Lots("AAPL"); !lots[0].Remaining.Equal(D(10)) {
		t.Errorf("Remaining = %s, want 10", lots[0].Remaining)
	}
}

func TestEntryValidate(t *testing.T) {
	testCases := []struct {
		name    string
		lines   []JournalLine
		wantErr bool
		fatal   bool
	}{
		{"balanced", []JournalLine{{Debit: D(10)}, {Credit: D(10)}}, false, false},
		{"within tolerance", []JournalLine{{Debit: D(10)}, {Credit: D(9.99)}}, false, false},
		{"unbalanced", []JournalLine{{Debit: D(10)}, {Credit: D(9.98)}}, true, true},
		{"single line", []JournalLine{{Debit: D(10)}}, true, false},
		{"both sides", []JournalLine{{Debit: D(10), Credit: D(10)}, {Credit: D(0)}}, true, false},
		{"negative", []JournalLine{{Debit: D(-10)}, {Credit: D(-10)}}, true, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := &JournalEntry{Number: 7, Lines: tc.lines}
			err := e.validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if errors.Is(err, ErrFatal) != tc.fatal {
				t.Errorf("errors.Is(%v, ErrFatal) = %v, want %v", err, !tc.fatal, tc.fatal)
			}
		})
	}
}
