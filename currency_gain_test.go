package accounting

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

// foreignRoundTrip converts 1000 EUR to 1100 USD, buys 10 shares for 1000 USD
// and sells them for 1200 USD. convertBack converts the proceeds to EUR.
func foreignRoundTrip(t *testing.T, convertBack bool) *System {
	t.Helper()
	s := newTestSystem(t, WithRates(fixedRates{"USD": 0.9}))
	d, c := convert("fx", "2025-01-05", 1000, "EUR", 1100, "USD")
	txs := []Transaction{
		cash("dep", Deposit, "2025-01-01", 1000, "EUR"), d, c,
		buy("b1", "2025-01-10", "ACME", 10, 100, "USD"),
		sell("s1", "2025-03-01", "ACME", 10, 120, "USD"),
	}
	if convertBack {
		back1, back2 := convert("back", "2025-03-03", 1200, "USD", 1140, "EUR")
		txs = append(txs, back1, back2)
	}
	mustPost(t, s, txs...)
	if _, err := s.AllocateCurrencyLotsAndPostRealizedFX(context.Background()); err != nil {
		t.Fatalf("AllocateCurrencyLotsAndPostRealizedFX() error = %v", err)
	}
	return s
}

func TestRealizedCurrencyGain(t *testing.T) {
	testCases := []struct {
		name        string
		convertBack bool
		want        decimal.Decimal
	}{
		// 1000 USD of cost bought at 1/1.1 and converted back at 0.95.
		{"proceeds converted", true, D(40.91)},
		{"proceeds kept in USD", false, D(0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := foreignRoundTrip(t, tc.convertBack)
			got, err := s.RealizedCurrencyGain("ACME")
			if err != nil {
				t.Fatalf("RealizedCurrencyGain() error = %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("RealizedCurrencyGain() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRealizedCurrencyGain_BaseCurrency(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("b1", "2025-01-10", "ACME", 10, 100, "EUR"),
		sell("s1", "2025-03-01", "ACME", 10, 120, "EUR"),
	)
	got, err := s.RealizedCurrencyGain("ACME")
	if err != nil || !got.IsZero() {
		t.Errorf("RealizedCurrencyGain() = %s, %v want 0, nil", got, err)
	}
}

func TestRealizedCurrencyGain_StoredRate(t *testing.T) {
	s := newTestSystem(t, WithRates(fixedRates{"USD": 0.9}))
	b := buy("b1", "2025-01-10", "ACME", 10, 100, "USD")
	b.ExchangeRate = D(0.8)
	back1, back2 := convert("back", "2025-03-02", 1200, "USD", 1080, "EUR")
	mustPost(t, s, b, sell("s1", "2025-03-01", "ACME", 10, 120, "USD"), back1, back2)

	// No currency lot funded the purchase: 1000 × (0.90 − 0.80).
	got, err := s.RealizedCurrencyGain("ACME")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(D(100)) {
		t.Errorf("RealizedCurrencyGain() = %s, want 100", got)
	}
}

func TestUnrealizedCurrencyGain(t *testing.T) {
	s := newTestSystem(t, WithRates(fixedRates{"USD": 0.95}))
	_, c := convert("fx", "2025-01-05", 1000, "EUR", 1100, "USD")
	mustPost(t, s, c, buy("b1", "2025-01-10", "ACME", 11, 100, "USD"))
	if _, err := s.AllocateCurrencyLotsAndPostRealizedFX(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Open cost 1100 USD paid 1000 EUR, worth 1045 EUR now.
	got, err := s.UnrealizedCurrencyGain(context.Background(), "ACME", day("2025-06-30"))
	if err != nil {
		t.Fatalf("UnrealizedCurrencyGain() error = %v", err)
	}
	if !got.Equal(D(45)) {
		t.Errorf("UnrealizedCurrencyGain() = %s, want 45", got)
	}
}

func TestCurrencyGain_RealizedPlusUnrealized(t *testing.T) {
	testCases := []struct {
		name           string
		convertBack    bool
		wantRealized   decimal.Decimal
		wantUnrealized decimal.Decimal
	}{
		// The first purchase, 1100 USD paid 1000 EUR, is sold for 1100 USD
		// converted to 1045 EUR. The second, 1250 USD paid 1000 EUR, is held.
		{"proceeds converted", true, D(45), D(187.5)},
		// The proceeds of the first purchase stay in USD, worth 1045 EUR at 0.95.
		{"proceeds kept in USD", false, D(0), D(232.5)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSystem(t, WithRates(fixedRates{"USD": 0.95}))
			d1, c1 := convert("fx1", "2025-01-02", 1000, "EUR", 1100, "USD")
			d2, c2 := convert("fx2", "2025-01-03", 1000, "EUR", 1250, "USD")
			txs := []Transaction{
				cash("dep", Deposit, "2025-01-01", 2000, "EUR"), d1, c1, d2, c2,
				buy("b1", "2025-01-10", "ACME", 11, 100, "USD"),
				buy("b2", "2025-01-20", "ACME", 10, 125, "USD"),
				sell("s1", "2025-03-01", "ACME", 11, 100, "USD"),
			}
			if tc.convertBack {
				back1, back2 := convert("back", "2025-03-03", 1100, "USD", 1045, "EUR")
				txs = append(txs, back1, back2)
			}
			mustPost(t, s, txs...)
			if _, err := s.AllocateCurrencyLotsAndPostRealizedFX(context.Background()); err != nil {
				t.Fatal(err)
			}

			realized, err := s.RealizedCurrencyGain("ACME")
			if err != nil {
				t.Fatalf("RealizedCurrencyGain() error = %v", err)
			}
			unrealized, err := s.UnrealizedCurrencyGain(context.Background(), "ACME", day("2025-06-30"))
			if err != nil {
				t.Fatalf("UnrealizedCurrencyGain() error = %v", err)
			}
			if !realized.Equal(tc.wantRealized) {
				t.Errorf("RealizedCurrencyGain() = %s, want %s", realized, tc.wantRealized)
			}
			if !unrealized.Equal(tc.wantUnrealized) {
				t.Errorf("UnrealizedCurrencyGain() = %s, want %s", unrealized, tc.wantUnrealized)
			}
			// Every dollar of cost is either realized or still exposed:
			// 1100 × (0.95 − 1000/1100) + 1250 × (0.95 − 1000/1250).
			if total := realized.Add(unrealized); !total.Equal(D(232.5)) {
				t.Errorf("realized + unrealized = %s, want 232.5", total)
			}
		})
	}
}

func TestUnrealizedCurrencyGain_AsOf(t *testing.T) {
	s := newTestSystem(t, WithRates(fixedRates{"USD": 0.95}))
	_, c := convert("fx", "2025-01-05", 1000, "EUR", 1100, "USD")
	mustPost(t, s, c, buy("b1", "2025-01-10", "ACME", 11, 100, "USD"))
	if _, err := s.AllocateCurrencyLotsAndPostRealizedFX(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err := s.UnrealizedCurrencyGain(context.Background(), "ACME", day("2025-01-09"))
	if err != nil || !got.IsZero() {
		t.Errorf("UnrealizedCurrencyGain() before the purchase = %s, %v, want 0, nil", got, err)
	}
}
