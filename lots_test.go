package accounting

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
)

func TestSplitThenSell(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s, buy("b1", "2024-01-10", "ACME", 100, 10, "EUR"))

	split, err := NewSplit("ACME", day("2024-02-01"), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.ApplySplit(split)
	if err != nil || n != 1 {
		t.Fatalf("ApplySplit() = %d, %v want 1, nil", n, err)
	}

	want := SecurityLot{
		Holding:          "ACME",
		TransactionID:    "b1",
		Ticker:           "ACME",
		PurchaseDate:     day("2024-01-10"),
		Quantity:         D(200),
		Remaining:        D(200),
		CostPerShare:     D(5),
		TotalCost:        D(1000),
		CostPerShareBase: D(5),
		TotalCostBase:    D(1000),
		Currency:         "EUR",
		ExchangeRate:     D(1),
		AppliedSplits:    []string{split.ID},
	}
	lots := s.Lots("ACME")
	if diff := cmp.Diff([]SecurityLot{want}, lots, decimals, cmpopts.IgnoreFields(SecurityLot{}, "ID")); diff != "" {
		t.Errorf("Lots() after split mismatch (-want +got):\n%s", diff)
	}

	mustPost(t, s, sell("s1", "2024-03-01", "ACME", 150, 6, "EUR"))
	lots = s.Lots("ACME")
	if !lots[0].Remaining.Equal(D(50)) || lots[0].Closed {
		t.Errorf("Remaining = %s (closed %v), want 50 open", lots[0].Remaining, lots[0].Closed)
	}
	allocs := s.Allocations("s1")
	if len(allocs) != 1 || !allocs[0].CostBasis.Equal(D(750)) {
		t.Errorf("Allocations() = %+v, want cost basis 750", allocs)
	}
}

func TestApplySplit_Idempotent(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("b1", "2024-01-10", "ACME", 100, 10, "EUR"),
		buy("b2", "2024-03-10", "ACME", 10, 6, "EUR"),
	)
	split, _ := NewSplit("ACME", day("2024-02-01"), 1, 2)
	if n, _ := s.ApplySplit(split); n != 1 {
		t.Errorf("ApplySplit() = %d, want 1 (lot bought after the split is left alone)", n)
	}
	if n, _ := s.ApplySplit(split); n != 0 {
		t.Errorf("ApplySplit() again = %d, want 0", n)
	}
	var total decimal.Decimal
	for _, l := range s.Lots("ACME") {
		total = total.Add(l.TotalCost)
	}
	if !total.Equal(D(1060)) {
		t.Errorf("sum(TotalCost) = %s, want 1060", total)
	}
}

func TestAllocateFIFO_PendingSplit(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s, buy("b1", "2024-01-10", "ACME", 100, 10, "EUR"))
	split, _ := NewSplit("ACME", day("2024-02-01"), 1, 2)
	s.AddSplits(split)

	_, err := s.AllocateFIFO(context.Background(), sell("s1", "2024-03-01", "ACME", 150, 6, "EUR"))
	var pending *PendingSplitError
	if !errors.As(err, &pending) {
		t.Fatalf("AllocateFIFO() error = %v, want PendingSplitError", err)
	}
	if lots := s.Lots("ACME"); !lots[0].Remaining.Equal(D(100)) {
		t.Errorf("Remaining = %s, want untouched 100", lots[0].Remaining)
	}

	// Posting applies the pending split first.
	mustPost(t, s, sell("s1", "2024-03-01", "ACME", 150, 6, "EUR"))
	if lots := s.Lots("ACME"); !lots[0].Remaining.Equal(D(50)) {
		t.Errorf("Remaining = %s, want 50", lots[0].Remaining)
	}
}

func TestAllocateFIFO_Order(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("late", "2025-02-01", "ACME", 10, 20, "EUR"),
		buy("early", "2025-01-01", "ACME", 10, 10, "EUR"),
		buy("same-day", "2025-01-01", "ACME", 10, 15, "EUR"),
	)
	allocs, err := s.AllocateFIFO(context.Background(), sell("s1", "2025-03-01", "ACME", 15, 30, "EUR"))
	if err != nil {
		t.Fatalf("AllocateFIFO() error = %v", err)
	}
	got := make(map[string]decimal.Decimal)
	for _, l := range s.Lots("ACME") {
		got[l.TransactionID] = l.Remaining
	}
	want := map[string]decimal.Decimal{"early": D(0), "same-day": D(5), "late": D(10)}
	if diff := cmp.Diff(want, got, decimals); diff != "" {
		t.Errorf("remaining per lot mismatch (-want +got):\n%s", diff)
	}
	if len(allocs) != 2 || !allocs[0].CostBasis.Equal(D(100)) || !allocs[1].CostBasis.Equal(D(75)) {
		t.Errorf("AllocateFIFO() = %+v, want cost bases 100 and 75", allocs)
	}
	// Proceeds are spread pro rata: 450 for 15 shares.
	if !allocs[0].Proceeds.Add(allocs[1].Proceeds).Equal(D(450)) || !allocs[0].Proceeds.Equal(D(300)) {
		t.Errorf("Proceeds = %s + %s, want 300 + 150", allocs[0].Proceeds, allocs[1].Proceeds)
	}
}

func TestAllocateFIFO_Conservation(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("b1", "2025-01-01", "ACME", 10, 10, "EUR"),
		buy("b2", "2025-01-05", "ACME", 7.5, 12, "EUR"),
		sell("s1", "2025-02-01", "ACME", 3, 11, "EUR"),
		buy("b3", "2025-02-05", "ACME", 4, 9, "EUR"),
		sell("s2", "2025-03-01", "ACME", 12.25, 13, "EUR"),
	)
	var remaining, allocated decimal.Decimal
	for _, l := range s.Lots("ACME") {
		remaining = remaining.Add(l.Remaining)
	}
	for _, id := range []string{"s1", "s2"} {
		for _, a := range s.Allocations(id) {
			allocated = allocated.Add(a.Quantity)
		}
	}
	if got := remaining.Add(allocated); !got.Equal(D(21.5)) {
		t.Errorf("remaining + allocated = %s, want 21.5 bought", got)
	}
}

func TestAllocateFIFO_EpsilonShortfall(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s, buy("b1", "2025-01-01", "ACME", 1, 10, "EUR"))
	tx := sell("s1", "2025-02-01", "ACME", 1, 10, "EUR")
	tx.Quantity = D(1).Add(decimal.New(1, -9))
	if _, err := s.AllocateFIFO(context.Background(), tx); err != nil {
		t.Fatalf("AllocateFIFO() error = %v, want shortfall below epsilon tolerated", err)
	}
	if lots := s.Lots("ACME"); !lots[0].Closed {
		t.Error("lot not closed")
	}
}

func TestReprocessSells_SaleBeforeSplit(t *testing.T) {
	s := newTestSystem(t)
	mustPost(t, s,
		buy("b1", "2024-01-10", "ACME", 100, 10, "EUR"),
		sell("s1", "2024-01-20", "ACME", 40, 12, "EUR"),
	)
	split, _ := NewSplit("ACME", day("2024-02-01"), 1, 2)
	s.AddSplits(split)
	if _, err := s.ApplyAllStockSplits(); err != nil {
		t.Fatal(err)
	}
	if lots := s.Lots("ACME"); !lots[0].Remaining.Equal(D(120)) {
		t.Fatalf("Remaining after split = %s, want 120", lots[0].Remaining)
	}

	n, err := s.ReprocessSells(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ReprocessSells() = %d, %v want 1, nil", n, err)
	}
	if lots := s.Lots("ACME"); !lots[0].Remaining.Equal(D(120)) {
		t.Errorf("Remaining after reprocessing = %s, want 120", lots[0].Remaining)
	}
	allocs := s.Allocations("s1")
	if len(allocs) != 1 || !allocs[0].Quantity.Equal(D(40)) || !allocs[0].CostBasis.Equal(D(400)) {
		t.Errorf("Allocations() = %+v, want 40 shares at cost 400", allocs)
	}
	if got := len(s.Entries()); got != 2 {
		t.Errorf("Entries() = %d, want 2", got)
	}
}

func TestNewSplit(t *testing.T) {
	sp, err := NewSplit("ACME", day("2024-02-01"), 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !sp.Ratio.Equal(D(1.5)) {
		t.Errorf("Ratio = %s, want 1.5", sp.Ratio)
	}
	if _, err := NewSplit("ACME", day("2024-02-01"), 0, 3); err == nil {
		t.Error("NewSplit(0:3) succeeded")
	}
}
