package accounting

import (
	"slices"
)

// Book is the arena holding every ledger record of one portfolio. Records
// refer to each other by id only; parents are found by query.
type Book struct {
	portfolio string
	base      string

	accounts       []ChartAccount
	entries        []*JournalEntry
	lots           []*SecurityLot
	allocations    []SecurityAllocation
	currencyLots   []*CurrencyLot
	currencyAllocs []CurrencyAllocation
	splits         []StockSplit
	transactions   []Transaction
}

// NewBook returns an empty book for a portfolio kept in base currency.
func NewBook(portfolioID, baseCurrency string) *Book {
	return &Book{portfolio: portfolioID, base: baseCurrency}
}

// PortfolioID returns the portfolio owning the book.
func (b *Book) PortfolioID() string { return b.portfolio }

// BaseCurrency returns the currency every journal line is kept in.
func (b *Book) BaseCurrency() string { return b.base }

// Snapshot is a detached copy of a Book, used by storage and for
// all-or-nothing batches.
type Snapshot struct {
	PortfolioID         string
	BaseCurrency        string
	Accounts            []ChartAccount
	Entries             []JournalEntry
	SecurityLots        []SecurityLot
	SecurityAllocations []SecurityAllocation
	CurrencyLots        []CurrencyLot
	CurrencyAllocations []CurrencyAllocation
	Splits              []StockSplit
	Transactions        []Transaction
}

// Snapshot returns a deep copy of the book's records.
func (b *Book) Snapshot() Snapshot {
	s := Snapshot{
		PortfolioID:         b.portfolio,
		BaseCurrency:        b.base,
		Accounts:            slices.Clone(b.accounts),
		SecurityAllocations: slices.Clone(b.allocations),
		CurrencyAllocations: slices.Clone(b.currencyAllocs),
		Splits:              slices.Clone(b.splits),
		Transactions:        slices.Clone(b.transactions),
	}
	for _, e := range b.entries {
		s.Entries = append(s.Entries, e.clone())
	}
	for _, l := range b.lots {
		s.SecurityLots = append(s.SecurityLots, l.clone())
	}
	for _, l := range b.currencyLots {
		s.CurrencyLots = append(s.CurrencyLots, *l)
	}
	return s
}

// Restore builds a Book from a snapshot. The snapshot is copied.
func Restore(s Snapshot) *Book {
	b := &Book{
		portfolio:      s.PortfolioID,
		base:           s.BaseCurrency,
		accounts:       slices.Clone(s.Accounts),
		allocations:    slices.Clone(s.SecurityAllocations),
		currencyAllocs: slices.Clone(s.CurrencyAllocations),
		splits:         slices.Clone(s.Splits),
		transactions:   slices.Clone(s.Transactions),
	}
	for i := range s.Entries {
		e := s.Entries[i].clone()
		b.entries = append(b.entries, &e)
	}
	for i := range s.SecurityLots {
		l := s.SecurityLots[i].clone()
		b.lots = append(b.lots, &l)
	}
	for i := range s.CurrencyLots {
		l := s.CurrencyLots[i]
		b.currencyLots = append(b.currencyLots, &l)
	}
	return b
}

// restore replaces the content of b with a snapshot.
func (b *Book) restore(s Snapshot) { *b = *Restore(s) }

// transaction returns the source transaction with the given id.
func (b *Book) transaction(id string) (Transaction, bool) {
	for _, tx := range b.transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// putTransaction inserts or replaces a source transaction.
func (b *Book) putTransaction(tx Transaction) {
	for i := range b.transactions {
		if b.transactions[i].ID == tx.ID {
			b.transactions[i] = tx
			return
		}
	}
	b.transactions = append(b.transactions, tx)
}

// sortedTransactions returns the source transactions in processing order.
func (b *Book) sortedTransactions() []Transaction {
	txs := slices.Clone(b.transactions)
	SortTransactions(txs)
	return txs
}

// entryFor returns the posted entry referencing a source transaction.
func (b *Book) entryFor(txID string) (*JournalEntry, bool) {
	for _, e := range b.entries {
		if e.Reference == txID && e.Type == TransactionEntry {
			return e, true
		}
	}
	return nil, false
}

// removeEntry deletes an entry and its lines.
func (b *Book) removeEntry(id string) {
	b.entries = slices.DeleteFunc(b.entries, func(e *JournalEntry) bool { return e.ID == id })
}

// nextEntryNumber returns max existing entry number + 1.
func (b *Book) nextEntryNumber() int {
	n := 0
	for _, e := range b.entries {
		n = max(n, e.Number)
	}
	return n + 1
}

// lot returns the security lot with the given id.
func (b *Book) lot(id string) (*SecurityLot, bool) {
	for _, l := range b.lots {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// currencyLot returns the currency lot with the given id.
func (b *Book) currencyLot(id string) (*CurrencyLot, bool) {
	for _, l := range b.currencyLots {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// lotFor returns the security lot created by a purchase transaction.
func (b *Book) lotFor(txID string) (*SecurityLot, bool) {
	for _, l := range b.lots {
		if l.TransactionID == txID {
			return l, true
		}
	}
	return nil, false
}

// allocationsOf returns the currency allocations funding a purchase.
func (b *Book) allocationsOf(purchaseID string) []CurrencyAllocation {
	var out []CurrencyAllocation
	for _, a := range b.currencyAllocs {
		if a.PurchaseTransactionID == purchaseID {
			out = append(out, a)
		}
	}
	return out
}
