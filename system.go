package accounting

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/priitl/stocks-helper-sub000/date"
)

// System applies accounting operations to a Book. Every exported method
// holds the system lock for its whole duration, so lot allocations never
// interleave.
type System struct {
	mu     sync.Mutex
	book   *Book
	chart  *Chart
	rates  RateSource
	prices PriceSource
	log    *slog.Logger
	today  func() date.Date

	recognizeGains bool
}

// Option configures a System.
type Option func(*System)

// WithRates sets the exchange rate source.
func WithRates(r RateSource) Option { return func(s *System) { s.rates = r } }

// WithPrices sets the security price source used by mark-to-market.
func WithPrices(p PriceSource) Option { return func(s *System) { s.prices = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *System) { s.log = l } }

// WithClock sets the function returning the posting date.
func WithClock(today func() date.Date) Option { return func(s *System) { s.today = today } }

// WithRealizedGains controls whether SELL entries credit investments at cost
// and book the realized gain or loss (true, the default) or credit
// investments at proceeds.
func WithRealizedGains(enabled bool) Option { return func(s *System) { s.recognizeGains = enabled } }

// NewSystem returns a System working on book. The standard chart of accounts
// is created when the book has none.
func NewSystem(book *Book, opts ...Option) (*System, error) {
	if book == nil {
		return nil, fmt.Errorf("nil book")
	}
	if !ValidCurrency(book.base) {
		return nil, fmt.Errorf("invalid base currency %q", book.base)
	}
	s := &System{
		book:           book,
		rates:          noRates{},
		log:            slog.Default(),
		today:          date.Today,
		recognizeGains: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initChart(); err != nil {
		return nil, err
	}
	return s, nil
}

// initChart creates the chart when missing and checks it otherwise.
func (s *System) initChart() error {
	if len(s.book.accounts) == 0 {
		s.book.accounts = newStandardAccounts(s.book.portfolio, s.book.base)
	}
	s.chart = newChart(s.book.accounts)
	return s.chart.validate()
}

// Chart returns the chart of accounts.
func (s *System) Chart() *Chart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chart
}

// BaseCurrency returns the currency of the ledger.
func (s *System) BaseCurrency() string { return s.book.base }

// Snapshot returns a copy of every record of the book.
func (s *System) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Snapshot()
}

// AddTransactions registers source transactions without posting them.
func (s *System) AddTransactions(txs ...Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.book.putTransaction(tx)
	}
}

// AddSplits registers stock splits without applying them.
func (s *System) AddSplits(splits ...StockSplit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range splits {
		s.book.putSplit(sp)
	}
}

// Entries returns a copy of all journal entries in number order.
func (s *System) Entries() []JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JournalEntry, 0, len(s.book.entries))
	for _, e := range s.book.entries {
		out = append(out, e.clone())
	}
	sortEntries(out)
	return out
}
