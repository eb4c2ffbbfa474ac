package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	accounting "github.com/priitl/stocks-helper-sub000"
)

// ledgerTables lists the tables holding a portfolio's ledger, children first.
var ledgerTables = []string{
	"currency_allocations",
	"security_allocations",
	"journal_lines",
	"journal_entries",
	"currency_lots",
	"security_lots",
	"stock_splits",
	"transactions",
	"chart_of_accounts",
}

// Load returns the book of a portfolio. An unknown portfolio yields an
// empty book kept in base; a known one keeps its stored base currency.
func (s *Store) Load(ctx context.Context, portfolio, base string) (*accounting.Book, error) {
	snap, err := s.LoadSnapshot(ctx, portfolio)
	if errors.Is(err, sql.ErrNoRows) {
		return accounting.NewBook(portfolio, base), nil
	}
	if err != nil {
		return nil, err
	}
	if snap.BaseCurrency != base {
		s.log.Warn("portfolio kept in another base currency", "portfolio", portfolio, "stored", snap.BaseCurrency, "configured", base)
	}
	return accounting.Restore(snap), nil
}

// LoadSnapshot reads every record of a portfolio. It returns sql.ErrNoRows
// when the portfolio was never saved.
func (s *Store) LoadSnapshot(ctx context.Context, portfolio string) (accounting.Snapshot, error) {
	snap := accounting.Snapshot{PortfolioID: portfolio}
	err := s.db.QueryRowContext(ctx, `SELECT base_currency FROM portfolios WHERE id = ?`, portfolio).Scan(&snap.BaseCurrency)
	if err != nil {
		return snap, err
	}
	loaders := []func(context.Context, *accounting.Snapshot) error{
		s.loadAccounts,
		s.loadEntries,
		s.loadSecurityLots,
		s.loadSecurityAllocations,
		s.loadCurrencyLots,
		s.loadCurrencyAllocations,
		s.loadSplits,
		s.loadTransactions,
	}
	for _, load := range loaders {
		if err := load(ctx, &snap); err != nil {
			return snap, fmt.Errorf("load portfolio %s: %w", portfolio, err)
		}
	}
	return snap, nil
}

// Save replaces every stored record of the snapshot's portfolio. Nothing is
// changed when any statement fails.
func (s *Store) Save(ctx context.Context, snap accounting.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				s.log.Error("rollback failed", "error", rerr)
			}
		}
	}()

	for _, table := range ledgerTables {
		q := fmt.Sprintf("DELETE FROM %s WHERE portfolio_id = ?", table)
		if table == "journal_lines" {
			q = "DELETE FROM journal_lines WHERE entry_id IN (SELECT id FROM journal_entries WHERE portfolio_id = ?)"
		}
		if _, err = tx.ExecContext(ctx, q, snap.PortfolioID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO portfolios (id, base_currency) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET base_currency = excluded.base_currency`,
		snap.PortfolioID, snap.BaseCurrency); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}

	savers := []func(context.Context, *sql.Tx, accounting.Snapshot) error{
		saveAccounts,
		saveEntries,
		saveSecurityLots,
		saveSecurityAllocations,
		saveCurrencyLots,
		saveCurrencyAllocations,
		saveSplits,
		saveTransactions,
	}
	for _, save := range savers {
		if err = save(ctx, tx, snap); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.log.Debug("ledger saved", "portfolio", snap.PortfolioID, "entries", len(snap.Entries), "lots", len(snap.SecurityLots))
	return nil
}

// insertAll prepares query once and executes it for each of n rows.
func insertAll(ctx context.Context, tx *sql.Tx, table, query string, n int, args func(i int) ([]any, error)) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()
	for i := range n {
		a, err := args(i)
		if err != nil {
			return fmt.Errorf("save %s: %w", table, err)
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return fmt.Errorf("save %s: %w", table, err)
		}
	}
	return nil
}

func saveAccounts(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "chart_of_accounts",
		`INSERT INTO chart_of_accounts (id, portfolio_id, role, code, name, type, normal_side, currency, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(snap.Accounts), func(i int) ([]any, error) {
			a := snap.Accounts[i]
			return []any{a.ID, snap.PortfolioID, a.Role.String(), a.Code, a.Name, string(a.Type), string(a.NormalSide), a.Currency, a.Active}, nil
		})
}

func (s *Store) loadAccounts(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, code, name, type, normal_side, currency, active
		 FROM chart_of_accounts WHERE portfolio_id = ? ORDER BY code`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		a := accounting.ChartAccount{PortfolioID: snap.PortfolioID}
		var role, typ, side string
		if err := rows.Scan(&a.ID, &role, &a.Code, &a.Name, &typ, &side, &a.Currency, &a.Active); err != nil {
			return err
		}
		if a.Role, err = accounting.ParseRole(role); err != nil {
			return err
		}
		a.Type, a.NormalSide = accounting.AccountType(typ), accounting.Side(side)
		snap.Accounts = append(snap.Accounts, a)
	}
	return rows.Err()
}

func saveEntries(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	err := insertAll(ctx, tx, "journal_entries",
		`INSERT INTO journal_entries (id, portfolio_id, entry_number, entry_date, posting_date, type, status, description, reference)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(snap.Entries), func(i int) ([]any, error) {
			e := snap.Entries[i]
			return []any{e.ID, snap.PortfolioID, e.Number, e.EntryDate, e.PostingDate, string(e.Type), string(e.Status), e.Description, e.Reference}, nil
		})
	if err != nil {
		return err
	}
	var lines []accounting.JournalLine
	for _, e := range snap.Entries {
		lines = append(lines, e.Lines...)
	}
	return insertAll(ctx, tx, "journal_lines",
		`INSERT INTO journal_lines (id, entry_id, account_id, line_number, debit, credit, currency, foreign_amount, foreign_currency, exchange_rate, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(lines), func(i int) ([]any, error) {
			l := lines[i]
			return []any{l.ID, l.EntryID, l.AccountID, l.LineNumber, l.Debit, l.Credit, l.Currency, l.ForeignAmount, l.ForeignCurrency, l.ExchangeRate, l.Description}, nil
		})
}

func (s *Store) loadEntries(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_number, entry_date, posting_date, type, status, description, reference
		 FROM journal_entries WHERE portfolio_id = ? ORDER BY entry_number`, snap.PortfolioID)
	if err != nil {
		return err
	}
	index := make(map[string]int)
	for rows.Next() {
		e := accounting.JournalEntry{PortfolioID: snap.PortfolioID}
		var typ, status string
		if err := rows.Scan(&e.ID, &e.Number, &e.EntryDate, &e.PostingDate, &typ, &status, &e.Description, &e.Reference); err != nil {
			rows.Close()
			return err
		}
		e.Type, e.Status = accounting.EntryType(typ), accounting.EntryStatus(status)
		index[e.ID] = len(snap.Entries)
		snap.Entries = append(snap.Entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT l.id, l.entry_id, l.account_id, l.line_number, l.debit, l.credit, l.currency,
		        l.foreign_amount, l.foreign_currency, l.exchange_rate, l.description
		 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
		 WHERE e.portfolio_id = ? ORDER BY e.entry_number, l.line_number`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l accounting.JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.LineNumber, &l.Debit, &l.Credit, &l.Currency,
			&l.ForeignAmount, &l.ForeignCurrency, &l.ExchangeRate, &l.Description); err != nil {
			return err
		}
		i, ok := index[l.EntryID]
		if !ok {
			return fmt.Errorf("journal line %s has no entry %s", l.ID, l.EntryID)
		}
		snap.Entries[i].Lines = append(snap.Entries[i].Lines, l)
	}
	return rows.Err()
}

func saveSecurityLots(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "security_lots",
		`INSERT INTO security_lots (id, portfolio_id, holding, transaction_id, ticker, purchase_date, quantity, remaining,
		   cost_per_share, total_cost, cost_per_share_base, total_cost_base, currency, exchange_rate, closed, applied_splits)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(snap.SecurityLots), func(i int) ([]any, error) {
			l := snap.SecurityLots[i]
			splits, err := json.Marshal(nonNil(l.AppliedSplits))
			if err != nil {
				return nil, err
			}
			return []any{l.ID, snap.PortfolioID, l.Holding, l.TransactionID, l.Ticker, l.PurchaseDate, l.Quantity, l.Remaining,
				l.CostPerShare, l.TotalCost, l.CostPerShareBase, l.TotalCostBase, l.Currency, l.ExchangeRate, l.Closed, string(splits)}, nil
		})
}

func (s *Store) loadSecurityLots(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, holding, transaction_id, ticker, purchase_date, quantity, remaining, cost_per_share, total_cost,
		        cost_per_share_base, total_cost_base, currency, exchange_rate, closed, applied_splits
		 FROM security_lots WHERE portfolio_id = ? ORDER BY purchase_date, id`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l accounting.SecurityLot
		var splits string
		if err := rows.Scan(&l.ID, &l.Holding, &l.TransactionID, &l.Ticker, &l.PurchaseDate, &l.Quantity, &l.Remaining,
			&l.CostPerShare, &l.TotalCost, &l.CostPerShareBase, &l.TotalCostBase, &l.Currency, &l.ExchangeRate, &l.Closed, &splits); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(splits), &l.AppliedSplits); err != nil {
			return fmt.Errorf("lot %s applied splits: %w", l.ID, err)
		}
		if len(l.AppliedSplits) == 0 {
			l.AppliedSplits = nil
		}
		snap.SecurityLots = append(snap.SecurityLots, l)
	}
	return rows.Err()
}

func saveSecurityAllocations(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "security_allocations",
		`INSERT INTO security_allocations (id, portfolio_id, lot_id, sell_transaction_id, quantity, cost_basis, proceeds, realized_gain_loss)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		len(snap.SecurityAllocations), func(i int) ([]any, error) {
			a := snap.SecurityAllocations[i]
			return []any{a.ID, snap.PortfolioID, a.LotID, a.SellTransactionID, a.Quantity, a.CostBasis, a.Proceeds, a.RealizedGainLoss}, nil
		})
}

func (s *Store) loadSecurityAllocations(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lot_id, sell_transaction_id, quantity, cost_basis, proceeds, realized_gain_loss
		 FROM security_allocations WHERE portfolio_id = ? ORDER BY id`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a accounting.SecurityAllocation
		if err := rows.Scan(&a.ID, &a.LotID, &a.SellTransactionID, &a.Quantity, &a.CostBasis, &a.Proceeds, &a.RealizedGainLoss); err != nil {
			return err
		}
		snap.SecurityAllocations = append(snap.SecurityAllocations, a)
	}
	return rows.Err()
}

func saveCurrencyLots(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "currency_lots",
		`INSERT INTO currency_lots (id, portfolio_id, account, conversion_id, from_currency, to_currency, from_amount, to_amount,
		   remaining, exchange_rate, conversion_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(snap.CurrencyLots), func(i int) ([]any, error) {
			l := snap.CurrencyLots[i]
			return []any{l.ID, snap.PortfolioID, l.Account, l.ConversionID, l.FromCurrency, l.ToCurrency, l.FromAmount, l.ToAmount,
				l.Remaining, l.ExchangeRate, l.ConversionDate}, nil
		})
}

func (s *Store) loadCurrencyLots(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account, conversion_id, from_currency, to_currency, from_amount, to_amount, remaining, exchange_rate, conversion_date
		 FROM currency_lots WHERE portfolio_id = ? ORDER BY conversion_date, id`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l accounting.CurrencyLot
		if err := rows.Scan(&l.ID, &l.Account, &l.ConversionID, &l.FromCurrency, &l.ToCurrency, &l.FromAmount, &l.ToAmount,
			&l.Remaining, &l.ExchangeRate, &l.ConversionDate); err != nil {
			return err
		}
		snap.CurrencyLots = append(snap.CurrencyLots, l)
	}
	return rows.Err()
}

func saveCurrencyAllocations(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "currency_allocations",
		`INSERT INTO currency_allocations (id, portfolio_id, lot_id, purchase_transaction_id, holding, amount)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		len(snap.CurrencyAllocations), func(i int) ([]any, error) {
			a := snap.CurrencyAllocations[i]
			return []any{a.ID, snap.PortfolioID, a.LotID, a.PurchaseTransactionID, a.Holding, a.Amount}, nil
		})
}

func (s *Store) loadCurrencyAllocations(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lot_id, purchase_transaction_id, holding, amount
		 FROM currency_allocations WHERE portfolio_id = ? ORDER BY id`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a accounting.CurrencyAllocation
		if err := rows.Scan(&a.ID, &a.LotID, &a.PurchaseTransactionID, &a.Holding, &a.Amount); err != nil {
			return err
		}
		snap.CurrencyAllocations = append(snap.CurrencyAllocations, a)
	}
	return rows.Err()
}

func saveSplits(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "stock_splits",
		`INSERT INTO stock_splits (id, portfolio_id, ticker, split_date, ratio_from, ratio_to, ratio, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		len(snap.Splits), func(i int) ([]any, error) {
			sp := snap.Splits[i]
			return []any{sp.ID, snap.PortfolioID, sp.Ticker, sp.Date, sp.From, sp.To, sp.Ratio, sp.Notes}, nil
		})
}

func (s *Store) loadSplits(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticker, split_date, ratio_from, ratio_to, ratio, notes
		 FROM stock_splits WHERE portfolio_id = ? ORDER BY split_date, id`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sp accounting.StockSplit
		if err := rows.Scan(&sp.ID, &sp.Ticker, &sp.Date, &sp.From, &sp.To, &sp.Ratio, &sp.Notes); err != nil {
			return err
		}
		snap.Splits = append(snap.Splits, sp)
	}
	return rows.Err()
}

func saveTransactions(ctx context.Context, tx *sql.Tx, snap accounting.Snapshot) error {
	return insertAll(ctx, tx, "transactions",
		`INSERT INTO transactions (id, portfolio_id, seq, type, date, data) VALUES (?, ?, ?, ?, ?, ?)`,
		len(snap.Transactions), func(i int) ([]any, error) {
			t := snap.Transactions[i]
			data, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			return []any{t.ID, snap.PortfolioID, t.Seq, string(t.Type), t.Date, string(data)}, nil
		})
}

func (s *Store) loadTransactions(ctx context.Context, snap *accounting.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM transactions WHERE portfolio_id = ? ORDER BY date, seq, id`, snap.PortfolioID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		var t accounting.Transaction
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		snap.Transactions = append(snap.Transactions, t)
	}
	return rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
