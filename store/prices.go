package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

// SetManualPrice records the price of ticker on a day, replacing the
// previous one for that day.
func (s *Store) SetManualPrice(ctx context.Context, ticker string, on date.Date, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("manual price of %s must be positive, got %s", ticker, price)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_prices (ticker, price_date, price) VALUES (?, ?, ?)
		 ON CONFLICT(ticker, price_date) DO UPDATE SET price = excluded.price`,
		ticker, on, price)
	if err != nil {
		return fmt.Errorf("save manual price of %s: %w", ticker, err)
	}
	return nil
}

// ManualPrice returns the latest price of ticker entered on or before asOf.
func (s *Store) ManualPrice(ctx context.Context, ticker string, asOf date.Date) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT price FROM manual_prices WHERE ticker = ? AND price_date <= ?
		 ORDER BY price_date DESC LIMIT 1`, ticker, asOf).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("manual price of %s: %w", ticker, err)
	}
	return price, true, nil
}

// LoadManualPrices reads every manual price into memory.
func (s *Store) LoadManualPrices(ctx context.Context) (*accounting.ManualPrices, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, price_date, price FROM manual_prices ORDER BY ticker, price_date`)
	if err != nil {
		return nil, fmt.Errorf("load manual prices: %w", err)
	}
	defer rows.Close()
	prices := accounting.NewManualPrices()
	for rows.Next() {
		var ticker string
		var on date.Date
		var price decimal.Decimal
		if err := rows.Scan(&ticker, &on, &price); err != nil {
			return nil, fmt.Errorf("load manual prices: %w", err)
		}
		prices.Set(ticker, on, price)
	}
	return prices, rows.Err()
}
