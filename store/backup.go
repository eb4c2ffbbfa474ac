package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	accounting "github.com/priitl/stocks-helper-sub000"
)

// Backup is a stored copy of a portfolio's ledger.
type Backup struct {
	ID          string
	PortfolioID string
	CreatedAt   time.Time
	Reason      string
}

// Backup stores snap as a new backup and returns its id.
func (s *Store) Backup(ctx context.Context, snap accounting.Snapshot, reason string) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal_backups (id, portfolio_id, created_at, reason, snapshot) VALUES (?, ?, ?, ?, ?)`,
		id, snap.PortfolioID, time.Now().UTC().Format(time.RFC3339Nano), reason, string(data))
	if err != nil {
		return "", fmt.Errorf("save backup: %w", err)
	}
	s.log.Info("ledger backed up", "backup", id, "portfolio", snap.PortfolioID, "entries", len(snap.Entries), "reason", reason)
	return id, nil
}

// Backups lists the backups of a portfolio, newest first.
func (s *Store) Backups(ctx context.Context, portfolio string) ([]Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, reason FROM journal_backups WHERE portfolio_id = ? ORDER BY created_at DESC`, portfolio)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()
	var out []Backup
	for rows.Next() {
		b := Backup{PortfolioID: portfolio}
		var created string
		if err := rows.Scan(&b.ID, &created, &b.Reason); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("backup %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadBackup returns the ledger stored in a backup.
func (s *Store) LoadBackup(ctx context.Context, id string) (accounting.Snapshot, error) {
	var data string
	var snap accounting.Snapshot
	if err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM journal_backups WHERE id = ?`, id).Scan(&data); err != nil {
		return snap, fmt.Errorf("load backup %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return snap, fmt.Errorf("decode backup %s: %w", id, err)
	}
	return snap, nil
}
