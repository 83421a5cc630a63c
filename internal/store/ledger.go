package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Ledger records chip movements against the same database as room state.
// Credits are append-only; settlement idempotence is the engine's job.
type Ledger struct {
	db *sql.DB
}

// Ledger returns the chip ledger view over this store's database
func (s *Store) Ledger() *Ledger {
	return &Ledger{db: s.db}
}

// CreditIdentity adds amount to the identity's balance and journals the
// movement in one transaction. The account row is created on first touch.
func (l *Ledger) CreditIdentity(ctx context.Context, identity string, amount int64, reason, roomID string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("credit %s: %w", identity, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (identity, balance)
		VALUES (?, ?)
		ON CONFLICT(identity) DO UPDATE SET balance = balance + ?`,
		identity, amount, amount,
	); err != nil {
		return fmt.Errorf("credit %s: %w", identity, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (identity, amount, reason, room_id)
		VALUES (?, ?, ?, ?)`,
		identity, amount, reason, roomID,
	); err != nil {
		return fmt.Errorf("credit %s: %w", identity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("credit %s: %w", identity, err)
	}
	return nil
}

// Balance returns the identity's current balance, zero for unknown accounts
func (l *Ledger) Balance(ctx context.Context, identity string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE identity = ?`, identity,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", identity, err)
	}
	return balance, nil
}
