package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"smsdispatch/internal/models"
)

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sql.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

const ledgerColumns = `id, account_id, kind, amount, reason, idempotency_key, target_id, billing_epoch, metadata, balance_after, created_at`

// Apply locks the account row, so concurrent entries for one account
// serialize and the idempotency check cannot race.
func (r *ledgerRepository) Apply(ctx context.Context, entry *models.LedgerEntry) (bool, error) {
	if entry.Amount < 0 {
		return false, fmt.Errorf("ledger amount must not be negative: %d", entry.Amount)
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to encode ledger metadata: %w", err)
	}

	applied := false
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT credits FROM accounts WHERE id = $1 FOR UPDATE`,
			entry.AccountID,
		).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}

		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)`,
			entry.IdempotencyKey,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if exists {
			return nil
		}

		switch entry.Kind {
		case models.LedgerDebit:
			if entry.Amount > balance {
				return ErrInsufficientCredits
			}
			balance -= entry.Amount
		case models.LedgerRefund, models.LedgerGrant:
			balance += entry.Amount
		default:
			return fmt.Errorf("unknown ledger kind: %s", entry.Kind)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET credits = $1 WHERE id = $2`,
			balance, entry.AccountID,
		); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO ledger_entries (account_id, kind, amount, reason, idempotency_key, target_id, billing_epoch, metadata, balance_after)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at
		`,
			entry.AccountID,
			entry.Kind,
			entry.Amount,
			entry.Reason,
			entry.IdempotencyKey,
			entry.TargetID,
			entry.BillingEpoch,
			metadata,
			balance,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}

		entry.BalanceAfter = balance
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// GetByKey retrieves an entry by its idempotency key
func (r *ledgerRepository) GetByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE idempotency_key = $1`

	entry, err := scanLedgerEntry(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

// ListByAccount returns the newest entries first
func (r *ledgerRepository) ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`
	return r.query(ctx, query, accountID, limit, offset)
}

// ListUnrefunded finds debits for failed or canceled targets, and debits
// from an earlier billing epoch, that have no refund yet.
func (r *ledgerRepository) ListUnrefunded(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT d.id, d.account_id, d.kind, d.amount, d.reason, d.idempotency_key, d.target_id,
		       d.billing_epoch, d.metadata, d.balance_after, d.created_at
		FROM ledger_entries d
		JOIN targets t ON t.id = d.target_id
		WHERE d.kind = 'debit'
		  AND (t.status IN ('failed', 'canceled') OR t.billing_epoch > d.billing_epoch)
		  AND NOT EXISTS (
			SELECT 1 FROM ledger_entries r
			WHERE r.kind = 'refund'
			  AND r.target_id = d.target_id
			  AND r.billing_epoch = d.billing_epoch
		  )
		ORDER BY d.id
		LIMIT $1
	`
	return r.query(ctx, query, limit)
}

func (r *ledgerRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	entries := []*models.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{}
	var metadata []byte
	err := s.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.Kind,
		&entry.Amount,
		&entry.Reason,
		&entry.IdempotencyKey,
		&entry.TargetID,
		&entry.BillingEpoch,
		&metadata,
		&entry.BalanceAfter,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode ledger metadata: %w", err)
		}
	}
	return entry, nil
}
