package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smsdispatch/internal/models"
)

type overrideRepository struct {
	db *sql.DB
}

// NewOverrideRepository creates a new gateway override repository
func NewOverrideRepository(db *sql.DB) OverrideRepository {
	return &overrideRepository{db: db}
}

// Get returns the override stored for the scope
func (r *overrideRepository) Get(ctx context.Context, accountID *int64) (*models.GatewayOverride, error) {
	query := `
		SELECT id, account_id, mode, expires_at, reason, created_at
		FROM gateway_overrides
		WHERE account_id IS NOT DISTINCT FROM $1
	`

	o := &models.GatewayOverride{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&o.ID,
		&o.AccountID,
		&o.Mode,
		&o.ExpiresAt,
		&o.Reason,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway override: %w", err)
	}
	return o, nil
}

// Set replaces the override for the scope
func (r *overrideRepository) Set(ctx context.Context, o *models.GatewayOverride) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM gateway_overrides WHERE account_id IS NOT DISTINCT FROM $1`,
			o.AccountID,
		); err != nil {
			return fmt.Errorf("failed to clear gateway override: %w", err)
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO gateway_overrides (account_id, mode, expires_at, reason)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, o.AccountID, o.Mode, o.ExpiresAt, o.Reason).Scan(&o.ID, &o.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to set gateway override: %w", err)
		}
		return nil
	})
}

// Clear removes the override for the scope
func (r *overrideRepository) Clear(ctx context.Context, accountID *int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM gateway_overrides WHERE account_id IS NOT DISTINCT FROM $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear gateway override: %w", err)
	}
	return requireOne(res, ErrNotFound)
}
