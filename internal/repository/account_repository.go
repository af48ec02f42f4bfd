package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"smsdispatch/internal/models"
)

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts an account with a zero balance; credits arrive through
// ledger grants only.
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (name, credits, default_sender_id, sender_ids, primary_gateway, default_country, rate_limit_per_second)
		VALUES ($1, 0, $2, $3, $4, $5, $6)
		RETURNING id, credits, created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		account.Name,
		account.DefaultSenderID,
		pq.Array(account.SenderIDs),
		account.PrimaryGateway,
		account.DefaultCountry,
		account.RateLimitPerSecond,
	).Scan(&account.ID, &account.Credits, &account.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `
		SELECT id, name, credits, default_sender_id, sender_ids, primary_gateway, default_country, rate_limit_per_second, created_at
		FROM accounts
		WHERE id = $1
	`

	account := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.Name,
		&account.Credits,
		&account.DefaultSenderID,
		pq.Array(&account.SenderIDs),
		&account.PrimaryGateway,
		&account.DefaultCountry,
		&account.RateLimitPerSecond,
		&account.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}
