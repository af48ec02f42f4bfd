package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

// DebitKey is the idempotency key of a target's debit in a billing epoch
func DebitKey(targetID int64, epoch int) string {
	return fmt.Sprintf("target/%d/%d/debit", targetID, epoch)
}

// RefundKey is the idempotency key of a target's refund in a billing epoch
func RefundKey(targetID int64, epoch int) string {
	return fmt.Sprintf("target/%d/%d/refund", targetID, epoch)
}

// LedgerService is the only way credits move
type LedgerService struct {
	ledger   repository.LedgerRepository
	accounts repository.AccountRepository
	log      zerolog.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(ledger repository.LedgerRepository, accounts repository.AccountRepository, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		ledger:   ledger,
		accounts: accounts,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Debit removes amount from the balance. It returns
// *InsufficientCreditsError without any change when the balance is short.
// Replaying a key that was already applied is a no-op.
func (s *LedgerService) Debit(ctx context.Context, accountID, amount int64, reason, key string, metadata map[string]any) error {
	return s.apply(ctx, &models.LedgerEntry{
		AccountID:      accountID,
		Kind:           models.LedgerDebit,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
		Metadata:       metadata,
	})
}

// Refund returns amount to the balance
func (s *LedgerService) Refund(ctx context.Context, accountID, amount int64, reason, key string, metadata map[string]any) error {
	return s.apply(ctx, &models.LedgerEntry{
		AccountID:      accountID,
		Kind:           models.LedgerRefund,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
		Metadata:       metadata,
	})
}

// Grant tops up an account
func (s *LedgerService) Grant(ctx context.Context, accountID, amount int64, reason, key string) error {
	if amount <= 0 {
		return &ValidationError{Message: "grant amount must be positive"}
	}
	return s.apply(ctx, &models.LedgerEntry{
		AccountID:      accountID,
		Kind:           models.LedgerGrant,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
	})
}

func (s *LedgerService) apply(ctx context.Context, entry *models.LedgerEntry) error {
	applied, err := s.ledger.Apply(ctx, entry)
	switch {
	case errors.Is(err, repository.ErrInsufficientCredits):
		available, _ := s.Balance(ctx, entry.AccountID)
		return &InsufficientCreditsError{Required: entry.Amount, Available: available}
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Resource: "account", ID: entry.AccountID}
	case err != nil:
		return fmt.Errorf("failed to apply ledger entry: %w", err)
	}

	if !applied {
		s.log.Debug().Str("key", entry.IdempotencyKey).Msg("ledger entry already applied")
		return nil
	}
	s.log.Info().
		Int64("account_id", entry.AccountID).
		Str("kind", string(entry.Kind)).
		Int64("amount", entry.Amount).
		Int64("balance", entry.BalanceAfter).
		Str("key", entry.IdempotencyKey).
		Msg("ledger entry applied")
	return nil
}

// DebitTarget charges a target's cost once per billing epoch
func (s *LedgerService) DebitTarget(ctx context.Context, t *models.Target) error {
	entry := &models.LedgerEntry{
		AccountID:      t.AccountID,
		Kind:           models.LedgerDebit,
		Amount:         t.Cost,
		Reason:         "target send",
		IdempotencyKey: DebitKey(t.ID, t.BillingEpoch),
		TargetID:       &t.ID,
		BillingEpoch:   t.BillingEpoch,
		Metadata:       targetMetadata(t),
	}
	return s.apply(ctx, entry)
}

// RefundTarget returns exactly what was debited for the target's current
// epoch. It does nothing when no debit exists, and returns false then.
func (s *LedgerService) RefundTarget(ctx context.Context, t *models.Target, reason string) (bool, error) {
	return s.refundEpoch(ctx, t.ID, t.BillingEpoch, reason)
}

func (s *LedgerService) refundEpoch(ctx context.Context, targetID int64, epoch int, reason string) (bool, error) {
	debit, err := s.ledger.GetByKey(ctx, DebitKey(targetID, epoch))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load debit: %w", err)
	}

	tid := targetID
	entry := &models.LedgerEntry{
		AccountID:      debit.AccountID,
		Kind:           models.LedgerRefund,
		Amount:         debit.Amount,
		Reason:         reason,
		IdempotencyKey: RefundKey(targetID, epoch),
		TargetID:       &tid,
		BillingEpoch:   epoch,
		Metadata:       map[string]any{"debit_id": debit.ID},
	}
	if err := s.apply(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// Reconcile refunds debits left behind by interrupted runs: debits of
// failed or canceled targets, and debits of an epoch a retry moved past
func (s *LedgerService) Reconcile(ctx context.Context, limit int) (int, error) {
	debits, err := s.ledger.ListUnrefunded(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unrefunded debits: %w", err)
	}

	refunded := 0
	for _, d := range debits {
		if d.TargetID == nil {
			continue
		}
		ok, err := s.refundEpoch(ctx, *d.TargetID, d.BillingEpoch, "reconciliation")
		if err != nil {
			s.log.Error().Err(err).Int64("target_id", *d.TargetID).Msg("reconciliation refund failed")
			continue
		}
		if ok {
			refunded++
		}
	}
	return refunded, nil
}

// Balance returns the account's current credits
func (s *LedgerService) Balance(ctx context.Context, accountID int64) (int64, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, &NotFoundError{Resource: "account", ID: accountID}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}
	return account.Credits, nil
}

// History lists an account's ledger entries, newest first
func (s *LedgerService) History(ctx context.Context, accountID int64, page, pageSize int) ([]*models.LedgerEntry, error) {
	if _, err := s.Balance(ctx, accountID); err != nil {
		return nil, err
	}
	limit, offset := pagination(page, pageSize)
	entries, err := s.ledger.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return entries, nil
}

func targetMetadata(t *models.Target) map[string]any {
	m := map[string]any{"phone": t.PhoneE164, "segments": t.Segments}
	if kind, id := t.Owner(); kind != "" {
		m[kind+"_id"] = id
	}
	return m
}
