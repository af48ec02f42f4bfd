package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smsdispatch/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStateConflict is returned when a conditional update matched no row
	ErrStateConflict = errors.New("state conflict")
	// ErrInsufficientCredits is returned when a debit exceeds the balance
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// AccountRepository defines account data access operations
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// LedgerRepository is the only writer of account balances
type LedgerRepository interface {
	// Apply appends entry and moves the account balance in one transaction.
	// It returns false without changes when the idempotency key exists.
	Apply(ctx context.Context, entry *models.LedgerEntry) (bool, error)
	GetByKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]*models.LedgerEntry, error)
	// ListUnrefunded returns target debits whose target can no longer be
	// sent under that billing epoch and that have no matching refund.
	ListUnrefunded(ctx context.Context, limit int) ([]*models.LedgerEntry, error)
}

// ContactRepository reads the contact, tag and list store
type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	Tag(ctx context.Context, contactID int64, tagIDs ...int64) error
	AddToList(ctx context.Context, listID int64, contactIDs ...int64) error
	ListByTags(ctx context.Context, accountID int64, tagIDs []int64) ([]*models.Contact, error)
	ListByLists(ctx context.Context, accountID int64, listIDs []int64) ([]*models.Contact, error)
	FindByPhones(ctx context.Context, accountID int64, phones []string) ([]*models.Contact, error)
}

// CampaignRepository defines campaign data access operations
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	GetStats(ctx context.Context, id int64) (models.CampaignStats, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)
	// Update rewrites the editable fields of a draft campaign
	Update(ctx context.Context, campaign *models.Campaign) error
	Delete(ctx context.Context, id int64) error
	SetEstimate(ctx context.Context, id int64, estCredits int64, total int) error
	Transition(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus) error
	Fail(ctx context.Context, id int64, reason string) error
	// Cancel cancels the campaign and its queued targets atomically
	Cancel(ctx context.Context, id int64) (int, error)
	// RetryFailed reopens a completed campaign and requeues its failed targets
	RetryFailed(ctx context.Context, id int64) (int, error)
	PromoteDue(ctx context.Context, now time.Time) ([]*models.Campaign, error)
	ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error)
	ListUnmaterialized(ctx context.Context, olderThan time.Time, limit int) ([]*models.Campaign, error)
	MarkMaterialized(ctx context.Context, id int64, total int, at time.Time) error
	RefreshStats(ctx context.Context, id int64) error
	CompleteFinished(ctx context.Context) ([]*models.Campaign, error)
}

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	AccountID int64
	Page      int
	PageSize  int
	Status    *models.CampaignStatus
}

// TargetRepository defines target data access operations
type TargetRepository interface {
	// CreateBatch inserts targets, skipping phones already planned for the
	// same campaign. It returns the number of rows inserted.
	CreateBatch(ctx context.Context, targets []*models.Target) (int, error)
	GetByID(ctx context.Context, id int64) (*models.Target, error)
	List(ctx context.Context, filters TargetFilters) ([]*models.Target, int, error)
	// Claim atomically moves up to limit eligible targets from queued to
	// sending, oldest first.
	Claim(ctx context.Context, maxTries, limit int, now time.Time) ([]*models.Target, error)
	// MarkAttempt records an outcome on a target still in sending
	MarkAttempt(ctx context.Context, id int64, outcome models.AttemptOutcome) error
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error)
	Release(ctx context.Context, ids []int64) (int, error)
	// CancelOrphaned cancels queued targets whose owner was canceled
	CancelOrphaned(ctx context.Context) (int, error)
	AnnotateDelivery(ctx context.Context, gateway, messageID, status string) (int, error)
}

// TargetFilters defines filters for listing targets
type TargetFilters struct {
	CampaignID *int64
	JobID      *int64
	Status     *models.TargetStatus
	Page       int
	PageSize   int
}

// JobRepository defines quick-send job data access operations
type JobRepository interface {
	CreateWithTargets(ctx context.Context, job *models.QuickSendJob, targets []*models.Target) error
	GetByID(ctx context.Context, id int64) (*models.QuickSendJob, error)
	GetStats(ctx context.Context, id int64) (models.CampaignStats, error)
	Cancel(ctx context.Context, id int64) (int, error)
	RetryFailed(ctx context.Context, id int64) (int, error)
	RefreshStats(ctx context.Context, id int64) error
	CompleteFinished(ctx context.Context) ([]*models.QuickSendJob, error)
}

// OverrideRepository stores gateway overrides. A nil accountID addresses
// the system-wide override.
type OverrideRepository interface {
	Get(ctx context.Context, accountID *int64) (*models.GatewayOverride, error)
	Set(ctx context.Context, override *models.GatewayOverride) error
	Clear(ctx context.Context, accountID *int64) error
}

// PricingRepository reads per-country credit multipliers
type PricingRepository interface {
	Multipliers(ctx context.Context) (map[string]float64, error)
	Upsert(ctx context.Context, pricing *models.CountryPricing) error
}

// DeliveryReportRepository appends inbound delivery reports
type DeliveryReportRepository interface {
	Create(ctx context.Context, report *models.DeliveryReport) error
}

// DB is a wrapper around *sql.DB to allow passing in transaction
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func requireOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func pageBounds(page, pageSize int) (limit, offset int) {
	limit = pageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset = (page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func statusStrings[T ~string](statuses []T) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
