package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"smsdispatch/internal/models"
)

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

const campaignColumns = `id, account_id, name, template, audience, sender_id, status, schedule_at, timezone,
	total_targets, est_credits, spent_credits, materialized_at, last_error, created_at, updated_at`

func scanCampaign(s scanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := s.Scan(
		&c.ID,
		&c.AccountID,
		&c.Name,
		&c.Template,
		&c.Audience,
		&c.SenderID,
		&c.Status,
		&c.ScheduleAt,
		&c.Timezone,
		&c.TotalTargets,
		&c.EstCredits,
		&c.SpentCredits,
		&c.MaterializedAt,
		&c.LastError,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// Create creates a new campaign
func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (account_id, name, template, audience, sender_id, status, schedule_at, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		campaign.AccountID,
		campaign.Name,
		campaign.Template,
		campaign.Audience,
		campaign.SenderID,
		campaign.Status,
		campaign.ScheduleAt,
		campaign.Timezone,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// GetStats counts the campaign's targets per status
func (r *campaignRepository) GetStats(ctx context.Context, id int64) (models.CampaignStats, error) {
	return targetStats(ctx, r.db, "campaign_id", id)
}

func targetStats(ctx context.Context, db DB, ownerColumn string, id int64) (models.CampaignStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'queued') as queued,
			COUNT(*) FILTER (WHERE status = 'sending') as sending,
			COUNT(*) FILTER (WHERE status = 'sent') as sent,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'canceled') as canceled
		FROM targets
		WHERE ` + ownerColumn + ` = $1
	`

	stats := models.CampaignStats{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&stats.Total,
		&stats.Queued,
		&stats.Sending,
		&stats.Sent,
		&stats.Failed,
		&stats.Canceled,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("failed to get target stats: %w", err)
	}

	return stats, nil
}

// List retrieves an account's campaigns with filters and pagination
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE account_id = $1")
	args := []interface{}{filters.AccountID}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		where.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}

	var totalCount int
	countQuery := "SELECT COUNT(*) FROM campaigns" + where.String()
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	limit, offset := pageBounds(filters.Page, filters.PageSize)
	query := fmt.Sprintf(
		"SELECT %s FROM campaigns%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		campaignColumns, where.String(), len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	campaigns, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return campaigns, totalCount, nil
}

// Update rewrites a draft campaign
func (r *campaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	query := `
		UPDATE campaigns
		SET name = $2, template = $3, audience = $4, sender_id = $5, schedule_at = $6, timezone = $7, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		campaign.ID,
		campaign.Name,
		campaign.Template,
		campaign.Audience,
		campaign.SenderID,
		campaign.ScheduleAt,
		campaign.Timezone,
	).Scan(&campaign.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return r.conflictOrNotFound(ctx, campaign.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

// Delete removes a draft or canceled campaign and its targets
func (r *campaignRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND status IN ('draft', 'canceled')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

// SetEstimate stores the audience size and credit estimate of a draft
func (r *campaignRepository) SetEstimate(ctx context.Context, id int64, estCredits int64, total int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET est_credits = $2, total_targets = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
	`, id, estCredits, total)
	if err != nil {
		return fmt.Errorf("failed to set estimate: %w", err)
	}
	return requireOne(res, ErrStateConflict)
}

// Transition moves the campaign to `to` only from one of `from`
func (r *campaignRepository) Transition(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("failed to transition campaign: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

// Fail marks the campaign failed from any non-terminal state
func (r *campaignRepository) Fail(ctx context.Context, id int64, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, reason, pq.Array(statusStrings(models.SourcesFor(models.CampaignStatusFailed))))
	if err != nil {
		return fmt.Errorf("failed to mark campaign failed: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

// Cancel cancels the campaign and every target still queued
func (r *campaignRepository) Cancel(ctx context.Context, id int64) (int, error) {
	canceled := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaigns
			SET status = 'canceled', updated_at = NOW()
			WHERE id = $1 AND status = ANY($2)
		`, id, pq.Array(statusStrings(models.SourcesFor(models.CampaignStatusCanceled))))
		if err != nil {
			return fmt.Errorf("failed to cancel campaign: %w", err)
		}
		if err := requireOne(res, ErrStateConflict); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE targets
			SET status = 'canceled', updated_at = NOW()
			WHERE campaign_id = $1 AND status = 'queued'
		`, id)
		if err != nil {
			return fmt.Errorf("failed to cancel targets: %w", err)
		}
		n, _ := res.RowsAffected()
		canceled = int(n)
		return nil
	})
	if errors.Is(err, ErrStateConflict) {
		return 0, r.conflictOrNotFound(ctx, id)
	}
	return canceled, err
}

// RetryFailed reopens a completed campaign and requeues failed targets
// under a new billing epoch
func (r *campaignRepository) RetryFailed(ctx context.Context, id int64) (int, error) {
	reset := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaigns
			SET status = 'queued', last_error = NULL, updated_at = NOW()
			WHERE id = $1 AND status = 'completed'
		`, id)
		if err != nil {
			return fmt.Errorf("failed to reopen campaign: %w", err)
		}
		if err := requireOne(res, ErrStateConflict); err != nil {
			return err
		}

		n, err := resetFailedTargets(ctx, tx, "campaign_id", id)
		reset = n
		return err
	})
	if errors.Is(err, ErrStateConflict) {
		return 0, r.conflictOrNotFound(ctx, id)
	}
	return reset, err
}

func resetFailedTargets(ctx context.Context, tx *sql.Tx, ownerColumn string, id int64) (int, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE targets
		SET status = 'queued', tries = 0, error_code = NULL, error_detail = NULL,
		    gateway_name = NULL, last_attempt_at = NULL, claimed_at = NULL,
		    billing_epoch = billing_epoch + 1, updated_at = NOW()
		WHERE `+ownerColumn+` = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to reset targets: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PromoteDue moves scheduled campaigns whose time has come to queued
func (r *campaignRepository) PromoteDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	query := `
		UPDATE campaigns
		SET status = 'queued', updated_at = NOW()
		WHERE status = 'scheduled' AND schedule_at <= $1
		RETURNING ` + campaignColumns
	return r.query(ctx, query, now)
}

// ListByStatus returns the oldest campaigns in a status
func (r *campaignRepository) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY updated_at, id LIMIT $2`
	return r.query(ctx, query, status, limit)
}

// ListUnmaterialized returns sending campaigns whose materialization
// never finished and has not been touched since olderThan
func (r *campaignRepository) ListUnmaterialized(ctx context.Context, olderThan time.Time, limit int) ([]*models.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = 'sending' AND materialized_at IS NULL AND updated_at < $1
		ORDER BY updated_at, id
		LIMIT $2
	`
	return r.query(ctx, query, olderThan, limit)
}

// MarkMaterialized records that all targets for the campaign exist
func (r *campaignRepository) MarkMaterialized(ctx context.Context, id int64, total int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET materialized_at = $2, total_targets = $3, updated_at = NOW()
		WHERE id = $1
	`, id, at, total)
	if err != nil {
		return fmt.Errorf("failed to mark campaign materialized: %w", err)
	}
	return requireOne(res, ErrNotFound)
}

// RefreshStats recomputes aggregate counters from the targets table
func (r *campaignRepository) RefreshStats(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns c
		SET total_targets = s.total, spent_credits = s.spent, updated_at = NOW()
		FROM (
			SELECT COUNT(*) AS total, COALESCE(SUM(cost) FILTER (WHERE status = 'sent'), 0) AS spent
			FROM targets WHERE campaign_id = $1
		) s
		WHERE c.id = $1 AND c.materialized_at IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to refresh campaign stats: %w", err)
	}
	return nil
}

// CompleteFinished completes every materialized sending campaign with
// no queued or in-flight targets left
func (r *campaignRepository) CompleteFinished(ctx context.Context) ([]*models.Campaign, error) {
	query := `
		UPDATE campaigns c
		SET status = 'completed', updated_at = NOW()
		WHERE c.status = 'sending'
		  AND c.materialized_at IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM targets t
			WHERE t.campaign_id = c.id AND t.status IN ('queued', 'sending')
		  )
		RETURNING ` + prefixColumns("c.", campaignColumns)
	return r.query(ctx, query)
}

// checkAffected turns a zero-row conditional update into ErrNotFound or
// ErrStateConflict
func (r *campaignRepository) checkAffected(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	return r.conflictOrNotFound(ctx, id)
}

func (r *campaignRepository) conflictOrNotFound(ctx context.Context, id int64) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check campaign: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

func (r *campaignRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
