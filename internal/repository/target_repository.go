package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"smsdispatch/internal/models"
)

type targetRepository struct {
	db *sql.DB
}

// NewTargetRepository creates a new target repository
func NewTargetRepository(db *sql.DB) TargetRepository {
	return &targetRepository{db: db}
}

const targetColumns = `id, campaign_id, job_id, account_id, contact_id, phone_e164, country, body, segments, encoding, cost,
	status, tries, last_attempt_at, claimed_at, gateway_name, gateway_message_id, error_code, error_detail,
	billing_epoch, delivery_status, created_at, updated_at`

const insertTargetQuery = `
	INSERT INTO targets (campaign_id, job_id, account_id, contact_id, phone_e164, country, body, segments, encoding, cost, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'queued')
	ON CONFLICT DO NOTHING
	RETURNING id, status, billing_epoch, created_at, updated_at
`

func scanTarget(s scanner) (*models.Target, error) {
	t := &models.Target{}
	err := s.Scan(
		&t.ID,
		&t.CampaignID,
		&t.JobID,
		&t.AccountID,
		&t.ContactID,
		&t.PhoneE164,
		&t.Country,
		&t.Body,
		&t.Segments,
		&t.Encoding,
		&t.Cost,
		&t.Status,
		&t.Tries,
		&t.LastAttemptAt,
		&t.ClaimedAt,
		&t.GatewayName,
		&t.GatewayMessageID,
		&t.ErrorCode,
		&t.ErrorDetail,
		&t.BillingEpoch,
		&t.DeliveryStatus,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// CreateBatch inserts targets in one transaction. Rows that collide with
// an existing (campaign_id, phone_e164) are skipped and keep ID 0.
func (r *targetRepository) CreateBatch(ctx context.Context, targets []*models.Target) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	inserted := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		n, err := insertTargets(ctx, tx, targets)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertTargets(ctx context.Context, tx *sql.Tx, targets []*models.Target) (int, error) {
	stmt, err := tx.PrepareContext(ctx, insertTargetQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range targets {
		err := stmt.QueryRowContext(
			ctx,
			t.CampaignID,
			t.JobID,
			t.AccountID,
			t.ContactID,
			t.PhoneE164,
			t.Country,
			t.Body,
			t.Segments,
			t.Encoding,
			t.Cost,
		).Scan(&t.ID, &t.Status, &t.BillingEpoch, &t.CreatedAt, &t.UpdatedAt)

		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("failed to create target: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// GetByID retrieves a target by ID
func (r *targetRepository) GetByID(ctx context.Context, id int64) (*models.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE id = $1`

	target, err := scanTarget(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return target, nil
}

// List retrieves targets of a campaign or job with pagination
func (r *targetRepository) List(ctx context.Context, filters TargetFilters) ([]*models.Target, int, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE 1=1")
	args := []interface{}{}

	if filters.CampaignID != nil {
		args = append(args, *filters.CampaignID)
		where.WriteString(fmt.Sprintf(" AND campaign_id = $%d", len(args)))
	}
	if filters.JobID != nil {
		args = append(args, *filters.JobID)
		where.WriteString(fmt.Sprintf(" AND job_id = $%d", len(args)))
	}
	if filters.Status != nil {
		args = append(args, *filters.Status)
		where.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM targets"+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count targets: %w", err)
	}

	limit, offset := pageBounds(filters.Page, filters.PageSize)
	query := fmt.Sprintf(
		"SELECT %s FROM targets%s ORDER BY id LIMIT $%d OFFSET $%d",
		targetColumns, where.String(), len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	targets, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return targets, total, nil
}

// Claim flips eligible targets to sending. Rows locked by a concurrent
// claim are skipped, so overlapping runs never pick the same target.
func (r *targetRepository) Claim(ctx context.Context, maxTries, limit int, now time.Time) ([]*models.Target, error) {
	query := `
		WITH picked AS (
			SELECT t.id
			FROM targets t
			LEFT JOIN campaigns c ON c.id = t.campaign_id
			LEFT JOIN quick_send_jobs j ON j.id = t.job_id
			WHERE t.status = 'queued'
			  AND t.tries < $1
			  AND (c.status = 'sending' OR j.status = 'sending')
			ORDER BY t.created_at, t.id
			LIMIT $2
			FOR UPDATE OF t SKIP LOCKED
		)
		UPDATE targets
		SET status = 'sending', claimed_at = $3, updated_at = $3
		FROM picked
		WHERE targets.id = picked.id
		RETURNING ` + prefixColumns("targets.", targetColumns)

	targets, err := r.query(ctx, query, maxTries, limit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim targets: %w", err)
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].CreatedAt.Equal(targets[j].CreatedAt) {
			return targets[i].ID < targets[j].ID
		}
		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})
	return targets, nil
}

// MarkAttempt writes an attempt outcome. It only applies while the target
// is still claimed, so a released or canceled target is never overwritten.
func (r *targetRepository) MarkAttempt(ctx context.Context, id int64, outcome models.AttemptOutcome) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE targets
		SET status = $2,
		    tries = $3,
		    last_attempt_at = $4,
		    gateway_name = NULLIF($5, ''),
		    gateway_message_id = NULLIF($6, ''),
		    error_code = NULLIF($7, ''),
		    error_detail = NULLIF($8, ''),
		    claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`,
		id,
		outcome.Status,
		outcome.Tries,
		outcome.AttemptedAt,
		outcome.GatewayName,
		outcome.GatewayMessageID,
		outcome.ErrorCode,
		outcome.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return requireOne(res, ErrStateConflict)
}

// ReleaseStale returns targets claimed before claimedBefore to queued
func (r *targetRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE targets
		SET status = 'queued', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'sending' AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale targets: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Release returns claimed targets to queued without recording an attempt
func (r *targetRepository) Release(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE targets
		SET status = 'queued', claimed_at = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'sending'
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to release targets: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CancelOrphaned cancels queued targets of canceled campaigns and jobs.
// These appear when an in-flight attempt is requeued after its owner
// was canceled.
func (r *targetRepository) CancelOrphaned(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE targets t
		SET status = 'canceled', updated_at = NOW()
		WHERE t.status = 'queued'
		  AND (
			EXISTS (SELECT 1 FROM campaigns c WHERE c.id = t.campaign_id AND c.status IN ('canceled', 'failed'))
			OR EXISTS (SELECT 1 FROM quick_send_jobs j WHERE j.id = t.job_id AND j.status = 'canceled')
		  )
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel orphaned targets: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// AnnotateDelivery stores the final delivery status of a sent target
func (r *targetRepository) AnnotateDelivery(ctx context.Context, gateway, messageID, status string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE targets
		SET delivery_status = $3, updated_at = NOW()
		WHERE gateway_name = $1 AND gateway_message_id = $2 AND status = 'sent'
	`, gateway, messageID, status)
	if err != nil {
		return 0, fmt.Errorf("failed to annotate delivery: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *targetRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Target, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	targets := []*models.Target{}
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return targets, nil
}
