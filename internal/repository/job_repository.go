package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smsdispatch/internal/models"
)

type jobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new quick-send job repository
func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, account_id, body, sender_id, status, total_targets, invalid, est_credits, spent_credits, created_at, updated_at`

func scanJob(s scanner) (*models.QuickSendJob, error) {
	j := &models.QuickSendJob{}
	err := s.Scan(
		&j.ID,
		&j.AccountID,
		&j.Body,
		&j.SenderID,
		&j.Status,
		&j.TotalTargets,
		&j.Invalid,
		&j.EstCredits,
		&j.SpentCredits,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	return j, err
}

// CreateWithTargets inserts the job and its targets in one transaction
func (r *jobRepository) CreateWithTargets(ctx context.Context, job *models.QuickSendJob, targets []*models.Target) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO quick_send_jobs (account_id, body, sender_id, status, total_targets, invalid, est_credits)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`,
			job.AccountID,
			job.Body,
			job.SenderID,
			job.Status,
			len(targets),
			job.Invalid,
			job.EstCredits,
		).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		job.TotalTargets = len(targets)

		for _, t := range targets {
			id := job.ID
			t.JobID = &id
			t.CampaignID = nil
		}
		if _, err := insertTargets(ctx, tx, targets); err != nil {
			return err
		}
		return nil
	})
}

// GetByID retrieves a job by ID
func (r *jobRepository) GetByID(ctx context.Context, id int64) (*models.QuickSendJob, error) {
	query := `SELECT ` + jobColumns + ` FROM quick_send_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetStats counts the job's targets per status
func (r *jobRepository) GetStats(ctx context.Context, id int64) (models.CampaignStats, error) {
	return targetStats(ctx, r.db, "job_id", id)
}

// Cancel cancels a sending job and its queued targets
func (r *jobRepository) Cancel(ctx context.Context, id int64) (int, error) {
	canceled := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE quick_send_jobs SET status = 'canceled', updated_at = NOW()
			WHERE id = $1 AND status = 'sending'
		`, id)
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
		if err := requireOne(res, ErrStateConflict); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE targets SET status = 'canceled', updated_at = NOW()
			WHERE job_id = $1 AND status = 'queued'
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

// RetryFailed reopens a completed job and requeues its failed targets
func (r *jobRepository) RetryFailed(ctx context.Context, id int64) (int, error) {
	reset := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE quick_send_jobs SET status = 'sending', updated_at = NOW()
			WHERE id = $1 AND status = 'completed'
		`, id)
		if err != nil {
			return fmt.Errorf("failed to reopen job: %w", err)
		}
		if err := requireOne(res, ErrStateConflict); err != nil {
			return err
		}

		n, err := resetFailedTargets(ctx, tx, "job_id", id)
		reset = n
		return err
	})
	if errors.Is(err, ErrStateConflict) {
		return 0, r.conflictOrNotFound(ctx, id)
	}
	return reset, err
}

// RefreshStats recomputes the job's spent credits
func (r *jobRepository) RefreshStats(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quick_send_jobs j
		SET spent_credits = s.spent, updated_at = NOW()
		FROM (
			SELECT COALESCE(SUM(cost) FILTER (WHERE status = 'sent'), 0) AS spent
			FROM targets WHERE job_id = $1
		) s
		WHERE j.id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to refresh job stats: %w", err)
	}
	return nil
}

// CompleteFinished completes sending jobs with no pending targets
func (r *jobRepository) CompleteFinished(ctx context.Context) ([]*models.QuickSendJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE quick_send_jobs j
		SET status = 'completed', updated_at = NOW()
		WHERE j.status = 'sending'
		  AND NOT EXISTS (
			SELECT 1 FROM targets t
			WHERE t.job_id = j.id AND t.status IN ('queued', 'sending')
		  )
		RETURNING `+prefixColumns("j.", jobColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to complete jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.QuickSendJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobRepository) conflictOrNotFound(ctx context.Context, id int64) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM quick_send_jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}
