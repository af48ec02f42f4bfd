package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

// QuickSendService sends one body to numbers supplied directly
type QuickSendService struct {
	jobRepo     repository.JobRepository
	accountRepo repository.AccountRepository
	audience    *AudienceService
	planner     *Planner
	pricing     *PricingService
	triggers    TriggerPublisher
	log         zerolog.Logger
}

// NewQuickSendService creates a new quick-send service
func NewQuickSendService(
	jobRepo repository.JobRepository,
	accountRepo repository.AccountRepository,
	audience *AudienceService,
	planner *Planner,
	pricing *PricingService,
	triggers TriggerPublisher,
	log zerolog.Logger,
) *QuickSendService {
	if triggers == nil {
		triggers = NoopTriggers
	}
	return &QuickSendService{
		jobRepo:     jobRepo,
		accountRepo: accountRepo,
		audience:    audience,
		planner:     planner,
		pricing:     pricing,
		triggers:    triggers,
		log:         log.With().Str("component", "quicksend").Logger(),
	}
}

// QuickSendRequest represents a request to send to ad-hoc numbers
type QuickSendRequest struct {
	Phones   []string `json:"phones"`
	Body     string   `json:"body"`
	SenderID string   `json:"sender_id,omitempty"`
}

// Validate validates the quick-send request
func (r *QuickSendRequest) Validate() error {
	if strings.TrimSpace(r.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if len(r.Phones) == 0 {
		return fmt.Errorf("at least one phone number is required")
	}
	return nil
}

// QuickSendResult reports a created job
type QuickSendResult struct {
	Job        *models.QuickSendJob `json:"job"`
	Recipients int                  `json:"recipients"`
	Invalid    int                  `json:"invalid"`
	Duplicates int                  `json:"duplicates"`
	Credits    int64                `json:"credits"`
}

// Send normalizes and deduplicates the numbers, prices one target per
// number and creates the job already sending. The whole job is rejected
// when the balance cannot cover its summed cost.
func (s *QuickSendService) Send(ctx context.Context, accountID int64, req *QuickSendRequest) (*QuickSendResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "account", ID: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if req.SenderID != "" && !account.HasSender(req.SenderID) {
		return nil, &ValidationError{Message: fmt.Sprintf("sender id %q is not registered for the account", req.SenderID)}
	}

	audience := s.audience.Normalize(req.Phones, account.DefaultCountry)
	if audience.Total == 0 {
		return nil, &ValidationError{Message: "no valid phone numbers"}
	}

	prices, err := s.pricing.Table(ctx)
	if err != nil {
		return nil, err
	}
	targets := s.planner.Plan(accountID, req.Body, audience.Recipients, prices)
	cost := TotalCost(targets)
	if account.Credits < cost {
		return nil, &InsufficientCreditsError{Required: cost, Available: account.Credits}
	}

	job := &models.QuickSendJob{
		AccountID:  accountID,
		Body:       req.Body,
		SenderID:   req.SenderID,
		Status:     models.JobStatusSending,
		Invalid:    audience.Invalid,
		EstCredits: cost,
	}
	if err := s.jobRepo.CreateWithTargets(ctx, job, targets); err != nil {
		return nil, fmt.Errorf("failed to create quick-send job: %w", err)
	}

	s.log.Info().
		Int64("job_id", job.ID).
		Int64("account_id", accountID).
		Int("recipients", audience.Total).
		Int("invalid", audience.Invalid).
		Int64("credits", cost).
		Msg("quick-send job created")
	notify(ctx, s.triggers, s.log, models.DispatchTrigger{Reason: "job.created", AccountID: accountID, JobID: job.ID})

	return &QuickSendResult{
		Job:        job,
		Recipients: audience.Total,
		Invalid:    audience.Invalid,
		Duplicates: audience.Duplicates,
		Credits:    cost,
	}, nil
}

// Get retrieves an account's job with statistics
func (s *QuickSendService) Get(ctx context.Context, accountID, id int64) (*models.QuickSendWithStats, error) {
	job, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.jobRepo.GetStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &models.QuickSendWithStats{QuickSendJob: *job, Stats: stats}, nil
}

// Cancel cancels a sending job and its queued targets
func (s *QuickSendService) Cancel(ctx context.Context, accountID, id int64) (*ActionResult, error) {
	job, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	n, err := s.jobRepo.Cancel(ctx, id)
	if errors.Is(err, repository.ErrStateConflict) {
		return nil, &InvalidStateError{Resource: "quick-send job", ID: id, Status: string(job.Status), Action: "cancel"}
	}
	if err != nil {
		return nil, actionError("quick-send job", id, "cancel", err)
	}
	return s.actionResult(ctx, id, n)
}

// RetryFailed requeues the failed targets of a completed job
func (s *QuickSendService) RetryFailed(ctx context.Context, accountID, id int64) (*ActionResult, error) {
	job, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	n, err := s.jobRepo.RetryFailed(ctx, id)
	if errors.Is(err, repository.ErrStateConflict) {
		return nil, &InvalidStateError{Resource: "quick-send job", ID: id, Status: string(job.Status), Action: "retry"}
	}
	if err != nil {
		return nil, actionError("quick-send job", id, "retry", err)
	}
	notify(ctx, s.triggers, s.log, models.DispatchTrigger{Reason: "job.retry", AccountID: accountID, JobID: id})
	return s.actionResult(ctx, id, n)
}

func (s *QuickSendService) actionResult(ctx context.Context, id int64, affected int) (*ActionResult, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, actionError("quick-send job", id, "load", err)
	}
	return &ActionResult{Job: job, TargetsAffected: affected}, nil
}

func (s *QuickSendService) owned(ctx context.Context, accountID, id int64) (*models.QuickSendJob, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && job.AccountID != accountID) {
		return nil, &NotFoundError{Resource: "quick-send job", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quick-send job: %w", err)
	}
	return job, nil
}
