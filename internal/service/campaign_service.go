package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

// CampaignService handles campaign business logic
type CampaignService struct {
	campaignRepo repository.CampaignRepository
	targetRepo   repository.TargetRepository
	accountRepo  repository.AccountRepository
	audience     *AudienceService
	planner      *Planner
	triggers     TriggerPublisher
	log          zerolog.Logger
	now          func() time.Time
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	targetRepo repository.TargetRepository,
	accountRepo repository.AccountRepository,
	audience *AudienceService,
	planner *Planner,
	triggers TriggerPublisher,
	log zerolog.Logger,
) *CampaignService {
	if triggers == nil {
		triggers = NoopTriggers
	}
	return &CampaignService{
		campaignRepo: campaignRepo,
		targetRepo:   targetRepo,
		accountRepo:  accountRepo,
		audience:     audience,
		planner:      planner,
		triggers:     triggers,
		log:          log.With().Str("component", "campaigns").Logger(),
		now:          time.Now,
	}
}

// CreateCampaign creates a new draft campaign
func (s *CampaignService) CreateCampaign(ctx context.Context, accountID int64, req *CampaignRequest) (*models.Campaign, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	campaign := req.apply(&models.Campaign{AccountID: accountID, Status: models.CampaignStatusDraft})
	if err := s.validate(campaign, account); err != nil {
		return nil, err
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.log.Info().Int64("campaign_id", campaign.ID).Int64("account_id", accountID).Msg("campaign created")
	return campaign, nil
}

// GetCampaign retrieves an account's campaign with statistics
func (s *CampaignService) GetCampaign(ctx context.Context, accountID, id int64) (*models.CampaignWithStats, error) {
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	stats, err := s.campaignRepo.GetStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}
	return &models.CampaignWithStats{Campaign: *campaign, Stats: stats}, nil
}

// ListCampaigns lists an account's campaigns
func (s *CampaignService) ListCampaigns(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	campaigns, total, err := s.campaignRepo.List(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, newPaginationInfo(filters.Page, filters.PageSize, total), nil
}

// UpdateCampaign rewrites a draft campaign
func (s *CampaignService) UpdateCampaign(ctx context.Context, accountID, id int64, req *CampaignRequest) (*models.Campaign, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusDraft {
		return nil, &InvalidStateError{Resource: "campaign", ID: id, Status: string(campaign.Status), Action: "update"}
	}

	campaign = req.apply(campaign)
	if err := s.validate(campaign, account); err != nil {
		return nil, err
	}
	if err := s.campaignRepo.Update(ctx, campaign); err != nil {
		return nil, actionError("campaign", id, "update", err)
	}
	return campaign, nil
}

// DeleteCampaign removes a draft or canceled campaign
func (s *CampaignService) DeleteCampaign(ctx context.Context, accountID, id int64) error {
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return err
	}
	if !campaign.CanDelete() {
		return &InvalidStateError{Resource: "campaign", ID: id, Status: string(campaign.Status), Action: "delete"}
	}
	return actionError("campaign", id, "delete", s.campaignRepo.Delete(ctx, id))
}

// EstimateCampaign resolves the audience and prices the template against
// its first recipient
func (s *CampaignService) EstimateCampaign(ctx context.Context, accountID, id int64) (*EstimateResult, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	audience, err := s.audience.Resolve(ctx, accountID, campaign.Audience, account.DefaultCountry)
	if err != nil {
		return nil, err
	}
	est := s.planner.Estimate(campaign.Template, audience.Recipients)

	if campaign.Status == models.CampaignStatusDraft {
		err := s.campaignRepo.SetEstimate(ctx, id, est.Credits, audience.Total)
		if err != nil && !errors.Is(err, repository.ErrStateConflict) {
			return nil, fmt.Errorf("failed to store estimate: %w", err)
		}
	}

	samples := make([]SamplePreview, len(audience.Sample))
	for i, r := range audience.Sample {
		samples[i] = SamplePreview{Recipient: r, Body: s.planner.templates.Render(campaign.Template, r)}
	}

	return &EstimateResult{
		Estimate:   est,
		Audience:   audience,
		Samples:    samples,
		Balance:    account.Credits,
		Sufficient: account.Credits >= est.Credits,
	}, nil
}

// QueueCampaign moves a draft to queued, or to scheduled when it has a
// future schedule time. The balance must cover the estimate.
func (s *CampaignService) QueueCampaign(ctx context.Context, accountID, id int64) (*models.Campaign, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusDraft {
		return nil, &InvalidStateError{Resource: "campaign", ID: id, Status: string(campaign.Status), Action: "queue"}
	}
	if err := s.validate(campaign, account); err != nil {
		return nil, err
	}

	audience, err := s.audience.Resolve(ctx, accountID, campaign.Audience, account.DefaultCountry)
	if err != nil {
		return nil, err
	}
	if audience.Total == 0 {
		return nil, &ValidationError{Message: "audience resolved to no recipients"}
	}

	est := s.planner.Estimate(campaign.Template, audience.Recipients)
	if est.Segments == 0 {
		return nil, &ValidationError{Message: "message body is empty"}
	}
	if err := s.campaignRepo.SetEstimate(ctx, id, est.Credits, audience.Total); err != nil {
		return nil, actionError("campaign", id, "queue", err)
	}

	if account.Credits < est.Credits {
		return nil, &InsufficientCreditsError{Required: est.Credits, Available: account.Credits}
	}

	to := models.CampaignStatusQueued
	if campaign.IsScheduled(s.now()) {
		to = models.CampaignStatusScheduled
	}
	if err := s.campaignRepo.Transition(ctx, id, []models.CampaignStatus{models.CampaignStatusDraft}, to); err != nil {
		return nil, actionError("campaign", id, "queue", err)
	}

	s.log.Info().
		Int64("campaign_id", id).
		Str("status", string(to)).
		Int("recipients", audience.Total).
		Int64("est_credits", est.Credits).
		Msg("campaign queued")

	if to == models.CampaignStatusQueued {
		notify(ctx, s.triggers, s.log, models.DispatchTrigger{Reason: "campaign.queued", AccountID: accountID, CampaignID: id})
	}
	return s.campaignRepo.GetByID(ctx, id)
}

// PauseCampaign stops a queued or sending campaign from being picked up
func (s *CampaignService) PauseCampaign(ctx context.Context, accountID, id int64) (*models.Campaign, error) {
	return s.transition(ctx, accountID, id, "pause",
		[]models.CampaignStatus{models.CampaignStatusQueued, models.CampaignStatusSending},
		func(*models.Campaign) models.CampaignStatus { return models.CampaignStatusPaused })
}

// ResumeCampaign continues a paused campaign where it left off
func (s *CampaignService) ResumeCampaign(ctx context.Context, accountID, id int64) (*models.Campaign, error) {
	campaign, err := s.transition(ctx, accountID, id, "resume",
		[]models.CampaignStatus{models.CampaignStatusPaused},
		func(c *models.Campaign) models.CampaignStatus {
			if c.MaterializedAt != nil {
				return models.CampaignStatusSending
			}
			return models.CampaignStatusQueued
		})
	if err != nil {
		return nil, err
	}
	notify(ctx, s.triggers, s.log, models.DispatchTrigger{Reason: "campaign.resumed", AccountID: accountID, CampaignID: id})
	return campaign, nil
}

// CancelCampaign cancels the campaign and all of its queued targets
func (s *CampaignService) CancelCampaign(ctx context.Context, accountID, id int64) (*ActionResult, error) {
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	n, err := s.campaignRepo.Cancel(ctx, id)
	if errors.Is(err, repository.ErrStateConflict) {
		return nil, &InvalidStateError{Resource: "campaign", ID: id, Status: string(campaign.Status), Action: "cancel"}
	}
	if err != nil {
		return nil, actionError("campaign", id, "cancel", err)
	}

	s.log.Info().Int64("campaign_id", id).Int("targets_canceled", n).Msg("campaign canceled")
	return s.actionResult(ctx, id, n)
}

// RetryFailed requeues the failed targets of a completed campaign
func (s *CampaignService) RetryFailed(ctx context.Context, accountID, id int64) (*ActionResult, error) {
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusCompleted {
		return nil, &InvalidStateError{Resource: "campaign", ID: id, Status: string(campaign.Status), Action: "retry"}
	}

	stats, err := s.campaignRepo.GetStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}
	if stats.Failed == 0 {
		return nil, &ValidationError{Message: "campaign has no failed targets"}
	}

	n, err := s.campaignRepo.RetryFailed(ctx, id)
	if err != nil {
		return nil, actionError("campaign", id, "retry", err)
	}

	s.log.Info().Int64("campaign_id", id).Int("targets_requeued", n).Msg("campaign reopened for retry")
	notify(ctx, s.triggers, s.log, models.DispatchTrigger{Reason: "campaign.retry", AccountID: accountID, CampaignID: id})
	return s.actionResult(ctx, id, n)
}

// ListTargets pages through a campaign's targets
func (s *CampaignService) ListTargets(ctx context.Context, accountID, id int64, status *models.TargetStatus, page, pageSize int) ([]*models.Target, *PaginationInfo, error) {
	if _, err := s.owned(ctx, accountID, id); err != nil {
		return nil, nil, err
	}

	targets, total, err := s.targetRepo.List(ctx, repository.TargetFilters{
		CampaignID: &id,
		Status:     status,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, newPaginationInfo(page, pageSize, total), nil
}

func (s *CampaignService) transition(
	ctx context.Context,
	accountID, id int64,
	action string,
	from []models.CampaignStatus,
	to func(*models.Campaign) models.CampaignStatus,
) (*models.Campaign, error) {
	campaign, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	target := to(campaign)
	err = s.campaignRepo.Transition(ctx, id, from, target)
	if errors.Is(err, repository.ErrStateConflict) {
		return nil, &InvalidStateError{Resource: "campaign", ID: id, Status: string(campaign.Status), Action: action}
	}
	if err != nil {
		return nil, actionError("campaign", id, action, err)
	}

	s.log.Info().Int64("campaign_id", id).Str("status", string(target)).Msgf("campaign %s", action)
	return s.campaignRepo.GetByID(ctx, id)
}

func (s *CampaignService) actionResult(ctx context.Context, id int64, affected int) (*ActionResult, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, actionError("campaign", id, "load", err)
	}
	return &ActionResult{Campaign: campaign, TargetsAffected: affected}, nil
}

// owned loads a campaign, hiding campaigns of other accounts
func (s *CampaignService) owned(ctx context.Context, accountID, id int64) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && campaign.AccountID != accountID) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

func (s *CampaignService) account(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "account", ID: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (s *CampaignService) validate(c *models.Campaign, account *models.Account) error {
	if err := c.Validate(); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if c.SenderID != "" && !account.HasSender(c.SenderID) {
		return &ValidationError{Message: fmt.Sprintf("sender id %q is not registered for the account", c.SenderID)}
	}
	return nil
}

// Request/Response types

// CampaignRequest carries the editable fields of a campaign
type CampaignRequest struct {
	Name       string              `json:"name"`
	Template   string              `json:"template"`
	Audience   models.AudienceSpec `json:"audience"`
	SenderID   string              `json:"sender_id,omitempty"`
	ScheduleAt *time.Time          `json:"schedule_at,omitempty"`
	Timezone   string              `json:"timezone,omitempty"`
}

func (r *CampaignRequest) apply(c *models.Campaign) *models.Campaign {
	c.Name = r.Name
	c.Template = r.Template
	c.Audience = r.Audience
	c.SenderID = r.SenderID
	c.ScheduleAt = r.ScheduleAt
	c.Timezone = r.Timezone
	return c
}

// SamplePreview is one rendered sample message
type SamplePreview struct {
	Recipient models.Recipient `json:"recipient"`
	Body      string           `json:"body"`
}

// EstimateResult is the outcome of estimating a campaign
type EstimateResult struct {
	Estimate   Estimate        `json:"estimate"`
	Audience   *Audience       `json:"audience"`
	Samples    []SamplePreview `json:"samples"`
	Balance    int64           `json:"balance"`
	Sufficient bool            `json:"sufficient"`
}

// ActionResult reports a campaign or job after a bulk target change
type ActionResult struct {
	Campaign        *models.Campaign     `json:"campaign,omitempty"`
	Job             *models.QuickSendJob `json:"job,omitempty"`
	TargetsAffected int                  `json:"targets_affected"`
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func pagination(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}

func newPaginationInfo(page, pageSize, total int) *PaginationInfo {
	if page < 1 {
		page = 1
	}
	limit, _ := pagination(page, pageSize)
	return &PaginationInfo{
		Page:       page,
		PageSize:   limit,
		TotalCount: total,
		TotalPages: (total + limit - 1) / limit,
	}
}
