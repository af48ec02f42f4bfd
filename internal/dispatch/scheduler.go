// Package dispatch runs the periodic pass that materializes campaigns,
// claims queued targets and sends them through the gateway router.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"smsdispatch/internal/gateway"
	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
	"smsdispatch/internal/service"
)

// Config tunes a scheduler
type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxTries        int
	RatePerSecond   int
	StaleClaimAfter time.Duration
}

// Deps are the collaborators of a scheduler
type Deps struct {
	Campaigns repository.CampaignRepository
	Targets   repository.TargetRepository
	Jobs      repository.JobRepository
	Accounts  repository.AccountRepository
	Audience  *service.AudienceService
	Planner   *service.Planner
	Pricing   *service.PricingService
	Ledger    *service.LedgerService
	Overrides *service.OverrideService
	Router    *gateway.Router
	Pacer     Pacer
	Events    Publisher
}

// Scheduler is safe to run concurrently with itself; targets are only
// ever processed by the run that claimed them.
type Scheduler struct {
	campaigns repository.CampaignRepository
	targets   repository.TargetRepository
	jobs      repository.JobRepository
	accounts  repository.AccountRepository
	audience  *service.AudienceService
	planner   *service.Planner
	pricing   *service.PricingService
	ledger    *service.LedgerService
	overrides *service.OverrideService
	router    *gateway.Router
	pacer     Pacer
	events    Publisher
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a scheduler. A nil pacer spaces sends in process and a nil
// publisher drops events.
func New(deps Deps, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.MaxTries < 1 {
		cfg.MaxTries = 3
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	if cfg.RatePerSecond < 1 {
		cfg.RatePerSecond = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = 10 * time.Minute
	}
	if deps.Pacer == nil {
		deps.Pacer = NewLocalPacer()
	}
	if deps.Events == nil {
		deps.Events = NoopPublisher
	}

	return &Scheduler{
		campaigns: deps.Campaigns,
		targets:   deps.Targets,
		jobs:      deps.Jobs,
		accounts:  deps.Accounts,
		audience:  deps.Audience,
		planner:   deps.Planner,
		pricing:   deps.Pricing,
		ledger:    deps.Ledger,
		overrides: deps.Overrides,
		router:    deps.Router,
		pacer:     deps.Pacer,
		events:    deps.Events,
		cfg:       cfg,
		log:       log.With().Str("component", "dispatch").Logger(),
		now:       time.Now,
	}
}

// RunStats summarizes one dispatch pass
type RunStats struct {
	RunID        string `json:"run_id"`
	Promoted     int    `json:"promoted"`
	Released     int    `json:"released"`
	Orphaned     int    `json:"orphaned"`
	Reconciled   int    `json:"reconciled"`
	Materialized int    `json:"materialized"`
	Claimed      int    `json:"claimed"`
	Sent         int    `json:"sent"`
	Retried      int    `json:"retried"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Completed    int    `json:"completed"`
}

// Run executes a pass every poll interval and whenever a trigger arrives,
// until ctx is canceled. triggers may be nil.
func (s *Scheduler) Run(ctx context.Context, triggers <-chan models.DispatchTrigger) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.log.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Int("batch_size", s.cfg.BatchSize).
		Int("rate_per_second", s.cfg.RatePerSecond).
		Msg("dispatch scheduler started")

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("dispatch scheduler stopped")
			return nil
		case <-ticker.C:
			s.runLogged(ctx)
		case trigger, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			s.log.Debug().Str("reason", trigger.Reason).Int64("account_id", trigger.AccountID).Msg("dispatch triggered")
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Str("run_id", stats.RunID).Msg("dispatch run failed")
		}
		return
	}
	if stats.Claimed == 0 && stats.Materialized == 0 && stats.Completed == 0 {
		return
	}
	s.log.Info().
		Str("run_id", stats.RunID).
		Int("materialized", stats.Materialized).
		Int("claimed", stats.Claimed).
		Int("sent", stats.Sent).
		Int("retried", stats.Retried).
		Int("failed", stats.Failed).
		Int("completed", stats.Completed).
		Msg("dispatch run finished")
}

// RunOnce performs one dispatch pass
func (s *Scheduler) RunOnce(ctx context.Context) (RunStats, error) {
	stats := RunStats{RunID: uuid.NewString()}
	log := s.log.With().Str("run_id", stats.RunID).Logger()
	now := s.now()

	promoted, err := s.campaigns.PromoteDue(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to promote scheduled campaigns: %w", err)
	}
	stats.Promoted = len(promoted)

	if stats.Released, err = s.targets.ReleaseStale(ctx, now.Add(-s.cfg.StaleClaimAfter)); err != nil {
		return stats, fmt.Errorf("failed to release stale claims: %w", err)
	}
	if stats.Released > 0 {
		log.Warn().Int("targets", stats.Released).Msg("released stale target claims")
	}

	if stats.Orphaned, err = s.targets.CancelOrphaned(ctx); err != nil {
		return stats, fmt.Errorf("failed to cancel orphaned targets: %w", err)
	}
	if stats.Reconciled, err = s.ledger.Reconcile(ctx, s.cfg.BatchSize); err != nil {
		return stats, err
	}

	if stats.Materialized, err = s.materializeAll(ctx, stats.RunID, now); err != nil {
		return stats, err
	}

	claimed, err := s.targets.Claim(ctx, s.cfg.MaxTries, s.cfg.BatchSize, now)
	if err != nil {
		return stats, fmt.Errorf("failed to claim targets: %w", err)
	}
	stats.Claimed = len(claimed)
	if len(claimed) > 0 {
		s.dispatch(ctx, stats.RunID, claimed, &stats)
	}

	completed, err := s.finish(ctx, stats.RunID, claimed)
	stats.Completed = completed
	return stats, err
}

// materializeAll moves queued campaigns to sending, planning targets for
// those that have none yet. Campaigns left sending without targets by a
// crashed run are planned again.
func (s *Scheduler) materializeAll(ctx context.Context, runID string, now time.Time) (int, error) {
	queued, err := s.campaigns.ListByStatus(ctx, models.CampaignStatusQueued, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list queued campaigns: %w", err)
	}

	n := 0
	for _, c := range queued {
		err := s.campaigns.Transition(ctx, c.ID, []models.CampaignStatus{models.CampaignStatusQueued}, models.CampaignStatusSending)
		if errors.Is(err, repository.ErrStateConflict) || errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("failed to start campaign %d: %w", c.ID, err)
		}
		c.Status = models.CampaignStatusSending
		s.publish(ctx, models.DispatchEvent{Type: models.EventCampaignSending, RunID: runID, AccountID: c.AccountID, CampaignID: &c.ID, OccurredAt: now.UTC()})

		if c.MaterializedAt != nil {
			continue
		}
		if s.materialize(ctx, runID, c) {
			n++
		}
	}

	stuck, err := s.campaigns.ListUnmaterialized(ctx, now.Add(-s.cfg.StaleClaimAfter), s.cfg.BatchSize)
	if err != nil {
		return n, fmt.Errorf("failed to list unmaterialized campaigns: %w", err)
	}
	for _, c := range stuck {
		s.log.Warn().Int64("campaign_id", c.ID).Msg("redoing interrupted materialization")
		if s.materialize(ctx, runID, c) {
			n++
		}
	}
	return n, nil
}

// materialize plans and inserts a campaign's targets. Any error or panic
// fails the campaign; no target has been charged at this point.
func (s *Scheduler) materialize(ctx context.Context, runID string, c *models.Campaign) (ok bool) {
	log := s.log.With().Str("run_id", runID).Int64("campaign_id", c.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("campaign materialization panicked")
			s.failCampaign(ctx, runID, c, fmt.Sprintf("materialization panicked: %v", r))
			ok = false
		}
	}()

	total, err := s.plan(ctx, c)
	if err != nil {
		log.Error().Err(err).Msg("campaign materialization failed")
		s.failCampaign(ctx, runID, c, err.Error())
		return false
	}

	log.Info().Int("targets", total).Msg("campaign materialized")
	return true
}

func (s *Scheduler) plan(ctx context.Context, c *models.Campaign) (int, error) {
	account, err := s.accounts.GetByID(ctx, c.AccountID)
	if err != nil {
		return 0, fmt.Errorf("failed to load account: %w", err)
	}
	audience, err := s.audience.Resolve(ctx, c.AccountID, c.Audience, account.DefaultCountry)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve audience: %w", err)
	}
	prices, err := s.pricing.Table(ctx)
	if err != nil {
		return 0, err
	}

	targets := s.planner.Plan(c.AccountID, c.Template, audience.Recipients, prices)
	for _, t := range targets {
		id := c.ID
		t.CampaignID = &id
	}
	if _, err := s.targets.CreateBatch(ctx, targets); err != nil {
		return 0, fmt.Errorf("failed to insert targets: %w", err)
	}
	if err := s.campaigns.MarkMaterialized(ctx, c.ID, audience.Total, s.now()); err != nil {
		return 0, fmt.Errorf("failed to mark campaign materialized: %w", err)
	}
	return audience.Total, nil
}

func (s *Scheduler) failCampaign(ctx context.Context, runID string, c *models.Campaign, reason string) {
	wctx := context.WithoutCancel(ctx)
	if err := s.campaigns.Fail(wctx, c.ID, reason); err != nil {
		s.log.Error().Err(err).Int64("campaign_id", c.ID).Msg("failed to mark campaign failed")
		return
	}
	s.publish(ctx, models.DispatchEvent{
		Type:       models.EventCampaignFailed,
		RunID:      runID,
		AccountID:  c.AccountID,
		CampaignID: &c.ID,
		ErrorCode:  models.ErrCodeSystem,
		OccurredAt: s.now().UTC(),
	})
}

// dispatch sends claimed targets with one goroutine per account. Targets
// of an account keep their claim order.
func (s *Scheduler) dispatch(ctx context.Context, runID string, claimed []*models.Target, stats *RunStats) {
	var order []int64
	byAccount := make(map[int64][]*models.Target)
	for _, t := range claimed {
		if _, ok := byAccount[t.AccountID]; !ok {
			order = append(order, t.AccountID)
		}
		byAccount[t.AccountID] = append(byAccount[t.AccountID], t)
	}

	p := pool.NewWithResults[tally]()
	for _, accountID := range order {
		targets := byAccount[accountID]
		p.Go(func() tally {
			return s.processAccount(ctx, runID, accountID, targets)
		})
	}

	for _, t := range p.Wait() {
		stats.Sent += t.sent
		stats.Retried += t.retried
		stats.Failed += t.failed
		stats.Skipped += t.skipped
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeRetried
	outcomeFailed
)

type tally struct {
	sent, retried, failed, skipped int
}

func (t *tally) add(o outcome) {
	switch o {
	case outcomeSent:
		t.sent++
	case outcomeRetried:
		t.retried++
	case outcomeFailed:
		t.failed++
	default:
		t.skipped++
	}
}

func (s *Scheduler) processAccount(ctx context.Context, runID string, accountID int64, targets []*models.Target) tally {
	var result tally
	log := s.log.With().Str("run_id", runID).Int64("account_id", accountID).Logger()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load account, releasing targets")
		s.release(ctx, targets)
		result.skipped += len(targets)
		return result
	}

	rate := s.cfg.RatePerSecond
	if account.RateLimitPerSecond > 0 {
		rate = account.RateLimitPerSecond
	}
	interval := time.Second / time.Duration(rate)
	senders := make(map[string]string)

	for i, t := range targets {
		if err := s.pacer.Wait(ctx, accountID, interval); err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("pacer failed, releasing targets")
			}
			s.release(ctx, targets[i:])
			result.skipped += len(targets) - i
			return result
		}
		result.add(s.processTarget(ctx, runID, account, t, s.ownerSender(ctx, t, senders)))
	}
	return result
}

// ownerSender returns the sender ID chosen on the target's campaign or job
func (s *Scheduler) ownerSender(ctx context.Context, t *models.Target, cache map[string]string) string {
	kind, id := t.Owner()
	key := kind + "/" + strconv.FormatInt(id, 10)
	if sender, ok := cache[key]; ok {
		return sender
	}

	var sender string
	switch kind {
	case "campaign":
		if c, err := s.campaigns.GetByID(ctx, id); err == nil {
			sender = c.SenderID
		}
	case "job":
		if j, err := s.jobs.GetByID(ctx, id); err == nil {
			sender = j.SenderID
		}
	}
	cache[key] = sender
	return sender
}

// processTarget debits, routes and sends one claimed target, then records
// the outcome. Writes after the send ignore cancellation so an attempt
// that happened is never lost.
func (s *Scheduler) processTarget(ctx context.Context, runID string, account *models.Account, t *models.Target, sender string) (result outcome) {
	log := s.log.With().Str("run_id", runID).Int64("target_id", t.ID).Logger()
	wctx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("target dispatch panicked")
			result = s.recordFailure(wctx, runID, t, t.Tries+1, "", models.ErrCodeSystem, fmt.Sprintf("panic: %v", r))
		}
	}()

	if strings.TrimSpace(t.Body) == "" {
		if err := s.targets.MarkAttempt(wctx, t.ID, models.AttemptOutcome{
			Status:      models.TargetStatusFailed,
			Tries:       t.Tries,
			AttemptedAt: s.now(),
			ErrorCode:   models.ErrCodeValidation,
			ErrorDetail: "message body is empty",
		}); err != nil {
			log.Error().Err(err).Msg("failed to record empty body")
		}
		log.Warn().Msg("target failed with empty body")
		s.publish(ctx, targetEvent(models.EventTargetFailed, runID, t, "", models.ErrCodeValidation))
		return outcomeFailed
	}

	if err := s.ledger.DebitTarget(ctx, t); err != nil {
		var insufficient *service.InsufficientCreditsError
		if !errors.As(err, &insufficient) {
			log.Error().Err(err).Msg("debit failed, releasing target")
			s.release(ctx, []*models.Target{t})
			return outcomeSkipped
		}
		if err := s.targets.MarkAttempt(wctx, t.ID, models.AttemptOutcome{
			Status:      models.TargetStatusFailed,
			Tries:       t.Tries,
			AttemptedAt: s.now(),
			ErrorCode:   models.ErrCodeInsufficientCredits,
			ErrorDetail: insufficient.Error(),
		}); err != nil {
			log.Error().Err(err).Msg("failed to record insufficient credits")
		}
		log.Warn().Int64("cost", t.Cost).Int64("available", insufficient.Available).Msg("target failed for insufficient credits")
		s.publish(ctx, targetEvent(models.EventTargetFailed, runID, t, "", models.ErrCodeInsufficientCredits))
		return outcomeFailed
	}

	override, err := s.overrides.Effective(ctx, account.ID, s.now())
	if err != nil {
		log.Warn().Err(err).Msg("failed to load gateway override, routing without it")
	}

	route := s.router.Route(gateway.RouteRequest{
		AccountID:      account.ID,
		Country:        t.Country,
		Now:            s.now(),
		Override:       override,
		AccountPrimary: account.PrimaryGateway,
		CampaignSender: sender,
		AccountSender:  account.DefaultSenderID,
	})
	attempt := s.router.Send(ctx, route, gateway.Message{
		To:        t.PhoneE164,
		Body:      t.Body,
		Encoding:  t.Encoding,
		Reference: strconv.FormatInt(t.ID, 10),
	})

	tries := t.Tries + 1
	if !attempt.Result.Accepted {
		return s.recordFailure(wctx, runID, t, tries, attempt.Gateway, attempt.Result.ErrorCode, attempt.Result.ErrorDetail)
	}

	if err := s.targets.MarkAttempt(wctx, t.ID, models.AttemptOutcome{
		Status:           models.TargetStatusSent,
		Tries:            tries,
		AttemptedAt:      s.now(),
		GatewayName:      attempt.Gateway,
		GatewayMessageID: attempt.Result.MessageID,
	}); err != nil {
		log.Error().Err(err).Str("message_id", attempt.Result.MessageID).Msg("failed to record sent target")
	}
	log.Debug().
		Str("gateway", attempt.Gateway).
		Bool("fell_back", attempt.FellBack).
		Int("tries", tries).
		Msg("target sent")
	s.publish(ctx, targetEvent(models.EventTargetSent, runID, t, attempt.Gateway, ""))
	return outcomeSent
}

// recordFailure requeues a target that has tries left and otherwise fails
// it and refunds its debit. The failed status is written first so an
// interrupted refund is picked up by reconciliation.
func (s *Scheduler) recordFailure(ctx context.Context, runID string, t *models.Target, tries int, gatewayName, code, detail string) outcome {
	log := s.log.With().Str("run_id", runID).Int64("target_id", t.ID).Logger()
	if code == "" {
		code = models.ErrCodeGateway
	}

	status := models.TargetStatusQueued
	if tries >= s.cfg.MaxTries {
		status = models.TargetStatusFailed
	}
	if err := s.targets.MarkAttempt(ctx, t.ID, models.AttemptOutcome{
		Status:      status,
		Tries:       tries,
		AttemptedAt: s.now(),
		GatewayName: gatewayName,
		ErrorCode:   code,
		ErrorDetail: detail,
	}); err != nil {
		log.Error().Err(err).Msg("failed to record failed attempt")
		return outcomeSkipped
	}

	if status == models.TargetStatusQueued {
		log.Info().Int("tries", tries).Str("error_code", code).Msg("target attempt failed, requeued")
		s.publish(ctx, targetEvent(models.EventTargetRetry, runID, t, gatewayName, code))
		return outcomeRetried
	}

	refunded, err := s.ledger.RefundTarget(ctx, t, fmt.Sprintf("send failed after %d attempts", tries))
	if err != nil {
		log.Error().Err(err).Msg("refund failed, left for reconciliation")
	}
	log.Warn().
		Int("tries", tries).
		Str("error_code", code).
		Str("error_detail", detail).
		Bool("refunded", refunded).
		Msg("target failed")
	s.publish(ctx, targetEvent(models.EventTargetFailed, runID, t, gatewayName, code))
	return outcomeFailed
}

func (s *Scheduler) release(ctx context.Context, targets []*models.Target) {
	ids := make([]int64, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	if _, err := s.targets.Release(context.WithoutCancel(ctx), ids); err != nil {
		s.log.Error().Err(err).Int("targets", len(ids)).Msg("failed to release targets")
	}
}

// finish completes campaigns and jobs with no pending targets and
// refreshes the counters of every owner touched by this run
func (s *Scheduler) finish(ctx context.Context, runID string, claimed []*models.Target) (int, error) {
	campaignIDs := make(map[int64]bool)
	jobIDs := make(map[int64]bool)
	for _, t := range claimed {
		if t.CampaignID != nil {
			campaignIDs[*t.CampaignID] = true
		}
		if t.JobID != nil {
			jobIDs[*t.JobID] = true
		}
	}

	campaigns, err := s.campaigns.CompleteFinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to complete campaigns: %w", err)
	}
	for _, c := range campaigns {
		campaignIDs[c.ID] = true
		s.log.Info().Str("run_id", runID).Int64("campaign_id", c.ID).Msg("campaign completed")
		s.publish(ctx, models.DispatchEvent{Type: models.EventCampaignCompleted, RunID: runID, AccountID: c.AccountID, CampaignID: &c.ID, OccurredAt: s.now().UTC()})
	}

	jobs, err := s.jobs.CompleteFinished(ctx)
	if err != nil {
		return len(campaigns), fmt.Errorf("failed to complete quick-send jobs: %w", err)
	}
	for _, j := range jobs {
		jobIDs[j.ID] = true
		s.log.Info().Str("run_id", runID).Int64("job_id", j.ID).Msg("quick-send job completed")
		s.publish(ctx, models.DispatchEvent{Type: models.EventJobCompleted, RunID: runID, AccountID: j.AccountID, JobID: &j.ID, OccurredAt: s.now().UTC()})
	}

	for id := range campaignIDs {
		if err := s.campaigns.RefreshStats(ctx, id); err != nil {
			s.log.Error().Err(err).Int64("campaign_id", id).Msg("failed to refresh campaign stats")
		}
	}
	for id := range jobIDs {
		if err := s.jobs.RefreshStats(ctx, id); err != nil {
			s.log.Error().Err(err).Int64("job_id", id).Msg("failed to refresh job stats")
		}
	}
	return len(campaigns) + len(jobs), nil
}
