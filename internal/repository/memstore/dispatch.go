package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

// campaigns

type campaignRepo struct{ s *Store }

func copyCampaign(c *models.Campaign) *models.Campaign {
	cp := *c
	cp.Audience.TagIDs = append([]int64(nil), c.Audience.TagIDs...)
	cp.Audience.ListIDs = append([]int64(nil), c.Audience.ListIDs...)
	cp.Audience.Phones = append([]string(nil), c.Audience.Phones...)
	return &cp
}

func (r campaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.nextID()
	c.CreatedAt = r.s.stamp()
	c.UpdatedAt = c.CreatedAt
	r.s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (r campaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (r campaignRepo) GetStats(ctx context.Context, id int64) (models.CampaignStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.stats(func(t *models.Target) bool { return t.CampaignID != nil && *t.CampaignID == id }), nil
}

func (s *Store) stats(owned func(*models.Target) bool) models.CampaignStats {
	var st models.CampaignStats
	for _, t := range s.targets {
		if !owned(t) {
			continue
		}
		st.Total++
		switch t.Status {
		case models.TargetStatusQueued:
			st.Queued++
		case models.TargetStatusSending:
			st.Sending++
		case models.TargetStatusSent:
			st.Sent++
		case models.TargetStatusFailed:
			st.Failed++
		case models.TargetStatusCanceled:
			st.Canceled++
		}
	}
	return st
}

func (s *Store) spent(owned func(*models.Target) bool) int64 {
	var total int64
	for _, t := range s.targets {
		if owned(t) && t.Status == models.TargetStatusSent {
			total += t.Cost
		}
	}
	return total
}

func (r campaignRepo) List(ctx context.Context, f repository.CampaignFilters) ([]*models.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.s.campaigns {
		if c.AccountID != f.AccountID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		out = append(out, copyCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)

	limit := f.PageSize
	if limit <= 0 {
		limit = 20
	}
	offset := (f.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	return paginate(out, limit, offset), total, nil
}

func (r campaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.campaigns[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != models.CampaignStatusDraft {
		return repository.ErrStateConflict
	}
	cur.Name = c.Name
	cur.Template = c.Template
	cur.Audience = c.Audience
	cur.SenderID = c.SenderID
	cur.ScheduleAt = c.ScheduleAt
	cur.Timezone = c.Timezone
	cur.UpdatedAt = r.s.stamp()
	c.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r campaignRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !c.CanDelete() {
		return repository.ErrStateConflict
	}
	delete(r.s.campaigns, id)
	for tid, t := range r.s.targets {
		if t.CampaignID != nil && *t.CampaignID == id {
			delete(r.s.targets, tid)
		}
	}
	return nil
}

func (r campaignRepo) SetEstimate(ctx context.Context, id int64, est int64, total int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.Status != models.CampaignStatusDraft {
		return repository.ErrStateConflict
	}
	c.EstCredits = est
	c.TotalTargets = total
	c.UpdatedAt = r.s.stamp()
	return nil
}

func (r campaignRepo) transition(id int64, from []models.CampaignStatus, to models.CampaignStatus) (*models.Campaign, error) {
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			c.UpdatedAt = r.s.stamp()
			return c, nil
		}
	}
	return nil, repository.ErrStateConflict
}

func (r campaignRepo) Transition(ctx context.Context, id int64, from []models.CampaignStatus, to models.CampaignStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, err := r.transition(id, from, to)
	return err
}

func (r campaignRepo) Fail(ctx context.Context, id int64, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.transition(id, models.SourcesFor(models.CampaignStatusFailed), models.CampaignStatusFailed)
	if err != nil {
		return err
	}
	c.LastError = &reason
	return nil
}

func (r campaignRepo) Cancel(ctx context.Context, id int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.transition(id, models.SourcesFor(models.CampaignStatusCanceled), models.CampaignStatusCanceled); err != nil {
		return 0, err
	}
	n := 0
	for _, t := range r.s.targets {
		if t.CampaignID != nil && *t.CampaignID == id && t.Status == models.TargetStatusQueued {
			t.Status = models.TargetStatusCanceled
			t.UpdatedAt = r.s.stamp()
			n++
		}
	}
	return n, nil
}

func (r campaignRepo) RetryFailed(ctx context.Context, id int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.transition(id, []models.CampaignStatus{models.CampaignStatusCompleted}, models.CampaignStatusQueued)
	if err != nil {
		return 0, err
	}
	c.LastError = nil
	return r.s.resetFailed(func(t *models.Target) bool { return t.CampaignID != nil && *t.CampaignID == id }), nil
}

func (s *Store) resetFailed(owned func(*models.Target) bool) int {
	n := 0
	for _, t := range s.targets {
		if !owned(t) || t.Status != models.TargetStatusFailed {
			continue
		}
		t.Status = models.TargetStatusQueued
		t.Tries = 0
		t.ErrorCode = nil
		t.ErrorDetail = nil
		t.GatewayName = nil
		t.LastAttemptAt = nil
		t.ClaimedAt = nil
		t.BillingEpoch++
		t.UpdatedAt = s.stamp()
		n++
	}
	return n
}

func (r campaignRepo) PromoteDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.s.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.ScheduleAt != nil && !c.ScheduleAt.After(now) {
			c.Status = models.CampaignStatusQueued
			c.UpdatedAt = r.s.stamp()
			out = append(out, copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r campaignRepo) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	return r.list(limit, func(c *models.Campaign) bool { return c.Status == status }), nil
}

func (r campaignRepo) ListUnmaterialized(ctx context.Context, olderThan time.Time, limit int) ([]*models.Campaign, error) {
	return r.list(limit, func(c *models.Campaign) bool {
		return c.Status == models.CampaignStatusSending && c.MaterializedAt == nil && c.UpdatedAt.Before(olderThan)
	}), nil
}

func (r campaignRepo) list(limit int, keep func(*models.Campaign) bool) []*models.Campaign {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.s.campaigns {
		if keep(c) {
			out = append(out, copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return paginate(out, limit, 0)
}

func (r campaignRepo) MarkMaterialized(ctx context.Context, id int64, total int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.MaterializedAt = &at
	c.TotalTargets = total
	c.UpdatedAt = r.s.stamp()
	return nil
}

func (r campaignRepo) RefreshStats(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.MaterializedAt == nil {
		return nil
	}
	owned := func(t *models.Target) bool { return t.CampaignID != nil && *t.CampaignID == id }
	c.TotalTargets = r.s.stats(owned).Total
	c.SpentCredits = r.s.spent(owned)
	return nil
}

func (r campaignRepo) CompleteFinished(ctx context.Context) ([]*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.s.campaigns {
		if c.Status != models.CampaignStatusSending || c.MaterializedAt == nil {
			continue
		}
		id := c.ID
		st := r.s.stats(func(t *models.Target) bool { return t.CampaignID != nil && *t.CampaignID == id })
		if st.Pending() > 0 {
			continue
		}
		c.Status = models.CampaignStatusCompleted
		c.UpdatedAt = r.s.stamp()
		out = append(out, copyCampaign(c))
	}
	return out, nil
}

// targets

type targetRepo struct{ s *Store }

func copyTarget(t *models.Target) *models.Target {
	cp := *t
	return &cp
}

func (s *Store) insertTargets(targets []*models.Target) int {
	seen := make(map[string]bool)
	for _, t := range s.targets {
		if t.CampaignID != nil {
			seen[campaignPhoneKey(*t.CampaignID, t.PhoneE164)] = true
		}
	}

	n := 0
	for _, t := range targets {
		if t.CampaignID != nil {
			key := campaignPhoneKey(*t.CampaignID, t.PhoneE164)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		t.ID = s.nextID()
		t.Status = models.TargetStatusQueued
		t.BillingEpoch = 0
		t.CreatedAt = s.stamp()
		t.UpdatedAt = t.CreatedAt
		s.targets[t.ID] = copyTarget(t)
		n++
	}
	return n
}

func campaignPhoneKey(id int64, phone string) string {
	return fmt.Sprintf("%d/%s", id, phone)
}

func (r targetRepo) CreateBatch(ctx context.Context, targets []*models.Target) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertTargets(targets), nil
}

func (r targetRepo) GetByID(ctx context.Context, id int64) (*models.Target, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.targets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTarget(t), nil
}

func (r targetRepo) List(ctx context.Context, f repository.TargetFilters) ([]*models.Target, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Target{}
	for _, t := range r.s.targets {
		if f.CampaignID != nil && (t.CampaignID == nil || *t.CampaignID != *f.CampaignID) {
			continue
		}
		if f.JobID != nil && (t.JobID == nil || *t.JobID != *f.JobID) {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, copyTarget(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)

	limit := f.PageSize
	if limit <= 0 {
		limit = 20
	}
	offset := (f.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	return paginate(out, limit, offset), total, nil
}

func (r targetRepo) ownerSending(t *models.Target) bool {
	if t.CampaignID != nil {
		c, ok := r.s.campaigns[*t.CampaignID]
		return ok && c.Status == models.CampaignStatusSending
	}
	if t.JobID != nil {
		j, ok := r.s.jobs[*t.JobID]
		return ok && j.Status == models.JobStatusSending
	}
	return false
}

func (r targetRepo) Claim(ctx context.Context, maxTries, limit int, now time.Time) ([]*models.Target, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	eligible := []*models.Target{}
	for _, t := range r.s.targets {
		if t.Status == models.TargetStatusQueued && t.Tries < maxTries && r.ownerSending(t) {
			eligible = append(eligible, t)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	eligible = paginate(eligible, limit, 0)

	out := make([]*models.Target, 0, len(eligible))
	for _, t := range eligible {
		claimed := now
		t.Status = models.TargetStatusSending
		t.ClaimedAt = &claimed
		t.UpdatedAt = now
		out = append(out, copyTarget(t))
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r targetRepo) MarkAttempt(ctx context.Context, id int64, o models.AttemptOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.targets[id]
	if !ok || t.Status != models.TargetStatusSending {
		return repository.ErrStateConflict
	}
	at := o.AttemptedAt
	t.Status = o.Status
	t.Tries = o.Tries
	t.LastAttemptAt = &at
	t.GatewayName = optional(o.GatewayName)
	t.GatewayMessageID = optional(o.GatewayMessageID)
	t.ErrorCode = optional(o.ErrorCode)
	t.ErrorDetail = optional(o.ErrorDetail)
	t.ClaimedAt = nil
	t.UpdatedAt = r.s.stamp()
	return nil
}

func (r targetRepo) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.targets {
		if t.Status == models.TargetStatusSending && t.ClaimedAt != nil && t.ClaimedAt.Before(claimedBefore) {
			t.Status = models.TargetStatusQueued
			t.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r targetRepo) Release(ctx context.Context, ids []int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if t, ok := r.s.targets[id]; ok && t.Status == models.TargetStatusSending {
			t.Status = models.TargetStatusQueued
			t.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r targetRepo) CancelOrphaned(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.targets {
		if t.Status != models.TargetStatusQueued {
			continue
		}
		orphaned := false
		if t.CampaignID != nil {
			if c, ok := r.s.campaigns[*t.CampaignID]; ok {
				orphaned = c.Status == models.CampaignStatusCanceled || c.Status == models.CampaignStatusFailed
			}
		}
		if t.JobID != nil {
			if j, ok := r.s.jobs[*t.JobID]; ok {
				orphaned = j.Status == models.JobStatusCanceled
			}
		}
		if orphaned {
			t.Status = models.TargetStatusCanceled
			t.UpdatedAt = r.s.stamp()
			n++
		}
	}
	return n, nil
}

func (r targetRepo) AnnotateDelivery(ctx context.Context, gateway, messageID, status string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.targets {
		if t.Status == models.TargetStatusSent &&
			t.GatewayName != nil && *t.GatewayName == gateway &&
			t.GatewayMessageID != nil && *t.GatewayMessageID == messageID {
			st := status
			t.DeliveryStatus = &st
			n++
		}
	}
	return n, nil
}

// jobs

type jobRepo struct{ s *Store }

func (r jobRepo) CreateWithTargets(ctx context.Context, job *models.QuickSendJob, targets []*models.Target) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job.ID = r.s.nextID()
	job.TotalTargets = len(targets)
	job.CreatedAt = r.s.stamp()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	r.s.jobs[job.ID] = &cp

	for _, t := range targets {
		id := job.ID
		t.JobID = &id
		t.CampaignID = nil
	}
	r.s.insertTargets(targets)
	return nil
}

func (r jobRepo) GetByID(ctx context.Context, id int64) (*models.QuickSendJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r jobRepo) GetStats(ctx context.Context, id int64) (models.CampaignStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.stats(func(t *models.Target) bool { return t.JobID != nil && *t.JobID == id }), nil
}

func (r jobRepo) Cancel(ctx context.Context, id int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if j.Status != models.JobStatusSending {
		return 0, repository.ErrStateConflict
	}
	j.Status = models.JobStatusCanceled
	j.UpdatedAt = r.s.stamp()
	n := 0
	for _, t := range r.s.targets {
		if t.JobID != nil && *t.JobID == id && t.Status == models.TargetStatusQueued {
			t.Status = models.TargetStatusCanceled
			n++
		}
	}
	return n, nil
}

func (r jobRepo) RetryFailed(ctx context.Context, id int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if j.Status != models.JobStatusCompleted {
		return 0, repository.ErrStateConflict
	}
	j.Status = models.JobStatusSending
	j.UpdatedAt = r.s.stamp()
	return r.s.resetFailed(func(t *models.Target) bool { return t.JobID != nil && *t.JobID == id }), nil
}

func (r jobRepo) RefreshStats(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil
	}
	j.SpentCredits = r.s.spent(func(t *models.Target) bool { return t.JobID != nil && *t.JobID == id })
	return nil
}

func (r jobRepo) CompleteFinished(ctx context.Context) ([]*models.QuickSendJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.QuickSendJob{}
	for _, j := range r.s.jobs {
		if j.Status != models.JobStatusSending {
			continue
		}
		id := j.ID
		if r.s.stats(func(t *models.Target) bool { return t.JobID != nil && *t.JobID == id }).Pending() > 0 {
			continue
		}
		j.Status = models.JobStatusCompleted
		j.UpdatedAt = r.s.stamp()
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}
