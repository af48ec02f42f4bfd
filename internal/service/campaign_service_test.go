package service

import (
	"context"
	"testing"
	"time"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

func TestQueueCampaign_DuplicateNumbersOneCredit(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, err := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("+244912345678", "912345678"))
	AssertNoError(t, err)
	AssertEqual(t, campaign.Status, models.CampaignStatusDraft)

	est, err := f.campaigns.EstimateCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, est.Audience.Total, 1)
	AssertEqual(t, est.Estimate.Credits, int64(1))
	AssertEqual(t, est.Samples[0].Body, "Olá ")

	queued, err := f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, queued.Status, models.CampaignStatusQueued)
	AssertEqual(t, queued.EstCredits, int64(1))
	AssertEqual(t, queued.TotalTargets, 1)
	AssertEqual(t, f.triggers.count(), 1)

	// queueing does not charge; targets are debited at send time
	AssertEqual(t, f.balance(t, a.ID), int64(5))
}

func TestQueueCampaign_InsufficientCreditsStaysDraft(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)
	ctx := context.Background()

	campaign, err := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("+244912345678", "912345678"))
	AssertNoError(t, err)

	_, err = f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	var ierr *InsufficientCreditsError
	AssertErrorAs(t, err, &ierr)
	AssertEqual(t, ierr.Required, int64(1))

	got, err := f.campaigns.GetCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, got.Status, models.CampaignStatusDraft)
	AssertEqual(t, f.triggers.count(), 0)
}

func TestQueueCampaign_FutureScheduleIsScheduled(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.campaigns.now = fixedClock(now)

	req := manualCampaign("912345678")
	at := now.Add(time.Hour)
	req.ScheduleAt = &at
	campaign, err := f.campaigns.CreateCampaign(ctx, a.ID, req)
	AssertNoError(t, err)

	queued, err := f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, queued.Status, models.CampaignStatusScheduled)
	AssertEqual(t, f.triggers.count(), 0)
}

func TestQueueCampaign_EmptyAudienceRejected(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, err := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("12345"))
	AssertNoError(t, err)

	_, err = f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	var verr *ValidationError
	AssertErrorAs(t, err, &verr)
}

func TestQueueCampaign_NotDraft(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, _ := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("912345678"))
	_, err := f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)

	_, err = f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	var serr *InvalidStateError
	AssertErrorAs(t, err, &serr)
	AssertEqual(t, serr.Status, string(models.CampaignStatusQueued))
}

func TestCreateCampaign_Validation(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)
	ctx := context.Background()

	testCases := []struct {
		name string
		req  *CampaignRequest
	}{
		{"missing name", &CampaignRequest{Template: "hi", Audience: models.AudienceSpec{Kind: models.AudienceManual, Phones: []string{"912345678"}}}},
		{"missing template", &CampaignRequest{Name: "x", Audience: models.AudienceSpec{Kind: models.AudienceManual, Phones: []string{"912345678"}}}},
		{"mixed audience", &CampaignRequest{Name: "x", Template: "hi", Audience: models.AudienceSpec{Kind: models.AudienceManual, Phones: []string{"912345678"}, TagIDs: []int64{1}}}},
		{"unregistered sender", &CampaignRequest{Name: "x", Template: "hi", SenderID: "OTHER", Audience: models.AudienceSpec{Kind: models.AudienceManual, Phones: []string{"912345678"}}}},
		{"bad timezone", &CampaignRequest{Name: "x", Template: "hi", Timezone: "Mars/Olympus", Audience: models.AudienceSpec{Kind: models.AudienceManual, Phones: []string{"912345678"}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.campaigns.CreateCampaign(ctx, a.ID, tc.req)
			var verr *ValidationError
			AssertErrorAs(t, err, &verr)
		})
	}
}

func TestCampaign_OtherAccountIsNotFound(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, 5)
	intruder := f.account(t, 5)
	ctx := context.Background()

	campaign, err := f.campaigns.CreateCampaign(ctx, owner.ID, manualCampaign("912345678"))
	AssertNoError(t, err)

	var nerr *NotFoundError
	_, err = f.campaigns.GetCampaign(ctx, intruder.ID, campaign.ID)
	AssertErrorAs(t, err, &nerr)
	_, err = f.campaigns.QueueCampaign(ctx, intruder.ID, campaign.ID)
	AssertErrorAs(t, err, &nerr)
	_, err = f.campaigns.CancelCampaign(ctx, intruder.ID, campaign.ID)
	AssertErrorAs(t, err, &nerr)
}

func TestCampaign_PauseResumeCancel(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, _ := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("912345678"))

	var serr *InvalidStateError
	_, err := f.campaigns.PauseCampaign(ctx, a.ID, campaign.ID)
	AssertErrorAs(t, err, &serr)

	_, err = f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)

	paused, err := f.campaigns.PauseCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, paused.Status, models.CampaignStatusPaused)

	resumed, err := f.campaigns.ResumeCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, resumed.Status, models.CampaignStatusQueued)

	res, err := f.campaigns.CancelCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, res.Campaign.Status, models.CampaignStatusCanceled)

	_, err = f.campaigns.ResumeCampaign(ctx, a.ID, campaign.ID)
	AssertErrorAs(t, err, &serr)
	_, err = f.campaigns.CancelCampaign(ctx, a.ID, campaign.ID)
	AssertErrorAs(t, err, &serr)

	AssertNoError(t, f.campaigns.DeleteCampaign(ctx, a.ID, campaign.ID))
}

func TestCampaign_ResumeMaterializedGoesToSending(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, _ := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("912345678"))
	_, err := f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertNoError(t, f.store.Campaigns().Transition(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusQueued}, models.CampaignStatusSending))
	AssertNoError(t, f.store.Campaigns().MarkMaterialized(ctx, campaign.ID, 1, time.Now()))

	_, err = f.campaigns.PauseCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	resumed, err := f.campaigns.ResumeCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)
	AssertEqual(t, resumed.Status, models.CampaignStatusSending)
}

func TestCampaign_UpdateAndDeleteOnlyDraft(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, _ := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("912345678"))
	req := manualCampaign("912345678", "923456789")
	req.Name = "Renamed"
	updated, err := f.campaigns.UpdateCampaign(ctx, a.ID, campaign.ID, req)
	AssertNoError(t, err)
	AssertEqual(t, updated.Name, "Renamed")

	_, err = f.campaigns.QueueCampaign(ctx, a.ID, campaign.ID)
	AssertNoError(t, err)

	var serr *InvalidStateError
	_, err = f.campaigns.UpdateCampaign(ctx, a.ID, campaign.ID, req)
	AssertErrorAs(t, err, &serr)
	AssertErrorAs(t, f.campaigns.DeleteCampaign(ctx, a.ID, campaign.ID), &serr)
}

func TestCampaign_RetryFailedRequiresCompleted(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	ctx := context.Background()

	campaign, _ := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("912345678"))
	var serr *InvalidStateError
	_, err := f.campaigns.RetryFailed(ctx, a.ID, campaign.ID)
	AssertErrorAs(t, err, &serr)
}

func TestCampaign_ListScopedToAccount(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)
	b := f.account(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.campaigns.CreateCampaign(ctx, a.ID, manualCampaign("912345678"))
		AssertNoError(t, err)
	}
	_, err := f.campaigns.CreateCampaign(ctx, b.ID, manualCampaign("912345678"))
	AssertNoError(t, err)

	list, page, err := f.campaigns.ListCampaigns(ctx, repository.CampaignFilters{AccountID: a.ID, Page: 1, PageSize: 2})
	AssertNoError(t, err)
	AssertEqual(t, len(list), 2)
	AssertEqual(t, page.TotalCount, 3)
	AssertEqual(t, page.TotalPages, 2)
}
