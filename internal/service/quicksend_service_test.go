package service

import (
	"context"
	"testing"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

func TestQuickSend_CreatesSendingJob(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 10)
	ctx := context.Background()

	res, err := f.quick.Send(ctx, a.ID, &QuickSendRequest{
		Phones: []string{"912345678", "+244912345678", "923456789", "bogus"},
		Body:   "Promo hoje",
	})
	AssertNoError(t, err)
	AssertEqual(t, res.Recipients, 2)
	AssertEqual(t, res.Invalid, 1)
	AssertEqual(t, res.Duplicates, 1)
	AssertEqual(t, res.Credits, int64(2))
	AssertEqual(t, res.Job.Status, models.JobStatusSending)
	AssertEqual(t, f.triggers.count(), 1)

	jobID := res.Job.ID
	targets, total, err := f.store.Targets().List(ctx, repository.TargetFilters{JobID: &jobID})
	AssertNoError(t, err)
	AssertEqual(t, total, 2)
	AssertEqual(t, targets[0].Status, models.TargetStatusQueued)
	AssertEqual(t, targets[0].Cost, int64(1))
}

func TestQuickSend_AppliesCountryMultiplier(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 10)
	ctx := context.Background()
	AssertNoError(t, f.pricing.SetMultiplier(ctx, "pt", 2.5))

	res, err := f.quick.Send(ctx, a.ID, &QuickSendRequest{Phones: []string{"+351912345678"}, Body: "Olá"})
	AssertNoError(t, err)
	AssertEqual(t, res.Credits, int64(3))
}

func TestQuickSend_InsufficientCredits(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1)

	_, err := f.quick.Send(context.Background(), a.ID, &QuickSendRequest{
		Phones: []string{"912345678", "923456789"},
		Body:   "Promo",
	})
	var ierr *InsufficientCreditsError
	AssertErrorAs(t, err, &ierr)
	AssertEqual(t, ierr.Required, int64(2))
	AssertEqual(t, f.triggers.count(), 0)
}

func TestQuickSend_Validation(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 10)
	ctx := context.Background()

	testCases := []struct {
		name string
		req  *QuickSendRequest
	}{
		{"empty body", &QuickSendRequest{Phones: []string{"912345678"}, Body: "  "}},
		{"no phones", &QuickSendRequest{Body: "hi"}},
		{"all invalid", &QuickSendRequest{Phones: []string{"1", "2"}, Body: "hi"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.quick.Send(ctx, a.ID, tc.req)
			var verr *ValidationError
			AssertErrorAs(t, err, &verr)
		})
	}
}

func TestQuickSend_CancelAndScope(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 10)
	other := f.account(t, 10)
	ctx := context.Background()

	res, err := f.quick.Send(ctx, a.ID, &QuickSendRequest{Phones: []string{"912345678"}, Body: "hi"})
	AssertNoError(t, err)

	var nerr *NotFoundError
	_, err = f.quick.Get(ctx, other.ID, res.Job.ID)
	AssertErrorAs(t, err, &nerr)

	canceled, err := f.quick.Cancel(ctx, a.ID, res.Job.ID)
	AssertNoError(t, err)
	AssertEqual(t, canceled.TargetsAffected, 1)
	AssertEqual(t, canceled.Job.Status, models.JobStatusCanceled)

	var serr *InvalidStateError
	_, err = f.quick.RetryFailed(ctx, a.ID, res.Job.ID)
	AssertErrorAs(t, err, &serr)

	job, err := f.quick.Get(ctx, a.ID, res.Job.ID)
	AssertNoError(t, err)
	AssertEqual(t, job.Stats.Canceled, 1)
}
