package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/repository/memstore"
)

func TestOverride_Effective(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	acct := int64(1)

	testCases := []struct {
		name    string
		system  *OverrideRequest
		account *OverrideRequest
		want    string
	}{
		{"none stored", nil, nil, ""},
		{"account override", nil, &OverrideRequest{Mode: "force_ombala", ExpiresAt: &future}, "force_ombala"},
		{"expired account falls back to system", &OverrideRequest{Mode: "force_bulkgate"}, &OverrideRequest{Mode: "force_ombala", ExpiresAt: &past}, "force_bulkgate"},
		{"expired system is none", &OverrideRequest{Mode: "force_bulkgate", ExpiresAt: &past}, nil, ""},
		{"account none mode defers to system", &OverrideRequest{Mode: "force_bulkgate"}, &OverrideRequest{Mode: "none"}, "force_bulkgate"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewOverrideService(memstore.New().Overrides(), []string{"bulkgate", "ombala"}, zerolog.Nop())
			ctx := context.Background()
			if tc.system != nil {
				_, err := svc.Set(ctx, nil, tc.system)
				AssertNoError(t, err)
			}
			if tc.account != nil {
				_, err := svc.Set(ctx, &acct, tc.account)
				AssertNoError(t, err)
			}

			got, err := svc.Effective(ctx, acct, now)
			AssertNoError(t, err)
			mode := ""
			if got != nil {
				mode = got.Mode
			}
			AssertEqual(t, mode, tc.want)
		})
	}
}

func TestOverride_SetRejectsUnknownGateway(t *testing.T) {
	svc := NewOverrideService(memstore.New().Overrides(), []string{"bulkgate"}, zerolog.Nop())
	var verr *ValidationError
	for _, mode := range []string{"force_twilio", "force_", "prefer_bulkgate", ""} {
		_, err := svc.Set(context.Background(), nil, &OverrideRequest{Mode: mode})
		AssertErrorAs(t, err, &verr)
	}
}

func TestOverride_ClearAndGet(t *testing.T) {
	svc := NewOverrideService(memstore.New().Overrides(), []string{"bulkgate"}, zerolog.Nop())
	ctx := context.Background()
	acct := int64(4)

	var nerr *NotFoundError
	_, err := svc.Get(ctx, &acct)
	AssertErrorAs(t, err, &nerr)

	_, err = svc.Set(ctx, &acct, &OverrideRequest{Mode: "force_bulkgate", Reason: "ombala outage"})
	AssertNoError(t, err)
	got, err := svc.Get(ctx, &acct)
	AssertNoError(t, err)
	AssertEqual(t, got.Reason, "ombala outage")
	AssertEqual(t, got.ActiveAt(time.Now()), true)

	AssertNoError(t, svc.Clear(ctx, &acct))
	AssertErrorAs(t, svc.Clear(ctx, &acct), &nerr)
}
