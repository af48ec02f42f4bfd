package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
	"smsdispatch/internal/phone"
	"smsdispatch/internal/repository/memstore"
)

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNoError checks that no error occurred
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorAs checks that err matches the target error type
func AssertErrorAs(t *testing.T, err error, target interface{}) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of type %T, got nil", target)
	}
	if !errors.As(err, target) {
		t.Fatalf("expected error of type %T, got %T: %v", target, err, err)
	}
}

type recordingTriggers struct {
	mu       sync.Mutex
	triggers []models.DispatchTrigger
}

func (r *recordingTriggers) PublishTrigger(_ context.Context, t models.DispatchTrigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, t)
	return nil
}

func (r *recordingTriggers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

type fixture struct {
	store     *memstore.Store
	templates *TemplateService
	audience  *AudienceService
	planner   *Planner
	pricing   *PricingService
	ledger    *LedgerService
	campaigns *CampaignService
	quick     *QuickSendService
	triggers  *recordingTriggers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := memstore.New()
	templates := NewTemplateService()
	audience := NewAudienceService(store.Contacts(), phone.NewNormalizer(nil), "AO", log)
	planner := NewPlanner(templates)
	pricing := NewPricingService(store.Pricing())
	triggers := &recordingTriggers{}

	return &fixture{
		store:     store,
		templates: templates,
		audience:  audience,
		planner:   planner,
		pricing:   pricing,
		ledger:    NewLedgerService(store.Ledger(), store.Accounts(), log),
		campaigns: NewCampaignService(store.Campaigns(), store.Targets(), store.Accounts(), audience, planner, triggers, log),
		quick:     NewQuickSendService(store.Jobs(), store.Accounts(), audience, planner, pricing, triggers, log),
		triggers:  triggers,
	}
}

func (f *fixture) account(t *testing.T, credits int64) *models.Account {
	t.Helper()
	ctx := context.Background()
	a := &models.Account{Name: "acme", DefaultSenderID: "ACME", DefaultCountry: "AO"}
	AssertNoError(t, f.store.Accounts().Create(ctx, a))
	if credits > 0 {
		AssertNoError(t, f.ledger.Grant(ctx, a.ID, credits, "test grant", fmt.Sprintf("grant/%d", a.ID)))
	}
	return a
}

func (f *fixture) balance(t *testing.T, accountID int64) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), accountID)
	AssertNoError(t, err)
	return b
}

func (f *fixture) contact(t *testing.T, accountID int64, name, phoneE164 string, blocked bool) *models.Contact {
	t.Helper()
	c := &models.Contact{AccountID: accountID, Name: name, PhoneE164: phoneE164, IsBlocked: blocked, Attributes: models.Attributes{}}
	AssertNoError(t, f.store.Contacts().Create(context.Background(), c))
	return c
}

func manualCampaign(phones ...string) *CampaignRequest {
	return &CampaignRequest{
		Name:     "Promo",
		Template: "Olá {{name}}",
		Audience: models.AudienceSpec{Kind: models.AudienceManual, Phones: phones},
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
