package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"smsdispatch/internal/gateway"
	"smsdispatch/internal/models"
	"smsdispatch/internal/phone"
	"smsdispatch/internal/repository/memstore"
	"smsdispatch/internal/service"
)

type testServer struct {
	store  *memstore.Store
	ledger *service.LedgerService
	router http.Handler
}

// newTestServer builds the full router over an in-memory store
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	store := memstore.New()

	registry := gateway.NewRegistry(gateway.NewMockGateway(gateway.MockName, 1, 0, 0))
	templates := service.NewTemplateService()
	audience := service.NewAudienceService(store.Contacts(), phone.NewNormalizer(nil), "AO", log)
	planner := service.NewPlanner(templates)
	pricing := service.NewPricingService(store.Pricing())
	ledger := service.NewLedgerService(store.Ledger(), store.Accounts(), log)

	router := NewRouter(Handlers{
		Campaigns: NewCampaignHandler(service.NewCampaignService(
			store.Campaigns(), store.Targets(), store.Accounts(), audience, planner, service.NoopTriggers, log)),
		QuickSends: NewQuickSendHandler(service.NewQuickSendService(
			store.Jobs(), store.Accounts(), audience, planner, pricing, service.NoopTriggers, log)),
		Accounts: NewAccountHandler(ledger, service.NewOverrideService(store.Overrides(), registry.Names(), log)),
		Webhooks: NewWebhookHandler(service.NewDeliveryService(registry, store.DeliveryReports(), store.Targets(), log)),
	}, log)

	return &testServer{store: store, ledger: ledger, router: router}
}

func (s *testServer) account(t *testing.T, credits int64) *models.Account {
	t.Helper()
	ctx := context.Background()
	a := &models.Account{Name: "acme", DefaultSenderID: "ACME", DefaultCountry: "AO"}
	if err := s.store.Accounts().Create(ctx, a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if credits > 0 {
		if err := s.ledger.Grant(ctx, a.ID, credits, "test grant", fmt.Sprintf("grant/%d", a.ID)); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	return a
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// AssertStatusCode checks the HTTP status code
func AssertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// AssertErrorCode checks the code of a JSON error envelope
func AssertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error.Code != want {
		t.Errorf("expected error code %s, got %s (%s)", want, resp.Error.Code, resp.Error.Message)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v: %s", err, rec.Body.String())
	}
}

func manualCampaignBody(phones ...string) map[string]interface{} {
	return map[string]interface{}{
		"name":     "Promo",
		"template": "Olá {{name}}",
		"audience": map[string]interface{}{"kind": "manual", "phones": phones},
	}
}
