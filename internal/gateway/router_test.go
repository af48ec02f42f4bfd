package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
)

// scriptedGateway returns queued results in order, then accepts
type scriptedGateway struct {
	name string

	mu      sync.Mutex
	results []Result
	calls   []Message
}

func (g *scriptedGateway) Name() string { return g.name }

func (g *scriptedGateway) Send(ctx context.Context, msg Message) Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, msg)
	if len(g.results) == 0 {
		return accepted(g.name + "-id")
	}
	res := g.results[0]
	g.results = g.results[1:]
	return res
}

func (g *scriptedGateway) ParseDeliveryReports([]byte) ([]models.DeliveryReport, error) {
	return nil, nil
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newTestRouter(fallback bool) (*Router, *scriptedGateway, *scriptedGateway) {
	bulk := &scriptedGateway{name: BulkGateName}
	om := &scriptedGateway{name: OmbalaName}
	r := NewRouter(NewRegistry(bulk, om), RouterConfig{
		Primary:         BulkGateName,
		Secondary:       OmbalaName,
		FallbackEnabled: fallback,
		BreakerFailures: 2,
		BreakerReset:    time.Minute,
	}, zerolog.Nop())
	return r, bulk, om
}

func TestRouter_Route(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		req  RouteRequest
		want Route
	}{
		{
			name: "no override uses configured primary",
			req:  RouteRequest{Now: now},
			want: Route{Primary: BulkGateName, Fallback: OmbalaName},
		},
		{
			name: "account primary wins over system primary",
			req:  RouteRequest{Now: now, AccountPrimary: OmbalaName},
			want: Route{Primary: OmbalaName, Fallback: ""},
		},
		{
			name: "unknown account primary ignored",
			req:  RouteRequest{Now: now, AccountPrimary: "twilio"},
			want: Route{Primary: BulkGateName, Fallback: OmbalaName},
		},
		{
			name: "active override forces gateway without fallback",
			req:  RouteRequest{Now: now, Override: &models.GatewayOverride{Mode: "force_ombala", ExpiresAt: &future}},
			want: Route{Primary: OmbalaName, Forced: true},
		},
		{
			name: "expired override behaves as none",
			req:  RouteRequest{Now: now, Override: &models.GatewayOverride{Mode: "force_bulkgate", ExpiresAt: &past}},
			want: Route{Primary: BulkGateName, Fallback: OmbalaName},
		},
		{
			name: "expired override to secondary still routes to primary",
			req:  RouteRequest{Now: now, Override: &models.GatewayOverride{Mode: "force_ombala", ExpiresAt: &past}},
			want: Route{Primary: BulkGateName, Fallback: OmbalaName},
		},
		{
			name: "campaign sender preferred",
			req:  RouteRequest{Now: now, CampaignSender: "PROMO", AccountSender: "ACME"},
			want: Route{Primary: BulkGateName, Fallback: OmbalaName, SenderID: "PROMO"},
		},
		{
			name: "account sender as default",
			req:  RouteRequest{Now: now, AccountSender: "ACME"},
			want: Route{Primary: BulkGateName, Fallback: OmbalaName, SenderID: "ACME"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRouter(true)
			if got := r.Route(tt.req); got != tt.want {
				t.Errorf("Route() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRouter_RouteFallbackDisabled(t *testing.T) {
	r, _, _ := newTestRouter(false)
	got := r.Route(RouteRequest{Now: time.Now()})
	if got.Primary != BulkGateName || got.Fallback != "" {
		t.Errorf("Route() = %+v", got)
	}
}

func TestRouter_SendFallsBackOnce(t *testing.T) {
	r, bulk, om := newTestRouter(true)
	bulk.results = []Result{failed(models.ErrCodeNetwork, "timeout")}

	route := r.Route(RouteRequest{Now: time.Now(), AccountSender: "ACME"})
	attempt := r.Send(context.Background(), route, Message{To: "+244912345678", Body: "hi"})

	if !attempt.Result.Accepted || attempt.Gateway != OmbalaName || !attempt.FellBack {
		t.Fatalf("Send() = %+v", attempt)
	}
	if bulk.callCount() != 1 || om.callCount() != 1 {
		t.Errorf("calls bulk=%d ombala=%d, want 1/1", bulk.callCount(), om.callCount())
	}
	if om.calls[0].From != "ACME" {
		t.Errorf("From = %q, want ACME", om.calls[0].From)
	}
}

func TestRouter_SendBothFail(t *testing.T) {
	r, bulk, om := newTestRouter(true)
	bulk.results = []Result{failed(models.ErrCodeNetwork, "timeout")}
	om.results = []Result{failed(models.ErrCodeGateway, "rejected")}

	attempt := r.Send(context.Background(), r.Route(RouteRequest{Now: time.Now()}), Message{To: "+244912345678"})
	if attempt.Result.Accepted || attempt.Result.ErrorCode != models.ErrCodeGateway {
		t.Errorf("Send() = %+v", attempt)
	}
	if om.callCount() != 1 {
		t.Errorf("fallback called %d times, want 1", om.callCount())
	}
}

func TestRouter_ForcedNoFallback(t *testing.T) {
	r, bulk, om := newTestRouter(true)
	om.results = []Result{failed(models.ErrCodeNetwork, "down")}

	route := r.Route(RouteRequest{Now: time.Now(), Override: &models.GatewayOverride{Mode: "force_ombala"}})
	attempt := r.Send(context.Background(), route, Message{To: "+244912345678"})
	if attempt.Result.Accepted {
		t.Fatal("expected failure")
	}
	if bulk.callCount() != 0 {
		t.Error("forced route must not fall back")
	}
}

func TestRouter_UnhealthyPrimarySkipped(t *testing.T) {
	r, bulk, om := newTestRouter(true)
	bulk.results = []Result{failed(models.ErrCodeNetwork, "a"), failed(models.ErrCodeNetwork, "b")}

	for i := 0; i < 2; i++ {
		r.Send(context.Background(), Route{Primary: BulkGateName}, Message{To: "+244912345678"})
	}
	if r.Healthy(BulkGateName) {
		t.Fatal("breaker should be open after 2 failures")
	}

	route := r.Route(RouteRequest{Now: time.Now()})
	if route.Primary != OmbalaName || route.Fallback != "" {
		t.Fatalf("Route() = %+v, want ombala only", route)
	}

	attempt := r.Send(context.Background(), route, Message{To: "+244912345678"})
	if !attempt.Result.Accepted || attempt.Gateway != OmbalaName {
		t.Errorf("Send() = %+v", attempt)
	}
	if bulk.callCount() != 2 || om.callCount() != 1 {
		t.Errorf("calls bulk=%d ombala=%d", bulk.callCount(), om.callCount())
	}
}

func TestRouter_RejectionsKeepBreakerClosed(t *testing.T) {
	r, bulk, om := newTestRouter(true)
	bulk.results = []Result{
		failed(models.ErrCodeGateway, "invalid phone number"),
		failed(models.ErrCodeGateway, "invalid phone number"),
		failed(models.ErrCodeGateway, "invalid phone number"),
	}

	for i := 0; i < 3; i++ {
		r.Send(context.Background(), Route{Primary: BulkGateName}, Message{To: "+244912345678"})
	}
	if !r.Healthy(BulkGateName) {
		t.Fatal("rejected messages should not open the breaker")
	}

	route := r.Route(RouteRequest{Now: time.Now()})
	if route.Primary != BulkGateName || route.Fallback != OmbalaName {
		t.Errorf("Route() = %+v, want bulkgate with ombala fallback", route)
	}
	if om.callCount() != 0 {
		t.Errorf("ombala calls = %d, want 0", om.callCount())
	}
}

func TestRouter_SystemErrorsOpenBreaker(t *testing.T) {
	r, bulk, _ := newTestRouter(false)
	bulk.results = []Result{failed(models.ErrCodeSystem, "a"), failed(models.ErrCodeNetwork, "b")}

	for i := 0; i < 2; i++ {
		r.Send(context.Background(), Route{Primary: BulkGateName}, Message{To: "+244912345678"})
	}
	if r.Healthy(BulkGateName) {
		t.Fatal("breaker should be open after 2 failures")
	}
}

func TestRouter_AcceptedWithoutIDIsFailure(t *testing.T) {
	r, bulk, _ := newTestRouter(false)
	bulk.results = []Result{{Accepted: true}}

	attempt := r.Send(context.Background(), Route{Primary: BulkGateName}, Message{To: "+244912345678"})
	if attempt.Result.Accepted || attempt.Result.ErrorCode != models.ErrCodeGateway {
		t.Errorf("Send() = %+v", attempt)
	}
}

func TestRouter_UnknownForcedGateway(t *testing.T) {
	r, _, _ := newTestRouter(true)
	attempt := r.Send(context.Background(), Route{Primary: "twilio", Forced: true}, Message{To: "+244912345678"})
	if attempt.Result.Accepted || attempt.Result.ErrorCode != models.ErrCodeGateway {
		t.Errorf("Send() = %+v", attempt)
	}
}

func TestBreaker_HalfOpen(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("bulkgate", 1, 30*time.Second, zerolog.Nop())
	b.now = func() time.Time { return now }

	b.Record(false)
	if b.Healthy() {
		t.Fatal("breaker should be open")
	}

	now = now.Add(31 * time.Second)
	if !b.Healthy() || b.State() != BreakerHalfOpen {
		t.Fatalf("breaker should be half-open, got %s", b.State())
	}

	b.Record(false)
	if b.State() != BreakerOpen {
		t.Fatalf("failed probe should reopen, got %s", b.State())
	}

	now = now.Add(31 * time.Second)
	b.Healthy()
	b.Record(true)
	if b.State() != BreakerClosed {
		t.Errorf("successful probe should close, got %s", b.State())
	}
}
