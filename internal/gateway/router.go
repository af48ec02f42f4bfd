package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
)

// RouterConfig selects the system-wide gateways
type RouterConfig struct {
	Primary         string
	Secondary       string
	FallbackEnabled bool
	BreakerFailures int
	BreakerReset    time.Duration
}

// RouteRequest carries everything a routing decision depends on.
// Override is the currently stored override, expired or not.
type RouteRequest struct {
	AccountID      int64
	Country        string
	Now            time.Time
	Override       *models.GatewayOverride
	AccountPrimary string
	CampaignSender string
	AccountSender  string
}

// Route is a routing decision. Fallback is empty when no second
// attempt is allowed.
type Route struct {
	Primary  string
	Fallback string
	SenderID string
	Forced   bool
}

// Attempt is the outcome of sending along a Route
type Attempt struct {
	Gateway  string
	Result   Result
	FellBack bool
}

// Router picks gateways and tracks their health
type Router struct {
	registry *Registry
	cfg      RouterConfig
	breakers map[string]*Breaker
	log      zerolog.Logger
}

// NewRouter creates a router with one breaker per registered gateway
func NewRouter(registry *Registry, cfg RouterConfig, log zerolog.Logger) *Router {
	breakers := make(map[string]*Breaker)
	for _, name := range registry.Names() {
		breakers[name] = NewBreaker(name, cfg.BreakerFailures, cfg.BreakerReset, log)
	}
	return &Router{
		registry: registry,
		cfg:      cfg,
		breakers: breakers,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// Healthy reports whether a gateway is registered and its breaker admits traffic
func (r *Router) Healthy(name string) bool {
	b, ok := r.breakers[name]
	return ok && b.Healthy()
}

// Health returns the breaker state of each gateway
func (r *Router) Health() map[string]string {
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

// Route decides which gateway serves a message. It does no I/O.
func (r *Router) Route(req RouteRequest) Route {
	route := Route{SenderID: req.CampaignSender}
	if route.SenderID == "" {
		route.SenderID = req.AccountSender
	}

	if req.Override.ActiveAt(req.Now) {
		name, _ := req.Override.ForcedGateway()
		route.Primary = name
		route.Forced = true
		return route
	}

	primary := req.AccountPrimary
	if _, ok := r.registry.Get(primary); !ok {
		primary = r.cfg.Primary
	}
	route.Primary = primary

	secondary := r.cfg.Secondary
	if !r.cfg.FallbackEnabled || secondary == "" || secondary == primary {
		return route
	}
	if _, ok := r.registry.Get(secondary); !ok {
		return route
	}

	if !r.Healthy(primary) {
		// The secondary is the single retry; skip the known-bad primary
		route.Primary = secondary
		return route
	}
	route.Fallback = secondary
	return route
}

// Send attempts the route's primary and, if that fails, its fallback once
func (r *Router) Send(ctx context.Context, route Route, msg Message) Attempt {
	if msg.From == "" {
		msg.From = route.SenderID
	}

	attempt := Attempt{Gateway: route.Primary, Result: r.sendVia(ctx, route.Primary, msg)}
	if attempt.Result.Accepted || route.Fallback == "" || ctx.Err() != nil {
		return attempt
	}

	r.log.Warn().
		Str("primary", route.Primary).
		Str("fallback", route.Fallback).
		Str("error_code", attempt.Result.ErrorCode).
		Msg("primary gateway failed, trying fallback")

	return Attempt{
		Gateway:  route.Fallback,
		Result:   r.sendVia(ctx, route.Fallback, msg),
		FellBack: true,
	}
}

func (r *Router) sendVia(ctx context.Context, name string, msg Message) Result {
	gw, ok := r.registry.Get(name)
	if !ok {
		return failed(models.ErrCodeGateway, fmt.Sprintf("gateway %q is not configured", name))
	}

	res := gw.Send(ctx, msg)
	if res.Accepted && res.MessageID == "" {
		res.Accepted = false
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = "gateway accepted message without an id"
	}

	if b, ok := r.breakers[name]; ok {
		switch {
		case res.Accepted:
			b.Record(true)
		case affectsHealth(res.ErrorCode):
			b.Record(false)
		}
	}

	if !res.Accepted {
		r.log.Warn().
			Str("gateway", name).
			Str("to", msg.To).
			Str("error_code", res.ErrorCode).
			Str("error_detail", res.ErrorDetail).
			Int("status_code", res.StatusCode).
			RawJSON("request", rawOrNull(res.Request)).
			Bytes("response", res.Response).
			Msg("gateway send failed")
	}
	return res
}

// affectsHealth reports whether a failure says the gateway itself is
// unavailable. A rejection of one message does not.
func affectsHealth(code string) bool {
	return code == models.ErrCodeNetwork || code == models.ErrCodeSystem
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
