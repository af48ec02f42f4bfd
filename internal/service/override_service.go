package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

// OverrideService manages gateway overrides
type OverrideService struct {
	repo     repository.OverrideRepository
	gateways map[string]bool
	log      zerolog.Logger
}

// NewOverrideService creates a new override service. gateways lists the
// names that force_<gateway> modes may reference.
func NewOverrideService(repo repository.OverrideRepository, gateways []string, log zerolog.Logger) *OverrideService {
	known := make(map[string]bool, len(gateways))
	for _, g := range gateways {
		known[g] = true
	}
	return &OverrideService{
		repo:     repo,
		gateways: known,
		log:      log.With().Str("component", "overrides").Logger(),
	}
}

// OverrideRequest sets an override
type OverrideRequest struct {
	Mode      string     `json:"mode"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

// Effective returns the override that applies to an account at now: the
// account's own when active, else the system-wide one when active, else nil
func (s *OverrideService) Effective(ctx context.Context, accountID int64, now time.Time) (*models.GatewayOverride, error) {
	own, err := s.get(ctx, &accountID)
	if err != nil {
		return nil, err
	}
	if own.ActiveAt(now) {
		return own, nil
	}

	system, err := s.get(ctx, nil)
	if err != nil {
		return nil, err
	}
	if system.ActiveAt(now) {
		return system, nil
	}
	return nil, nil
}

// Get returns the stored override of a scope; a nil accountID is the
// system-wide scope
func (s *OverrideService) Get(ctx context.Context, accountID *int64) (*models.GatewayOverride, error) {
	o, err := s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &NotFoundError{Resource: "gateway override", Key: scopeName(accountID)}
	}
	return o, nil
}

// Set replaces the override of a scope
func (s *OverrideService) Set(ctx context.Context, accountID *int64, req *OverrideRequest) (*models.GatewayOverride, error) {
	mode := strings.TrimSpace(req.Mode)
	if mode != models.OverrideNone {
		name, ok := strings.CutPrefix(mode, "force_")
		if !ok || !s.gateways[name] {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid override mode %q", req.Mode)}
		}
	}

	o := &models.GatewayOverride{
		AccountID: accountID,
		Mode:      mode,
		ExpiresAt: req.ExpiresAt,
		Reason:    req.Reason,
	}
	if err := s.repo.Set(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to set gateway override: %w", err)
	}

	s.log.Info().Str("scope", scopeName(accountID)).Str("mode", mode).Str("reason", req.Reason).Msg("gateway override set")
	return o, nil
}

// Clear removes the override of a scope
func (s *OverrideService) Clear(ctx context.Context, accountID *int64) error {
	err := s.repo.Clear(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Resource: "gateway override", Key: scopeName(accountID)}
	}
	if err != nil {
		return fmt.Errorf("failed to clear gateway override: %w", err)
	}
	s.log.Info().Str("scope", scopeName(accountID)).Msg("gateway override cleared")
	return nil
}

func (s *OverrideService) get(ctx context.Context, accountID *int64) (*models.GatewayOverride, error) {
	o, err := s.repo.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway override: %w", err)
	}
	return o, nil
}

func scopeName(accountID *int64) string {
	if accountID == nil {
		return "system"
	}
	return fmt.Sprintf("account:%d", *accountID)
}
