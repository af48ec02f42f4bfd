package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smsdispatch/internal/gateway"
	"smsdispatch/internal/repository"
)

// DeliveryService ingests gateway delivery callbacks. Reports only
// annotate sent targets; they never change a target's status.
type DeliveryService struct {
	registry *gateway.Registry
	reports  repository.DeliveryReportRepository
	targets  repository.TargetRepository
	log      zerolog.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(registry *gateway.Registry, reports repository.DeliveryReportRepository, targets repository.TargetRepository, log zerolog.Logger) *DeliveryService {
	return &DeliveryService{
		registry: registry,
		reports:  reports,
		targets:  targets,
		log:      log.With().Str("component", "delivery").Logger(),
	}
}

// IngestResult summarizes one webhook call
type IngestResult struct {
	Received int `json:"received"`
	Matched  int `json:"matched"`
}

// Ingest parses a webhook body with the named gateway's parser
func (s *DeliveryService) Ingest(ctx context.Context, gatewayName string, body []byte) (*IngestResult, error) {
	gw, ok := s.registry.Get(gatewayName)
	if !ok {
		return nil, &NotFoundError{Resource: "gateway", Key: gatewayName}
	}

	ev := s.log.Info().Str("gateway", gatewayName)
	if json.Valid(body) {
		ev = ev.RawJSON("payload", body)
	} else {
		ev = ev.Bytes("payload", body)
	}
	ev.Msg("delivery webhook received")

	reports, err := gw.ParseDeliveryReports(body)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid delivery payload: %v", err)}
	}

	result := &IngestResult{Received: len(reports)}
	for i := range reports {
		report := &reports[i]
		report.ID = uuid.NewString()
		report.Gateway = gatewayName

		if err := s.reports.Create(ctx, report); err != nil {
			return result, fmt.Errorf("failed to store delivery report: %w", err)
		}

		n, err := s.targets.AnnotateDelivery(ctx, gatewayName, report.GatewayMessageID, report.Status)
		if err != nil {
			return result, fmt.Errorf("failed to annotate target: %w", err)
		}
		if n == 0 {
			s.log.Warn().Str("gateway", gatewayName).Str("message_id", report.GatewayMessageID).Msg("delivery report matched no sent target")
			continue
		}
		result.Matched += n
	}
	return result, nil
}
