package dispatch

import (
	"context"
	"time"

	"smsdispatch/internal/models"
)

// Publisher receives dispatch progress events
type Publisher interface {
	PublishEvent(ctx context.Context, event models.DispatchEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, models.DispatchEvent) error { return nil }

// NoopPublisher drops every event
var NoopPublisher Publisher = noopPublisher{}

func targetEvent(kind, runID string, t *models.Target, gatewayName, errorCode string) models.DispatchEvent {
	id := t.ID
	return models.DispatchEvent{
		Type:       kind,
		RunID:      runID,
		AccountID:  t.AccountID,
		CampaignID: t.CampaignID,
		JobID:      t.JobID,
		TargetID:   &id,
		Gateway:    gatewayName,
		ErrorCode:  errorCode,
		OccurredAt: time.Now().UTC(),
	}
}

func (s *Scheduler) publish(ctx context.Context, event models.DispatchEvent) {
	if err := s.events.PublishEvent(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn().Err(err).Str("event", event.Type).Msg("failed to publish dispatch event")
	}
}
