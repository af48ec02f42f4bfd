package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
)

// TriggerPublisher nudges the dispatch worker to run a pass now
type TriggerPublisher interface {
	PublishTrigger(ctx context.Context, trigger models.DispatchTrigger) error
}

type noopTriggers struct{}

func (noopTriggers) PublishTrigger(context.Context, models.DispatchTrigger) error { return nil }

// NoopTriggers is used when no message broker is configured
var NoopTriggers TriggerPublisher = noopTriggers{}

// notify publishes a trigger; a failed publish is only logged
func notify(ctx context.Context, pub TriggerPublisher, log zerolog.Logger, trigger models.DispatchTrigger) {
	trigger.CreatedAt = time.Now().UTC()
	if err := pub.PublishTrigger(ctx, trigger); err != nil {
		log.Warn().Err(err).Str("reason", trigger.Reason).Msg("failed to publish dispatch trigger")
	}
}
