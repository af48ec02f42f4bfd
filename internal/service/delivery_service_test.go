package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smsdispatch/internal/gateway"
	"smsdispatch/internal/models"
)

func TestDelivery_IngestAnnotatesSentTarget(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 5)
	target := plannedTarget(t, f, a.ID, "+244912345678", 1)
	ctx := context.Background()

	_, err := f.store.Targets().Claim(ctx, 3, 10, time.Now())
	AssertNoError(t, err)
	AssertNoError(t, f.store.Targets().MarkAttempt(ctx, target.ID, models.AttemptOutcome{
		Status:           models.TargetStatusSent,
		Tries:            1,
		AttemptedAt:      time.Now(),
		GatewayName:      gateway.MockName,
		GatewayMessageID: "01HX",
	}))

	registry := gateway.NewRegistry(gateway.NewMockGateway(gateway.MockName, 1, 0, 0))
	svc := NewDeliveryService(registry, f.store.DeliveryReports(), f.store.Targets(), zerolog.Nop())

	body := []byte(`[{"message_id":"01HX","status":"delivered"},{"message_id":"unknown","status":"failed","error":"absent"}]`)
	res, err := svc.Ingest(ctx, gateway.MockName, body)
	AssertNoError(t, err)
	AssertEqual(t, res.Received, 2)
	AssertEqual(t, res.Matched, 1)

	got, err := f.store.Targets().GetByID(ctx, target.ID)
	AssertNoError(t, err)
	AssertEqual(t, got.Status, models.TargetStatusSent)
	if got.DeliveryStatus == nil || *got.DeliveryStatus != models.DeliveryDelivered {
		t.Errorf("delivery status = %v", got.DeliveryStatus)
	}

	reports := f.store.Reports()
	AssertEqual(t, len(reports), 2)
	if reports[0].ID == "" || reports[0].Gateway != gateway.MockName {
		t.Errorf("report not stamped: %+v", reports[0])
	}
}

func TestDelivery_UnknownGatewayAndBadPayload(t *testing.T) {
	f := newFixture(t)
	registry := gateway.NewRegistry(gateway.NewMockGateway(gateway.MockName, 1, 0, 0))
	svc := NewDeliveryService(registry, f.store.DeliveryReports(), f.store.Targets(), zerolog.Nop())
	ctx := context.Background()

	var nerr *NotFoundError
	_, err := svc.Ingest(ctx, "nowhere", []byte(`{}`))
	AssertErrorAs(t, err, &nerr)

	var verr *ValidationError
	_, err = svc.Ingest(ctx, gateway.MockName, []byte(`not json`))
	AssertErrorAs(t, err, &verr)
}
