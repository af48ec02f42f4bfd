package queue

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDecodeTrigger(t *testing.T) {
	trigger, err := decodeTrigger([]byte(`{"reason":"campaign.queued","account_id":7,"campaign_id":12}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trigger.Reason != "campaign.queued" || trigger.AccountID != 7 || trigger.CampaignID != 12 {
		t.Errorf("unexpected trigger: %+v", trigger)
	}

	if _, err := decodeTrigger([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestConstructors_Validation(t *testing.T) {
	if _, err := NewPublisher(nil, "q", ""); err == nil {
		t.Error("expected error for nil connection")
	}
	if _, err := NewConnection("", zerolog.Nop()); err == nil {
		t.Error("expected error for empty url")
	}
}
