package handler

import (
	"net/http"
	"testing"
)

func TestWebhookHandler_Delivery(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/webhooks/mock/delivery", `[{"message_id":"nothing","status":"delivered"}]`)
	AssertStatusCode(t, rec, http.StatusOK)
	if reports := s.store.Reports(); len(reports) != 1 {
		t.Errorf("expected 1 stored report, got %d", len(reports))
	}

	rec = s.do(t, http.MethodPost, "/webhooks/carrier-pigeon/delivery", `{}`)
	AssertStatusCode(t, rec, http.StatusNotFound)
	AssertErrorCode(t, rec, CodeNotFound)

	rec = s.do(t, http.MethodPost, "/webhooks/mock/delivery", `<xml/>`)
	AssertStatusCode(t, rec, http.StatusBadRequest)
	AssertErrorCode(t, rec, CodeValidation)
}
