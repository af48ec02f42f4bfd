package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"smsdispatch/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives gateway delivery reports
type WebhookHandler struct {
	deliveryService *service.DeliveryService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(deliveryService *service.DeliveryService) *WebhookHandler {
	return &WebhookHandler{deliveryService: deliveryService}
}

// Delivery handles POST /webhooks/{gateway}/delivery
func (h *WebhookHandler) Delivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, CodeValidation, "payload too large")
		return
	}

	result, err := h.deliveryService.Ingest(r.Context(), mux.Vars(r)["gateway"], body)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, result)
}
