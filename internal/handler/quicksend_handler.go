package handler

import (
	"net/http"

	"smsdispatch/internal/service"
)

// QuickSendHandler handles ad-hoc sends
type QuickSendHandler struct {
	quickSendService *service.QuickSendService
}

// NewQuickSendHandler creates a new quick-send handler
func NewQuickSendHandler(quickSendService *service.QuickSendService) *QuickSendHandler {
	return &QuickSendHandler{quickSendService: quickSendService}
}

// Create handles POST /accounts/{accountID}/quick-sends
func (h *QuickSendHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req service.QuickSendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.quickSendService.Send(r.Context(), accountID, &req)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteCreated(w, result)
}

// GetByID handles GET /accounts/{accountID}/quick-sends/{id}
func (h *QuickSendHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	job, err := h.quickSendService.Get(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, job)
}

// Cancel handles POST /accounts/{accountID}/quick-sends/{id}/cancel
func (h *QuickSendHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	result, err := h.quickSendService.Cancel(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, result)
}

// RetryFailed handles POST /accounts/{accountID}/quick-sends/{id}/retry-failed
func (h *QuickSendHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	result, err := h.quickSendService.RetryFailed(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, result)
}
