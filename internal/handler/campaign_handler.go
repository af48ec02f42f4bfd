package handler

import (
	"context"
	"net/http"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
	"smsdispatch/internal/service"
)

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService *service.CampaignService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
	}
}

var campaignStatuses = map[string]models.CampaignStatus{
	"draft":     models.CampaignStatusDraft,
	"scheduled": models.CampaignStatusScheduled,
	"queued":    models.CampaignStatusQueued,
	"sending":   models.CampaignStatusSending,
	"paused":    models.CampaignStatusPaused,
	"completed": models.CampaignStatusCompleted,
	"canceled":  models.CampaignStatusCanceled,
	"failed":    models.CampaignStatusFailed,
}

var targetStatuses = map[string]models.TargetStatus{
	"queued":   models.TargetStatusQueued,
	"sending":  models.TargetStatusSending,
	"sent":     models.TargetStatusSent,
	"failed":   models.TargetStatusFailed,
	"canceled": models.TargetStatusCanceled,
}

// Create handles POST /accounts/{accountID}/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req service.CampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	campaign, err := h.campaignService.CreateCampaign(r.Context(), accountID, &req)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteCreated(w, campaign)
}

// List handles GET /accounts/{accountID}/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	page, perPage := pageParams(r)
	filters := repository.CampaignFilters{AccountID: accountID, Page: page, PageSize: perPage}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := campaignStatuses[raw]
		if !ok {
			WriteValidationError(w, "invalid status: "+raw)
			return
		}
		filters.Status = &status
	}

	campaigns, pagination, err := h.campaignService.ListCampaigns(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, ListCampaignsResponse{Campaigns: campaigns, Pagination: pagination})
}

// GetByID handles GET /accounts/{accountID}/campaigns/{id}
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	campaign, err := h.campaignService.GetCampaign(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, campaign)
}

// Update handles PUT /accounts/{accountID}/campaigns/{id}
func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	var req service.CampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	campaign, err := h.campaignService.UpdateCampaign(r.Context(), accountID, id, &req)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, campaign)
}

// Delete handles DELETE /accounts/{accountID}/campaigns/{id}
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	if err := h.campaignService.DeleteCampaign(r.Context(), accountID, id); err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// Estimate handles POST /accounts/{accountID}/campaigns/{id}/estimate
func (h *CampaignHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	result, err := h.campaignService.EstimateCampaign(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, result)
}

// Queue handles POST /accounts/{accountID}/campaigns/{id}/queue
func (h *CampaignHandler) Queue(w http.ResponseWriter, r *http.Request) {
	h.campaignAction(w, r, h.campaignService.QueueCampaign)
}

// Pause handles POST /accounts/{accountID}/campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.campaignAction(w, r, h.campaignService.PauseCampaign)
}

// Resume handles POST /accounts/{accountID}/campaigns/{id}/resume
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.campaignAction(w, r, h.campaignService.ResumeCampaign)
}

// Cancel handles POST /accounts/{accountID}/campaigns/{id}/cancel
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.bulkAction(w, r, h.campaignService.CancelCampaign)
}

// RetryFailed handles POST /accounts/{accountID}/campaigns/{id}/retry-failed
func (h *CampaignHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	h.bulkAction(w, r, h.campaignService.RetryFailed)
}

// ListTargets handles GET /accounts/{accountID}/campaigns/{id}/targets
func (h *CampaignHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	page, perPage := pageParams(r)

	var status *models.TargetStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := targetStatuses[raw]
		if !ok {
			WriteValidationError(w, "invalid status: "+raw)
			return
		}
		status = &s
	}

	targets, pagination, err := h.campaignService.ListTargets(r.Context(), accountID, id, status, page, perPage)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, ListTargetsResponse{Targets: targets, Pagination: pagination})
}

type campaignActionFunc func(ctx context.Context, accountID, id int64) (*models.Campaign, error)

func (h *CampaignHandler) campaignAction(w http.ResponseWriter, r *http.Request, action campaignActionFunc) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	campaign, err := action(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, campaign)
}

type bulkActionFunc func(ctx context.Context, accountID, id int64) (*service.ActionResult, error)

func (h *CampaignHandler) bulkAction(w http.ResponseWriter, r *http.Request, action bulkActionFunc) {
	accountID, id, ok := accountAndID(w, r)
	if !ok {
		return
	}
	result, err := action(r.Context(), accountID, id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, result)
}

// Request/Response types

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns  []*models.Campaign      `json:"campaigns"`
	Pagination *service.PaginationInfo `json:"pagination"`
}

// ListTargetsResponse represents the response for listing targets
type ListTargetsResponse struct {
	Targets    []*models.Target        `json:"targets"`
	Pagination *service.PaginationInfo `json:"pagination"`
}
