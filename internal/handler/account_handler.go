package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"smsdispatch/internal/models"
	"smsdispatch/internal/service"
)

// AccountHandler serves the credit ledger and gateway overrides
type AccountHandler struct {
	ledger    *service.LedgerService
	overrides *service.OverrideService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(ledger *service.LedgerService, overrides *service.OverrideService) *AccountHandler {
	return &AccountHandler{ledger: ledger, overrides: overrides}
}

// LedgerResponse is an account balance with a page of its history
type LedgerResponse struct {
	AccountID int64                 `json:"account_id"`
	Balance   int64                 `json:"balance"`
	Entries   []*models.LedgerEntry `json:"entries"`
	Page      int                   `json:"page"`
	PerPage   int                   `json:"per_page"`
}

// Ledger handles GET /accounts/{accountID}/ledger
func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	page, perPage := pageParams(r)

	balance, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	entries, err := h.ledger.History(r.Context(), accountID, page, perPage)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, LedgerResponse{AccountID: accountID, Balance: balance, Entries: entries, Page: page, PerPage: perPage})
}

// GetOverride handles GET /accounts/{accountID}/gateway-override and
// GET /gateway-override for the system scope
func (h *AccountHandler) GetOverride(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	o, err := h.overrides.Get(r.Context(), scope)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, o)
}

// SetOverride handles PUT on the override routes
func (h *AccountHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req service.OverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.overrides.Set(r.Context(), scope, &req)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteOK(w, o)
}

// ClearOverride handles DELETE on the override routes
func (h *AccountHandler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.overrides.Clear(r.Context(), scope); err != nil {
		HandleServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// scope returns the account of an account route, checking it exists, or
// nil for the system-wide route
func (h *AccountHandler) scope(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	if _, ok := mux.Vars(r)["accountID"]; !ok {
		return nil, true
	}
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return nil, false
	}
	if _, err := h.ledger.Balance(r.Context(), accountID); err != nil {
		HandleServiceError(w, r, err)
		return nil, false
	}
	return &accountID, true
}
