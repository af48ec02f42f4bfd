package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"smsdispatch/internal/middleware"
)

// Handlers groups the HTTP handlers served by the API
type Handlers struct {
	Campaigns  *CampaignHandler
	QuickSends *QuickSendHandler
	Accounts   *AccountHandler
	Webhooks   *WebhookHandler
	Health     *HealthHandler
}

// NewRouter registers every route behind the recovery and access log
// middleware
func NewRouter(h Handlers, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(log), middleware.Recovery)

	if h.Health != nil {
		router.HandleFunc("/health", h.Health.HandleHealth).Methods(http.MethodGet)
	}

	accounts := router.PathPrefix("/accounts/{accountID:[0-9]+}").Subrouter()

	c := h.Campaigns
	accounts.HandleFunc("/campaigns", c.Create).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns", c.List).Methods(http.MethodGet)
	accounts.HandleFunc("/campaigns/{id}", c.GetByID).Methods(http.MethodGet)
	accounts.HandleFunc("/campaigns/{id}", c.Update).Methods(http.MethodPut)
	accounts.HandleFunc("/campaigns/{id}", c.Delete).Methods(http.MethodDelete)
	accounts.HandleFunc("/campaigns/{id}/estimate", c.Estimate).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns/{id}/queue", c.Queue).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns/{id}/pause", c.Pause).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns/{id}/resume", c.Resume).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns/{id}/cancel", c.Cancel).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns/{id}/retry-failed", c.RetryFailed).Methods(http.MethodPost)
	accounts.HandleFunc("/campaigns/{id}/targets", c.ListTargets).Methods(http.MethodGet)

	q := h.QuickSends
	accounts.HandleFunc("/quick-sends", q.Create).Methods(http.MethodPost)
	accounts.HandleFunc("/quick-sends/{id}", q.GetByID).Methods(http.MethodGet)
	accounts.HandleFunc("/quick-sends/{id}/cancel", q.Cancel).Methods(http.MethodPost)
	accounts.HandleFunc("/quick-sends/{id}/retry-failed", q.RetryFailed).Methods(http.MethodPost)

	a := h.Accounts
	accounts.HandleFunc("/ledger", a.Ledger).Methods(http.MethodGet)
	accounts.HandleFunc("/gateway-override", a.GetOverride).Methods(http.MethodGet)
	accounts.HandleFunc("/gateway-override", a.SetOverride).Methods(http.MethodPut)
	accounts.HandleFunc("/gateway-override", a.ClearOverride).Methods(http.MethodDelete)
	router.HandleFunc("/gateway-override", a.GetOverride).Methods(http.MethodGet)
	router.HandleFunc("/gateway-override", a.SetOverride).Methods(http.MethodPut)
	router.HandleFunc("/gateway-override", a.ClearOverride).Methods(http.MethodDelete)

	router.HandleFunc("/webhooks/{gateway}/delivery", h.Webhooks.Delivery).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	return router
}
