package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/mlopezfr/tenderflow/internal/api/middleware"
	"github.com/mlopezfr/tenderflow/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateTenderHandler http.HandlerFunc
	GetTenderHandler    http.HandlerFunc
	ListTendersHandler  http.HandlerFunc
	DeleteTenderHandler http.HandlerFunc

	SubmitAnalysisHandler http.HandlerFunc
	GetAnalysisHandler    http.HandlerFunc
	ListAnalysesHandler   http.HandlerFunc
	CancelAnalysisHandler http.HandlerFunc
	RenameAnalysisHandler http.HandlerFunc
	ResultWebhookHandler  http.HandlerFunc
	NotificationsHandler  http.HandlerFunc

	ListAutomationsHandler      http.HandlerFunc
	GetAutomationHandler        http.HandlerFunc
	CreateAutomationHandler     http.HandlerFunc
	DeactivateAutomationHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/tenders", orNotImplemented(deps.CreateTenderHandler))
		r.Get("/api/v1/tenders", orNotImplemented(deps.ListTendersHandler))
		r.Get("/api/v1/tenders/{tenderID}", orNotImplemented(deps.GetTenderHandler))
		r.Delete("/api/v1/tenders/{tenderID}", orNotImplemented(deps.DeleteTenderHandler))

		r.Post("/api/v1/tenders/{tenderID}/analyses", orNotImplemented(deps.SubmitAnalysisHandler))
		r.Get("/api/v1/tenders/{tenderID}/analyses", orNotImplemented(deps.ListAnalysesHandler))
		r.Get("/api/v1/analyses/{jobID}", orNotImplemented(deps.GetAnalysisHandler))
		r.Delete("/api/v1/analyses/{jobID}", orNotImplemented(deps.CancelAnalysisHandler))
		r.Patch("/api/v1/analyses/{jobID}", orNotImplemented(deps.RenameAnalysisHandler))

		r.Get("/api/v1/automations", orNotImplemented(deps.ListAutomationsHandler))
		r.Get("/api/v1/automations/{automationID}", orNotImplemented(deps.GetAutomationHandler))

		// Automations post their result documents here.
		r.Post("/api/v1/webhooks/analyses/{jobID}/result", orNotImplemented(deps.ResultWebhookHandler))

		// Live job notifications over WebSocket.
		r.Get("/api/v1/ws", orNotImplemented(deps.NotificationsHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/automations", orNotImplemented(deps.CreateAutomationHandler))
			r.Delete("/api/v1/admin/automations/{automationID}", orNotImplemented(deps.DeactivateAutomationHandler))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
