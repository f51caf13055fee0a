package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/mlopezfr/tenderflow/internal/api/response"
	"github.com/mlopezfr/tenderflow/internal/store"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

// AutomationStore is the slice of the store the automation handlers need.
type AutomationStore interface {
	CreateAutomation(ctx context.Context, automation *models.Automation) error
	GetAutomation(ctx context.Context, id uuid.UUID) (*models.Automation, error)
	ListAutomations(ctx context.Context, activeOnly bool) ([]*models.Automation, error)
	DeactivateAutomation(ctx context.Context, id uuid.UUID) error
}

// NewCreateAutomationHandler returns the handler for POST
// /api/v1/admin/automations.
func NewCreateAutomationHandler(st AutomationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name"`
			CallbackURL string `json:"callback_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if !validCallbackURL(req.CallbackURL) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"callback_url must be an absolute http(s) URL", nil)
			return
		}

		now := time.Now().UTC()
		automation := &models.Automation{
			ID:          uuid.New(),
			Name:        req.Name,
			CallbackURL: req.CallbackURL,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := st.CreateAutomation(r.Context(), automation); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_AUTOMATION",
					"An automation with this name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create automation", nil)
			return
		}

		response.Created(w, automation)
	}
}

// NewListAutomationsHandler returns the handler for GET /api/v1/automations.
// Pass ?active=true to hide deactivated entries.
func NewListAutomationsHandler(st AutomationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"

		list, err := st.ListAutomations(r.Context(), activeOnly)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list automations", nil)
			return
		}
		if list == nil {
			list = []*models.Automation{}
		}

		response.JSON(w, list)
	}
}

// NewGetAutomationHandler returns the handler for GET
// /api/v1/automations/{automationID}.
func NewGetAutomationHandler(st AutomationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "automationID")
		if !ok {
			return
		}

		automation, err := st.GetAutomation(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "AUTOMATION_NOT_FOUND", "Automation not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load automation", nil)
			return
		}

		response.JSON(w, automation)
	}
}

// NewDeactivateAutomationHandler returns the handler for DELETE
// /api/v1/admin/automations/{automationID}. Deactivation, not deletion:
// finished jobs keep referencing the automation.
func NewDeactivateAutomationHandler(st AutomationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "automationID")
		if !ok {
			return
		}

		if err := st.DeactivateAutomation(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "AUTOMATION_NOT_FOUND", "Automation not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to deactivate automation", nil)
			return
		}

		response.NoContent(w)
	}
}

func validCallbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
