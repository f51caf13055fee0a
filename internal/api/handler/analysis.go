package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/mlopezfr/tenderflow/internal/api/middleware"
	"github.com/mlopezfr/tenderflow/internal/api/response"
	"github.com/mlopezfr/tenderflow/internal/jobs"
	"github.com/mlopezfr/tenderflow/internal/store"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

// maxResultBody caps the webhook result payload at 1 MiB.
const maxResultBody = 1 << 20

// AnalysisService is the slice of the job service the analysis handlers use.
type AnalysisService interface {
	Submit(ctx context.Context, tenderID, automationID, actorID uuid.UUID) (*models.AnalysisJob, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error)
	ListByTender(ctx context.Context, tenderID uuid.UUID) ([]*models.AnalysisJob, error)
	Cancel(ctx context.Context, jobID, actorID uuid.UUID) (*models.AnalysisJob, error)
	Rename(ctx context.Context, jobID uuid.UUID, newName string) error
	IngestResult(ctx context.Context, jobID uuid.UUID, payload json.RawMessage) error
}

// NewSubmitAnalysisHandler returns the handler for
// POST /api/v1/tenders/{tenderID}/analyses. The 202 means accepted, not
// finished: the job id in the body is the handle for everything after.
func NewSubmitAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		tenderID, ok := parseUUIDParam(w, r, "tenderID")
		if !ok {
			return
		}

		var req struct {
			AutomationID string `json:"automation_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		automationID, err := uuid.Parse(req.AutomationID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "automation_id must be a valid UUID", nil)
			return
		}

		job, err := svc.Submit(r.Context(), tenderID, automationID, userID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND",
					"Tender or automation not found", nil)
			case errors.Is(err, jobs.ErrDuplicateJob):
				response.Error(w, http.StatusConflict, "DUPLICATE_ANALYSIS",
					"An analysis for this automation is already in progress", nil)
			case errors.Is(err, jobs.ErrAutomationInactive):
				response.Error(w, http.StatusConflict, "AUTOMATION_INACTIVE",
					"The requested automation is not active", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to start analysis", nil)
			}
			return
		}

		response.Accepted(w, submitAnalysisResponse{
			JobID:   job.ID,
			Status:  job.Status,
			Message: "Analysis generation started.",
		})
	}
}

type submitAnalysisResponse struct {
	JobID   uuid.UUID        `json:"job_id"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

// NewGetAnalysisHandler returns the handler for GET /api/v1/analyses/{jobID}.
func NewGetAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseUUIDParam(w, r, "jobID")
		if !ok {
			return
		}

		job, err := svc.GetStatus(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load analysis", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewListAnalysesHandler returns the handler for
// GET /api/v1/tenders/{tenderID}/analyses.
func NewListAnalysesHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenderID, ok := parseUUIDParam(w, r, "tenderID")
		if !ok {
			return
		}

		list, err := svc.ListByTender(r.Context(), tenderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "TENDER_NOT_FOUND", "Tender not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list analyses", nil)
			return
		}
		if list == nil {
			list = []*models.AnalysisJob{}
		}

		response.JSON(w, list)
	}
}

// NewCancelAnalysisHandler returns the handler for
// DELETE /api/v1/analyses/{jobID}. Cancelling is only valid while the job is
// live; a finished job stays exactly as it finished.
func NewCancelAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, ok := parseUUIDParam(w, r, "jobID")
		if !ok {
			return
		}

		job, err := svc.Cancel(r.Context(), jobID, userID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis not found", nil)
			case errors.Is(err, jobs.ErrTerminal):
				response.Error(w, http.StatusConflict, "ANALYSIS_FINISHED",
					"Analysis has already finished and cannot be cancelled", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to cancel analysis", nil)
			}
			return
		}

		response.JSON(w, job)
	}
}

// NewRenameAnalysisHandler returns the handler for
// PATCH /api/v1/analyses/{jobID}.
func NewRenameAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseUUIDParam(w, r, "jobID")
		if !ok {
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		if err := svc.Rename(r.Context(), jobID, req.Name); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rename analysis", nil)
			return
		}

		response.JSON(w, map[string]string{"name": req.Name})
	}
}

// NewAnalysisResultWebhookHandler returns the handler for
// POST /api/v1/webhooks/analyses/{jobID}/result. Automations running
// out-of-band deliver their result document here once they finish.
func NewAnalysisResultWebhookHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseUUIDParam(w, r, "jobID")
		if !ok {
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxResultBody))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read body", nil)
			return
		}
		if !json.Valid(body) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be valid JSON", nil)
			return
		}

		if err := svc.IngestResult(r.Context(), jobID, body); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis not found", nil)
			case errors.Is(err, jobs.ErrTerminal):
				response.Error(w, http.StatusConflict, "ANALYSIS_FINISHED",
					"Analysis has already finished", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to accept result", nil)
			}
			return
		}

		response.Accepted(w, map[string]string{"status": "accepted"})
	}
}
