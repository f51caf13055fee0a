package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mlopezfr/tenderflow/internal/api/middleware"
	"github.com/mlopezfr/tenderflow/internal/api/response"
	"github.com/mlopezfr/tenderflow/internal/audit"
	"github.com/mlopezfr/tenderflow/internal/store"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TenderStore is the slice of the store the tender handlers need.
type TenderStore interface {
	CreateTender(ctx context.Context, tender *models.Tender) error
	GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error)
	ListTenders(ctx context.Context, limit, offset int) ([]*models.Tender, int, error)
	DeleteTender(ctx context.Context, id uuid.UUID) error
	ListJobsByTender(ctx context.Context, tenderID uuid.UUID) ([]*models.AnalysisJob, error)
}

// NewCreateTenderHandler returns the handler for POST /api/v1/tenders.
func NewCreateTenderHandler(st TenderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Name        string  `json:"name"`
			Description *string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		now := time.Now().UTC()
		tender := &models.Tender{
			ID:          uuid.New(),
			Name:        req.Name,
			Description: req.Description,
			CreatedBy:   userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := st.CreateTender(r.Context(), tender); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create tender", nil)
			return
		}

		response.Created(w, tender)
	}
}

// tenderDetail is the GET payload: the tender with its analysis jobs
// attached, newest first.
type tenderDetail struct {
	*models.Tender
	Analyses []*models.AnalysisJob `json:"analyses"`
}

// NewGetTenderHandler returns the handler for GET /api/v1/tenders/{tenderID}.
func NewGetTenderHandler(st TenderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "tenderID")
		if !ok {
			return
		}

		tender, err := st.GetTender(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "TENDER_NOT_FOUND", "Tender not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load tender", nil)
			return
		}

		jobs, err := st.ListJobsByTender(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load analyses", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.AnalysisJob{}
		}

		response.JSON(w, tenderDetail{Tender: tender, Analyses: jobs})
	}
}

// NewListTendersHandler returns the handler for GET /api/v1/tenders.
func NewListTendersHandler(st TenderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", defaultListLimit)
		if limit < 1 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		tenders, total, err := st.ListTenders(r.Context(), limit, offset)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tenders", nil)
			return
		}
		if tenders == nil {
			tenders = []*models.Tender{}
		}

		response.Collection(w, tenders, response.PaginationMeta{
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasNext: offset+len(tenders) < total,
		})
	}
}

// NewDeleteTenderHandler returns the handler for DELETE
// /api/v1/tenders/{tenderID}. The cascade takes the tender's analysis jobs
// with it; in-flight dispatches notice on their next conditional write.
func NewDeleteTenderHandler(st TenderStore, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "tenderID")
		if !ok {
			return
		}

		if err := st.DeleteTender(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "TENDER_NOT_FOUND", "Tender not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete tender", nil)
			return
		}

		if userID, authed := mw.GetUserID(r); authed {
			rec.RecordTender(r.Context(), models.AuditTenderDelete, userID, id, "deleted")
		}

		response.NoContent(w)
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
