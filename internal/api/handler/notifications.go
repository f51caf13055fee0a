package handler

import (
	"net/http"

	"github.com/google/uuid"

	mw "github.com/mlopezfr/tenderflow/internal/api/middleware"
	"github.com/mlopezfr/tenderflow/internal/api/response"
	"github.com/mlopezfr/tenderflow/internal/notify"
)

// NewNotificationsHandler returns the handler for GET /api/v1/ws. With
// ?job_id= the stream is scoped to one analysis; without it the caller
// receives events for every job they submitted.
func NewNotificationsHandler(reg *notify.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		topic := userID.String()
		if raw := r.URL.Query().Get("job_id"); raw != "" {
			jobID, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a valid UUID", nil)
				return
			}
			topic = jobID.String()
		}

		reg.ServeWS(w, r, topic)
	}
}
