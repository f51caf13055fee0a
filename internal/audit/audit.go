// Package audit records job and tender lifecycle operations to the
// append-only trail.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mlopezfr/tenderflow/pkg/models"
)

// EventStore is the slice of the store the recorder needs.
type EventStore interface {
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// Recorder writes audit events. Failures are logged and swallowed: the
// trail is advisory and must never fail the operation it describes.
type Recorder struct {
	store EventStore
}

// NewRecorder creates a Recorder backed by st.
func NewRecorder(st EventStore) *Recorder {
	return &Recorder{store: st}
}

// Record inserts one audit event.
func (r *Recorder) Record(ctx context.Context, action models.AuditAction, actorID uuid.UUID, job *models.AnalysisJob, outcome string) {
	event := &models.AuditEvent{
		ID:           uuid.New(),
		Action:       action,
		ActorID:      actorID,
		TenderID:     job.TenderID,
		JobID:        job.ID,
		AutomationID: job.AutomationID,
		Outcome:      outcome,
		CreatedAt:    time.Now().UTC(),
	}

	if err := r.store.InsertAuditEvent(ctx, event); err != nil {
		slog.Error("failed to record audit event",
			"action", action,
			"job_id", job.ID,
			"error", err)
	}
}

// RecordTender inserts one audit event for a tender-level operation that has
// no job attached.
func (r *Recorder) RecordTender(ctx context.Context, action models.AuditAction, actorID, tenderID uuid.UUID, outcome string) {
	event := &models.AuditEvent{
		ID:        uuid.New(),
		Action:    action,
		ActorID:   actorID,
		TenderID:  tenderID,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.store.InsertAuditEvent(ctx, event); err != nil {
		slog.Error("failed to record audit event",
			"action", action,
			"tender_id", tenderID,
			"error", err)
	}
}
