package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the kind of job operation being recorded.
type AuditAction string

const (
	AuditJobSubmit    AuditAction = "job.submit"
	AuditJobCancel    AuditAction = "job.cancel"
	AuditJobComplete  AuditAction = "job.complete"
	AuditJobFail      AuditAction = "job.fail"
	AuditTenderDelete AuditAction = "tender.delete"
)

// AuditEvent is one row of the append-only audit trail. Writes are
// fire-and-forget: a failed audit insert never fails the job operation.
type AuditEvent struct {
	ID           uuid.UUID   `db:"id"            json:"id"`
	Action       AuditAction `db:"action"        json:"action"`
	ActorID      uuid.UUID   `db:"actor_id"      json:"actor_id"`
	TenderID     uuid.UUID   `db:"tender_id"     json:"tender_id"`
	JobID        uuid.UUID   `db:"job_id"        json:"job_id"`
	AutomationID uuid.UUID   `db:"automation_id" json:"automation_id"`
	Outcome      string      `db:"outcome"       json:"outcome"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
}
