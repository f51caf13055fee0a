package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Live reports whether the job still occupies its (tender, automation) slot
// for duplicate-submission purposes.
func (s JobStatus) Live() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// AnalysisJob tracks one execution of an automation against a tender.
// The API returns the job id on submission; callers follow progress via
// GET /api/v1/analyses/{jobID} or the notification WebSocket.
//
// Result is non-nil iff Status is completed; ErrorMessage is set only on
// failure. PendingSince is cleared once the job leaves pending/processing.
type AnalysisJob struct {
	ID             uuid.UUID       `db:"id"              json:"id"`
	TenderID       uuid.UUID       `db:"tender_id"       json:"tender_id"`
	AutomationID   uuid.UUID       `db:"automation_id"   json:"automation_id"`
	Name           string          `db:"name"            json:"name"`
	Status         JobStatus       `db:"status"          json:"status"`
	CreatedBy      uuid.UUID       `db:"created_by"      json:"created_by"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	PendingSince   *time.Time      `db:"pending_since"   json:"pending_since,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at"    json:"completed_at,omitempty"`
	ProcessingTime *float64        `db:"processing_time" json:"processing_time,omitempty"`
	Result         json.RawMessage `db:"result"          json:"result,omitempty"`
	ErrorMessage   *string         `db:"error_message"   json:"error_message,omitempty"`
}
