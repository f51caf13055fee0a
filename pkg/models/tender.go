// Package models contains shared data models used across the tenderflow codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tender is the parent entity analysis jobs attach to. It is independently
// deletable at any time, including while a job for it is in flight; job rows
// cascade with it.
type Tender struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Name        string    `db:"name"        json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedBy   uuid.UUID `db:"created_by"  json:"created_by"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}
