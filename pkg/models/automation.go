package models

import (
	"time"

	"github.com/google/uuid"
)

// Automation is an operator-configured external HTTP endpoint that performs
// analysis work asynchronously. Read-only from the job subsystem; resolved
// once at job creation.
type Automation struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	CallbackURL string    `db:"callback_url" json:"callback_url"`
	IsActive    bool      `db:"is_active"    json:"is_active"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
