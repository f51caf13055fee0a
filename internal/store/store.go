package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateTender(ctx context.Context, tender *models.Tender) error
	GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error)
	ListTenders(ctx context.Context, limit, offset int) ([]*models.Tender, int, error)
	DeleteTender(ctx context.Context, id uuid.UUID) error

	CreateAutomation(ctx context.Context, automation *models.Automation) error
	GetAutomation(ctx context.Context, id uuid.UUID) (*models.Automation, error)
	ListAutomations(ctx context.Context, activeOnly bool) ([]*models.Automation, error)
	DeactivateAutomation(ctx context.Context, id uuid.UUID) error

	// HasLiveJob reports whether the tender already has a pending or
	// processing job for the given automation. Single atomic read, no
	// side effects.
	HasLiveJob(ctx context.Context, tenderID, automationID uuid.UUID) (bool, error)

	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, tenderID, jobID uuid.UUID) (*models.AnalysisJob, error)
	// GetJobByID resolves a job (and thus its surviving parent) by job id
	// alone — the flat-index lookup the dispatcher uses before its final
	// write, since the originally-known tender may be gone by then.
	GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error)
	ListJobsByTender(ctx context.Context, tenderID uuid.UUID) ([]*models.AnalysisJob, error)
	// UpdateJob is a match-then-set conditional update of exactly one job.
	// It returns whether anything was modified; false means the tender or
	// job no longer exists and the caller must fall back to
	// notification-only behavior.
	UpdateJob(ctx context.Context, tenderID, jobID uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) (bool, error)
	RenameJob(ctx context.Context, jobID uuid.UUID, newName string) (bool, error)

	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

type JobUpdateParams struct {
	Result            json.RawMessage
	ErrorMessage      *string
	ProcessingTime    *float64
	ClearPendingSince bool
	CompletedAt       *time.Time
	ExpectLive        bool
}

// JobUpdateOption customizes the fields a conditional job update touches.
type JobUpdateOption func(*JobUpdateParams)

// ApplyJobUpdateOptions folds opts into a JobUpdateParams. Exported so
// alternative Store implementations can honor the same options.
func ApplyJobUpdateOptions(opts []JobUpdateOption) *JobUpdateParams {
	params := &JobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

func WithResult(result json.RawMessage) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.Result = result
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithProcessingTime(seconds float64) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ProcessingTime = &seconds
	}
}

func WithClearPendingSince() JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ClearPendingSince = true
	}
}

func WithCompletedAt(t time.Time) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.CompletedAt = &t
	}
}

// WithExpectLive restricts the match to jobs still in pending/processing,
// so a transition racing a terminal write is a no-op rather than an
// overwrite.
func WithExpectLive() JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ExpectLive = true
	}
}
