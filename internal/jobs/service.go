// Package jobs orchestrates the analysis job lifecycle: submission with its
// duplicate guard, background dispatch to automation endpoints, cancellation,
// and terminal-state bookkeeping. The analysis_jobs table is authoritative
// throughout; Redis and the notification registry only mirror it.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mlopezfr/tenderflow/internal/audit"
	"github.com/mlopezfr/tenderflow/internal/automation"
	"github.com/mlopezfr/tenderflow/internal/cache"
	"github.com/mlopezfr/tenderflow/internal/config"
	"github.com/mlopezfr/tenderflow/internal/notify"
	"github.com/mlopezfr/tenderflow/internal/store"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

const (
	// jobCacheTTL bounds the flattened status/name mirror in Redis.
	jobCacheTTL = 15 * time.Minute
	// resultStageTTL bounds how long an out-of-band result document waits
	// for the dispatcher's polling loop.
	resultStageTTL = 10 * time.Minute

	// fallbackJobName is used when the automation record carries no name.
	fallbackJobName = "Unknown Automation"
)

// Service owns analysis job operations.
type Service struct {
	store    store.Store
	cache    cache.Cache
	registry *notify.Registry
	audit    *audit.Recorder
	runner   *Runner
	client   automation.Runner
	cfg      config.AutomationConfig
}

// NewService wires a Service from its dependencies.
func NewService(st store.Store, c cache.Cache, reg *notify.Registry, rec *audit.Recorder, runner *Runner, client automation.Runner, cfg config.AutomationConfig) *Service {
	return &Service{
		store:    st,
		cache:    c,
		registry: reg,
		audit:    rec,
		runner:   runner,
		client:   client,
		cfg:      cfg,
	}
}

// Submit creates a pending placeholder job for (tenderID, automationID) and
// hands it to a background dispatcher. The duplicate guard rejects a second
// live job for the same pair; the partial unique index backs the guard up
// against concurrent submissions that race past the read.
func (s *Service) Submit(ctx context.Context, tenderID, automationID, actorID uuid.UUID) (*models.AnalysisJob, error) {
	if _, err := s.store.GetTender(ctx, tenderID); err != nil {
		return nil, err
	}

	auto, err := s.store.GetAutomation(ctx, automationID)
	if err != nil {
		return nil, err
	}
	if !auto.IsActive {
		return nil, ErrAutomationInactive
	}

	live, err := s.store.HasLiveJob(ctx, tenderID, automationID)
	if err != nil {
		return nil, err
	}
	if live {
		return nil, ErrDuplicateJob
	}

	name := auto.Name
	if name == "" {
		name = fallbackJobName
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:           uuid.New(),
		TenderID:     tenderID,
		AutomationID: automationID,
		Name:         name,
		Status:       models.JobStatusPending,
		CreatedBy:    actorID,
		CreatedAt:    now,
		PendingSince: &now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrDuplicateJob
		}
		return nil, err
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, string(models.JobStatusPending), jobCacheTTL)
	_ = s.cache.SetJobName(ctx, job.ID, job.Name, jobCacheTTL)

	s.audit.Record(ctx, models.AuditJobSubmit, actorID, job, "accepted")

	// The dispatch outlives the HTTP request; detach it from the request
	// context. Acquiring the concurrency slot still honors ctx so a caller
	// abandoning the request does not queue work.
	dispatchJob := *job
	if err := s.runner.Go(ctx, "dispatch", func() {
		s.dispatch(context.Background(), &dispatchJob, auto.CallbackURL)
	}); err != nil {
		// No dispatcher ever picks this row up; left pending, it would hold
		// the (tender, automation) slot forever. The request context may be
		// the reason the handoff failed, so the cleanup uses its own.
		cleanupCtx := context.Background()
		if _, uerr := s.store.UpdateJob(cleanupCtx, job.TenderID, job.ID, models.JobStatusFailed,
			store.WithExpectLive(),
			store.WithErrorMessage("analysis could not be scheduled"),
			store.WithClearPendingSince()); uerr != nil {
			slog.Error("failed to release undispatched job", "job_id", job.ID, "error", uerr)
		}
		_ = s.cache.SetJobStatus(cleanupCtx, job.ID, string(models.JobStatusFailed), jobCacheTTL)
		return nil, err
	}

	return job, nil
}

// GetStatus resolves a job by id alone.
func (s *Service) GetStatus(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error) {
	return s.store.GetJobByID(ctx, jobID)
}

// ListByTender returns every job the tender has, newest first.
func (s *Service) ListByTender(ctx context.Context, tenderID uuid.UUID) ([]*models.AnalysisJob, error) {
	if _, err := s.store.GetTender(ctx, tenderID); err != nil {
		return nil, err
	}
	return s.store.ListJobsByTender(ctx, tenderID)
}

// Cancel moves a live job to cancelled. Terminal jobs are left untouched and
// reported as ErrTerminal; the conditional write makes a cancel racing the
// dispatcher's final write lose cleanly.
func (s *Service) Cancel(ctx context.Context, jobID, actorID uuid.UUID) (*models.AnalysisJob, error) {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, ErrTerminal
	}

	modified, err := s.store.UpdateJob(ctx, job.TenderID, job.ID, models.JobStatusCancelled,
		store.WithExpectLive(),
		store.WithClearPendingSince())
	if err != nil {
		return nil, err
	}
	if !modified {
		// Lost the race: the dispatcher finished (or the tender vanished)
		// between our read and the write.
		current, err := s.store.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return nil, errTerminalOr(current)
	}

	job.Status = models.JobStatusCancelled
	job.PendingSince = nil

	_ = s.cache.SetJobStatus(ctx, job.ID, string(models.JobStatusCancelled), jobCacheTTL)
	_ = s.cache.Delete(ctx, cache.ResultKey(job.ID))

	s.publish(job, notify.Message{
		Type:     "analysis_cancelled",
		JobID:    job.ID,
		TenderID: job.TenderID,
		Status:   models.JobStatusCancelled,
	})
	s.audit.Record(ctx, models.AuditJobCancel, actorID, job, "cancelled")

	return job, nil
}

// Rename updates a job's display name. The row is authoritative; the cached
// name is refreshed best-effort.
func (s *Service) Rename(ctx context.Context, jobID uuid.UUID, newName string) error {
	modified, err := s.store.RenameJob(ctx, jobID, newName)
	if err != nil {
		return err
	}
	if !modified {
		return store.ErrNotFound
	}
	_ = s.cache.SetJobName(ctx, jobID, newName, jobCacheTTL)
	return nil
}

// IngestResult stages a result document delivered out-of-band by an
// automation. The dispatcher's polling loop consumes it; a document for an
// unknown or already-terminal job expires on its own.
func (s *Service) IngestResult(ctx context.Context, jobID uuid.UUID, payload json.RawMessage) error {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrTerminal
	}
	return s.cache.Set(ctx, cache.ResultKey(jobID), payload, resultStageTTL)
}

func (s *Service) publish(job *models.AnalysisJob, msg notify.Message) {
	s.registry.Publish(job.ID.String(), msg)
	s.registry.Publish(job.CreatedBy.String(), msg)
}

func errTerminalOr(job *models.AnalysisJob) error {
	if job.Status.Terminal() {
		return ErrTerminal
	}
	slog.Warn("conditional job update modified nothing for a live job",
		"job_id", job.ID, "status", job.Status)
	return store.ErrNotFound
}
