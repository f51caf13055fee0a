package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlopezfr/tenderflow/internal/automation"
	"github.com/mlopezfr/tenderflow/internal/cache"
	"github.com/mlopezfr/tenderflow/internal/notify"
	"github.com/mlopezfr/tenderflow/internal/store"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

// dispatch drives one job from pending to a terminal state. It runs in a
// supervised goroutine; every database write along the way is conditional on
// the job (and its tender) still existing, so a tender deleted mid-flight
// simply makes the remaining writes no-ops instead of resurrecting rows.
func (s *Service) dispatch(ctx context.Context, job *models.AnalysisJob, callbackURL string) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("analysis dispatch panicked", "job_id", job.ID, "panic", rec)
			s.finishFailure(ctx, job, start, "internal error during analysis dispatch")
		}
	}()

	modified, err := s.store.UpdateJob(ctx, job.TenderID, job.ID, models.JobStatusProcessing,
		store.WithExpectLive())
	if err != nil {
		slog.Error("failed to mark job processing", "job_id", job.ID, "error", err)
		s.finishFailure(ctx, job, start, "could not start analysis")
		return
	}
	if !modified {
		if s.wasCancelled(ctx, job) {
			// The cancel endpoint already notified subscribers.
			s.abandon(ctx, job, "before trigger")
			return
		}
		// Tender cascade-deleted before the processing mark: nothing durable
		// to write, but watchers of the job still learn the outcome.
		s.finishFailure(ctx, job, start, "tender was deleted before the analysis started")
		return
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, string(models.JobStatusProcessing), jobCacheTTL)

	resp, err := s.client.Trigger(ctx, callbackURL, job.TenderID, job.ID)
	if err != nil {
		slog.Warn("automation trigger failed",
			"job_id", job.ID,
			"automation_id", job.AutomationID,
			"error", err)
		s.finishFailure(ctx, job, start, triggerErrorMessage(err))
		return
	}
	if !resp.Succeeded() {
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("automation reported status %q", resp.Status)
		}
		s.finishFailure(ctx, job, start, msg)
		return
	}

	result := resp.Result
	if result == nil {
		// Out-of-band mode: the automation acknowledged and will deliver
		// the document through the result webhook. Wait for it.
		result = s.awaitResult(ctx, job)
		if result == nil {
			if s.wasCancelled(ctx, job) {
				s.abandon(ctx, job, "while awaiting result")
				return
			}
			// Deletion falls through: the conditional write below no-ops and
			// the not-modified branch publishes the terminal notification.
			s.finishFailure(ctx, job, start, "automation acknowledged but no result was delivered")
			return
		}
	}

	s.finishSuccess(ctx, job, start, result)
}

// awaitResult polls the staging key until a result document appears or the
// attempt budget runs out. It re-reads the job before every attempt so a
// cancellation or deletion stops the wait early.
func (s *Service) awaitResult(ctx context.Context, job *models.AnalysisJob) json.RawMessage {
	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.PollInterval):
			}
		}

		// Check the staging key before liveness: a result that landed in
		// the same instant the tender was deleted still deserves its
		// completion notification.
		payload, found, err := s.cache.Get(ctx, cache.ResultKey(job.ID))
		if err != nil {
			slog.Warn("result staging read failed", "job_id", job.ID, "error", err)
			continue
		}
		if found {
			_ = s.cache.Delete(ctx, cache.ResultKey(job.ID))
			return payload
		}

		if s.isAbandoned(ctx, job) {
			return nil
		}
	}
	return nil
}

// isAbandoned reports whether the job was cancelled or cascade-deleted out
// from under the dispatcher.
func (s *Service) isAbandoned(ctx context.Context, job *models.AnalysisJob) bool {
	current, err := s.store.GetJobByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true
		}
		// Transient read failure: keep going, the conditional final write
		// is still the safety net.
		slog.Warn("job liveness check failed", "job_id", job.ID, "error", err)
		return false
	}
	return current.Status.Terminal()
}

func (s *Service) finishSuccess(ctx context.Context, job *models.AnalysisJob, start time.Time, result json.RawMessage) {
	completedAt := time.Now().UTC()
	elapsed := time.Since(start).Seconds()

	msg := notify.Message{
		Type:     "analysis_completed",
		JobID:    job.ID,
		TenderID: job.TenderID,
		Status:   models.JobStatusCompleted,
		Result:   result,
	}

	modified, err := s.store.UpdateJob(ctx, job.TenderID, job.ID, models.JobStatusCompleted,
		store.WithExpectLive(),
		store.WithResult(result),
		store.WithProcessingTime(elapsed),
		store.WithCompletedAt(completedAt),
		store.WithClearPendingSince())
	if err != nil {
		// The row is stuck in processing until the database recovers, but
		// subscribers still hear the outcome.
		slog.Error("failed to persist completed job", "job_id", job.ID, "error", err)
		s.publish(job, msg)
		return
	}

	if !modified {
		if s.isAbandoned(ctx, job) && !s.wasCancelled(ctx, job) {
			// Tender deleted mid-flight: nothing durable to write to, but a
			// client watching the job still learns the outcome.
			s.publish(job, msg)
		}
		return
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, string(models.JobStatusCompleted), jobCacheTTL)
	s.publish(job, msg)
	s.audit.Record(ctx, models.AuditJobComplete, job.CreatedBy, job, "completed")
	slog.Info("analysis completed",
		"job_id", job.ID,
		"tender_id", job.TenderID,
		"processing_time_seconds", elapsed)
}

func (s *Service) finishFailure(ctx context.Context, job *models.AnalysisJob, start time.Time, reason string) {
	msg := notify.Message{
		Type:         "analysis_failed",
		JobID:        job.ID,
		TenderID:     job.TenderID,
		Status:       models.JobStatusFailed,
		ErrorMessage: reason,
	}

	modified, err := s.store.UpdateJob(ctx, job.TenderID, job.ID, models.JobStatusFailed,
		store.WithExpectLive(),
		store.WithErrorMessage(reason),
		store.WithProcessingTime(time.Since(start).Seconds()),
		store.WithClearPendingSince())
	if err != nil {
		slog.Error("failed to persist failed job", "job_id", job.ID, "error", err)
		s.publish(job, msg)
		return
	}

	if !modified {
		if s.isAbandoned(ctx, job) && !s.wasCancelled(ctx, job) {
			s.publish(job, msg)
		}
		return
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, string(models.JobStatusFailed), jobCacheTTL)
	s.publish(job, msg)
	s.audit.Record(ctx, models.AuditJobFail, job.CreatedBy, job, reason)
	slog.Warn("analysis failed", "job_id", job.ID, "reason", reason)
}

// wasCancelled distinguishes a user cancel (already notified by the cancel
// path) from a cascade delete.
func (s *Service) wasCancelled(ctx context.Context, job *models.AnalysisJob) bool {
	current, err := s.store.GetJobByID(ctx, job.ID)
	if err != nil {
		return false
	}
	return current.Status == models.JobStatusCancelled
}

// abandon is the silent exit after a user cancel: the cancel endpoint
// already surfaced the state change to subscribers.
func (s *Service) abandon(ctx context.Context, job *models.AnalysisJob, stage string) {
	_ = s.cache.Delete(ctx, cache.ResultKey(job.ID))
	slog.Debug("analysis dispatch abandoned", "job_id", job.ID, "stage", stage)
}

func triggerErrorMessage(err error) string {
	switch {
	case errors.Is(err, automation.ErrCallTimeout):
		return "automation did not respond in time"
	case errors.Is(err, automation.ErrUnreachable):
		return "automation endpoint unreachable"
	case errors.Is(err, automation.ErrUpstreamStatus):
		return err.Error()
	default:
		return err.Error()
	}
}
