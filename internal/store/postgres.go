package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Tenders ---

func (s *PostgresStore) CreateTender(ctx context.Context, tender *models.Tender) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenders (id, name, description, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tender.ID, tender.Name, tender.Description, tender.CreatedBy, tender.CreatedAt, tender.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tender: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	var t models.Tender
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at
		 FROM tenders WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tender: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTenders(ctx context.Context, limit, offset int) ([]*models.Tender, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenders: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at
		 FROM tenders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenders: %w", err)
	}
	defer rows.Close()

	var tenders []*models.Tender
	for rows.Next() {
		var t models.Tender
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan tender: %w", err)
		}
		tenders = append(tenders, &t)
	}
	return tenders, total, rows.Err()
}

// DeleteTender removes the tender; its analysis jobs cascade with it.
func (s *PostgresStore) DeleteTender(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Automations ---

func (s *PostgresStore) CreateAutomation(ctx context.Context, automation *models.Automation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO automations (id, name, callback_url, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		automation.ID, automation.Name, automation.CallbackURL, automation.IsActive,
		automation.CreatedAt, automation.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create automation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAutomation(ctx context.Context, id uuid.UUID) (*models.Automation, error) {
	var a models.Automation
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, callback_url, is_active, created_at, updated_at
		 FROM automations WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.CallbackURL, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAutomations(ctx context.Context, activeOnly bool) ([]*models.Automation, error) {
	query := `SELECT id, name, callback_url, is_active, created_at, updated_at
	          FROM automations ORDER BY name`
	if activeOnly {
		query = `SELECT id, name, callback_url, is_active, created_at, updated_at
		         FROM automations WHERE is_active ORDER BY name`
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var automations []*models.Automation
	for rows.Next() {
		var a models.Automation
		if err := rows.Scan(&a.ID, &a.Name, &a.CallbackURL, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		automations = append(automations, &a)
	}
	return automations, rows.Err()
}

// DeactivateAutomation is a soft delete; existing jobs keep their snapshot
// of the automation name.
func (s *PostgresStore) DeactivateAutomation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE automations SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Analysis Jobs ---

func (s *PostgresStore) HasLiveJob(ctx context.Context, tenderID, automationID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM analysis_jobs
		   WHERE tender_id = $1 AND automation_id = $2 AND status IN ('pending', 'processing')
		 )`, tenderID, automationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check live job: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, tender_id, automation_id, name, status, created_by, created_at, pending_since)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.TenderID, job.AutomationID, job.Name, job.Status,
		job.CreatedBy, job.CreatedAt, job.PendingSince)
	if err != nil {
		// 23505 here means the live index caught a concurrent submission
		// that slipped past the HasLiveJob read.
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

const jobColumns = `id, tender_id, automation_id, name, status, created_by, created_at,
	pending_since, completed_at, processing_time, result, error_message`

func scanJob(row pgx.Row) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := row.Scan(&j.ID, &j.TenderID, &j.AutomationID, &j.Name, &j.Status, &j.CreatedBy,
		&j.CreatedAt, &j.PendingSince, &j.CompletedAt, &j.ProcessingTime, &j.Result, &j.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, tenderID, jobID uuid.UUID) (*models.AnalysisJob, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1 AND tender_id = $2`, jobID, tenderID))
}

func (s *PostgresStore) GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, jobID))
}

func (s *PostgresStore) ListJobsByTender(ctx context.Context, tenderID uuid.UUID) ([]*models.AnalysisJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE tender_id = $1 ORDER BY created_at DESC`, tenderID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by tender: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob performs a single conditional UPDATE matched on (job id, tender
// id). There is no prior read: if the tender was deleted in the meantime the
// cascade removed the row, the match fails, and the method reports false
// without touching anything.
func (s *PostgresStore) UpdateJob(ctx context.Context, tenderID, jobID uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) (bool, error) {
	params := ApplyJobUpdateOptions(opts)

	query := `UPDATE analysis_jobs SET status = $3`
	args := []any{jobID, tenderID, status}
	argIdx := 4

	if params.Result != nil {
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, params.Result)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.ProcessingTime != nil {
		query += fmt.Sprintf(", processing_time = $%d", argIdx)
		args = append(args, *params.ProcessingTime)
		argIdx++
	}
	if params.CompletedAt != nil {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, *params.CompletedAt)
		argIdx++
	}
	if params.ClearPendingSince {
		query += ", pending_since = NULL"
	}

	query += " WHERE id = $1 AND tender_id = $2"
	if params.ExpectLive {
		query += " AND status IN ('pending', 'processing')"
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RenameJob(ctx context.Context, jobID uuid.UUID, newName string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET name = $2 WHERE id = $1`, jobID, newName)
	if err != nil {
		return false, fmt.Errorf("rename job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Audit ---

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, action, actor_id, tender_id, job_id, automation_id, outcome, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Action, event.ActorID, event.TenderID, event.JobID,
		event.AutomationID, event.Outcome, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// --- helpers ---

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
