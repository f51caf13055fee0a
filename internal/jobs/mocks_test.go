package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlopezfr/tenderflow/internal/automation"
	"github.com/mlopezfr/tenderflow/internal/store"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

// mockStore is an in-memory Store. Only the job-path methods carry real
// behavior; the rest return ErrNotFound or nil so a test touching them by
// accident fails loudly.
type mockStore struct {
	mu          sync.Mutex
	tenders     map[uuid.UUID]*models.Tender
	automations map[uuid.UUID]*models.Automation
	jobs        map[uuid.UUID]*models.AnalysisJob
	audits      []*models.AuditEvent

	createJobErr error
	updateJobErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenders:     make(map[uuid.UUID]*models.Tender),
		automations: make(map[uuid.UUID]*models.Automation),
		jobs:        make(map[uuid.UUID]*models.AnalysisJob),
	}
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }

func (m *mockStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return nil, store.ErrNotFound
}
func (m *mockStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error { return nil }
func (m *mockStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error   { return nil }
func (m *mockStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockStore) RevokeAPIKey(ctx context.Context, id, userID uuid.UUID) error { return nil }

func (m *mockStore) CreateTender(ctx context.Context, tender *models.Tender) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenders[tender.ID] = tender
	return nil
}

func (m *mockStore) GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (m *mockStore) ListTenders(ctx context.Context, limit, offset int) ([]*models.Tender, int, error) {
	return nil, 0, nil
}

func (m *mockStore) DeleteTender(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenders[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tenders, id)
	// cascade
	for jobID, job := range m.jobs {
		if job.TenderID == id {
			delete(m.jobs, jobID)
		}
	}
	return nil
}

func (m *mockStore) CreateAutomation(ctx context.Context, a *models.Automation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.automations[a.ID] = a
	return nil
}

func (m *mockStore) GetAutomation(ctx context.Context, id uuid.UUID) (*models.Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *mockStore) ListAutomations(ctx context.Context, activeOnly bool) ([]*models.Automation, error) {
	return nil, nil
}
func (m *mockStore) DeactivateAutomation(ctx context.Context, id uuid.UUID) error { return nil }

func (m *mockStore) HasLiveJob(ctx context.Context, tenderID, automationID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.TenderID == tenderID && job.AutomationID == automationID && job.Status.Live() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	if m.createJobErr != nil {
		return m.createJobErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenders[job.TenderID]; !ok {
		return store.ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockStore) GetJob(ctx context.Context, tenderID, jobID uuid.UUID) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.TenderID != tenderID {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockStore) GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockStore) ListJobsByTender(ctx context.Context, tenderID uuid.UUID) ([]*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AnalysisJob
	for _, job := range m.jobs {
		if job.TenderID == tenderID {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateJob(ctx context.Context, tenderID, jobID uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateJobErr != nil {
		return false, m.updateJobErr
	}
	job, ok := m.jobs[jobID]
	if !ok || job.TenderID != tenderID {
		return false, nil
	}
	params := store.ApplyJobUpdateOptions(opts)
	if params.ExpectLive && !job.Status.Live() {
		return false, nil
	}
	job.Status = status
	if params.Result != nil {
		job.Result = params.Result
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.ProcessingTime != nil {
		job.ProcessingTime = params.ProcessingTime
	}
	if params.CompletedAt != nil {
		job.CompletedAt = params.CompletedAt
	}
	if params.ClearPendingSince {
		job.PendingSince = nil
	}
	return true, nil
}

func (m *mockStore) RenameJob(ctx context.Context, jobID uuid.UUID, newName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, nil
	}
	job.Name = newName
	return true, nil
}

func (m *mockStore) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, event)
	return nil
}

func (m *mockStore) failUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateJobErr = err
}

func (m *mockStore) auditActions() []models.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditAction, 0, len(m.audits))
	for _, e := range m.audits {
		out = append(out, e.Action)
	}
	return out
}

// mockCache is an in-memory Cache with no TTL enforcement.
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (c *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mockCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *mockCache) Ping(ctx context.Context) error { return nil }
func (c *mockCache) Close() error                   { return nil }

func (c *mockCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.Set(ctx, "job:"+jobID.String()+":status", []byte(status), ttl)
}

func (c *mockCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	v, ok, err := c.Get(ctx, "job:"+jobID.String()+":status")
	return string(v), ok, err
}

func (c *mockCache) SetJobName(ctx context.Context, jobID uuid.UUID, name string, ttl time.Duration) error {
	return c.Set(ctx, "job:"+jobID.String()+":name", []byte(name), ttl)
}

func (c *mockCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return 1, nil
}

// mockRunner scripts the automation's answer.
type mockRunner struct {
	mu     sync.Mutex
	resp   *automation.TriggerResponse
	err    error
	calls  int
	onCall func()
}

func (r *mockRunner) Trigger(ctx context.Context, callbackURL string, tenderID, jobID uuid.UUID) (*automation.TriggerResponse, error) {
	r.mu.Lock()
	r.calls++
	hook := r.onCall
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.resp != nil {
		return r.resp, nil
	}
	return &automation.TriggerResponse{Status: "success", Result: json.RawMessage(`{"score": 42}`)}, nil
}

func (r *mockRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
