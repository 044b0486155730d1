package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// Submission describes one job to enqueue.
type Submission struct {
	ContentID string
	Params    Params
	// Priority orders dispatch within a queue; lower runs first.
	Priority int
}

// Submit validates and persists a job, then wakes its queue. It returns the
// new job id.
func (m *Manager) Submit(ctx context.Context, sub Submission) (string, error) {
	if strings.TrimSpace(sub.ContentID) == "" {
		return "", services.Wrap(services.ErrValidation, "jobs", "submit", "content id is required", nil)
	}
	if sub.Params == nil {
		return "", services.Wrap(services.ErrValidation, "jobs", "submit", "params are required", nil)
	}
	jobType := sub.Params.JobType()
	if err := sub.Params.validate(); err != nil {
		return "", services.Wrap(services.ErrValidation, "jobs", "submit", string(jobType), err)
	}
	raw, err := json.Marshal(sub.Params)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "jobs", "submit", "encode params", err)
	}
	job := &store.Job{
		Type:       jobType,
		ContentID:  sub.ContentID,
		AssetID:    sub.Params.Asset(),
		Priority:   sub.Priority,
		Parameters: raw,
	}
	if err := m.store.InsertJob(ctx, job); err != nil {
		return "", services.Wrap(services.ErrTransient, "jobs", "submit", string(jobType), err)
	}
	m.metrics.Submitted.WithLabelValues(string(jobType)).Inc()
	m.logger.Debug("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, string(jobType)),
		logging.Int("priority", job.Priority),
	)
	if q, ok := m.queues[jobType]; ok {
		q.signal()
	}
	return job.ID, nil
}

// RetryFailedJob returns a failed job to its queue with a fresh attempt
// budget. A job that is absent or not failed is reported as not found.
func (m *Manager) RetryFailedJob(ctx context.Context, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "jobs", "retry", jobID, err)
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "jobs", "retry", "job "+jobID, nil)
	}
	if job.Status != store.JobFailed {
		return services.Wrap(services.ErrNotFound, "jobs", "retry", "failed job "+jobID+" (status "+string(job.Status)+")", nil)
	}
	ok, err := m.store.RetryFailedJob(ctx, jobID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "jobs", "retry", jobID, err)
	}
	if !ok {
		return services.Wrap(services.ErrNotFound, "jobs", "retry", "failed job "+jobID+" (changed state concurrently)", nil)
	}
	m.metrics.Retried.WithLabelValues(string(job.Type), "manual").Inc()
	m.logger.Info("failed job requeued",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldJobType, string(job.Type)),
		logging.String(logging.FieldEventType, "job_manual_retry"),
	)
	m.rollupAsset(ctx, job.AssetID)
	if q, ok := m.queues[job.Type]; ok {
		q.signal()
	}
	return nil
}

// JobView is the externally visible state of a job.
type JobView struct {
	ID          string          `json:"id"`
	Type        store.JobType   `json:"type"`
	ContentID   string          `json:"content_id"`
	AssetID     string          `json:"asset_id"`
	Priority    int             `json:"priority"`
	Status      store.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RetryCount  int             `json:"retry_count"`
	Params      Params          `json:"params,omitempty"`
	Result      any             `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	AvailableAt time.Time       `json:"available_at"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (m *Manager) view(job *store.Job) JobView {
	v := JobView{
		ID:          job.ID,
		Type:        job.Type,
		ContentID:   job.ContentID,
		AssetID:     job.AssetID,
		Priority:    job.Priority,
		Status:      job.Status,
		Progress:    job.Progress,
		Attempts:    job.Attempts,
		RetryCount:  job.RetryCount,
		Error:       job.ErrorMessage,
		AvailableAt: job.AvailableAt,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if q, ok := m.queues[job.Type]; ok {
		v.MaxAttempts = q.settings.MaxAttempts
	}
	if params, err := DecodeParams(job.Type, job.Parameters); err == nil {
		v.Params = params
	}
	if job.Status == store.JobCompleted {
		if result, err := DecodeResult(job.Type, job.Result); err == nil {
			v.Result = result
		}
	}
	return v
}

// GetJobStatus returns the current state of a job.
func (m *Manager) GetJobStatus(ctx context.Context, jobID string) (JobView, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return JobView{}, services.Wrap(services.ErrTransient, "jobs", "status", jobID, err)
	}
	if job == nil {
		return JobView{}, services.Wrap(services.ErrNotFound, "jobs", "status", "job "+jobID, nil)
	}
	return m.view(job), nil
}

// GetContentJobs lists a content item's jobs, newest first. An empty jobType
// returns every queue.
func (m *Manager) GetContentJobs(ctx context.Context, contentID string, jobType store.JobType) ([]JobView, error) {
	if jobType != "" {
		if _, ok := store.ParseJobType(string(jobType)); !ok {
			return nil, services.Wrap(services.ErrValidation, "jobs", "content jobs", "unknown job type "+string(jobType), nil)
		}
	}
	jobs, err := m.store.ListContentJobs(ctx, contentID, jobType)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "content jobs", contentID, err)
	}
	return m.views(jobs), nil
}

// GetAssetJobs lists an asset's jobs in submission order.
func (m *Manager) GetAssetJobs(ctx context.Context, assetID string) ([]JobView, error) {
	jobs, err := m.store.ListAssetJobs(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "asset jobs", assetID, err)
	}
	return m.views(jobs), nil
}

// ListJobs lists recent jobs filtered by optional type and status.
func (m *Manager) ListJobs(ctx context.Context, jobType store.JobType, status store.JobStatus, limit int) ([]JobView, error) {
	jobs, err := m.store.ListJobs(ctx, jobType, status, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "list", "", err)
	}
	return m.views(jobs), nil
}

func (m *Manager) views(jobs []*store.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, m.view(job))
	}
	return out
}

// QueueStatistics reports the counts for one queue.
type QueueStatistics struct {
	Queue       store.JobType `json:"queue"`
	Concurrency int           `json:"concurrency"`
	store.QueueCounts
}

// GetQueueStatistics returns counts for every queue in display order.
func (m *Manager) GetQueueStatistics(ctx context.Context) ([]QueueStatistics, error) {
	counts, err := m.store.QueueStats(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "statistics", "", err)
	}
	out := make([]QueueStatistics, 0, len(store.JobTypes))
	for _, jobType := range store.JobTypes {
		out = append(out, QueueStatistics{
			Queue:       jobType,
			Concurrency: m.queues[jobType].settings.Concurrency,
			QueueCounts: counts[jobType],
		})
	}
	return out, nil
}
