package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, type, content_id, asset_id, priority, status, progress, parameters, result, error_message, retry_count, attempts, available_at, last_heartbeat, created_at, updated_at, started_at, completed_at"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		jobType      string
		status       string
		parameters   sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
		availableRaw sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&jobType,
		&job.ContentID,
		&job.AssetID,
		&job.Priority,
		&status,
		&job.Progress,
		&parameters,
		&result,
		&errorMessage,
		&job.RetryCount,
		&job.Attempts,
		&availableRaw,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Type = JobType(jobType)
	job.Status = JobStatus(status)
	if parameters.Valid {
		job.Parameters = json.RawMessage(parameters.String)
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.ErrorMessage = errorMessage.String
	job.AvailableAt = parseTime(availableRaw)
	job.LastHeartbeat = parseTimePtr(heartbeatRaw)
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	job.StartedAt = parseTimePtr(startedRaw)
	job.CompletedAt = parseTimePtr(completedRaw)
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// InsertJob persists a new pending job. ID, timestamps and status are filled in.
func (s *Store) InsertJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("insert job: nil job")
	}
	if _, ok := ParseJobType(string(job.Type)); !ok {
		return fmt.Errorf("insert job: unknown type %q", job.Type)
	}
	now := s.now()
	if job.ID == "" {
		job.ID = newID()
	}
	if len(job.Parameters) == 0 {
		job.Parameters = json.RawMessage("{}")
	}
	job.Status = JobPending
	job.Progress = 0
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, type, content_id, asset_id, priority, status, progress, parameters, retry_count, attempts, available_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, 0, ?, ?, ?)`,
		job.ID,
		string(job.Type),
		job.ContentID,
		job.AssetID,
		job.Priority,
		string(job.Status),
		string(job.Parameters),
		job.RetryCount,
		formatTime(job.AvailableAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by id. A missing job yields nil without error.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListContentJobs returns the jobs for a content item, newest first. An empty
// jobType matches every type.
func (s *Store) ListContentJobs(ctx context.Context, contentID string, jobType JobType) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE content_id = ?`
	args := []any{contentID}
	if jobType != "" {
		query += ` AND type = ?`
		args = append(args, string(jobType))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content jobs: %w", err)
	}
	return scanJobs(rows)
}

// ListAssetJobs returns the jobs targeting an asset in submission order.
func (s *Store) ListAssetJobs(ctx context.Context, assetID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE asset_id = ? ORDER BY created_at, rowid`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list asset jobs: %w", err)
	}
	return scanJobs(rows)
}

// ListJobs returns jobs filtered by optional type and status, newest first.
func (s *Store) ListJobs(ctx context.Context, jobType JobType, status JobStatus, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if jobType != "" {
		query += ` AND type = ?`
		args = append(args, string(jobType))
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// ClaimNextJob atomically moves the most urgent dispatchable job of a type to
// processing: lowest priority value first, then oldest submission. It returns
// nil when nothing is ready.
func (s *Store) ClaimNextJob(ctx context.Context, jobType JobType) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(s.now())
	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE jobs
             SET status = ?, started_at = ?, last_heartbeat = ?, attempts = attempts + 1, progress = 0, updated_at = ?
             WHERE id = (
                 SELECT id FROM jobs
                 WHERE type = ? AND status = ? AND available_at <= ?
                 ORDER BY priority ASC, created_at ASC, rowid ASC
                 LIMIT 1
             ) AND status = ?
             RETURNING `+jobColumns,
			string(JobProcessing), now, now, now,
			string(jobType), string(JobPending), now,
			string(JobPending),
		)
		claimed, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// NextAvailableAt returns the earliest pending dispatch time for a queue, or nil when the queue is empty.
func (s *Store) NextAvailableAt(ctx context.Context, jobType JobType) (*time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(available_at) FROM jobs WHERE type = ? AND status = ?`,
		string(jobType), string(JobPending),
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("next available: %w", err)
	}
	return parseTimePtr(raw), nil
}

func (s *Store) fencedUpdate(ctx context.Context, op string, id string, attempt int, query string, args ...any) error {
	args = append(args, id, string(JobProcessing), attempt)
	res, err := s.execWithRetry(ctx, query+` WHERE id = ? AND status = ? AND attempts = ?`, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrStaleClaim)
	}
	return nil
}

// CompleteJob records a successful execution.
func (s *Store) CompleteJob(ctx context.Context, id string, attempt int, result json.RawMessage) error {
	now := formatTime(s.now())
	return s.fencedUpdate(ctx, "complete job", id, attempt,
		`UPDATE jobs SET status = ?, progress = 100, result = ?, error_message = NULL, last_heartbeat = NULL, completed_at = ?, updated_at = ?`,
		string(JobCompleted), nullableJSON(result), now, now,
	)
}

// RequeueJob returns a failed execution to pending until availableAt, counting one retry.
func (s *Store) RequeueJob(ctx context.Context, id string, attempt int, availableAt time.Time, errMessage string) error {
	now := formatTime(s.now())
	return s.fencedUpdate(ctx, "requeue job", id, attempt,
		`UPDATE jobs SET status = ?, retry_count = retry_count + 1, available_at = ?, error_message = ?, last_heartbeat = NULL, started_at = NULL, updated_at = ?`,
		string(JobPending), formatTime(availableAt), nullableString(errMessage), now,
	)
}

// FailJob marks an execution permanently failed.
func (s *Store) FailJob(ctx context.Context, id string, attempt int, errMessage string) error {
	now := formatTime(s.now())
	return s.fencedUpdate(ctx, "fail job", id, attempt,
		`UPDATE jobs SET status = ?, error_message = ?, last_heartbeat = NULL, completed_at = ?, updated_at = ?`,
		string(JobFailed), nullableString(errMessage), now, now,
	)
}

// UpdateJobProgress stores execution progress (0-100).
func (s *Store) UpdateJobProgress(ctx context.Context, id string, attempt int, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return s.fencedUpdate(ctx, "update job progress", id, attempt,
		`UPDATE jobs SET progress = ?, updated_at = ?`,
		progress, formatTime(s.now()),
	)
}

// UpdateJobHeartbeat stamps the last heartbeat of an in-flight job.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, id string, attempt int) error {
	now := formatTime(s.now())
	return s.fencedUpdate(ctx, "update heartbeat", id, attempt,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ?`,
		now, now,
	)
}

// RetryFailedJob moves a failed job back to pending for immediate dispatch,
// counting one retry and restoring its automatic attempt budget. It reports
// false when the job is absent or not failed.
func (s *Store) RetryFailedJob(ctx context.Context, id string) (bool, error) {
	now := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, retry_count = retry_count + 1, attempts = 0, progress = 0, available_at = ?,
             error_message = NULL, result = NULL, started_at = NULL, completed_at = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(JobPending), now, now, id, string(JobFailed),
	)
	if err != nil {
		return false, fmt.Errorf("retry failed job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("retry failed job: %w", err)
	}
	return affected > 0, nil
}

// ResetProcessingJobs returns every processing job to pending. It runs at
// startup, when no execution of this process can still own a claim.
func (s *Store) ResetProcessingJobs(ctx context.Context) (int64, error) {
	now := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, available_at = ?, last_heartbeat = NULL, started_at = NULL, updated_at = ?
         WHERE status = ?`,
		string(JobPending), now, now, string(JobProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("reset processing jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListStaleJobs returns processing jobs whose heartbeat is older than cutoff.
func (s *Store) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
         ORDER BY created_at, rowid`,
		string(JobProcessing), formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return scanJobs(rows)
}

// QueueStats returns per-queue counts. Pending jobs waiting out a backoff are
// reported as delayed.
func (s *Store) QueueStats(ctx context.Context) (map[JobType]QueueCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, status, available_at > ? AS delayed, COUNT(1) FROM jobs GROUP BY type, status, delayed`,
		formatTime(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobType]QueueCounts, len(JobTypes))
	for _, jobType := range JobTypes {
		stats[jobType] = QueueCounts{}
	}
	for rows.Next() {
		var (
			jobType string
			status  string
			delayed bool
			count   int
		)
		if err := rows.Scan(&jobType, &status, &delayed, &count); err != nil {
			return nil, err
		}
		counts := stats[JobType(jobType)]
		switch JobStatus(status) {
		case JobPending:
			if delayed {
				counts.Delayed += count
			} else {
				counts.Waiting += count
			}
		case JobProcessing:
			counts.Active += count
		case JobCompleted:
			counts.Completed += count
		case JobFailed:
			counts.Failed += count
		}
		stats[JobType(jobType)] = counts
	}
	return stats, rows.Err()
}
