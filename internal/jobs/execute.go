package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// execute runs one claimed job to a recorded outcome. Every status write is
// fenced by the claim's attempt number.
func (m *Manager) execute(ctx context.Context, q *queueState, job *store.Job) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithQueue(ctx, string(job.Type))
	ctx = services.WithAssetID(ctx, job.AssetID)
	logger := logging.WithContext(ctx, m.logger)

	jobCtx, cancelJob := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		m.heartbeatLoop(jobCtx, cancelJob, logger, job)
	}()
	// The heartbeat exits on jobCtx, so cancel before waiting for it.
	defer func() {
		cancelJob()
		<-hbDone
	}()

	m.metrics.Active.WithLabelValues(string(job.Type)).Inc()
	defer m.metrics.Active.WithLabelValues(string(job.Type)).Dec()

	m.rollupAsset(ctx, job.AssetID)
	logger.Info("job started",
		logging.Attempt(job.Attempts, q.settings.MaxAttempts),
		logging.Int("priority", job.Priority),
		logging.String(logging.FieldEventType, "job_started"),
	)

	started := time.Now()
	result, runErr := m.runHandler(jobCtx, job)
	elapsed := time.Since(started)

	if ctx.Err() != nil {
		// Shutdown: leave the row processing for recovery on the next start.
		logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
		return
	}
	if jobCtx.Err() != nil && runErr != nil {
		// The heartbeat lost the claim; another execution owns the job now.
		logger.Warn("job claim lost; discarding result",
			logging.Error(runErr),
			logging.String(logging.FieldEventType, "job_claim_lost"),
		)
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	if runErr == nil {
		m.complete(writeCtx, logger, job, result, elapsed)
		return
	}
	m.fail(writeCtx, logger, q, job, runErr, elapsed, "backoff")
}

func (m *Manager) runHandler(ctx context.Context, job *store.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "jobs", string(job.Type), fmt.Sprintf("handler panic: %v", r), nil)
			logging.WithContext(ctx, m.logger).Error("job handler panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "job_panic"),
			)
		}
	}()
	params, err := DecodeParams(job.Type, job.Parameters)
	if err != nil {
		return nil, err
	}
	return m.dispatch(ctx, job, params)
}

func (m *Manager) complete(ctx context.Context, logger *slog.Logger, job *store.Job, result any, elapsed time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		m.fail(ctx, logger, m.queues[job.Type], job, fmt.Errorf("encode result: %w", err), elapsed, "backoff")
		return
	}
	if err := m.store.CompleteJob(ctx, job.ID, job.Attempts, raw); err != nil {
		m.logWriteFailure(logger, "complete", err)
		return
	}
	m.metrics.Completed.WithLabelValues(string(job.Type)).Inc()
	m.metrics.Duration.WithLabelValues(string(job.Type), "completed").Observe(elapsed.Seconds())
	logger.Info("job completed",
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	m.rollupAsset(ctx, job.AssetID)
	m.publish(ctx, job.ID)
}

// fail applies the retry policy: retryable errors re-enter pending after
// backoff until the queue's attempt budget is spent, everything else fails
// permanently.
func (m *Manager) fail(ctx context.Context, logger *slog.Logger, q *queueState, job *store.Job, cause error, elapsed time.Duration, reason string) {
	message := cause.Error()
	if services.Retryable(cause) && job.Attempts < q.settings.MaxAttempts {
		delay := m.backoff(q, job.Attempts)
		if err := m.store.RequeueJob(ctx, job.ID, job.Attempts, m.store.Now().Add(delay), message); err != nil {
			m.logWriteFailure(logger, "requeue", err)
			return
		}
		m.metrics.Retried.WithLabelValues(string(job.Type), reason).Inc()
		m.metrics.Duration.WithLabelValues(string(job.Type), "retried").Observe(elapsed.Seconds())
		logging.WarnWithContext(logger, "job failed; retry scheduled", "job_retry_scheduled",
			logging.Error(cause),
			logging.Attempt(job.Attempts, q.settings.MaxAttempts),
			logging.Duration("backoff", delay),
		)
		time.AfterFunc(delay, q.signal)
		return
	}

	if err := m.store.FailJob(ctx, job.ID, job.Attempts, message); err != nil {
		m.logWriteFailure(logger, "fail", err)
		return
	}
	m.metrics.Failed.WithLabelValues(string(job.Type)).Inc()
	m.metrics.Duration.WithLabelValues(string(job.Type), "failed").Observe(elapsed.Seconds())
	logging.ErrorWithContext(logger, "job failed permanently", "job_failed",
		logging.Error(cause),
		logging.Attempt(job.Attempts, q.settings.MaxAttempts),
	)
	m.rollupAsset(ctx, job.AssetID)
	m.publish(ctx, job.ID)
}

// backoff is base * 2^(attempt-1): the first retry waits one base interval.
func (m *Manager) backoff(q *queueState, attempt int) time.Duration {
	base := q.settings.BackoffBaseSeconds
	if base <= 0 || attempt < 1 {
		return 0
	}
	seconds := base * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

func (m *Manager) logWriteFailure(logger *slog.Logger, op string, err error) {
	if errors.Is(err, store.ErrStaleClaim) {
		logger.Warn("job claim superseded; outcome dropped",
			logging.String("operation", op),
			logging.String(logging.FieldEventType, "job_claim_lost"),
		)
		return
	}
	logging.ErrorWithContext(logger, "failed to persist job outcome", "job_persist_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check database access; the job will be reclaimed as stalled"),
	)
}

func (m *Manager) heartbeatLoop(ctx context.Context, cancelJob context.CancelFunc, logger *slog.Logger, job *store.Job) {
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.store.UpdateJobHeartbeat(ctx, job.ID, job.Attempts)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrStaleClaim):
				logger.Warn("job reclaimed while running; cancelling",
					logging.String(logging.FieldEventType, "job_claim_lost"),
				)
				cancelJob()
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
