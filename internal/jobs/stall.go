package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// errStalled marks a job whose worker stopped heartbeating.
var errStalled = errors.New("job stalled: no heartbeat")

func (m *Manager) runStallMonitor(ctx context.Context) {
	defer m.wg.Done()
	interval := max(m.heartbeatTimeout/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ReclaimStalled(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("stall sweep failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "stall_sweep_failed"),
				)
			}
		}
	}
}

// ReclaimStalled routes processing jobs whose heartbeat is older than the
// configured timeout through the failure path: they retry with backoff while
// attempts remain and fail otherwise. It returns how many jobs it reclaimed.
func (m *Manager) ReclaimStalled(ctx context.Context) (int, error) {
	if m.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := m.store.Now().Add(-m.heartbeatTimeout)
	stale, err := m.store.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stalled jobs: %w", err)
	}
	reclaimed := 0
	for _, job := range stale {
		q, ok := m.queues[job.Type]
		if !ok {
			continue
		}
		jobCtx := services.WithJobID(ctx, job.ID)
		jobCtx = services.WithQueue(jobCtx, string(job.Type))
		jobCtx = services.WithAssetID(jobCtx, job.AssetID)
		logger := logging.WithContext(jobCtx, m.logger)

		var since time.Duration
		if job.LastHeartbeat != nil {
			since = m.store.Now().Sub(*job.LastHeartbeat)
		}
		logger.Warn("reclaiming stalled job",
			logging.Duration("since_heartbeat", since),
			logging.Attempt(job.Attempts, q.settings.MaxAttempts),
			logging.String(logging.FieldEventType, "job_stalled"),
		)
		m.fail(jobCtx, logger, q, job, errStalled, since, "stalled")
		if current, err := m.store.GetJob(ctx, job.ID); err == nil && current != nil && current.Status != store.JobProcessing {
			reclaimed++
		}
	}
	return reclaimed, nil
}
