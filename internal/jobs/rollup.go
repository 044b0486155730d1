package jobs

import (
	"context"

	"mediaflow/internal/logging"
	"mediaflow/internal/store"
)

// ProcessingStatus summarises the jobs of one asset.
func ProcessingStatus(jobs []*store.Job) string {
	if len(jobs) == 0 {
		return store.ProcessingQueued
	}
	var pending, processing, completed, failed int
	for _, job := range jobs {
		switch job.Status {
		case store.JobPending:
			pending++
		case store.JobProcessing:
			processing++
		case store.JobCompleted:
			completed++
		case store.JobFailed:
			failed++
		}
	}
	switch {
	case processing > 0:
		return store.ProcessingActive
	case pending == len(jobs):
		return store.ProcessingQueued
	case pending > 0:
		return store.ProcessingActive
	case failed == 0:
		return store.ProcessingCompleted
	case completed == 0:
		return store.ProcessingFailed
	default:
		return store.ProcessingPartial
	}
}

// rollupAsset recomputes the asset's processing status from its jobs.
func (m *Manager) rollupAsset(ctx context.Context, assetID string) {
	if assetID == "" {
		return
	}
	jobs, err := m.store.ListAssetJobs(ctx, assetID)
	if err == nil {
		err = m.store.SetAssetProcessingStatus(ctx, assetID, ProcessingStatus(jobs))
	}
	if err != nil && ctx.Err() == nil {
		m.logger.Warn("asset status rollup failed",
			logging.String(logging.FieldAssetID, assetID),
			logging.Error(err),
		)
	}
}
