package jobs

import (
	"context"
	"fmt"

	"mediaflow/internal/logging"
	"mediaflow/internal/media"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

func (m *Manager) dispatch(ctx context.Context, job *store.Job, params Params) (any, error) {
	asset, err := m.store.GetAsset(ctx, params.Asset())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "load asset", params.Asset(), err)
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "load asset", "asset "+params.Asset(), nil)
	}

	switch p := params.(type) {
	case *MetadataParams:
		return m.handleMetadata(ctx, p)
	case *ThumbnailParams:
		return m.handleThumbnail(ctx, asset, p)
	case *TranscodeParams:
		return m.handleTranscode(ctx, job, asset, p)
	case *SubtitleParams:
		return m.handleSubtitle(ctx, p)
	default:
		return nil, services.Wrap(services.ErrValidation, "jobs", "dispatch", fmt.Sprintf("unsupported payload %T", params), nil)
	}
}

func (m *Manager) handleMetadata(ctx context.Context, p *MetadataParams) (*MetadataResult, error) {
	meta, err := m.processor.ExtractMetadata(ctx, p.SourcePath)
	if err != nil {
		return nil, err
	}
	if err := m.store.UpdateAssetMetadata(ctx, p.AssetID, meta); err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "save metadata", p.AssetID, err)
	}
	return &MetadataResult{Metadata: meta}, nil
}

func (m *Manager) handleThumbnail(ctx context.Context, asset *store.Asset, p *ThumbnailParams) (*ThumbnailResult, error) {
	path, err := m.processor.GenerateThumbnail(ctx, media.ThumbnailRequest{
		AssetID:         p.AssetID,
		SourcePath:      p.SourcePath,
		OffsetSeconds:   p.OffsetSeconds,
		DurationSeconds: asset.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.SetAssetThumbnail(ctx, p.AssetID, path); err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "save thumbnail", p.AssetID, err)
	}
	return &ThumbnailResult{Path: path}, nil
}

func (m *Manager) handleTranscode(ctx context.Context, job *store.Job, asset *store.Asset, p *TranscodeParams) (*TranscodeResult, error) {
	logger := logging.WithContext(ctx, m.logger)
	progress := func(percent int) {
		if err := m.store.UpdateJobProgress(ctx, job.ID, job.Attempts, percent); err != nil && ctx.Err() == nil {
			logger.Debug("progress update skipped", logging.Error(err))
		}
	}
	outcomes, err := m.processor.Transcode(ctx, media.TranscodeRequest{
		AssetID:         p.AssetID,
		SourcePath:      p.SourcePath,
		Ladder:          p.Ladder,
		DurationSeconds: asset.DurationSeconds,
		Progress:        progress,
	})
	if err != nil {
		return nil, err
	}
	return &TranscodeResult{Renditions: outcomes}, nil
}

func (m *Manager) handleSubtitle(ctx context.Context, p *SubtitleParams) (*SubtitleResult, error) {
	result, err := m.processor.GenerateSubtitles(ctx, media.SubtitleRequest{
		AssetID:    p.AssetID,
		SourcePath: p.SourcePath,
		Language:   p.Language,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
