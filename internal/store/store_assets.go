package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const assetColumns = "id, content_id, original_path, original_filename, size_bytes, duration_seconds, bit_rate, width, height, resolution, format, video_codec, audio_codec, frame_rate, audio_channels, thumbnail_path, upload_status, processing_status, created_at, updated_at"

func scanAsset(scanner rowScanner) (*Asset, error) {
	var (
		asset      Asset
		thumbnail  sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&asset.ID,
		&asset.ContentID,
		&asset.OriginalPath,
		&asset.OriginalFilename,
		&asset.SizeBytes,
		&asset.DurationSeconds,
		&asset.BitRate,
		&asset.Width,
		&asset.Height,
		&asset.Resolution,
		&asset.Format,
		&asset.VideoCodec,
		&asset.AudioCodec,
		&asset.FrameRate,
		&asset.AudioChannels,
		&thumbnail,
		&asset.UploadStatus,
		&asset.ProcessingStatus,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	asset.ThumbnailPath = thumbnail.String
	asset.CreatedAt = parseTime(createdRaw)
	asset.UpdatedAt = parseTime(updatedRaw)
	return &asset, nil
}

// InsertAsset persists a newly uploaded asset.
func (s *Store) InsertAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("insert asset: nil asset")
	}
	now := s.now()
	if asset.ID == "" {
		asset.ID = newID()
	}
	if asset.UploadStatus == "" {
		asset.UploadStatus = UploadUploaded
	}
	if asset.ProcessingStatus == "" {
		asset.ProcessingStatus = ProcessingQueued
	}
	asset.CreatedAt = now
	asset.UpdatedAt = now
	_, err := s.execWithRetry(ctx,
		`INSERT INTO media_assets (id, content_id, original_path, original_filename, size_bytes, upload_status, processing_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.ContentID,
		asset.OriginalPath,
		asset.OriginalFilename,
		asset.SizeBytes,
		asset.UploadStatus,
		asset.ProcessingStatus,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetAsset fetches an asset by id. A missing asset yields nil without error.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM media_assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// ListContentAssets returns the assets uploaded for a content item, newest first.
func (s *Store) ListContentAssets(ctx context.Context, contentID string) ([]*Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM media_assets WHERE content_id = ? ORDER BY created_at DESC, rowid DESC`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()
	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (s *Store) updateAsset(ctx context.Context, op, id, query string, args ...any) error {
	args = append(args, formatTime(s.now()), id)
	res, err := s.execWithRetry(ctx, query+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%s: asset %s missing", op, id)
	}
	return nil
}

// UpdateAssetMetadata stores probed properties.
func (s *Store) UpdateAssetMetadata(ctx context.Context, id string, meta AssetMetadata) error {
	return s.updateAsset(ctx, "update asset metadata", id,
		`UPDATE media_assets SET size_bytes = ?, duration_seconds = ?, bit_rate = ?, width = ?, height = ?, resolution = ?,
             format = ?, video_codec = ?, audio_codec = ?, frame_rate = ?, audio_channels = ?`,
		meta.SizeBytes, meta.DurationSeconds, meta.BitRate, meta.Width, meta.Height, meta.Resolution,
		meta.Format, meta.VideoCodec, meta.AudioCodec, meta.FrameRate, meta.AudioChannels,
	)
}

// SetAssetThumbnail records the extracted still.
func (s *Store) SetAssetThumbnail(ctx context.Context, id, path string) error {
	return s.updateAsset(ctx, "set asset thumbnail", id,
		`UPDATE media_assets SET thumbnail_path = ?`, nullableString(path))
}

// SetAssetProcessingStatus records the rolled-up processing state.
func (s *Store) SetAssetProcessingStatus(ctx context.Context, id, status string) error {
	return s.updateAsset(ctx, "set asset processing status", id,
		`UPDATE media_assets SET processing_status = ?`, status)
}
