package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const renditionColumns = "id, asset_id, resolution, height, quality_tier, bitrate_kbps, file_path, status, progress, file_size_bytes, error_message, created_at, updated_at, completed_at"

func scanRendition(scanner rowScanner) (*Rendition, error) {
	var (
		r            Rendition
		status       string
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&r.ID,
		&r.AssetID,
		&r.Resolution,
		&r.Height,
		&r.QualityTier,
		&r.BitrateKbps,
		&r.FilePath,
		&status,
		&r.Progress,
		&r.FileSizeBytes,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	r.Status = ArtifactStatus(status)
	r.ErrorMessage = errorMessage.String
	r.CreatedAt = parseTime(createdRaw)
	r.UpdatedAt = parseTime(updatedRaw)
	r.CompletedAt = parseTimePtr(completedRaw)
	return &r, nil
}

func scanRenditions(rows *sql.Rows) ([]*Rendition, error) {
	defer rows.Close()
	var out []*Rendition
	for rows.Next() {
		r, err := scanRendition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResetRendition creates the rung row, or resets an existing one, to pending.
// The row id is stable across re-runs of the same rung.
func (s *Store) ResetRendition(ctx context.Context, r *Rendition) (*Rendition, error) {
	if r == nil {
		return nil, errors.New("reset rendition: nil rendition")
	}
	now := formatTime(s.now())
	row := s.db.QueryRowContext(ensureContext(ctx),
		`INSERT INTO renditions (id, asset_id, resolution, height, quality_tier, bitrate_kbps, file_path, status, progress, file_size_bytes, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
         ON CONFLICT (asset_id, resolution) DO UPDATE SET
             height = excluded.height, quality_tier = excluded.quality_tier, bitrate_kbps = excluded.bitrate_kbps,
             file_path = excluded.file_path, status = excluded.status, progress = 0, file_size_bytes = 0,
             error_message = NULL, completed_at = NULL, updated_at = excluded.updated_at
         RETURNING `+renditionColumns,
		newID(), r.AssetID, r.Resolution, r.Height, r.QualityTier, r.BitrateKbps, r.FilePath, string(ArtifactPending), now, now,
	)
	saved, err := scanRendition(row)
	if err != nil {
		return nil, fmt.Errorf("reset rendition: %w", err)
	}
	return saved, nil
}

// GetRendition fetches the rung row for an asset. A missing row yields nil without error.
func (s *Store) GetRendition(ctx context.Context, assetID, resolution string) (*Rendition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+renditionColumns+` FROM renditions WHERE asset_id = ? AND resolution = ?`, assetID, resolution)
	r, err := scanRendition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rendition: %w", err)
	}
	return r, nil
}

// ListRenditions returns an asset's renditions, tallest first. An empty status matches all.
func (s *Store) ListRenditions(ctx context.Context, assetID string, status ArtifactStatus) ([]*Rendition, error) {
	query := `SELECT ` + renditionColumns + ` FROM renditions WHERE asset_id = ?`
	args := []any{assetID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY height DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list renditions: %w", err)
	}
	return scanRenditions(rows)
}

// StartRendition marks a rung processing.
func (s *Store) StartRendition(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE renditions SET status = ?, progress = 0, updated_at = ? WHERE id = ?`,
		string(ArtifactProcessing), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("start rendition: %w", err)
	}
	return nil
}

// UpdateRenditionProgress stores encode progress (0-100).
func (s *Store) UpdateRenditionProgress(ctx context.Context, id string, progress int) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE renditions SET progress = ?, updated_at = ? WHERE id = ? AND status = ?`,
		progress, formatTime(s.now()), id, string(ArtifactProcessing))
	if err != nil {
		return fmt.Errorf("update rendition progress: %w", err)
	}
	return nil
}

// CompleteRendition finalizes a rung with its output size.
func (s *Store) CompleteRendition(ctx context.Context, id string, sizeBytes int64) error {
	now := formatTime(s.now())
	_, err := s.execWithRetry(ctx,
		`UPDATE renditions SET status = ?, progress = 100, file_size_bytes = ?, error_message = NULL, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(ArtifactCompleted), sizeBytes, now, now, id)
	if err != nil {
		return fmt.Errorf("complete rendition: %w", err)
	}
	return nil
}

// FailRendition finalizes a rung with its error.
func (s *Store) FailRendition(ctx context.Context, id, message string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE renditions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(ArtifactFailed), nullableString(message), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("fail rendition: %w", err)
	}
	return nil
}
