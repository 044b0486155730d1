package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const subtitleColumns = "id, asset_id, language, format, file_path, confidence_score, word_count, status, error_message, created_at, updated_at"

func scanSubtitleSet(scanner rowScanner) (*SubtitleSet, error) {
	var (
		set          SubtitleSet
		filePath     sql.NullString
		status       string
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&set.ID,
		&set.AssetID,
		&set.Language,
		&set.Format,
		&filePath,
		&set.ConfidenceScore,
		&set.WordCount,
		&status,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	set.FilePath = filePath.String
	set.Status = ArtifactStatus(status)
	set.ErrorMessage = errorMessage.String
	set.CreatedAt = parseTime(createdRaw)
	set.UpdatedAt = parseTime(updatedRaw)
	return &set, nil
}

// StartSubtitleSet creates or resets the set for (asset, language) in processing state.
func (s *Store) StartSubtitleSet(ctx context.Context, assetID, language, format string) (*SubtitleSet, error) {
	now := formatTime(s.now())
	row := s.db.QueryRowContext(ensureContext(ctx),
		`INSERT INTO subtitle_sets (id, asset_id, language, format, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (asset_id, language) DO UPDATE SET
             format = excluded.format, status = excluded.status, error_message = NULL, updated_at = excluded.updated_at
         RETURNING `+subtitleColumns,
		newID(), assetID, language, format, string(ArtifactProcessing), now, now,
	)
	set, err := scanSubtitleSet(row)
	if err != nil {
		return nil, fmt.Errorf("start subtitle set: %w", err)
	}
	return set, nil
}

// CompleteSubtitleSet replaces the set's segments and marks it completed in one transaction.
func (s *Store) CompleteSubtitleSet(ctx context.Context, id, filePath string, segments []Segment, confidence float64, wordCount int) error {
	ctx = ensureContext(ctx)
	now := formatTime(s.now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subtitle_segments WHERE subtitle_id = ?`, id); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO subtitle_segments (subtitle_id, seq, start_seconds, end_seconds, text, confidence) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, seg := range segments {
			if _, err := stmt.ExecContext(ctx, id, i, seg.Start, seg.End, seg.Text, seg.Confidence); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE subtitle_sets SET status = ?, file_path = ?, confidence_score = ?, word_count = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
			string(ArtifactCompleted), filePath, confidence, wordCount, now, id)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("subtitle set %s missing", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete subtitle set: %w", err)
	}
	return nil
}

// FailSubtitleSet records a generation failure.
func (s *Store) FailSubtitleSet(ctx context.Context, id, message string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE subtitle_sets SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(ArtifactFailed), nullableString(message), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("fail subtitle set: %w", err)
	}
	return nil
}

// GetSubtitleSet fetches the set for an asset and language. A missing set yields nil without error.
func (s *Store) GetSubtitleSet(ctx context.Context, assetID, language string) (*SubtitleSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subtitleColumns+` FROM subtitle_sets WHERE asset_id = ? AND language = ?`, assetID, language)
	set, err := scanSubtitleSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subtitle set: %w", err)
	}
	return set, nil
}

// ListSubtitleSets returns every subtitle set of an asset ordered by language.
func (s *Store) ListSubtitleSets(ctx context.Context, assetID string) ([]*SubtitleSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subtitleColumns+` FROM subtitle_sets WHERE asset_id = ? ORDER BY language`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list subtitle sets: %w", err)
	}
	defer rows.Close()
	var sets []*SubtitleSet
	for rows.Next() {
		set, err := scanSubtitleSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// ListSegments returns the cues of a subtitle set in order.
func (s *Store) ListSegments(ctx context.Context, subtitleID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, start_seconds, end_seconds, text, confidence FROM subtitle_segments WHERE subtitle_id = ? ORDER BY seq`, subtitleID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	var segments []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.Order, &seg.Start, &seg.End, &seg.Text, &seg.Confidence); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
