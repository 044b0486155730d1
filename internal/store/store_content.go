package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const contentColumns = "id, kind, title, owner_id, course_id, tags_json, metadata_json, created_at, updated_at"

func scanContent(scanner rowScanner) (*ContentItem, error) {
	var (
		item         ContentItem
		kind         string
		courseID     sql.NullString
		tagsJSON     string
		metadataJSON string
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(&item.ID, &kind, &item.Title, &item.OwnerID, &courseID, &tagsJSON, &metadataJSON, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	item.Kind = ContentKind(kind)
	item.CourseID = courseID.String
	if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &item.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", item.ID, err)
	}
	item.CreatedAt = parseTime(createdRaw)
	item.UpdatedAt = parseTime(updatedRaw)
	return &item, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// InsertContent persists a course or lesson row.
func (s *Store) InsertContent(ctx context.Context, item *ContentItem) error {
	if item == nil {
		return errors.New("insert content: nil item")
	}
	if _, ok := ParseContentKind(string(item.Kind)); !ok {
		return fmt.Errorf("insert content: unknown kind %q", item.Kind)
	}
	now := s.now()
	if item.ID == "" {
		item.ID = newID()
	}
	item.Tags = normalizeTags(item.Tags)
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	tagsJSON, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	_, err = s.execWithRetry(ctx,
		`INSERT INTO content_items (id, kind, title, owner_id, course_id, tags_json, metadata_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Kind), item.Title, item.OwnerID, nullableString(item.CourseID),
		string(tagsJSON), string(metadataJSON), formatTime(now), formatTime(now),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert content %s: %w", item.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// GetContent fetches a content row. A missing row yields nil without error.
func (s *Store) GetContent(ctx context.Context, id string) (*ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// GetContentBatch fetches several content rows in one query, keyed by id.
func (s *Store) GetContentBatch(ctx context.Context, ids []string) (map[string]*ContentItem, error) {
	out := make(map[string]*ContentItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM content_items WHERE id IN (`+makePlaceholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get content batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

// ListContent returns content rows of one kind (or all when kind is empty), by title.
func (s *Store) ListContent(ctx context.Context, kind ContentKind) ([]*ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY title, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()
	var items []*ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
