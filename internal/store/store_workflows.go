package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrMissing reports that a row targeted by a mutation does not exist.
var ErrMissing = errors.New("record not found")

const workflowColumns = "w.id, w.content_id, w.content_type, w.status, w.reviewer_id, w.review_deadline, w.review_notes, w.published_at, w.archived_at, w.created_at, w.updated_at"

func scanWorkflow(scanner rowScanner) (*Workflow, error) {
	var (
		wf          Workflow
		contentType string
		status      string
		reviewer    sql.NullString
		deadlineRaw sql.NullString
		notes       sql.NullString
		publishedAt sql.NullString
		archivedAt  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&wf.ID,
		&wf.ContentID,
		&contentType,
		&status,
		&reviewer,
		&deadlineRaw,
		&notes,
		&publishedAt,
		&archivedAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	wf.ContentType = ContentKind(contentType)
	wf.Status = WorkflowStatus(status)
	wf.ReviewerID = reviewer.String
	wf.ReviewDeadline = parseTimePtr(deadlineRaw)
	wf.ReviewNotes = notes.String
	wf.PublishedAt = parseTimePtr(publishedAt)
	wf.ArchivedAt = parseTimePtr(archivedAt)
	wf.CreatedAt = parseTime(createdRaw)
	wf.UpdatedAt = parseTime(updatedRaw)
	return &wf, nil
}

func scanWorkflows(rows *sql.Rows) ([]*Workflow, error) {
	defer rows.Close()
	var out []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry *HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_history (id, workflow_id, from_status, to_status, actor_id, notes, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.WorkflowID, string(entry.FromStatus), string(entry.ToStatus), entry.ActorID, entry.Notes, formatTime(entry.CreatedAt),
	)
	return err
}

// CreateWorkflow inserts a workflow together with its creation history entry.
func (s *Store) CreateWorkflow(ctx context.Context, wf *Workflow, actorID, notes string) error {
	if wf == nil {
		return errors.New("create workflow: nil workflow")
	}
	ctx = ensureContext(ctx)
	now := s.now()
	if wf.ID == "" {
		wf.ID = newID()
	}
	wf.CreatedAt = now
	wf.UpdatedAt = now
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflows (id, content_id, content_type, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			wf.ID, wf.ContentID, string(wf.ContentType), string(wf.Status), formatTime(now), formatTime(now),
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, &HistoryEntry{
			WorkflowID: wf.ID,
			ToStatus:   wf.Status,
			ActorID:    actorID,
			Notes:      notes,
			CreatedAt:  now,
		})
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("create workflow for %s %s: %w", wf.ContentType, wf.ContentID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// GetWorkflow fetches a workflow by id. A missing workflow yields nil without error.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows w WHERE w.id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// GetWorkflowByContent fetches the workflow of a content item. A missing workflow yields nil without error.
func (s *Store) GetWorkflowByContent(ctx context.Context, contentID string, kind ContentKind) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows w WHERE w.content_id = ? AND w.content_type = ?`, contentID, string(kind))
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by content: %w", err)
	}
	return wf, nil
}

// MutateWorkflow loads a workflow inside a write transaction and hands it to
// fn. When fn succeeds the mutated row is saved, and the returned history
// entry, if any, is appended in the same transaction. When fn fails nothing
// is written. A missing workflow fails with ErrMissing.
func (s *Store) MutateWorkflow(ctx context.Context, id string, fn func(wf *Workflow) (*HistoryEntry, error)) (*Workflow, error) {
	ctx = ensureContext(ctx)
	var saved *Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows w WHERE w.id = ?`, id)
		wf, err := scanWorkflow(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("workflow %s: %w", id, ErrMissing)
		}
		if err != nil {
			return err
		}
		entry, err := fn(wf)
		if err != nil {
			return err
		}
		now := s.now()
		wf.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE workflows SET status = ?, reviewer_id = ?, review_deadline = ?, review_notes = ?, published_at = ?, archived_at = ?, updated_at = ?
             WHERE id = ?`,
			string(wf.Status), nullableString(wf.ReviewerID), nullableTime(wf.ReviewDeadline), nullableString(wf.ReviewNotes),
			nullableTime(wf.PublishedAt), nullableTime(wf.ArchivedAt), formatTime(now), wf.ID,
		); err != nil {
			return err
		}
		if entry != nil {
			entry.WorkflowID = wf.ID
			entry.CreatedAt = now
			if err := insertHistory(ctx, tx, entry); err != nil {
				return err
			}
		}
		saved = wf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ListWorkflowsByStatus returns workflows in a status, most recently updated first.
// An empty kind matches every content type.
func (s *Store) ListWorkflowsByStatus(ctx context.Context, status WorkflowStatus, kind ContentKind) ([]*Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows w WHERE w.status = ?`
	args := []any{string(status)}
	if kind != "" {
		query += ` AND w.content_type = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY w.updated_at DESC, w.rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows by status: %w", err)
	}
	return scanWorkflows(rows)
}

// ListPendingReviews returns review-state workflows assigned to a reviewer,
// earliest deadline first (no deadline last), then most recently updated.
func (s *Store) ListPendingReviews(ctx context.Context, reviewerID string) ([]*Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows w
         WHERE w.status = ? AND w.reviewer_id = ?
         ORDER BY w.review_deadline IS NULL, w.review_deadline ASC, w.updated_at DESC`,
		string(WorkflowReview), reviewerID)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return scanWorkflows(rows)
}

// ListOverdueReviews returns review-state workflows whose deadline is before now, most overdue first.
func (s *Store) ListOverdueReviews(ctx context.Context, now time.Time) ([]*Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows w
         WHERE w.status = ? AND w.review_deadline IS NOT NULL AND w.review_deadline < ?
         ORDER BY w.review_deadline ASC`,
		string(WorkflowReview), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list overdue reviews: %w", err)
	}
	return scanWorkflows(rows)
}

// ListHistory returns a workflow's audit trail, oldest first.
func (s *Store) ListHistory(ctx context.Context, workflowID string) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, from_status, to_status, actor_id, notes, created_at
         FROM workflow_history WHERE workflow_id = ? ORDER BY created_at, rowid`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var entries []*HistoryEntry
	for rows.Next() {
		var (
			entry      HistoryEntry
			from, to   string
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.WorkflowID, &from, &to, &entry.ActorID, &entry.Notes, &createdRaw); err != nil {
			return nil, err
		}
		entry.FromStatus = WorkflowStatus(from)
		entry.ToStatus = WorkflowStatus(to)
		entry.CreatedAt = parseTime(createdRaw)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// SearchWorkflows filters workflows by their own status and by the tags,
// metadata and title of the content they track. Every tag and metadata pair
// must match.
func (s *Store) SearchWorkflows(ctx context.Context, filter WorkflowSearch) ([]*Workflow, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, `w.status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.ContentType != "" {
		clauses = append(clauses, `w.content_type = ?`)
		args = append(args, string(filter.ContentType))
	}
	for _, tag := range normalizeTags(filter.Tags) {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM json_each(c.tags_json) WHERE json_each.value = ?)`)
		args = append(args, tag)
	}
	keys := make([]string, 0, len(filter.Metadata))
	for key := range filter.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		clauses = append(clauses, `json_extract(c.metadata_json, ?) = ?`)
		args = append(args, jsonPath(key), filter.Metadata[key])
	}
	if q := strings.TrimSpace(filter.TitleQuery); q != "" {
		clauses = append(clauses, `c.title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q)+"%")
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows w JOIN content_items c ON c.id = w.content_id AND c.kind = w.content_type`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY w.updated_at DESC, w.rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search workflows: %w", err)
	}
	return scanWorkflows(rows)
}

func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
