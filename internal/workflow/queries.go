package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// GetContentByStatus lists workflows in status, optionally narrowed to one
// content type.
func (s *Service) GetContentByStatus(ctx context.Context, status store.WorkflowStatus, kind store.ContentKind) ([]View, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "by status", fmt.Sprintf("unknown status %q", status), nil)
	}
	if kind != "" {
		if _, ok := store.ParseContentKind(string(kind)); !ok {
			return nil, services.Wrap(services.ErrValidation, "workflow", "by status", fmt.Sprintf("unknown content type %q", kind), nil)
		}
	}
	workflows, err := s.store.ListWorkflowsByStatus(ctx, status, kind)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "by status", string(status), err)
	}
	return s.annotate(ctx, workflows)
}

// GetPendingReviews lists a reviewer's open reviews, earliest deadline first.
func (s *Service) GetPendingReviews(ctx context.Context, reviewerID string) ([]View, error) {
	if reviewerID == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "pending reviews", "reviewer id is required", nil)
	}
	workflows, err := s.store.ListPendingReviews(ctx, reviewerID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "pending reviews", reviewerID, err)
	}
	return s.annotate(ctx, workflows)
}

// GetOverdueReviews lists reviews past their deadline, most overdue first.
// Any part of a day past the deadline counts as a full day.
func (s *Service) GetOverdueReviews(ctx context.Context) ([]View, error) {
	now := s.store.Now()
	workflows, err := s.store.ListOverdueReviews(ctx, now)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "overdue reviews", "", err)
	}
	views, err := s.annotate(ctx, workflows)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if views[i].ReviewDeadline != nil {
			views[i].DaysOverdue = daysOverdue(*views[i].ReviewDeadline, now)
		}
	}
	return views, nil
}

func daysOverdue(deadline, now time.Time) int {
	late := now.Sub(deadline)
	if late <= 0 {
		return 0
	}
	return int(math.Ceil(late.Hours() / 24))
}

// SearchParams filters SearchByMetadataAndTags. Empty fields match anything.
type SearchParams struct {
	Status      store.WorkflowStatus
	ContentType store.ContentKind
	Tags        []string
	Metadata    map[string]string
	Title       string
	Limit       int
}

// SearchByMetadataAndTags finds workflows whose content carries every tag
// and metadata pair requested.
func (s *Service) SearchByMetadataAndTags(ctx context.Context, params SearchParams) ([]View, error) {
	if params.Status != "" {
		if _, ok := ParseStatus(string(params.Status)); !ok {
			return nil, services.Wrap(services.ErrValidation, "workflow", "search", fmt.Sprintf("unknown status %q", params.Status), nil)
		}
	}
	if params.Limit < 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "search", "limit must be >= 0", nil)
	}
	workflows, err := s.store.SearchWorkflows(ctx, store.WorkflowSearch{
		Status:      params.Status,
		ContentType: params.ContentType,
		Tags:        params.Tags,
		Metadata:    params.Metadata,
		TitleQuery:  params.Title,
		Limit:       params.Limit,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "search", "", err)
	}
	return s.annotate(ctx, workflows)
}

// TimelineEntry is one step of a workflow's history.
type TimelineEntry struct {
	ID         string               `json:"id"`
	FromStatus store.WorkflowStatus `json:"from_status,omitempty"`
	ToStatus   store.WorkflowStatus `json:"to_status"`
	ActorID    string               `json:"actor_id"`
	Notes      string               `json:"notes,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Transition reports whether the entry changed state.
func (e TimelineEntry) Transition() bool {
	return e.FromStatus != "" && e.FromStatus != e.ToStatus
}

// GetWorkflowTimeline returns the full history of a workflow, oldest first.
func (s *Service) GetWorkflowTimeline(ctx context.Context, id string) ([]TimelineEntry, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "timeline", id, err)
	}
	if wf == nil {
		return nil, notFound("timeline", id)
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "timeline", id, err)
	}
	out := make([]TimelineEntry, 0, len(history))
	for _, h := range history {
		out = append(out, TimelineEntry{
			ID:         h.ID,
			FromStatus: h.FromStatus,
			ToStatus:   h.ToStatus,
			ActorID:    h.ActorID,
			Notes:      h.Notes,
			CreatedAt:  h.CreatedAt,
		})
	}
	return out, nil
}
