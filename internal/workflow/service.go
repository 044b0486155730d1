package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediaflow/internal/content"
	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// Service runs the editorial lifecycle of courses and lessons.
type Service struct {
	store   *store.Store
	catalog *content.Catalog
	logger  *slog.Logger
}

// NewService constructs a workflow service.
func NewService(st *store.Store, catalog *content.Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if catalog == nil {
		catalog = content.NewCatalog(st)
	}
	return &Service{
		store:   st,
		catalog: catalog,
		logger:  logging.NewComponentLogger(logger, "workflow"),
	}
}

// View is a workflow annotated with the content it tracks.
type View struct {
	ID             string               `json:"id"`
	ContentID      string               `json:"content_id"`
	ContentType    store.ContentKind    `json:"content_type"`
	ContentTitle   string               `json:"content_title"`
	ContentOwner   string               `json:"content_owner"`
	Status         store.WorkflowStatus `json:"status"`
	ReviewerID     string               `json:"reviewer_id,omitempty"`
	ReviewDeadline *time.Time           `json:"review_deadline,omitempty"`
	ReviewNotes    string               `json:"review_notes,omitempty"`
	PublishedAt    *time.Time           `json:"published_at,omitempty"`
	ArchivedAt     *time.Time           `json:"archived_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	// DaysOverdue is set by GetOverdueReviews.
	DaysOverdue int `json:"days_overdue,omitempty"`
}

func newView(wf *store.Workflow, item content.Content) View {
	v := View{
		ID:             wf.ID,
		ContentID:      wf.ContentID,
		ContentType:    wf.ContentType,
		Status:         wf.Status,
		ReviewerID:     wf.ReviewerID,
		ReviewDeadline: wf.ReviewDeadline,
		ReviewNotes:    wf.ReviewNotes,
		PublishedAt:    wf.PublishedAt,
		ArchivedAt:     wf.ArchivedAt,
		CreatedAt:      wf.CreatedAt,
		UpdatedAt:      wf.UpdatedAt,
	}
	if item != nil && item.Kind() == wf.ContentType {
		v.ContentTitle = item.Title()
		v.ContentOwner = item.Owner()
	}
	return v
}

// annotate resolves the content of every workflow in one batch.
func (s *Service) annotate(ctx context.Context, workflows []*store.Workflow) ([]View, error) {
	ids := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		ids = append(ids, wf.ContentID)
	}
	items, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(workflows))
	for _, wf := range workflows {
		views = append(views, newView(wf, items[wf.ContentID]))
	}
	return views, nil
}

func (s *Service) annotateOne(ctx context.Context, wf *store.Workflow) (View, error) {
	views, err := s.annotate(ctx, []*store.Workflow{wf})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

func notFound(operation, id string) error {
	return services.Wrap(services.ErrNotFound, "workflow", operation, "workflow "+id, nil)
}

// storeErr converts store failures into the service taxonomy.
func storeErr(operation, id string, err error) error {
	switch {
	case errors.Is(err, store.ErrMissing):
		return notFound(operation, id)
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrValidation):
		return err
	default:
		return services.Wrap(services.ErrTransient, "workflow", operation, id, err)
	}
}

// CreateWorkflow starts a draft workflow for a content item.
func (s *Service) CreateWorkflow(ctx context.Context, contentID string, kind store.ContentKind, actorID string) (View, error) {
	item, err := s.resolveContent(ctx, contentID, kind)
	if err != nil {
		return View{}, err
	}
	wf := &store.Workflow{ContentID: contentID, ContentType: kind, Status: store.WorkflowDraft}
	if err := s.store.CreateWorkflow(ctx, wf, actorID, "workflow created"); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return View{}, services.Wrap(services.ErrInvalidState, "workflow", "create",
				fmt.Sprintf("%s %s already has a workflow", kind, contentID), nil)
		}
		return View{}, services.Wrap(services.ErrTransient, "workflow", "create", contentID, err)
	}
	s.logger.Info("workflow created",
		logging.String(logging.FieldWorkflowID, wf.ID),
		logging.String("content_id", contentID),
		logging.String("content_type", string(kind)),
		logging.String(logging.FieldEventType, "workflow_created"),
	)
	return newView(wf, item), nil
}

// EnsureWorkflow returns the content item's workflow, creating a draft one
// when none exists.
func (s *Service) EnsureWorkflow(ctx context.Context, contentID string, kind store.ContentKind, actorID string) (View, error) {
	existing, err := s.store.GetWorkflowByContent(ctx, contentID, kind)
	if err != nil {
		return View{}, services.Wrap(services.ErrTransient, "workflow", "ensure", contentID, err)
	}
	if existing != nil {
		return s.annotateOne(ctx, existing)
	}
	view, err := s.CreateWorkflow(ctx, contentID, kind, actorID)
	if errors.Is(err, services.ErrInvalidState) {
		// Lost a creation race; the other writer's row is the workflow.
		existing, getErr := s.store.GetWorkflowByContent(ctx, contentID, kind)
		if getErr == nil && existing != nil {
			return s.annotateOne(ctx, existing)
		}
	}
	return view, err
}

func (s *Service) resolveContent(ctx context.Context, contentID string, kind store.ContentKind) (content.Content, error) {
	if _, ok := store.ParseContentKind(string(kind)); !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "resolve content", fmt.Sprintf("unknown content type %q", kind), nil)
	}
	item, err := s.catalog.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if item.Kind() != kind {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "resolve content",
			fmt.Sprintf("%s %s", kind, contentID), nil)
	}
	return item, nil
}

// GetWorkflow returns a workflow by id.
func (s *Service) GetWorkflow(ctx context.Context, id string) (View, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return View{}, services.Wrap(services.ErrTransient, "workflow", "get", id, err)
	}
	if wf == nil {
		return View{}, notFound("get", id)
	}
	return s.annotateOne(ctx, wf)
}

// GetWorkflowByContent returns the workflow tracking a content item.
func (s *Service) GetWorkflowByContent(ctx context.Context, contentID string, kind store.ContentKind) (View, error) {
	wf, err := s.store.GetWorkflowByContent(ctx, contentID, kind)
	if err != nil {
		return View{}, services.Wrap(services.ErrTransient, "workflow", "get by content", contentID, err)
	}
	if wf == nil {
		return View{}, services.Wrap(services.ErrNotFound, "workflow", "get by content",
			fmt.Sprintf("no workflow for %s %s", kind, contentID), nil)
	}
	return s.annotateOne(ctx, wf)
}

// UpdateStatus moves a workflow to newStatus and records one history entry.
// Illegal moves fail with ErrInvalidTransition and change nothing.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus store.WorkflowStatus, actorID, notes string) (View, error) {
	if _, ok := ParseStatus(string(newStatus)); !ok {
		return View{}, services.Wrap(services.ErrValidation, "workflow", "update status", fmt.Sprintf("unknown status %q", newStatus), nil)
	}
	var from store.WorkflowStatus
	wf, err := s.store.MutateWorkflow(ctx, id, func(wf *store.Workflow) (*store.HistoryEntry, error) {
		from = wf.Status
		if !CanTransition(wf.Status, newStatus) {
			return nil, services.Wrap(services.ErrInvalidTransition, "workflow", "update status",
				fmt.Sprintf("%s -> %s is not allowed", wf.Status, newStatus), nil)
		}
		enter(wf, newStatus, s.store.Now())
		return &store.HistoryEntry{FromStatus: from, ToStatus: newStatus, ActorID: actorID, Notes: notes}, nil
	})
	if err != nil {
		return View{}, storeErr("update status", id, err)
	}
	s.logger.Info("workflow status changed",
		logging.String(logging.FieldWorkflowID, id),
		logging.String("from", string(from)),
		logging.String("to", string(newStatus)),
		logging.String("actor_id", actorID),
		logging.String(logging.FieldEventType, "workflow_transition"),
	)
	return s.annotateOne(ctx, wf)
}

// AssignReviewer sets the reviewer and optional deadline of a workflow in
// review. Any other state fails with ErrInvalidState.
func (s *Service) AssignReviewer(ctx context.Context, id, reviewerID, actorID string, deadline *time.Time) (View, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return View{}, services.Wrap(services.ErrValidation, "workflow", "assign reviewer", "reviewer id is required", nil)
	}
	wf, err := s.store.MutateWorkflow(ctx, id, func(wf *store.Workflow) (*store.HistoryEntry, error) {
		if wf.Status != store.WorkflowReview {
			return nil, services.Wrap(services.ErrInvalidState, "workflow", "assign reviewer",
				fmt.Sprintf("workflow is %s, reviewers can only be assigned in review", wf.Status), nil)
		}
		wf.ReviewerID = reviewerID
		wf.ReviewDeadline = nil
		if deadline != nil {
			d := deadline.UTC()
			wf.ReviewDeadline = &d
		}
		return &store.HistoryEntry{
			FromStatus: wf.Status,
			ToStatus:   wf.Status,
			ActorID:    actorID,
			Notes:      "reviewer assigned: " + reviewerID,
		}, nil
	})
	if err != nil {
		return View{}, storeErr("assign reviewer", id, err)
	}
	s.logger.Info("reviewer assigned",
		logging.String(logging.FieldWorkflowID, id),
		logging.String("reviewer_id", reviewerID),
		logging.String(logging.FieldEventType, "workflow_reviewer_assigned"),
	)
	return s.annotateOne(ctx, wf)
}

// AddReviewNotes attaches reviewer notes without changing state.
func (s *Service) AddReviewNotes(ctx context.Context, id, reviewerID, notes string) (View, error) {
	if strings.TrimSpace(notes) == "" {
		return View{}, services.Wrap(services.ErrValidation, "workflow", "add review notes", "notes are required", nil)
	}
	wf, err := s.store.MutateWorkflow(ctx, id, func(wf *store.Workflow) (*store.HistoryEntry, error) {
		wf.ReviewNotes = notes
		return &store.HistoryEntry{FromStatus: wf.Status, ToStatus: wf.Status, ActorID: reviewerID, Notes: notes}, nil
	})
	if err != nil {
		return View{}, storeErr("add review notes", id, err)
	}
	return s.annotateOne(ctx, wf)
}

// BulkOutcome is the result of one item of a bulk status update.
type BulkOutcome struct {
	ContentID string `json:"content_id"`
	Success   bool   `json:"success"`
	Workflow  *View  `json:"workflow,omitempty"`
	Error     string `json:"error,omitempty"`
	// Err keeps the classified error for callers that inspect it.
	Err error `json:"-"`
}

// BulkUpdateStatus applies UpdateStatus to the workflow of every content
// item independently. A failing item never affects the others.
func (s *Service) BulkUpdateStatus(ctx context.Context, contentIDs []string, kind store.ContentKind, newStatus store.WorkflowStatus, actorID, notes string) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(contentIDs))
	for _, contentID := range contentIDs {
		outcome := BulkOutcome{ContentID: contentID}
		view, err := s.bulkItem(ctx, contentID, kind, newStatus, actorID, notes)
		if err != nil {
			outcome.Err = err
			outcome.Error = err.Error()
		} else {
			outcome.Success = true
			outcome.Workflow = &view
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (s *Service) bulkItem(ctx context.Context, contentID string, kind store.ContentKind, newStatus store.WorkflowStatus, actorID, notes string) (View, error) {
	wf, err := s.store.GetWorkflowByContent(ctx, contentID, kind)
	if err != nil {
		return View{}, services.Wrap(services.ErrTransient, "workflow", "bulk update", contentID, err)
	}
	if wf == nil {
		return View{}, services.Wrap(services.ErrNotFound, "workflow", "bulk update",
			fmt.Sprintf("no workflow for %s %s", kind, contentID), nil)
	}
	return s.UpdateStatus(ctx, wf.ID, newStatus, actorID, notes)
}
