package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
	"mediaflow/internal/testsupport"
	"mediaflow/internal/workflow"
)

type fixture struct {
	store   *store.Store
	service *workflow.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return &fixture{store: st, service: workflow.NewService(st, nil, logging.NewNop())}
}

func (f *fixture) newWorkflow(t *testing.T, title string) workflow.View {
	t.Helper()
	lesson := testsupport.SeedLesson(t, f.store, title)
	view, err := f.service.CreateWorkflow(context.Background(), lesson.ID, store.KindLesson, "editor-1")
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	return view
}

// pathTo lists the legal moves that take a fresh draft workflow to status.
var pathTo = map[store.WorkflowStatus][]store.WorkflowStatus{
	store.WorkflowDraft:     nil,
	store.WorkflowReview:    {store.WorkflowReview},
	store.WorkflowApproved:  {store.WorkflowReview, store.WorkflowApproved},
	store.WorkflowPublished: {store.WorkflowReview, store.WorkflowApproved, store.WorkflowPublished},
	store.WorkflowArchived:  {store.WorkflowArchived},
}

func (f *fixture) moveTo(t *testing.T, id string, status store.WorkflowStatus) {
	t.Helper()
	for _, step := range pathTo[status] {
		if _, err := f.service.UpdateStatus(context.Background(), id, step, "editor-1", ""); err != nil {
			t.Fatalf("move to %s failed at %s: %v", status, step, err)
		}
	}
}

func TestTransitionGrid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, from := range workflow.Statuses {
		for _, to := range workflow.Statuses {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				wf := f.newWorkflow(t, fmt.Sprintf("%s-%s", from, to))
				f.moveTo(t, wf.ID, from)

				before, err := f.service.GetWorkflow(ctx, wf.ID)
				if err != nil {
					t.Fatalf("GetWorkflow failed: %v", err)
				}
				historyBefore, err := f.service.GetWorkflowTimeline(ctx, wf.ID)
				if err != nil {
					t.Fatalf("GetWorkflowTimeline failed: %v", err)
				}

				updated, err := f.service.UpdateStatus(ctx, wf.ID, to, "editor-2", "grid")
				historyAfter, histErr := f.service.GetWorkflowTimeline(ctx, wf.ID)
				if histErr != nil {
					t.Fatalf("GetWorkflowTimeline failed: %v", histErr)
				}

				if workflow.CanTransition(from, to) {
					if err != nil {
						t.Fatalf("expected %s -> %s to succeed: %v", from, to, err)
					}
					if updated.Status != to {
						t.Fatalf("status = %s, want %s", updated.Status, to)
					}
					if len(historyAfter) != len(historyBefore)+1 {
						t.Fatalf("expected exactly one new history row, got %d -> %d", len(historyBefore), len(historyAfter))
					}
					last := historyAfter[len(historyAfter)-1]
					if last.FromStatus != from || last.ToStatus != to || last.ActorID != "editor-2" {
						t.Fatalf("unexpected history entry: %+v", last)
					}
					return
				}

				if !errors.Is(err, services.ErrInvalidTransition) {
					t.Fatalf("expected invalid transition for %s -> %s, got %v", from, to, err)
				}
				after, getErr := f.service.GetWorkflow(ctx, wf.ID)
				if getErr != nil {
					t.Fatalf("GetWorkflow failed: %v", getErr)
				}
				if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) {
					t.Fatalf("workflow changed after rejected move: before %+v after %+v", before, after)
				}
				if len(historyAfter) != len(historyBefore) {
					t.Fatalf("history changed after rejected move: %d -> %d", len(historyBefore), len(historyAfter))
				}
			})
		}
	}
}

func TestAllowedTransitionsMatchesTable(t *testing.T) {
	got := workflow.AllowedTransitions(store.WorkflowApproved)
	want := []store.WorkflowStatus{store.WorkflowPublished, store.WorkflowReview, store.WorkflowArchived}
	if !slices.Equal(got, want) {
		t.Fatalf("AllowedTransitions(approved) = %v, want %v", got, want)
	}
	got[0] = store.WorkflowDraft
	if workflow.AllowedTransitions(store.WorkflowApproved)[0] != store.WorkflowPublished {
		t.Fatal("AllowedTransitions must return a copy")
	}
	if len(workflow.AllowedTransitions("bogus")) != 0 {
		t.Fatal("unknown status should allow nothing")
	}
}

func TestUpdateStatusSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t, "Side effects")

	f.moveTo(t, wf.ID, store.WorkflowReview)
	deadline := time.Now().Add(48 * time.Hour)
	if _, err := f.service.AssignReviewer(ctx, wf.ID, "reviewer-1", "editor-1", &deadline); err != nil {
		t.Fatalf("AssignReviewer failed: %v", err)
	}

	// Sending back to draft and into review again clears the stale reviewer.
	if _, err := f.service.UpdateStatus(ctx, wf.ID, store.WorkflowDraft, "reviewer-1", "needs work"); err != nil {
		t.Fatalf("back to draft failed: %v", err)
	}
	view, err := f.service.UpdateStatus(ctx, wf.ID, store.WorkflowReview, "editor-1", "")
	if err != nil {
		t.Fatalf("back to review failed: %v", err)
	}
	if view.ReviewerID != "" || view.ReviewDeadline != nil {
		t.Fatalf("expected reviewer cleared on entering review, got %+v", view)
	}

	if _, err := f.service.AssignReviewer(ctx, wf.ID, "reviewer-2", "editor-1", nil); err != nil {
		t.Fatalf("AssignReviewer failed: %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, wf.ID, store.WorkflowApproved, "reviewer-2", ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	published, err := f.service.UpdateStatus(ctx, wf.ID, store.WorkflowPublished, "editor-1", "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if published.PublishedAt == nil || published.ReviewerID != "" {
		t.Fatalf("expected publishedAt stamped and reviewer cleared, got %+v", published)
	}

	archived, err := f.service.UpdateStatus(ctx, wf.ID, store.WorkflowArchived, "editor-1", "")
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if archived.ArchivedAt == nil || archived.PublishedAt == nil {
		t.Fatalf("expected archivedAt stamped and publishedAt kept, got %+v", archived)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t, "Errors")

	if _, err := f.service.UpdateStatus(ctx, "missing", store.WorkflowReview, "editor-1", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, wf.ID, "shipped", "editor-1", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAssignReviewerOutsideReviewLeavesReviewerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t, "Draft only")

	_, err := f.service.AssignReviewer(ctx, wf.ID, "reviewer-1", "editor-1", nil)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	view, err := f.service.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if view.ReviewerID != "" || view.Status != store.WorkflowDraft {
		t.Fatalf("workflow changed after rejected assignment: %+v", view)
	}
	if _, err := f.service.AssignReviewer(ctx, wf.ID, " ", "editor-1", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank reviewer, got %v", err)
	}
}

func TestReviewNotesRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t, "Notes")

	notes := "Line one\n  indented «quote» ✓\ttab"
	view, err := f.service.AddReviewNotes(ctx, wf.ID, "reviewer-1", notes)
	if err != nil {
		t.Fatalf("AddReviewNotes failed: %v", err)
	}
	if view.ReviewNotes != notes || view.Status != store.WorkflowDraft {
		t.Fatalf("unexpected view after notes: %+v", view)
	}
	timeline, err := f.service.GetWorkflowTimeline(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflowTimeline failed: %v", err)
	}
	last := timeline[len(timeline)-1]
	if last.Notes != notes || last.Transition() {
		t.Fatalf("unexpected notes entry: %+v", last)
	}
	if _, err := f.service.AddReviewNotes(ctx, wf.ID, "reviewer-1", "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty notes, got %v", err)
	}
}

func TestBulkUpdateStatusPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x := f.newWorkflow(t, "X")
	z := f.newWorkflow(t, "Z")
	f.moveTo(t, z.ID, store.WorkflowPublished)

	outcomes := f.service.BulkUpdateStatus(ctx,
		[]string{x.ContentID, "unknown-content", z.ContentID},
		store.KindLesson, store.WorkflowReview, "editor-1", "bulk")
	if len(outcomes) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].Success || outcomes[0].Workflow == nil || outcomes[0].Workflow.Status != store.WorkflowReview {
		t.Fatalf("expected X to succeed, got %+v", outcomes[0])
	}
	if outcomes[1].Success || !errors.Is(outcomes[1].Err, services.ErrNotFound) {
		t.Fatalf("expected Y not found, got %+v", outcomes[1])
	}
	if outcomes[2].Success || !errors.Is(outcomes[2].Err, services.ErrInvalidTransition) {
		t.Fatalf("expected Z invalid transition, got %+v", outcomes[2])
	}

	committed, err := f.service.GetWorkflow(ctx, x.ID)
	if err != nil || committed.Status != store.WorkflowReview {
		t.Fatalf("X transition did not commit: %+v err=%v", committed, err)
	}
}

func TestReviewQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return base })

	soon := f.newWorkflow(t, "Soon")
	later := f.newWorkflow(t, "Later")
	open := f.newWorkflow(t, "Open ended")
	other := f.newWorkflow(t, "Other reviewer")
	for _, wf := range []workflow.View{soon, later, open, other} {
		f.moveTo(t, wf.ID, store.WorkflowReview)
	}
	assign := func(id, reviewer string, deadline *time.Time) {
		t.Helper()
		if _, err := f.service.AssignReviewer(ctx, id, reviewer, "editor-1", deadline); err != nil {
			t.Fatalf("AssignReviewer failed: %v", err)
		}
	}
	d1 := base.Add(24 * time.Hour)
	d2 := base.Add(72 * time.Hour)
	assign(later.ID, "reviewer-1", &d2)
	assign(open.ID, "reviewer-1", nil)
	assign(soon.ID, "reviewer-1", &d1)
	assign(other.ID, "reviewer-2", &d1)

	pending, err := f.service.GetPendingReviews(ctx, "reviewer-1")
	if err != nil {
		t.Fatalf("GetPendingReviews failed: %v", err)
	}
	var ids []string
	for _, v := range pending {
		ids = append(ids, v.ID)
	}
	if want := []string{soon.ID, later.ID, open.ID}; !slices.Equal(ids, want) {
		t.Fatalf("pending order = %v, want %v", ids, want)
	}
	if pending[0].ContentTitle != "Soon" || pending[0].ContentOwner != "owner-1" {
		t.Fatalf("expected annotated view, got %+v", pending[0])
	}

	f.store.SetClock(func() time.Time { return base.Add(50 * time.Hour) })
	overdue, err := f.service.GetOverdueReviews(ctx)
	if err != nil {
		t.Fatalf("GetOverdueReviews failed: %v", err)
	}
	if len(overdue) != 2 {
		t.Fatalf("expected two overdue reviews, got %+v", overdue)
	}
	for _, v := range overdue {
		if v.DaysOverdue != 2 {
			t.Fatalf("expected 2 days overdue (26h late), got %d for %s", v.DaysOverdue, v.ContentTitle)
		}
	}

	inReview, err := f.service.GetContentByStatus(ctx, store.WorkflowReview, store.KindLesson)
	if err != nil {
		t.Fatalf("GetContentByStatus failed: %v", err)
	}
	if len(inReview) != 4 {
		t.Fatalf("expected four lessons in review, got %d", len(inReview))
	}
	courses, err := f.service.GetContentByStatus(ctx, store.WorkflowReview, store.KindCourse)
	if err != nil || len(courses) != 0 {
		t.Fatalf("expected no courses in review, got %d err=%v", len(courses), err)
	}
	if _, err := f.service.GetContentByStatus(ctx, "lost", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchByMetadataAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t, "Searchable intro")
	f.newWorkflow(t, "Another")

	results, err := f.service.SearchByMetadataAndTags(ctx, workflow.SearchParams{
		Tags:     []string{"video"},
		Metadata: map[string]string{"level": "intro"},
		Title:    "searchable",
	})
	if err != nil {
		t.Fatalf("SearchByMetadataAndTags failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != wf.ID {
		t.Fatalf("unexpected search results: %+v", results)
	}

	none, err := f.service.SearchByMetadataAndTags(ctx, workflow.SearchParams{Tags: []string{"audio"}})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no results for unknown tag, got %d err=%v", len(none), err)
	}
}

func TestCreateAndEnsureWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lesson := testsupport.SeedLesson(t, f.store, "Ensure")

	first, err := f.service.EnsureWorkflow(ctx, lesson.ID, store.KindLesson, "system")
	if err != nil {
		t.Fatalf("EnsureWorkflow failed: %v", err)
	}
	if first.Status != store.WorkflowDraft || first.ContentTitle != "Ensure" {
		t.Fatalf("unexpected ensured workflow: %+v", first)
	}
	second, err := f.service.EnsureWorkflow(ctx, lesson.ID, store.KindLesson, "system")
	if err != nil || second.ID != first.ID {
		t.Fatalf("EnsureWorkflow should be idempotent: %+v err=%v", second, err)
	}
	if _, err := f.service.CreateWorkflow(ctx, lesson.ID, store.KindLesson, "system"); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected duplicate workflow to fail with invalid state, got %v", err)
	}
	if _, err := f.service.CreateWorkflow(ctx, lesson.ID, store.KindCourse, "system"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected kind mismatch to fail with not found, got %v", err)
	}
	if _, err := f.service.CreateWorkflow(ctx, "nope", store.KindLesson, "system"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected unknown content to fail with not found, got %v", err)
	}

	byContent, err := f.service.GetWorkflowByContent(ctx, lesson.ID, store.KindLesson)
	if err != nil || byContent.ID != first.ID {
		t.Fatalf("GetWorkflowByContent mismatch: %+v err=%v", byContent, err)
	}
	timeline, err := f.service.GetWorkflowTimeline(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetWorkflowTimeline failed: %v", err)
	}
	if len(timeline) != 1 || timeline[0].FromStatus != "" || timeline[0].ToStatus != store.WorkflowDraft {
		t.Fatalf("unexpected creation timeline: %+v", timeline)
	}
	if _, err := f.service.GetWorkflowTimeline(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
