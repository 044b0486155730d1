package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mediaflow/internal/config"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/media"
	"mediaflow/internal/media/speech"
	"mediaflow/internal/store"
	"mediaflow/internal/testsupport"
	"mediaflow/internal/workflow"
)

func TestReportOverdueSetsGauge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	lesson := testsupport.SeedLesson(t, st, "Overdue lesson")
	workflows := workflow.NewService(st, nil, logging.NewNop())
	ctx := context.Background()

	view, err := workflows.CreateWorkflow(ctx, lesson.ID, store.KindLesson, "owner-1")
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if _, err := workflows.UpdateStatus(ctx, view.ID, store.WorkflowReview, "owner-1", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	deadline := time.Now().Add(-36 * time.Hour)
	if _, err := workflows.AssignReviewer(ctx, view.ID, "reviewer-1", "owner-1", &deadline); err != nil {
		t.Fatalf("AssignReviewer: %v", err)
	}

	h := newHousekeeping(newManager(t, cfg, st), workflows, prometheus.NewRegistry(), logging.NewNop())
	h.reportOverdue(ctx)
	if got := testutil.ToFloat64(h.overdue); got != 1 {
		t.Fatalf("expected 1 overdue review, got %v", got)
	}
}

func TestHousekeepingRejectsBadSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	h := newHousekeeping(newManager(t, cfg, st), workflow.NewService(st, nil, nil), nil, nil)

	err := h.start(context.Background(), config.Housekeeping{Enabled: true, StallSweep: "not a schedule"})
	if err == nil {
		t.Fatal("expected invalid cron spec to be rejected")
	}
	h.stop()
}

func TestSweepStalledReclaimsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := newManager(t, cfg, st)
	ctx := context.Background()

	lesson := testsupport.SeedLesson(t, st, "Stalled lesson")
	asset := &store.Asset{ContentID: lesson.ID, OriginalFilename: "a.mp4", OriginalPath: "/uploads/a.mp4"}
	if err := st.InsertAsset(ctx, asset); err != nil {
		t.Fatalf("InsertAsset: %v", err)
	}
	id, err := mgr.Submit(ctx, jobs.Submission{ContentID: lesson.ID, Params: jobs.MetadataParams{AssetID: asset.ID, SourcePath: "/uploads/a.mp4"}, Priority: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := st.ClaimNextJob(ctx, store.JobMetadata); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	st.SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	h := newHousekeeping(mgr, workflow.NewService(st, nil, nil), nil, nil)
	h.sweepStalled(ctx)

	job, err := st.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != store.JobPending {
		t.Fatalf("expected stalled job back in pending, got %s", job.Status)
	}
}

func newManager(t *testing.T, cfg *config.Config, st *store.Store) *jobs.Manager {
	t.Helper()
	engine := media.NewEngine(cfg, st, testsupport.NewFakeRunner(), &speech.StaticProvider{}, logging.NewNop())
	mgr, err := jobs.NewManager(cfg, st, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}
