package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mediaflow/internal/config"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/media"
	"mediaflow/internal/media/speech"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
	"mediaflow/internal/testsupport"
)

type fakeProcessor struct {
	mu       sync.Mutex
	order    []string
	failures map[string][]error
	block    chan struct{}
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{failures: make(map[string][]error)}
}

func (p *fakeProcessor) failNext(path string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[path] = append(p.failures[path], errs...)
}

func (p *fakeProcessor) record(ctx context.Context, path string) error {
	p.mu.Lock()
	p.order = append(p.order, path)
	var err error
	if queued := p.failures[path]; len(queued) > 0 {
		err = queued[0]
		p.failures[path] = queued[1:]
	}
	block := p.block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakeProcessor) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.order)
}

func (p *fakeProcessor) ExtractMetadata(ctx context.Context, path string) (store.AssetMetadata, error) {
	if err := p.record(ctx, path); err != nil {
		return store.AssetMetadata{}, err
	}
	return store.AssetMetadata{DurationSeconds: 600, Width: 1920, Height: 1080, Resolution: "1920x1080", Format: "mp4"}, nil
}

func (p *fakeProcessor) Transcode(ctx context.Context, req media.TranscodeRequest) ([]media.RenditionOutcome, error) {
	if err := p.record(ctx, req.SourcePath); err != nil {
		return nil, err
	}
	return []media.RenditionOutcome{{Resolution: "720p", Status: string(store.ArtifactCompleted)}}, nil
}

func (p *fakeProcessor) GenerateThumbnail(ctx context.Context, req media.ThumbnailRequest) (string, error) {
	if err := p.record(ctx, req.SourcePath); err != nil {
		return "", err
	}
	return "/thumbs/" + req.AssetID + ".jpg", nil
}

func (p *fakeProcessor) GenerateSubtitles(ctx context.Context, req media.SubtitleRequest) (media.SubtitleResult, error) {
	if err := p.record(ctx, req.SourcePath); err != nil {
		return media.SubtitleResult{}, err
	}
	return media.SubtitleResult{Language: req.Language}, nil
}

type managerFixture struct {
	cfg     *config.Config
	store   *store.Store
	manager *jobs.Manager
	asset   *store.Asset
}

func newManagerFixture(t *testing.T, processor jobs.Processor, reg prometheus.Registerer, opts ...testsupport.ConfigOption) *managerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	asset := &store.Asset{ContentID: "lesson-1", OriginalPath: "/uploads/lecture.mp4", OriginalFilename: "lecture.mp4"}
	if err := st.InsertAsset(context.Background(), asset); err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}
	var managerOpts []jobs.Option
	if reg != nil {
		managerOpts = append(managerOpts, jobs.WithRegisterer(reg))
	}
	mgr, err := jobs.NewManager(cfg, st, processor, logging.NewNop(), managerOpts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return &managerFixture{cfg: cfg, store: st, manager: mgr, asset: asset}
}

func (f *managerFixture) start(t *testing.T) {
	t.Helper()
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(f.manager.Stop)
}

func (f *managerFixture) submit(t *testing.T, params jobs.Params, priority int) string {
	t.Helper()
	id, err := f.manager.Submit(context.Background(), jobs.Submission{ContentID: "lesson-1", Params: params, Priority: priority})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return id
}

func await(t *testing.T, mgr *jobs.Manager, id string) jobs.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcome, err := mgr.Await(ctx, id)
	if err != nil {
		t.Fatalf("Await %s failed: %v", id, err)
	}
	return outcome
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	f := newManagerFixture(t, newFakeProcessor(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		sub  jobs.Submission
	}{
		{"missing content", jobs.Submission{Params: jobs.MetadataParams{AssetID: "a", SourcePath: "/x"}}},
		{"missing params", jobs.Submission{ContentID: "lesson-1"}},
		{"missing source", jobs.Submission{ContentID: "lesson-1", Params: jobs.MetadataParams{AssetID: "a"}}},
		{"bad rung", jobs.Submission{ContentID: "lesson-1", Params: jobs.TranscodeParams{AssetID: "a", SourcePath: "/x", Ladder: []string{"721p"}}}},
		{"bad language", jobs.Submission{ContentID: "lesson-1", Params: jobs.SubtitleParams{AssetID: "a", SourcePath: "/x", Language: "??"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.manager.Submit(ctx, tc.sub); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDispatchHonoursPriorityThenSubmissionOrder(t *testing.T) {
	processor := newFakeProcessor()
	f := newManagerFixture(t, processor, nil, testsupport.WithConcurrency(1))

	var ids []string
	for _, tc := range []struct {
		path     string
		priority int
	}{
		{"/low", 5},
		{"/first-high", 1},
		{"/mid", 3},
		{"/second-high", 1},
	} {
		ids = append(ids, f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: tc.path}, tc.priority))
	}
	f.start(t)
	for _, id := range ids {
		if outcome := await(t, f.manager, id); outcome.Status != store.JobCompleted {
			t.Fatalf("job %s ended %s: %s", id, outcome.Status, outcome.Err)
		}
	}

	want := []string{"/first-high", "/second-high", "/mid", "/low"}
	if got := processor.calls(); !slices.Equal(got, want) {
		t.Fatalf("dispatch order = %v, want %v", got, want)
	}
}

func TestOutcomeCarriesTypedResult(t *testing.T) {
	f := newManagerFixture(t, newFakeProcessor(), nil)
	f.start(t)

	id := f.submit(t, jobs.ThumbnailParams{AssetID: f.asset.ID, SourcePath: "/src.mp4", OffsetSeconds: 10}, 2)
	outcome := await(t, f.manager, id)
	result, ok := outcome.Result.(*jobs.ThumbnailResult)
	if !ok {
		t.Fatalf("expected *ThumbnailResult, got %T", outcome.Result)
	}
	if result.Path != "/thumbs/"+f.asset.ID+".jpg" {
		t.Fatalf("unexpected thumbnail path %q", result.Path)
	}

	asset, err := f.store.GetAsset(context.Background(), f.asset.ID)
	if err != nil || asset == nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if asset.ThumbnailPath != result.Path || asset.ProcessingStatus != store.ProcessingCompleted {
		t.Fatalf("unexpected asset after thumbnail: %+v", asset)
	}

	// A late subscriber still receives the terminal outcome.
	again := await(t, f.manager, id)
	if again.Status != store.JobCompleted {
		t.Fatalf("late subscriber got %+v", again)
	}
}

func TestRetryableFailureRetriesThenSucceeds(t *testing.T) {
	processor := newFakeProcessor()
	processor.failNext("/flaky.mp4", errors.New("ffprobe exited 1"))
	reg := prometheus.NewRegistry()
	f := newManagerFixture(t, processor, reg)
	f.start(t)

	id := f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: "/flaky.mp4"}, 1)
	outcome := await(t, f.manager, id)
	if outcome.Status != store.JobCompleted {
		t.Fatalf("expected completion after retry, got %+v", outcome)
	}

	view, err := f.manager.GetJobStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if view.Attempts != 2 || view.RetryCount != 1 || view.Progress != 100 {
		t.Fatalf("unexpected job view: %+v", view)
	}
	if _, ok := view.Result.(*jobs.MetadataResult); !ok {
		t.Fatalf("expected typed metadata result, got %T", view.Result)
	}

	metrics := f.manager.Metrics()
	if got := testutil.ToFloat64(metrics.Retried.WithLabelValues("metadata", "backoff")); got != 1 {
		t.Fatalf("retried metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Completed.WithLabelValues("metadata")); got != 1 {
		t.Fatalf("completed metric = %v, want 1", got)
	}
}

func TestFailureAfterAttemptBudget(t *testing.T) {
	processor := newFakeProcessor()
	boom := errors.New("speech backend unavailable")
	processor.failNext("/lecture.mp4", boom, boom, boom)
	f := newManagerFixture(t, processor, nil)
	f.start(t)

	id := f.submit(t, jobs.SubtitleParams{AssetID: f.asset.ID, SourcePath: "/lecture.mp4", Language: "en"}, 4)
	outcome := await(t, f.manager, id)
	if !outcome.Failed() || outcome.Err == "" {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if got := len(processor.calls()); got != f.cfg.Jobs.Subtitle.MaxAttempts {
		t.Fatalf("subtitle attempts = %d, want %d", got, f.cfg.Jobs.Subtitle.MaxAttempts)
	}
	asset, err := f.store.GetAsset(context.Background(), f.asset.ID)
	if err != nil || asset == nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if asset.ProcessingStatus != store.ProcessingFailed {
		t.Fatalf("asset status = %s, want failed", asset.ProcessingStatus)
	}
}

func TestNonRetryableFailureFailsImmediately(t *testing.T) {
	processor := newFakeProcessor()
	processor.failNext("/gone.mp4", services.Wrap(services.ErrNotFound, "media", "probe", "source missing", nil))
	f := newManagerFixture(t, processor, nil)
	f.start(t)

	id := f.submit(t, jobs.TranscodeParams{AssetID: f.asset.ID, SourcePath: "/gone.mp4", Ladder: []string{"720p"}}, 3)
	outcome := await(t, f.manager, id)
	if !outcome.Failed() {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	view, err := f.manager.GetJobStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if view.Attempts != 1 || view.RetryCount != 0 {
		t.Fatalf("expected a single attempt, got %+v", view)
	}
}

func TestMissingAssetFailsPermanently(t *testing.T) {
	processor := newFakeProcessor()
	f := newManagerFixture(t, processor, nil)
	f.start(t)

	id := f.submit(t, jobs.MetadataParams{AssetID: "no-such-asset", SourcePath: "/x.mp4"}, 1)
	outcome := await(t, f.manager, id)
	if !outcome.Failed() {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if len(processor.calls()) != 0 {
		t.Fatalf("processor should not run for a missing asset")
	}
}

func TestRetryFailedJob(t *testing.T) {
	processor := newFakeProcessor()
	processor.failNext("/once.mp4", services.Wrap(services.ErrConfiguration, "media", "ffmpeg", "binary missing", nil))
	f := newManagerFixture(t, processor, nil)
	f.start(t)
	ctx := context.Background()

	id := f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: "/once.mp4"}, 1)
	if outcome := await(t, f.manager, id); !outcome.Failed() {
		t.Fatalf("expected first run to fail, got %+v", outcome)
	}

	if err := f.manager.RetryFailedJob(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := f.manager.RetryFailedJob(ctx, id); err != nil {
		t.Fatalf("RetryFailedJob failed: %v", err)
	}
	outcome := await(t, f.manager, id)
	if outcome.Status != store.JobCompleted {
		t.Fatalf("expected completion after manual retry, got %+v", outcome)
	}
	if err := f.manager.RetryFailedJob(ctx, id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for completed job, got %v", err)
	}

	view, err := f.manager.GetJobStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if view.RetryCount != 1 || view.Attempts != 1 || view.Error != "" {
		t.Fatalf("unexpected view after manual retry: %+v", view)
	}
}

func TestRetryFailedJobRejectsPendingJob(t *testing.T) {
	f := newManagerFixture(t, newFakeProcessor(), nil)
	ctx := context.Background()

	id := f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: "/pending.mp4"}, 1)
	if err := f.manager.RetryFailedJob(ctx, id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for pending job, got %v", err)
	}
	view, err := f.manager.GetJobStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if view.Status != store.JobPending || view.RetryCount != 0 {
		t.Fatalf("pending job changed by rejected retry: %+v", view)
	}
}

func TestWorkerSlotFreedAsSoonAsJobFinishes(t *testing.T) {
	f := newManagerFixture(t, newFakeProcessor(), nil, testsupport.WithConcurrency(1))
	f.start(t)

	// Each job must finish well inside one heartbeat interval.
	budget := time.Duration(f.cfg.Jobs.HeartbeatInterval) * time.Second / 3
	for _, path := range []string{"/first.mp4", "/second.mp4", "/third.mp4"} {
		id := f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: path}, 1)
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		outcome, err := f.manager.Await(ctx, id)
		cancel()
		if err != nil {
			t.Fatalf("job %s not dispatched after the previous one finished: %v", path, err)
		}
		if outcome.Status != store.JobCompleted {
			t.Fatalf("job %s ended %s: %s", path, outcome.Status, outcome.Err)
		}
	}
}

func TestQueueStatisticsAndContentJobs(t *testing.T) {
	f := newManagerFixture(t, newFakeProcessor(), nil)
	ctx := context.Background()

	f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: "/a.mp4"}, 1)
	f.submit(t, jobs.ThumbnailParams{AssetID: f.asset.ID, SourcePath: "/a.mp4"}, 2)
	f.submit(t, jobs.TranscodeParams{AssetID: f.asset.ID, SourcePath: "/a.mp4", Ladder: []string{"1080p"}}, 3)

	stats, err := f.manager.GetQueueStatistics(ctx)
	if err != nil {
		t.Fatalf("GetQueueStatistics failed: %v", err)
	}
	if len(stats) != 4 {
		t.Fatalf("expected four queues, got %d", len(stats))
	}
	byQueue := make(map[store.JobType]jobs.QueueStatistics)
	for _, s := range stats {
		byQueue[s.Queue] = s
	}
	if byQueue[store.JobMetadata].Waiting != 1 || byQueue[store.JobSubtitle].Waiting != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if byQueue[store.JobTranscode].Concurrency != f.cfg.Jobs.Transcode.Concurrency {
		t.Fatalf("unexpected transcode concurrency: %+v", byQueue[store.JobTranscode])
	}

	all, err := f.manager.GetContentJobs(ctx, "lesson-1", "")
	if err != nil {
		t.Fatalf("GetContentJobs failed: %v", err)
	}
	if len(all) != 3 || all[0].Type != store.JobTranscode {
		t.Fatalf("expected newest-first jobs, got %+v", all)
	}
	thumbs, err := f.manager.GetContentJobs(ctx, "lesson-1", store.JobThumbnail)
	if err != nil {
		t.Fatalf("GetContentJobs(thumbnail) failed: %v", err)
	}
	if len(thumbs) != 1 {
		t.Fatalf("expected one thumbnail job, got %d", len(thumbs))
	}
	if _, ok := thumbs[0].Params.(*jobs.ThumbnailParams); !ok {
		t.Fatalf("expected typed params, got %T", thumbs[0].Params)
	}
	if _, err := f.manager.GetContentJobs(ctx, "lesson-1", "render"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := f.manager.GetJobStatus(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReclaimStalledRequeuesJob(t *testing.T) {
	f := newManagerFixture(t, newFakeProcessor(), nil)
	ctx := context.Background()
	id := f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: "/a.mp4"}, 1)

	claimed, err := f.store.ClaimNextJob(ctx, store.JobMetadata)
	if err != nil || claimed == nil || claimed.ID != id {
		t.Fatalf("claim failed: %v %+v", err, claimed)
	}

	if n, err := f.manager.ReclaimStalled(ctx); err != nil || n != 0 {
		t.Fatalf("fresh heartbeat should not be reclaimed: n=%d err=%v", n, err)
	}

	future := time.Now().Add(time.Duration(f.cfg.Jobs.HeartbeatTimeout+1) * time.Second)
	f.store.SetClock(func() time.Time { return future })
	n, err := f.manager.ReclaimStalled(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one reclaimed job: n=%d err=%v", n, err)
	}
	job, err := f.store.GetJob(ctx, id)
	if err != nil || job == nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != store.JobPending || job.RetryCount != 1 || job.ErrorMessage == "" {
		t.Fatalf("unexpected reclaimed job: %+v", job)
	}

	// The original execution's late write is rejected.
	if err := f.store.CompleteJob(ctx, id, claimed.Attempts, nil); !errors.Is(err, store.ErrStaleClaim) {
		t.Fatalf("expected stale claim, got %v", err)
	}
}

func TestStopLeavesInterruptedJobForRecovery(t *testing.T) {
	processor := newFakeProcessor()
	processor.block = make(chan struct{})
	f := newManagerFixture(t, processor, nil)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	id := f.submit(t, jobs.MetadataParams{AssetID: f.asset.ID, SourcePath: "/long.mp4"}, 1)

	deadline := time.Now().Add(5 * time.Second)
	for len(processor.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.manager.Stop()

	job, err := f.store.GetJob(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != store.JobProcessing {
		t.Fatalf("expected job to stay processing across shutdown, got %s", job.Status)
	}

	processor.mu.Lock()
	processor.block = nil
	processor.mu.Unlock()
	f.start(t)
	if outcome := await(t, f.manager, id); outcome.Status != store.JobCompleted {
		t.Fatalf("expected recovery to complete the job, got %+v", outcome)
	}
}

func TestTranscodeKeepsCompletedRungsWhenOneFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	runner := testsupport.NewFakeRunner()
	runner.SetRungFailures("720p", -1)
	engine := media.NewEngine(cfg, st, runner, &speech.StaticProvider{}, logging.NewNop())
	mgr, err := jobs.NewManager(cfg, st, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	source := filepath.Join(testsupport.BaseDir(cfg), "uploads", "lecture.mp4")
	testsupport.WriteFile(t, source, 2048)
	ctx := context.Background()
	asset := &store.Asset{ContentID: "lesson-1", OriginalPath: source, OriginalFilename: "lecture.mp4"}
	if err := st.InsertAsset(ctx, asset); err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	id, err := mgr.Submit(ctx, jobs.Submission{
		ContentID: "lesson-1",
		Params:    jobs.TranscodeParams{AssetID: asset.ID, SourcePath: source, Ladder: []string{"1080p", "720p", "480p"}},
		Priority:  3,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	outcome := await(t, mgr, id)
	if !outcome.Failed() {
		t.Fatalf("expected transcode failure, got %+v", outcome)
	}
	if got := runner.EncodeCount("720p"); got != cfg.Jobs.Transcode.MaxAttempts {
		t.Fatalf("720p encodes = %d, want %d", got, cfg.Jobs.Transcode.MaxAttempts)
	}
	if got := runner.EncodeCount("1080p"); got != 1 {
		t.Fatalf("completed 1080p rung should be reused, encoded %d times", got)
	}

	completed, err := st.ListRenditions(ctx, asset.ID, store.ArtifactCompleted)
	if err != nil {
		t.Fatalf("ListRenditions failed: %v", err)
	}
	var labels []string
	for _, r := range completed {
		labels = append(labels, r.Resolution)
	}
	slices.Sort(labels)
	if want := []string{"1080p", "480p"}; !slices.Equal(labels, want) {
		t.Fatalf("completed renditions = %v, want %v", labels, want)
	}
}

func TestProcessingStatusRollup(t *testing.T) {
	job := func(status store.JobStatus) *store.Job { return &store.Job{Status: status} }
	cases := []struct {
		name string
		jobs []*store.Job
		want string
	}{
		{"none", nil, store.ProcessingQueued},
		{"all pending", []*store.Job{job(store.JobPending), job(store.JobPending)}, store.ProcessingQueued},
		{"running", []*store.Job{job(store.JobProcessing), job(store.JobPending)}, store.ProcessingActive},
		{"some done", []*store.Job{job(store.JobCompleted), job(store.JobPending)}, store.ProcessingActive},
		{"all done", []*store.Job{job(store.JobCompleted), job(store.JobCompleted)}, store.ProcessingCompleted},
		{"mixed", []*store.Job{job(store.JobCompleted), job(store.JobFailed)}, store.ProcessingPartial},
		{"all failed", []*store.Job{job(store.JobFailed)}, store.ProcessingFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := jobs.ProcessingStatus(tc.jobs); got != tc.want {
				t.Fatalf("ProcessingStatus = %s, want %s", got, tc.want)
			}
		})
	}
}
