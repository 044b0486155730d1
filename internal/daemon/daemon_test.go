package daemon_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"mediaflow/internal/config"
	"mediaflow/internal/daemon"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/media"
	"mediaflow/internal/media/speech"
	"mediaflow/internal/store"
	"mediaflow/internal/testsupport"
	"mediaflow/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config, st *store.Store) *daemon.Daemon {
	t.Helper()
	registry := prometheus.NewRegistry()
	engine := media.NewEngine(cfg, st, testsupport.NewFakeRunner(), &speech.StaticProvider{}, logging.NewNop())
	mgr, err := jobs.NewManager(cfg, st, engine, logging.NewNop(), jobs.WithRegisterer(registry))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	d, err := daemon.New(cfg, st, mgr, workflow.NewService(st, nil, logging.NewNop()), registry, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Ops.Enabled = false
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if len(status.Queues) != len(store.JobTypes) {
		t.Fatalf("expected %d queues, got %d", len(store.JobTypes), len(status.Queues))
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestSecondInstanceIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Ops.Enabled = false
	st := testsupport.MustOpenStore(t, cfg)

	first := newDaemon(t, cfg, st)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second := newDaemon(t, cfg, st)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestStartFailsWhenBinaryMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffprobe"))
	cfg.Media.FFmpegBinary = "mediaflow-missing-ffmpeg"
	cfg.Ops.Enabled = false
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)

	err := d.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	if d.Running() {
		t.Fatal("daemon should not be running after failed start")
	}
}

func TestOpsEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Ops.Enabled = true
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + d.OpsAddress()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if !status.Running || len(status.Queues) != len(store.JobTypes) {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "mediaflow_workflow_overdue_reviews") {
		t.Fatalf("metrics output missing overdue gauge:\n%s", body)
	}
}
