package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"mediaflow/internal/config"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/preflight"
	"mediaflow/internal/store"
	"mediaflow/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	jobs      *jobs.Manager
	workflows *workflow.Service
	registry  *prometheus.Registry

	lockPath string
	lock     *flock.Flock

	housekeeping *housekeeping
	ops          *opsServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	DatabasePath string                 `json:"database_path"`
	LockFilePath string                 `json:"lock_file_path"`
	OpsAddress   string                 `json:"ops_address,omitempty"`
	Queues       []jobs.QueueStatistics `json:"queues"`
}

// New constructs a daemon with initialized dependencies. registry may be nil,
// in which case the ops server exposes an empty metrics page.
func New(cfg *config.Config, st *store.Store, manager *jobs.Manager, workflows *workflow.Service, registry *prometheus.Registry, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || manager == nil || workflows == nil {
		return nil, errors.New("daemon requires config, store, job manager, and workflow service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     st,
		jobs:      manager,
		workflows: workflows,
		registry:  registry,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.housekeeping = newHousekeeping(manager, workflows, registry, d.logger)
	return d, nil
}

// Start acquires the daemon lock, verifies the environment and launches the
// job queues, scheduled housekeeping and the ops endpoint.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediaflow daemon instance is already running")
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg, d.store)); len(failed) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			d.logger.Error("preflight check failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_failed"),
			)
			names = append(names, r.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.jobs.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start job queues: %w", err)
	}

	if d.cfg.Housekeeping.Enabled {
		if err := d.housekeeping.start(runCtx, d.cfg.Housekeeping); err != nil {
			d.jobs.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start housekeeping: %w", err)
		}
	}

	if d.cfg.Ops.Enabled {
		srv := newOpsServer(d, d.logger)
		if err := srv.start(d.cfg.Ops.Bind); err != nil {
			d.housekeeping.stop()
			d.jobs.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start ops server: %w", err)
		}
		d.ops = srv
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediaflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.ops != nil {
		d.ops.stop()
		d.ops = nil
	}
	d.housekeeping.stop()
	d.jobs.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediaflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns a snapshot of the daemon and its queues.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:      d.running.Load(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.ops != nil {
		status.OpsAddress = d.ops.address()
	}
	queues, err := d.jobs.GetQueueStatistics(ctx)
	if err != nil {
		return status, err
	}
	status.Queues = queues
	return status, nil
}

// Running reports whether Start has completed successfully.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// OpsAddress returns the bound ops endpoint address, or an empty string when disabled.
func (d *Daemon) OpsAddress() string {
	if d.ops == nil {
		return ""
	}
	return d.ops.address()
}
