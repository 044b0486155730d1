package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"mediaflow/internal/config"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/workflow"
)

// housekeeping runs the scheduled maintenance tasks: the stall sweep that
// reclaims jobs with expired heartbeats and the daily overdue review report.
type housekeeping struct {
	jobs      *jobs.Manager
	workflows *workflow.Service
	logger    *slog.Logger
	overdue   prometheus.Gauge

	mu    sync.Mutex
	sched *cron.Cron
}

func newHousekeeping(manager *jobs.Manager, workflows *workflow.Service, reg prometheus.Registerer, logger *slog.Logger) *housekeeping {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediaflow",
		Subsystem: "workflow",
		Name:      "overdue_reviews",
		Help:      "Workflows in review whose deadline has passed, as of the last report.",
	})
	if reg != nil {
		if err := reg.Register(gauge); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
					gauge = existing
				}
			}
		}
	}
	return &housekeeping{
		jobs:      manager,
		workflows: workflows,
		logger:    logging.NewComponentLogger(logger, "housekeeping"),
		overdue:   gauge,
	}
}

func (h *housekeeping) start(ctx context.Context, cfg config.Housekeeping) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sched != nil {
		return errors.New("housekeeping already running")
	}

	sched := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if cfg.StallSweep != "" {
		if _, err := sched.AddFunc(cfg.StallSweep, func() { h.sweepStalled(ctx) }); err != nil {
			return fmt.Errorf("stall sweep schedule %q: %w", cfg.StallSweep, err)
		}
	}
	if cfg.OverdueReport != "" {
		if _, err := sched.AddFunc(cfg.OverdueReport, func() { h.reportOverdue(ctx) }); err != nil {
			return fmt.Errorf("overdue report schedule %q: %w", cfg.OverdueReport, err)
		}
	}
	sched.Start()
	h.sched = sched
	h.logger.Info("housekeeping scheduled",
		logging.String("stall_sweep", cfg.StallSweep),
		logging.String("overdue_report", cfg.OverdueReport),
	)
	return nil
}

// stop halts the scheduler and waits for a running task to return.
func (h *housekeeping) stop() {
	h.mu.Lock()
	sched := h.sched
	h.sched = nil
	h.mu.Unlock()
	if sched == nil {
		return
	}
	<-sched.Stop().Done()
}

func (h *housekeeping) sweepStalled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	reclaimed, err := h.jobs.ReclaimStalled(ctx)
	if err != nil {
		logging.WarnWithContext(h.logger, "stall sweep failed", "stall_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database availability"),
		)
		return
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stalled jobs",
			logging.Int("count", reclaimed),
			logging.String(logging.FieldEventType, "stall_sweep"),
		)
	}
}

func (h *housekeeping) reportOverdue(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	overdue, err := h.workflows.GetOverdueReviews(ctx)
	if err != nil {
		logging.WarnWithContext(h.logger, "overdue review report failed", "overdue_report_failed",
			logging.Error(err),
		)
		return
	}
	h.overdue.Set(float64(len(overdue)))
	for _, view := range overdue {
		h.logger.Warn("review overdue",
			logging.String(logging.FieldWorkflowID, view.ID),
			logging.String("content_id", view.ContentID),
			logging.String("title", view.ContentTitle),
			logging.String("reviewer_id", view.ReviewerID),
			logging.Int("days_overdue", view.DaysOverdue),
			logging.String(logging.FieldEventType, "review_overdue"),
		)
	}
}
