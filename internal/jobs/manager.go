package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mediaflow/internal/config"
	"mediaflow/internal/logging"
	"mediaflow/internal/media"
	"mediaflow/internal/store"
)

// Processor performs the media work behind each queue.
type Processor interface {
	ExtractMetadata(ctx context.Context, path string) (store.AssetMetadata, error)
	Transcode(ctx context.Context, req media.TranscodeRequest) ([]media.RenditionOutcome, error)
	GenerateThumbnail(ctx context.Context, req media.ThumbnailRequest) (string, error)
	GenerateSubtitles(ctx context.Context, req media.SubtitleRequest) (media.SubtitleResult, error)
}

// Manager owns the four job queues: it persists submissions, dispatches them
// to bounded worker pools and applies the retry policy.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	processor Processor
	logger    *slog.Logger
	metrics   *Metrics

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	queues map[store.JobType]*queueState
	waiter *outcomeHub

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type queueState struct {
	jobType  store.JobType
	settings config.QueueSettings
	wake     chan struct{}
	slots    chan struct{}
}

// signal wakes the dispatcher without blocking.
func (q *queueState) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Option configures optional Manager behavior.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the queue metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// NewManager constructs a manager. It does not start any worker.
func NewManager(cfg *config.Config, st *store.Store, processor Processor, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil || st == nil || processor == nil {
		return nil, errors.New("jobs manager: config, store and processor are required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:               cfg,
		store:             st,
		processor:         processor,
		logger:            logging.NewComponentLogger(logger, "jobs"),
		metrics:           NewMetrics(o.registerer),
		pollInterval:      time.Duration(cfg.Jobs.PollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Jobs.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Jobs.HeartbeatTimeout) * time.Second,
		queues:            make(map[store.JobType]*queueState, len(store.JobTypes)),
		waiter:            newOutcomeHub(),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	for _, jobType := range store.JobTypes {
		settings, ok := cfg.Jobs.Queue(string(jobType))
		if !ok {
			return nil, fmt.Errorf("jobs manager: no settings for queue %s", jobType)
		}
		if settings.Concurrency < 1 {
			settings.Concurrency = 1
		}
		if settings.MaxAttempts < 1 {
			settings.MaxAttempts = 1
		}
		m.queues[jobType] = &queueState{
			jobType:  jobType,
			settings: settings,
			wake:     make(chan struct{}, 1),
			slots:    make(chan struct{}, settings.Concurrency),
		}
	}
	return m, nil
}

// Metrics exposes the queue instruments.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Start recovers jobs orphaned by a previous process and launches one
// dispatcher per queue plus the stall monitor.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("jobs manager already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	recovered, err := m.store.ResetProcessingJobs(runCtx)
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("recover processing jobs: %w", err)
	}
	if recovered > 0 {
		m.logger.Info("returned interrupted jobs to pending",
			logging.Int64("count", recovered),
			logging.String(logging.FieldEventType, "jobs_recovered"),
		)
	}

	for _, jobType := range store.JobTypes {
		q := m.queues[jobType]
		m.wg.Add(1)
		go m.runQueue(runCtx, q)
	}
	if m.heartbeatTimeout > 0 {
		m.wg.Add(1)
		go m.runStallMonitor(runCtx)
	}
	m.logger.Info("job queues started", logging.Int("queues", len(m.queues)))
	return nil
}

// Stop cancels in-flight work and waits for every worker to exit. Jobs
// interrupted here stay processing and are recovered on the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("job queues stopped")
}

// Running reports whether the dispatchers are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) runQueue(ctx context.Context, q *queueState) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldJobType, string(q.jobType)))

	for {
		select {
		case <-ctx.Done():
			return
		case q.slots <- struct{}{}:
		}

		job, err := m.store.ClaimNextJob(ctx, q.jobType)
		if err != nil {
			<-q.slots
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			m.sleep(ctx, q, m.pollInterval)
			continue
		}
		if job == nil {
			<-q.slots
			m.sleep(ctx, q, m.idleWait(ctx, q))
			continue
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() { <-q.slots }()
			m.execute(ctx, q, job)
			q.signal()
		}()
	}
}

// idleWait returns how long an empty queue sleeps: until the earliest delayed
// job becomes available, capped by the poll interval.
func (m *Manager) idleWait(ctx context.Context, q *queueState) time.Duration {
	wait := m.pollInterval
	next, err := m.store.NextAvailableAt(ctx, q.jobType)
	if err != nil || next == nil {
		return wait
	}
	if until := next.Sub(m.store.Now()); until < wait {
		wait = max(until, 5*time.Millisecond)
	}
	return wait
}

func (m *Manager) sleep(ctx context.Context, q *queueState, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-q.wake:
	case <-timer.C:
	}
}
