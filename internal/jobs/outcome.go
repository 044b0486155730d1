package jobs

import (
	"context"
	"log/slog"
	"sync"

	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// Outcome is the terminal result of a job. Result holds the typed result for
// the job's queue (*MetadataResult, *ThumbnailResult, *TranscodeResult or
// *SubtitleResult) and is nil for failures.
type Outcome struct {
	JobID  string
	Type   store.JobType
	Status store.JobStatus
	Result any
	Err    string
}

// Failed reports whether the job ended in failure.
func (o Outcome) Failed() bool {
	return o.Status == store.JobFailed
}

// outcomeHub fans terminal outcomes out to subscribers. Each subscription
// receives exactly one value.
type outcomeHub struct {
	mu   sync.Mutex
	subs map[string][]chan Outcome
}

func newOutcomeHub() *outcomeHub {
	return &outcomeHub{subs: make(map[string][]chan Outcome)}
}

func (h *outcomeHub) add(jobID string) chan Outcome {
	ch := make(chan Outcome, 1)
	h.mu.Lock()
	h.subs[jobID] = append(h.subs[jobID], ch)
	h.mu.Unlock()
	return ch
}

func (h *outcomeHub) remove(jobID string, ch <-chan Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[jobID]
	for i, candidate := range subs {
		if candidate == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.subs, jobID)
		return
	}
	h.subs[jobID] = subs
}

// deliver hands outcome to every current subscriber and forgets them.
func (h *outcomeHub) deliver(outcome Outcome) {
	h.mu.Lock()
	subs := h.subs[outcome.JobID]
	delete(h.subs, outcome.JobID)
	h.mu.Unlock()
	for _, ch := range subs {
		ch <- outcome
		close(ch)
	}
}

func outcomeFromJob(job *store.Job) (Outcome, error) {
	outcome := Outcome{
		JobID:  job.ID,
		Type:   job.Type,
		Status: job.Status,
		Err:    job.ErrorMessage,
	}
	if job.Status == store.JobCompleted {
		result, err := DecodeResult(job.Type, job.Result)
		if err != nil {
			return outcome, err
		}
		outcome.Result = result
	}
	return outcome, nil
}

// publish reads the job's recorded state and delivers it to subscribers.
func (m *Manager) publish(ctx context.Context, jobID string) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil || job == nil || !job.IsTerminal() {
		if err != nil {
			m.logger.Warn("failed to load job outcome", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		}
		return
	}
	m.deliverJob(m.logger, job)
}

func (m *Manager) deliverJob(logger *slog.Logger, job *store.Job) {
	outcome, err := outcomeFromJob(job)
	if err != nil {
		logger.Warn("job result could not be decoded",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
		outcome.Err = err.Error()
	}
	m.waiter.deliver(outcome)
}

// Subscribe returns a channel that receives the job's next terminal outcome
// and is then closed. A job that is already terminal is delivered at once.
func (m *Manager) Subscribe(ctx context.Context, jobID string) (<-chan Outcome, error) {
	ch := m.waiter.add(jobID)
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.waiter.remove(jobID, ch)
		return nil, err
	}
	if job == nil {
		m.waiter.remove(jobID, ch)
		return nil, services.Wrap(services.ErrNotFound, "jobs", "subscribe", "job "+jobID, nil)
	}
	if job.IsTerminal() {
		m.deliverJob(m.logger, job)
	}
	return ch, nil
}

// Await blocks until the job reaches a terminal state or ctx ends.
func (m *Manager) Await(ctx context.Context, jobID string) (Outcome, error) {
	ch, err := m.Subscribe(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		m.waiter.remove(jobID, ch)
		return Outcome{}, ctx.Err()
	}
}
