package research

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sydlexius/refrain/internal/event"
	"github.com/sydlexius/refrain/internal/logging"
)

// ErrStopTimeout is returned by Stop when the worker did not exit in time.
var ErrStopTimeout = errors.New("research worker did not stop in time")

// Summary is the per-job outcome returned by a Processor.
type Summary struct {
	Sources  int `json:"sources"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Processor researches a single job.
type Processor interface {
	Process(ctx context.Context, job Job, report ReportFunc) (Summary, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job, report ReportFunc) (Summary, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, job Job, report ReportFunc) (Summary, error) {
	return f(ctx, job, report)
}

// Status is a point-in-time view of the worker.
type Status struct {
	QueueSize    int       `json:"queue_size"`
	WorkerActive bool      `json:"worker_active"`
	CurrentJob   *Job      `json:"current_job,omitempty"`
	Progress     *Progress `json:"progress,omitempty"`
	Processed    int64     `json:"processed"`
	Failed       int64     `json:"failed"`
}

// Options tunes the worker loop.
type Options struct {
	PollTimeout time.Duration
	StopTimeout time.Duration
}

// DefaultOptions polls every second and waits 30s on stop.
func DefaultOptions() Options {
	return Options{PollTimeout: time.Second, StopTimeout: 30 * time.Second}
}

// Worker owns the research queue and the single goroutine that drains it.
// A started job always runs to completion; Stop takes effect between jobs.
type Worker struct {
	queue  *Queue
	proc   Processor
	opts   Options
	logger *slog.Logger
	bus    *event.Bus
	now    func() time.Time

	runMu   sync.Mutex
	running bool
	done    chan struct{}

	curMu   sync.Mutex
	current *Job

	progress  progressState
	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a stopped worker with an empty queue.
func NewWorker(proc Processor, opts Options, logger *slog.Logger) *Worker {
	def := DefaultOptions()
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = def.PollTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = def.StopTimeout
	}
	return &Worker{
		queue:  NewQueue(),
		proc:   proc,
		opts:   opts,
		logger: logging.ForComponent(logger, "research-worker"),
		now:    time.Now,
	}
}

// SetEventBus sets the event bus for publishing job lifecycle events.
func (w *Worker) SetEventBus(bus *event.Bus) {
	w.bus = bus
}

// Start launches the worker goroutine. It returns false, doing nothing, if
// the worker is already running. Canceling ctx stops the loop after the
// current job.
func (w *Worker) Start(ctx context.Context) bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return false
	}
	if w.done != nil {
		// A loop that outlived a timed-out Stop is still draining its job.
		select {
		case <-w.done:
		default:
			return false
		}
	}
	if w.queue.Closed() {
		w.queue = NewQueue()
	}
	w.running = true
	w.done = make(chan struct{})
	go w.loop(ctx, w.queue, w.done)
	w.logger.Info("research worker started", slog.Duration("poll_timeout", w.opts.PollTimeout))
	return true
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running
}

// Enqueue queues research for an entity. It never blocks and returns false
// only if the queue no longer accepts work.
func (w *Worker) Enqueue(entityID, entityName string) bool {
	_, err := w.EnqueueJob(entityID, entityName)
	return err == nil
}

// EnqueueJob is Enqueue returning the queued job.
func (w *Worker) EnqueueJob(entityID, entityName string) (Job, error) {
	job := NewJob(entityID, entityName, w.now())
	w.runMu.Lock()
	q := w.queue
	w.runMu.Unlock()
	if err := q.Enqueue(Work(job)); err != nil {
		w.logger.Warn("enqueue rejected", slog.String(logging.KeyEntityID, entityID), logging.Err(err))
		return Job{}, err
	}
	w.publish(event.ResearchQueued, job, nil)
	return job, nil
}

// Stop ends the loop: no further jobs are started, a job in progress is
// allowed to finish, and jobs still queued are discarded. It waits up to
// the configured stop timeout.
func (w *Worker) Stop() error {
	return w.StopWithin(w.opts.StopTimeout)
}

// StopWithin is Stop with an explicit timeout.
func (w *Worker) StopWithin(timeout time.Duration) error {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return nil
	}
	w.running = false
	q, done := w.queue, w.done
	w.runMu.Unlock()

	q.Close()
	q.interrupt(Stop())

	select {
	case <-done:
	case <-time.After(timeout):
		// The loop exits after its current job; nothing else will dequeue.
		w.discardQueued(q)
		return errors.WithDetailf(ErrStopTimeout, "waited %s", timeout)
	}

	w.discardQueued(q)
	w.logger.Info("research worker stopped")
	return nil
}

// discardQueued empties q, logging and publishing every job that never ran.
func (w *Worker) discardQueued(q *Queue) {
	dropped := q.Drain()
	if len(dropped) == 0 {
		return
	}
	ids := make([]string, len(dropped))
	for i, job := range dropped {
		ids[i] = job.ID
		w.publish(event.ResearchDiscarded, job, nil)
	}
	w.logger.Warn("discarded queued jobs on shutdown",
		slog.Int("count", len(dropped)), slog.Any("job_ids", ids))
}

// Status returns queue size, activity, the current job and its progress.
func (w *Worker) Status() Status {
	w.runMu.Lock()
	active := w.running
	q := w.queue
	w.runMu.Unlock()

	st := Status{
		QueueSize:    q.Len(),
		WorkerActive: active,
		Processed:    w.processed.Load(),
		Failed:       w.failed.Load(),
	}
	w.curMu.Lock()
	if w.current != nil {
		j := *w.current
		st.CurrentJob = &j
	}
	w.curMu.Unlock()
	if p := w.progress.get(); !p.Idle() {
		st.Progress = &p
	}
	return st
}

// Progress returns the current progress, Idle when no job runs.
func (w *Worker) Progress() Progress { return w.progress.get() }

// QueueSnapshot returns the jobs waiting to start, oldest first.
func (w *Worker) QueueSnapshot() []Job {
	w.runMu.Lock()
	q := w.queue
	w.runMu.Unlock()
	return q.Snapshot()
}

func (w *Worker) isRunning() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running
}

func (w *Worker) loop(ctx context.Context, q *Queue, done chan struct{}) {
	defer close(done)
	defer func() {
		w.runMu.Lock()
		w.running = false
		w.runMu.Unlock()
	}()

	// Jobs are not preempted by shutdown; each runs to completion.
	jobCtx := context.WithoutCancel(ctx)

	for w.isRunning() && ctx.Err() == nil {
		msg, ok := q.Dequeue(ctx, w.opts.PollTimeout)
		if !ok {
			continue
		}
		if msg.IsStop() {
			return
		}
		job, ok := msg.Job()
		if !ok {
			continue
		}
		w.run(jobCtx, job)
	}
}

func (w *Worker) run(ctx context.Context, job Job) {
	log := w.logger.With(
		slog.String(logging.KeyJobID, job.ID),
		slog.String(logging.KeyEntityID, job.EntityID),
		slog.String(logging.KeyEntity, job.EntityName))

	w.setCurrent(&job)
	start := w.now()
	defer func() {
		w.setCurrent(nil)
		w.progress.clear()
	}()

	w.publish(event.ResearchStarted, job, nil)
	log.Info("research started")

	sum, err := w.process(ctx, job)
	elapsed := w.now().Sub(start)
	if err != nil {
		w.failed.Add(1)
		log.Error("research failed", logging.Err(err), slog.Duration(logging.KeyDuration, elapsed))
		w.publish(event.ResearchFailed, job, map[string]any{event.DataError: err.Error()})
		return
	}

	w.processed.Add(1)
	log.Info("research completed",
		slog.Int("accepted", sum.Accepted),
		slog.Int("rejected", sum.Rejected),
		slog.Int("failed_sources", sum.Failed),
		slog.Duration(logging.KeyDuration, elapsed))
	w.publish(event.ResearchCompleted, job, map[string]any{
		event.DataAccepted: sum.Accepted,
		event.DataDuration: elapsed.Milliseconds(),
	})
}

// process runs the processor, converting a panic into an error.
func (w *Worker) process(ctx context.Context, job Job) (sum Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during research: %v", r)
		}
	}()
	return w.proc.Process(ctx, job, w.progress.set)
}

func (w *Worker) setCurrent(j *Job) {
	w.curMu.Lock()
	w.current = j
	w.curMu.Unlock()
}

func (w *Worker) publish(t event.Type, job Job, extra map[string]any) {
	if w.bus == nil {
		return
	}
	data := map[string]any{
		event.DataJobID:      job.ID,
		event.DataEntityID:   job.EntityID,
		event.DataEntityName: job.EntityName,
	}
	for k, v := range extra {
		data[k] = v
	}
	w.bus.Publish(event.Event{Type: t, Data: data})
}
