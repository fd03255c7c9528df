package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/metrics"
	"github.com/abhisek/quizforge/internal/store"
)

// JobID identifies a queued job.
type JobID string

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobInfo is a snapshot of a job passed to handlers and returned by Job.
type JobInfo struct {
	ID         JobID
	Task       Task
	Status     Status
	RetryCount int
	MaxRetries int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Attempt is the 1-based number of the current or last attempt.
func (j JobInfo) Attempt() int { return j.RetryCount + 1 }

// Handler executes jobs of one task kind.
type Handler interface {
	// Handle runs one attempt. A non-nil error fails the attempt.
	Handle(ctx context.Context, job JobInfo) error
	// Finished is called exactly once per job when it reaches a terminal
	// status. err is nil on success.
	Finished(job JobInfo, err error)
}

// Handlers routes jobs to a handler by task kind.
type Handlers struct {
	Unit     Handler
	Material Handler
}

// Journal records job transitions so unfinished work survives a restart.
type Journal interface {
	RecordJob(ctx context.Context, e store.JobEntry) error
	UnfinishedJobs(ctx context.Context) ([]store.JobEntry, error)
}

// ExistenceChecker reports whether a target's artifact already exists.
type ExistenceChecker interface {
	Exists(ctx context.Context, targetID string) (bool, error)
}

// Config tunes a Queue.
type Config struct {
	Concurrency int
	MaxRetries  int
	Backoff     Backoff
	// JobTimeout bounds a single attempt. Zero means no bound.
	JobTimeout time.Duration
	// Retention is how many terminal jobs are kept for lookup.
	Retention int
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
		MaxRetries:  2,
		Backoff:     DefaultBackoff(),
		Retention:   1000,
	}
}

// Stats counts jobs. Completed and Failed are totals since start.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type job struct {
	JobInfo
	cancelled bool
	timer     *time.Timer

	// unjournaled holds transitions not yet written; guarded by Queue.mu.
	// journalMu orders the writes of one job without holding Queue.mu.
	unjournaled []store.JobEntry
	journalMu   sync.Mutex
}

// Queue is an in-memory job table drained by a bounded worker pool. All
// job mutations happen under mu; journal writes happen after it is
// released.
type Queue struct {
	mu       sync.Mutex
	jobs     map[JobID]*job
	pending  []JobID
	terminal []JobID
	stats    Stats
	stopped  bool

	wake chan struct{}

	cfg      Config
	handlers Handlers
	journal  Journal
	exists   ExistenceChecker
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures optional collaborators.
type Option func(*Queue)

// WithJournal records every transition in j.
func WithJournal(j Journal) Option { return func(q *Queue) { q.journal = j } }

// WithExistenceChecker lets EnqueueMaterial skip already indexed targets.
func WithExistenceChecker(c ExistenceChecker) Option { return func(q *Queue) { q.exists = c } }

// WithLogger sets the queue logger.
func WithLogger(l *logger.Logger) Option { return func(q *Queue) { q.log = l } }

// WithMetrics records job transitions in m.
func WithMetrics(m *metrics.Metrics) Option { return func(q *Queue) { q.metrics = m } }

// New creates a queue. Jobs may be enqueued before Run.
func New(cfg Config, handlers Handlers, opts ...Option) *Queue {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	q := &Queue{
		jobs:     make(map[JobID]*job),
		wake:     make(chan struct{}, 1),
		cfg:      cfg,
		handlers: handlers,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With("component", "WorkQueue")
	return q
}

// Enqueue creates a queued job for t and schedules it.
func (q *Queue) Enqueue(t Task) (JobID, error) {
	if err := validate(t); err != nil {
		return "", err
	}
	q.mu.Lock()
	j, err := q.enqueueLocked(JobID(uuid.NewString()), t, 0)
	q.mu.Unlock()
	if err != nil {
		return "", err
	}
	q.signal()
	q.writeJournal(j)
	return j.ID, nil
}

// EnqueueMaterial schedules indexing of materialID unless it is already
// indexed or a job for it is queued or running. scheduled is false for
// those no-ops; id is the live job when one exists.
func (q *Queue) EnqueueMaterial(ctx context.Context, materialID string) (id JobID, scheduled bool, err error) {
	task := MaterialTask{MaterialID: materialID}
	if err := validate(task); err != nil {
		return "", false, err
	}

	q.mu.Lock()
	live, ok := q.liveForLocked(task)
	q.mu.Unlock()
	if ok {
		return live, false, nil
	}

	if q.exists != nil {
		indexed, err := q.exists.Exists(ctx, materialID)
		if err != nil {
			return "", false, fmt.Errorf("check material %s: %w", materialID, err)
		}
		if indexed {
			return "", false, nil
		}
	}

	q.mu.Lock()
	if live, ok := q.liveForLocked(task); ok {
		q.mu.Unlock()
		return live, false, nil
	}
	j, err := q.enqueueLocked(JobID(uuid.NewString()), task, 0)
	q.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	q.signal()
	q.writeJournal(j)
	return j.ID, true, nil
}

func (q *Queue) liveForLocked(t Task) (JobID, bool) {
	for id, j := range q.jobs {
		if j.Status.Terminal() || j.Task.kind() != t.kind() {
			continue
		}
		if j.Task.journalTarget() == t.journalTarget() {
			return id, true
		}
	}
	return "", false
}

func (q *Queue) enqueueLocked(id JobID, t Task, retryCount int) (*job, error) {
	if q.stopped {
		return nil, ErrStopped
	}
	now := q.now()
	j := &job{JobInfo: JobInfo{
		ID:         id,
		Task:       t,
		RetryCount: retryCount,
		MaxRetries: q.cfg.MaxRetries,
		CreatedAt:  now,
	}}
	q.jobs[id] = j
	q.setStatusLocked(j, StatusQueued)
	q.pending = append(q.pending, id)
	return j, nil
}

// Job returns a snapshot of a live or retained job.
func (q *Queue) Job(id JobID) (JobInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return j.JobInfo, true
}

// Stats returns current job counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// CancelByTarget cancels every non-terminal job that depends on any of
// targetIDs. Queued or backing-off jobs fail with ErrCancelled at once;
// running jobs finish their attempt but are not retried. It returns the
// number of jobs affected.
func (q *Queue) CancelByTarget(targetIDs ...string) int {
	if len(targetIDs) == 0 {
		return 0
	}

	var finished []*job
	affected := 0

	q.mu.Lock()
	for _, j := range q.jobs {
		if j.Status.Terminal() || j.cancelled {
			continue
		}
		if !slices.ContainsFunc(j.Task.targets(), func(t string) bool {
			return slices.Contains(targetIDs, t)
		}) {
			continue
		}
		affected++
		j.cancelled = true
		if j.Status == StatusRunning {
			continue
		}
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
		j.LastError = ErrCancelled.Error()
		q.setStatusLocked(j, StatusFailed)
		finished = append(finished, j)
	}
	infos := make([]JobInfo, len(finished))
	for i, j := range finished {
		infos[i] = j.JobInfo
	}
	q.mu.Unlock()

	for i, j := range finished {
		q.writeJournal(j)
		q.finish(infos[i], ErrCancelled)
	}
	if affected > 0 {
		q.log.Info("jobs cancelled", "count", affected)
	}
	return affected
}

// Run starts the worker pool and blocks until ctx is done. Pending retry
// timers are stopped and running attempts are awaited before it returns.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	q.signal()

	<-ctx.Done()

	q.mu.Lock()
	q.stopped = true
	for _, j := range q.jobs {
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
	}
	q.mu.Unlock()

	wg.Wait()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		j, info, ok := q.claim()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.writeJournal(j)
		q.execute(ctx, info)
	}
}

// claim pops the next queued job and marks it running. The caller writes
// the running transition to the journal.
func (q *Queue) claim() (*job, JobInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, JobInfo{}, false
	}
	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		j, ok := q.jobs[id]
		if !ok || j.Status != StatusQueued || j.timer != nil {
			continue
		}
		q.setStatusLocked(j, StatusRunning)
		if len(q.pending) > 0 {
			q.signal()
		}
		return j, j.JobInfo, true
	}
	return nil, JobInfo{}, false
}

func (q *Queue) handlerFor(t Task) Handler {
	switch t.(type) {
	case UnitTask:
		return q.handlers.Unit
	case MaterialTask:
		return q.handlers.Material
	default:
		panic(fmt.Sprintf("queue: unknown task type %T", t))
	}
}

func (q *Queue) execute(ctx context.Context, info JobInfo) {
	start := q.now()
	err := q.attempt(ctx, info)
	q.metrics.ObserveAttempt(info.Task.kind(), q.now().Sub(start).Seconds())

	q.mu.Lock()
	j := q.jobs[info.ID]
	if err == nil {
		j.LastError = ""
		q.setStatusLocked(j, StatusCompleted)
		done := j.JobInfo
		q.mu.Unlock()
		q.writeJournal(j)
		q.finish(done, nil)
		return
	}

	j.LastError = err.Error()
	if !j.cancelled && !q.stopped && j.RetryCount < j.MaxRetries {
		j.RetryCount++
		delay := q.cfg.Backoff.Delay(j.RetryCount)
		q.setStatusLocked(j, StatusQueued)
		id := j.ID
		j.timer = time.AfterFunc(delay, func() { q.requeue(id) })
		q.mu.Unlock()
		q.writeJournal(j)
		q.log.Warn("job attempt failed, retrying",
			"job", id, "kind", info.Task.kind(), "retry", info.RetryCount+1, "delay", delay, "error", err)
		return
	}

	if j.cancelled {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	q.setStatusLocked(j, StatusFailed)
	done := j.JobInfo
	q.mu.Unlock()
	q.writeJournal(j)

	q.log.Warn("job failed", "job", done.ID, "kind", done.Task.kind(), "attempts", done.Attempt(), "error", err)
	q.finish(done, err)
}

// attempt runs the handler once, converting a panic into an error.
func (q *Queue) attempt(ctx context.Context, info JobInfo) (err error) {
	h := q.handlerFor(info.Task)
	if h == nil {
		return fmt.Errorf("no handler for %s tasks", info.Task.kind())
	}
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, info)
}

func (q *Queue) requeue(id JobID) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.timer == nil || q.stopped {
		q.mu.Unlock()
		return
	}
	j.timer = nil
	q.pending = append(q.pending, id)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) finish(info JobInfo, err error) {
	h := q.handlerFor(info.Task)
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("finished callback panic", "job", info.ID, "panic", r)
		}
	}()
	h.Finished(info, err)
}

// setStatusLocked moves j to s, updating counters, metrics and retention.
// The transition is queued on j for writeJournal.
func (q *Queue) setStatusLocked(j *job, s Status) {
	prev := j.Status
	switch prev {
	case StatusQueued:
		q.stats.Queued--
	case StatusRunning:
		q.stats.Running--
	}
	switch s {
	case StatusQueued:
		q.stats.Queued++
	case StatusRunning:
		q.stats.Running++
	case StatusCompleted:
		q.stats.Completed++
	case StatusFailed:
		q.stats.Failed++
	}
	j.Status = s
	j.UpdatedAt = q.now()

	q.metrics.JobTransition(j.Task.kind(), string(s))
	q.metrics.SetQueueDepth(q.stats.Queued, q.stats.Running)

	if s.Terminal() {
		q.terminal = append(q.terminal, j.ID)
		for len(q.terminal) > q.cfg.Retention {
			delete(q.jobs, q.terminal[0])
			q.terminal = q.terminal[1:]
		}
	}

	if q.journal != nil {
		j.unjournaled = append(j.unjournaled, store.JobEntry{
			ID:         string(j.ID),
			Kind:       j.Task.kind(),
			Target:     j.Task.journalTarget(),
			BatchID:    batchOf(j.Task),
			Status:     string(s),
			RetryCount: j.RetryCount,
			MaxRetries: j.MaxRetries,
			LastError:  j.LastError,
		})
	}
}

// writeJournal writes j's pending transitions in order. It must be called
// without mu held. Writes for different jobs proceed independently; when
// it returns, every transition of j made before the call is written.
func (q *Queue) writeJournal(j *job) {
	if q.journal == nil || j == nil {
		return
	}
	j.journalMu.Lock()
	defer j.journalMu.Unlock()

	q.mu.Lock()
	entries := j.unjournaled
	j.unjournaled = nil
	q.mu.Unlock()

	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := q.journal.RecordJob(ctx, e)
		cancel()
		if err != nil {
			q.log.Warn("journal write failed", "job", e.ID, "status", e.Status, "error", err)
		}
	}
}

func batchOf(t Task) string {
	if u, ok := t.(UnitTask); ok {
		return u.BatchID
	}
	return ""
}
