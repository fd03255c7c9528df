// Package orchestrator turns batch requests into queued units, relays their
// progress to the requesting session and reconciles the batch outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/metrics"
	"github.com/abhisek/quizforge/internal/queue"
	"github.com/abhisek/quizforge/internal/retrieval"
	"github.com/abhisek/quizforge/internal/store"
)

// TargetResolver looks up the objectives a batch refers to.
type TargetResolver interface {
	Objectives(ctx context.Context, ids []string) (map[string]store.ObjectiveRecord, error)
}

// StemSource supplies previously generated stems for an objective.
type StemSource interface {
	RecentStems(ctx context.Context, objectiveID string, limit int) ([]string, error)
}

// Enqueuer schedules unit tasks.
type Enqueuer interface {
	Enqueue(t queue.Task) (queue.JobID, error)
}

// Config tunes the orchestrator.
type Config struct {
	MaxBatchSize int
	// MaxPassages caps the context passages handed to the generator.
	MaxPassages int
	ChunkBuffer int
	// PriorItems caps the stems seeded per objective for dedup.
	PriorItems int
	// Retention is how many completed batch snapshots stay queryable.
	Retention int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 50,
		MaxPassages:  4,
		ChunkBuffer:  16,
		PriorItems:   8,
		Retention:    128,
	}
}

// Deps are the orchestrator's collaborators. Retriever and Stems are
// optional.
type Deps struct {
	Generator itemgen.Generator
	Events    events.Publisher
	Targets   TargetResolver
	Gateway   Gateway
	Retriever retrieval.Retriever
	Stems     StemSource
	Queue     Enqueuer
	Log       *logger.Logger
	Metrics   *metrics.Metrics
}

// Orchestrator owns the live batch table. It is the queue.Handler for
// unit tasks.
type Orchestrator struct {
	mu        sync.Mutex
	batches   map[string]*batch
	units     map[string]*unit
	completed map[string]*BatchInfo
	doneOrder []string

	cfg     Config
	gen     itemgen.Generator
	events  events.Publisher
	targets TargetResolver
	gateway Gateway
	retr    retrieval.Retriever
	stems   StemSource
	queue   Enqueuer
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an orchestrator. The queue may be supplied later with
// SetQueue, since the queue itself needs the orchestrator as a handler.
func New(cfg Config, d Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = def.MaxPassages
	}
	if cfg.ChunkBuffer <= 0 {
		cfg.ChunkBuffer = def.ChunkBuffer
	}
	if cfg.PriorItems <= 0 {
		cfg.PriorItems = def.PriorItems
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		batches:   make(map[string]*batch),
		units:     make(map[string]*unit),
		completed: make(map[string]*BatchInfo),
		cfg:       cfg,
		gen:       d.Generator,
		events:    d.Events,
		targets:   d.Targets,
		gateway:   d.Gateway,
		retr:      d.Retriever,
		stems:     d.Stems,
		queue:     d.Queue,
		log:       log.With("component", "Orchestrator"),
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

// SetQueue sets the queue units are submitted to.
func (o *Orchestrator) SetQueue(q Enqueuer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = q
}

// StartBatch validates items, resolves every objective, and only then
// creates the batch and enqueues one unit per item. Nothing is queued when
// an error is returned.
func (o *Orchestrator) StartBatch(ctx context.Context, sessionID string, items []ItemRequest) (*BatchInfo, error) {
	reqs, err := o.validate(sessionID, items)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if !slices.Contains(ids, r.ObjectiveID) {
			ids = append(ids, r.ObjectiveID)
		}
	}
	found, err := o.targets.Objectives(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}

	o.mu.Lock()
	q := o.queue
	o.mu.Unlock()
	if q == nil {
		return nil, errors.New("orchestrator: no work queue configured")
	}

	b := &batch{
		id:        uuid.NewString(),
		sessionID: strings.TrimSpace(sessionID),
		status:    BatchCreated,
		remaining: len(reqs),
		startedAt: o.now(),
		prior:     o.seedPrior(ctx, ids),
	}
	for _, r := range reqs {
		b.units = append(b.units, &unit{
			id:        uuid.NewString(),
			batch:     b,
			req:       r,
			objective: found[r.ObjectiveID],
			status:    UnitQueued,
		})
	}

	o.mu.Lock()
	o.batches[b.id] = b
	for _, u := range b.units {
		o.units[u.id] = u
	}
	b.status = BatchRunning
	o.mu.Unlock()

	o.metrics.BatchStarted()
	o.log.Info("batch started", "batch", b.id, "session", b.sessionID, "units", len(b.units))
	o.events.Publish(b.sessionID, events.TypeBatchStarted, "", map[string]any{
		"batchId":        b.id,
		"totalQuestions": len(b.units),
	})

	// Snapshot before enqueueing; fast units may finish the batch before
	// this call returns.
	o.mu.Lock()
	info := b.snapshot()
	o.mu.Unlock()

	for _, u := range b.units {
		_, err := q.Enqueue(queue.UnitTask{
			BatchID: b.id,
			UnitID:  u.id,
			Targets: []string{u.objective.ID, u.objective.QuizID},
		})
		if err != nil {
			o.finishUnit(u, fmt.Errorf("enqueue unit: %w", err))
		}
	}
	return info, nil
}

func (o *Orchestrator) validate(sessionID string, items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, &ValidationError{Index: -1, Field: "sessionId", Message: "required"}
	}
	if len(items) > o.cfg.MaxBatchSize {
		return nil, &ValidationError{
			Index:   -1,
			Field:   "items",
			Message: fmt.Sprintf("at most %d items per batch, got %d", o.cfg.MaxBatchSize, len(items)),
		}
	}

	out := make([]ItemRequest, len(items))
	for i, it := range items {
		it.ObjectiveID = strings.TrimSpace(it.ObjectiveID)
		if it.ObjectiveID == "" {
			return nil, &ValidationError{Index: i, Field: "objectiveId", Message: "required"}
		}
		if !it.Kind.Valid() {
			return nil, &ValidationError{Index: i, Field: "kind", Message: fmt.Sprintf("unsupported kind %q", it.Kind)}
		}
		if it.Difficulty == "" {
			it.Difficulty = itemgen.DifficultyMedium
		}
		if !it.Difficulty.Valid() {
			return nil, &ValidationError{Index: i, Field: "difficulty", Message: fmt.Sprintf("unsupported difficulty %q", it.Difficulty)}
		}
		out[i] = it
	}
	return out, nil
}

func (o *Orchestrator) seedPrior(ctx context.Context, objectiveIDs []string) map[string][]string {
	prior := make(map[string][]string, len(objectiveIDs))
	if o.stems == nil {
		return prior
	}
	for _, id := range objectiveIDs {
		stems, err := o.stems.RecentStems(ctx, id, o.cfg.PriorItems)
		if err != nil {
			o.log.Warn("load prior stems failed", "objective", id, "error", err)
			continue
		}
		prior[id] = stems
	}
	return prior
}

// Handle runs one generation attempt for a unit task. A failed attempt
// that the queue will retry puts the unit back to queued.
func (o *Orchestrator) Handle(ctx context.Context, job queue.JobInfo) (err error) {
	task, ok := job.Task.(queue.UnitTask)
	if !ok {
		return fmt.Errorf("orchestrator: unexpected task %T", job.Task)
	}
	attempt := job.Attempt()

	o.mu.Lock()
	u, ok := o.units[task.UnitID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unit %s is not tracked", task.UnitID)
	}
	if u.status.terminal() || u.artifactID != "" {
		o.mu.Unlock()
		return nil
	}
	u.status = UnitRunning
	u.attempts = attempt
	b := u.batch
	prior := slices.Clone(b.prior[u.req.ObjectiveID])
	o.mu.Unlock()

	defer func() {
		if err == nil || job.RetryCount >= job.MaxRetries {
			return
		}
		o.mu.Lock()
		if !u.status.terminal() {
			u.status = UnitQueued
		}
		o.mu.Unlock()
	}()

	o.emit(u, events.TypeProgress, map[string]any{"stage": "started", "attempt": attempt})

	passages := o.gatherContext(ctx, u)
	o.emit(u, events.TypeProgress, map[string]any{"stage": "context", "passages": len(passages)})

	in := itemgen.Input{
		UnitID:        u.id,
		ObjectiveID:   u.objective.ID,
		Objective:     u.objective.Text,
		Kind:          u.req.Kind,
		Difficulty:    u.req.Difficulty,
		Passages:      passages,
		Customization: u.req.Customization,
		PriorItems:    prior,
	}

	stream := itemgen.Start(ctx, o.gen, in, o.cfg.ChunkBuffer)
	first := true
	for c := range stream.Chunks() {
		reset := c.Reset
		if first {
			o.mu.Lock()
			u.status = UnitStreaming
			if u.textAtt != 0 && u.textAtt != attempt {
				reset = true
			}
			u.textAtt = attempt
			o.mu.Unlock()
			first = false
		}
		o.emit(u, events.TypeTextChunk, map[string]any{
			"text":    c.Text,
			"final":   c.Final,
			"attempt": attempt,
			"reset":   reset,
		})
	}
	item, err := stream.Result()
	if err != nil {
		return fmt.Errorf("%w: %w", errGenerate, err)
	}

	id, err := o.gateway.Save(ctx, Artifact{
		UnitID:      u.id,
		BatchID:     b.id,
		QuizID:      u.objective.QuizID,
		ObjectiveID: u.objective.ID,
		Item:        *item,
	})
	if err != nil {
		return &PersistenceError{UnitID: u.id, Err: err}
	}

	o.mu.Lock()
	u.artifactID = id
	u.item = item
	b.prior[u.req.ObjectiveID] = append(b.prior[u.req.ObjectiveID], item.Stem)
	o.mu.Unlock()
	return nil
}

// gatherContext returns supplied passages followed by retrieved ones. A
// retrieval failure degrades to the supplied passages.
func (o *Orchestrator) gatherContext(ctx context.Context, u *unit) []string {
	passages := slices.Clone(u.req.Context)
	if o.retr == nil || len(passages) >= o.cfg.MaxPassages {
		return truncate(passages, o.cfg.MaxPassages)
	}
	found, err := o.retr.Retrieve(ctx, u.objective.Text, retrieval.Filters{
		QuizID: u.objective.QuizID,
		Limit:  o.cfg.MaxPassages - len(passages),
	})
	if err != nil {
		o.log.Warn("retrieval failed, generating without context", "unit", u.id, "error", err)
		return passages
	}
	for _, p := range found {
		passages = append(passages, p.Text)
	}
	return truncate(passages, o.cfg.MaxPassages)
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Finished records a unit's terminal outcome.
func (o *Orchestrator) Finished(job queue.JobInfo, err error) {
	task, ok := job.Task.(queue.UnitTask)
	if !ok {
		return
	}
	o.mu.Lock()
	u, ok := o.units[task.UnitID]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.finishUnit(u, err)
}

// finishUnit marks u terminal once, publishes its terminal event and, for
// the last unit of the batch, the batch summary.
func (o *Orchestrator) finishUnit(u *unit, err error) {
	b := u.batch
	b.finishMu.Lock()
	defer b.finishMu.Unlock()

	o.mu.Lock()
	if u.status.terminal() {
		o.mu.Unlock()
		return
	}
	if err == nil && u.item == nil {
		err = errors.New("unit finished without an item")
	}
	if err == nil {
		u.status = UnitCompleted
		b.generated++
	} else {
		u.status = UnitFailed
		u.reason = reasonFor(err)
		u.errMsg = err.Error()
		b.failed++
	}
	b.remaining--
	last := b.remaining == 0
	if last {
		b.status = BatchCompleted
		b.doneAt = o.now()
	}
	attempts, artifactID, item := u.attempts, u.artifactID, u.item
	reason, msg := u.reason, u.errMsg
	o.mu.Unlock()

	if err == nil {
		o.emit(u, events.TypeCompleted, map[string]any{
			"artifactId": artifactID,
			"item":       item,
			"source":     item.Source,
		})
		o.metrics.UnitTerminal(true, string(item.Source))
	} else {
		o.emit(u, events.TypeError, map[string]any{
			"reason":   reason,
			"message":  msg,
			"attempts": attempts,
		})
		o.metrics.UnitTerminal(false, "")
		o.log.Warn("unit failed", "unit", u.id, "batch", b.id, "reason", reason, "error", err)
	}

	if last {
		o.completeBatch(b)
	}
}

func (o *Orchestrator) completeBatch(b *batch) {
	duration := b.doneAt.Sub(b.startedAt)
	o.events.Publish(b.sessionID, events.TypeBatchComplete, "", map[string]any{
		"batchId":        b.id,
		"totalQuestions": len(b.units),
		"totalGenerated": b.generated,
		"totalFailed":    b.failed,
		"durationMs":     duration.Milliseconds(),
	})
	o.metrics.BatchCompleted(duration.Seconds())
	o.log.Info("batch complete", "batch", b.id, "generated", b.generated, "failed", b.failed, "duration", duration)

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.batches, b.id)
	for _, u := range b.units {
		delete(o.units, u.id)
	}
	o.completed[b.id] = b.snapshot()
	o.doneOrder = append(o.doneOrder, b.id)
	for len(o.doneOrder) > o.cfg.Retention {
		delete(o.completed, o.doneOrder[0])
		o.doneOrder = o.doneOrder[1:]
	}
}

// emit publishes a unit event unless it would move the unit's phase
// backwards or follow its terminal event.
func (o *Orchestrator) emit(u *unit, typ events.Type, payload any) {
	p := phaseOf(typ)
	o.mu.Lock()
	if u.phase == phaseTerminal || p < u.phase {
		o.mu.Unlock()
		o.metrics.EventDropped("phase")
		return
	}
	u.phase = p
	sessionID := u.batch.sessionID
	o.mu.Unlock()

	o.events.Publish(sessionID, typ, u.id, payload)
}

// Batch returns a snapshot of a live or recently completed batch.
func (o *Orchestrator) Batch(batchID string) (*BatchInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.batches[batchID]; ok {
		return b.snapshot(), true
	}
	info, ok := o.completed[batchID]
	return info, ok
}

// ActiveBatches returns the number of batches still running.
func (o *Orchestrator) ActiveBatches() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.batches)
}
