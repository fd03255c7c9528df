package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/queue"
	"github.com/abhisek/quizforge/internal/retrieval"
	"github.com/abhisek/quizforge/internal/store"
)

type fakeTargets map[string]store.ObjectiveRecord

func (f fakeTargets) Objectives(ctx context.Context, ids []string) (map[string]store.ObjectiveRecord, error) {
	out := make(map[string]store.ObjectiveRecord)
	for _, id := range ids {
		if o, ok := f[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func targets(n int) fakeTargets {
	t := fakeTargets{}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("obj-%d", i)
		t[id] = store.ObjectiveRecord{ID: id, QuizID: "quiz-1", Text: fmt.Sprintf("Explain photosynthesis stage %d", i)}
	}
	return t
}

type fakeGateway struct {
	mu    sync.Mutex
	saved map[string]Artifact
	fail  bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{saved: map[string]Artifact{}}
}

func (g *fakeGateway) Save(ctx context.Context, a Artifact) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", errors.New("disk full")
	}
	g.saved[a.UnitID] = a
	return "q-" + a.UnitID, nil
}

func (g *fakeGateway) Exists(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.saved[id]
	return ok, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saved)
}

// scriptedGen calls fn with the 1-based call count for the unit.
type scriptedGen struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error)
}

func newScriptedGen(fn func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error)) *scriptedGen {
	return &scriptedGen{calls: map[string]int{}, fn: fn}
}

func (g *scriptedGen) Generate(ctx context.Context, in itemgen.Input, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
	g.mu.Lock()
	g.calls[in.UnitID]++
	call := g.calls[in.UnitID]
	g.mu.Unlock()
	return g.fn(in, call, chunks)
}

func okItem(in itemgen.Input) *itemgen.Item {
	return &itemgen.Item{
		Kind:        in.Kind,
		Stem:        "What does " + in.Objective + " involve?",
		Answer:      "light",
		AnswerType:  itemgen.AnswerTypeText,
		Explanation: "Because.",
		Difficulty:  in.Difficulty,
		Source:      itemgen.SourceLLM,
	}
}

type harness struct {
	orch    *Orchestrator
	queue   *queue.Queue
	hub     *events.Hub
	gateway *fakeGateway
}

func newHarness(t *testing.T, gen itemgen.Generator, tg fakeTargets, retr retrieval.Retriever) *harness {
	t.Helper()
	hub := events.NewHub(events.Config{OutboxSize: 1024, PublishTimeout: time.Second}, nil, nil)
	gw := newFakeGateway()
	o := New(DefaultConfig(), Deps{
		Generator: gen,
		Events:    hub,
		Targets:   tg,
		Gateway:   gw,
		Retriever: retr,
	})
	q := queue.New(queue.Config{
		Concurrency: 3,
		MaxRetries:  2,
		Backoff:     queue.Backoff{Base: time.Millisecond, Multiplier: 2, Max: 5 * time.Millisecond},
	}, queue.Handlers{Unit: o})
	o.SetQueue(q)
	return &harness{orch: o, queue: q, hub: hub, gateway: gw}
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.queue.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// collect reads events from sub until batch-complete.
func collect(t *testing.T, sub *events.Subscriber) []events.Event {
	t.Helper()
	var out []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.Outbound():
			out = append(out, ev)
			if ev.Type == events.TypeBatchComplete {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for batch-complete; got %d events", len(out))
			return nil
		}
	}
}

var unitSequence = regexp.MustCompile(`^(progress )*(text-chunk )*(completed|error) $`)

// byUnit groups unit events and checks each sequence is well-formed.
func byUnit(t *testing.T, evs []events.Event) map[string][]events.Event {
	t.Helper()
	units := map[string][]events.Event{}
	for _, ev := range evs {
		if ev.UnitID != "" {
			units[ev.UnitID] = append(units[ev.UnitID], ev)
		}
	}
	for id, seq := range units {
		var b strings.Builder
		for _, ev := range seq {
			b.WriteString(string(ev.Type) + " ")
		}
		assert.Regexp(t, unitSequence, b.String(), "unit %s", id)
	}
	return units
}

func payload(ev events.Event) map[string]any {
	p, _ := ev.Payload.(map[string]any)
	return p
}

func TestStartBatch_ThreeItems(t *testing.T) {
	h := newHarness(t, itemgen.NewTemplateGenerator(), targets(3), nil)
	sub, err := h.hub.Attach("s1")
	require.NoError(t, err)
	h.run(t)

	info, err := h.orch.StartBatch(context.Background(), "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindMultipleChoice},
		{ObjectiveID: "obj-2", Kind: itemgen.KindTrueFalse},
		{ObjectiveID: "obj-3", Kind: itemgen.KindFillBlank, Difficulty: itemgen.DifficultyHard},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalQuestions)
	assert.Len(t, info.Units, 3)

	evs := collect(t, sub)
	require.Equal(t, events.TypeConnected, evs[0].Type)
	require.Equal(t, events.TypeBatchStarted, evs[1].Type)
	assert.Equal(t, info.BatchID, payload(evs[1])["batchId"])
	assert.Equal(t, 3, payload(evs[1])["totalQuestions"])

	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeBatchComplete, last.Type)
	assert.Equal(t, 3, payload(last)["totalGenerated"])
	assert.Equal(t, 0, payload(last)["totalFailed"])

	units := byUnit(t, evs)
	assert.Len(t, units, 3)
	for _, seq := range units {
		final := seq[len(seq)-1]
		require.Equal(t, events.TypeCompleted, final.Type)
		assert.Equal(t, itemgen.SourceTemplate, payload(final)["source"])
		assert.NotEmpty(t, payload(final)["artifactId"])
	}
	assert.Equal(t, 3, h.gateway.count())

	snap, ok := h.orch.Batch(info.BatchID)
	require.True(t, ok)
	assert.Equal(t, BatchCompleted, snap.Status)
	assert.NotNil(t, snap.CompletedAt)
	assert.Equal(t, 0, h.orch.ActiveBatches())
}

func TestStartBatch_FanOutIndependence(t *testing.T) {
	gen := newScriptedGen(func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
		if in.ObjectiveID == "obj-3" {
			return nil, errors.New("model refused")
		}
		return okItem(in), nil
	})
	h := newHarness(t, gen, targets(5), nil)
	sub, _ := h.hub.Attach("s1")
	h.run(t)

	var items []ItemRequest
	for i := 1; i <= 5; i++ {
		items = append(items, ItemRequest{ObjectiveID: fmt.Sprintf("obj-%d", i), Kind: itemgen.KindShortAnswer})
	}
	_, err := h.orch.StartBatch(context.Background(), "s1", items)
	require.NoError(t, err)

	evs := collect(t, sub)
	last := payload(evs[len(evs)-1])
	assert.Equal(t, 4, last["totalGenerated"])
	assert.Equal(t, 1, last["totalFailed"])

	failed := 0
	for _, seq := range byUnit(t, evs) {
		final := seq[len(seq)-1]
		if final.Type == events.TypeError {
			failed++
			p := payload(final)
			assert.Equal(t, ReasonGenerationFailed, p["reason"])
			assert.Equal(t, 3, p["attempts"])
			assert.Contains(t, p["message"], "model refused")
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 4, h.gateway.count())
}

func TestStartBatch_RetryResetsText(t *testing.T) {
	gen := newScriptedGen(func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
		if call == 1 {
			chunks <- itemgen.Chunk{Text: "partial"}
			return nil, errors.New("stream dropped")
		}
		chunks <- itemgen.Chunk{Text: "complete stem", Final: true}
		return okItem(in), nil
	})
	h := newHarness(t, gen, targets(1), nil)
	sub, _ := h.hub.Attach("s1")
	h.run(t)

	_, err := h.orch.StartBatch(context.Background(), "s1", []ItemRequest{{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer}})
	require.NoError(t, err)

	evs := collect(t, sub)
	var chunks []events.Event
	for _, seq := range byUnit(t, evs) {
		for _, ev := range seq {
			if ev.Type == events.TypeTextChunk {
				chunks = append(chunks, ev)
			}
		}
		assert.Equal(t, events.TypeCompleted, seq[len(seq)-1].Type)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, false, payload(chunks[0])["reset"])
	assert.Equal(t, 1, payload(chunks[0])["attempt"])
	assert.Equal(t, true, payload(chunks[1])["reset"])
	assert.Equal(t, 2, payload(chunks[1])["attempt"])
	assert.Equal(t, true, payload(chunks[1])["final"])
}

func TestStartBatch_PersistenceFailure(t *testing.T) {
	gen := newScriptedGen(func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
		return okItem(in), nil
	})
	h := newHarness(t, gen, targets(1), nil)
	h.gateway.fail = true
	sub, _ := h.hub.Attach("s1")
	h.run(t)

	_, err := h.orch.StartBatch(context.Background(), "s1", []ItemRequest{{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer}})
	require.NoError(t, err)

	evs := collect(t, sub)
	last := payload(evs[len(evs)-1])
	assert.Equal(t, 0, last["totalGenerated"])
	assert.Equal(t, 1, last["totalFailed"])
	for _, seq := range byUnit(t, evs) {
		assert.Equal(t, ReasonPersistenceFailed, payload(seq[len(seq)-1])["reason"])
	}
}

func TestStartBatch_DisconnectedSession(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gen := newScriptedGen(func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
		once.Do(func() { close(started) })
		<-release
		return okItem(in), nil
	})
	h := newHarness(t, gen, targets(3), nil)
	sub, _ := h.hub.Attach("s1")
	h.run(t)

	info, err := h.orch.StartBatch(context.Background(), "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer},
		{ObjectiveID: "obj-2", Kind: itemgen.KindShortAnswer},
		{ObjectiveID: "obj-3", Kind: itemgen.KindShortAnswer},
	})
	require.NoError(t, err)

	<-started
	h.hub.Detach("s1")
	close(release)

	require.Eventually(t, func() bool { return h.orch.ActiveBatches() == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, h.gateway.count())

	snap, ok := h.orch.Batch(info.BatchID)
	require.True(t, ok)
	assert.Equal(t, 3, snap.TotalGenerated)

	// Nothing reaches the detached subscriber after detach.
	for {
		select {
		case ev := <-sub.Outbound():
			assert.NotEqual(t, events.TypeBatchComplete, ev.Type)
			continue
		default:
		}
		break
	}
}

func TestStartBatch_CancelledUnits(t *testing.T) {
	gen := newScriptedGen(func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
		return okItem(in), nil
	})
	h := newHarness(t, gen, targets(2), nil)
	sub, _ := h.hub.Attach("s1")
	// Queue not running: units stay queued until cancelled.

	_, err := h.orch.StartBatch(context.Background(), "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer},
		{ObjectiveID: "obj-2", Kind: itemgen.KindShortAnswer},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, h.queue.CancelByTarget("quiz-1"))

	evs := collect(t, sub)
	last := payload(evs[len(evs)-1])
	assert.Equal(t, 0, last["totalGenerated"])
	assert.Equal(t, 2, last["totalFailed"])
	for _, seq := range byUnit(t, evs) {
		p := payload(seq[len(seq)-1])
		assert.Equal(t, ReasonCancelled, p["reason"])
		assert.Equal(t, 0, p["attempts"])
	}
}

type recordingQueue struct {
	tasks []queue.Task
}

func (r *recordingQueue) Enqueue(t queue.Task) (queue.JobID, error) {
	r.tasks = append(r.tasks, t)
	return queue.JobID(fmt.Sprint(len(r.tasks))), nil
}

func TestStartBatch_Rejections(t *testing.T) {
	rq := &recordingQueue{}
	hub := events.NewHub(events.DefaultConfig(), nil, nil)
	o := New(DefaultConfig(), Deps{
		Generator: itemgen.NewTemplateGenerator(),
		Events:    hub,
		Targets:   targets(2),
		Gateway:   newFakeGateway(),
		Queue:     rq,
	})
	ctx := context.Background()

	_, err := o.StartBatch(ctx, "s1", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = o.StartBatch(ctx, "", []ItemRequest{{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sessionId", verr.Field)

	_, err = o.StartBatch(ctx, "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer},
		{ObjectiveID: "obj-2", Kind: "essay"},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, "kind", verr.Field)

	_, err = o.StartBatch(ctx, "s1", []ItemRequest{{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer, Difficulty: "brutal"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "difficulty", verr.Field)

	_, err = o.StartBatch(ctx, "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer},
		{ObjectiveID: "obj-404", Kind: itemgen.KindShortAnswer},
	})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"obj-404"}, nf.IDs)

	assert.Empty(t, rq.tasks, "rejected batches must not queue anything")
	assert.Equal(t, 0, o.ActiveBatches())
}

func TestStartBatch_EnqueuesUnitTasks(t *testing.T) {
	rq := &recordingQueue{}
	o := New(DefaultConfig(), Deps{
		Generator: itemgen.NewTemplateGenerator(),
		Events:    events.NewHub(events.DefaultConfig(), nil, nil),
		Targets:   targets(1),
		Gateway:   newFakeGateway(),
		Queue:     rq,
	})

	info, err := o.StartBatch(context.Background(), "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindTrueFalse},
		{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer},
	})
	require.NoError(t, err)
	require.Len(t, rq.tasks, 2)
	for i, task := range rq.tasks {
		ut, ok := task.(queue.UnitTask)
		require.True(t, ok)
		assert.Equal(t, info.BatchID, ut.BatchID)
		assert.Equal(t, info.Units[i].UnitID, ut.UnitID)
		assert.Equal(t, []string{"obj-1", "quiz-1"}, ut.Targets)
	}
	assert.Equal(t, itemgen.Kind("true_false"), info.Units[0].Kind)
	assert.Equal(t, UnitQueued, info.Units[0].Status)

	snap, ok := o.Batch(info.BatchID)
	require.True(t, ok)
	assert.Equal(t, BatchRunning, snap.Status)
}

func TestHandle_FailedAttemptAwaitingRetryIsQueued(t *testing.T) {
	gen := newScriptedGen(func(in itemgen.Input, call int, chunks chan<- itemgen.Chunk) (*itemgen.Item, error) {
		return nil, errors.New("model unavailable")
	})
	rq := &recordingQueue{}
	o := New(DefaultConfig(), Deps{
		Generator: gen,
		Events:    events.NewHub(events.DefaultConfig(), nil, nil),
		Targets:   targets(1),
		Gateway:   newFakeGateway(),
		Queue:     rq,
	})
	info, err := o.StartBatch(context.Background(), "s1", []ItemRequest{
		{ObjectiveID: "obj-1", Kind: itemgen.KindShortAnswer},
	})
	require.NoError(t, err)
	require.Len(t, rq.tasks, 1)

	unitStatus := func() UnitStatus {
		snap, ok := o.Batch(info.BatchID)
		require.True(t, ok)
		return snap.Units[0].Status
	}

	job := queue.JobInfo{ID: "j1", Task: rq.tasks[0], MaxRetries: 1, Status: queue.StatusRunning}
	require.Error(t, o.Handle(context.Background(), job))
	assert.Equal(t, UnitQueued, unitStatus(), "retry pending")

	job.RetryCount = 1
	require.Error(t, o.Handle(context.Background(), job))
	assert.Equal(t, UnitRunning, unitStatus(), "last attempt stays running until finished")

	o.Finished(job, errors.New("model unavailable"))
	assert.Equal(t, UnitFailed, unitStatus())
}

type fakeRetriever struct {
	passages []retrieval.Passage
	err      error
	queries  []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, q string, filters retrieval.Filters) ([]retrieval.Passage, error) {
	f.queries = append(f.queries, q+"|"+filters.QuizID)
	return f.passages, f.err
}

func TestGatherContext(t *testing.T) {
	o := New(Config{MaxPassages: 3}, Deps{})
	u := &unit{
		id:        "u1",
		req:       ItemRequest{Context: []string{"supplied"}},
		objective: store.ObjectiveRecord{ID: "obj-1", QuizID: "quiz-1", Text: "photosynthesis"},
	}

	assert.Equal(t, []string{"supplied"}, o.gatherContext(context.Background(), u))

	fr := &fakeRetriever{passages: []retrieval.Passage{{Text: "p1"}, {Text: "p2"}, {Text: "p3"}}}
	o.retr = fr
	assert.Equal(t, []string{"supplied", "p1", "p2"}, o.gatherContext(context.Background(), u))
	assert.Equal(t, []string{"photosynthesis|quiz-1"}, fr.queries)

	fr.err = errors.New("index offline")
	assert.Equal(t, []string{"supplied"}, o.gatherContext(context.Background(), u))
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want Reason
	}{
		{fmt.Errorf("%w: boom", queue.ErrCancelled), ReasonCancelled},
		{&PersistenceError{UnitID: "u", Err: errors.New("x")}, ReasonPersistenceFailed},
		{fmt.Errorf("%w: %w", errGenerate, errors.New("x")), ReasonGenerationFailed},
		{&itemgen.GenerationError{Primary: errors.New("a"), Fallback: errors.New("b")}, ReasonGenerationFailed},
		{errors.New("handler panic: nil map"), ReasonInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reasonFor(tt.err), tt.err.Error())
	}
}

func TestEmit_DropsBackwardPhases(t *testing.T) {
	hub := events.NewHub(events.Config{OutboxSize: 16}, nil, nil)
	sub, _ := hub.Attach("s1")
	<-sub.Outbound()

	o := New(DefaultConfig(), Deps{Events: hub})
	u := &unit{id: "u1", batch: &batch{sessionID: "s1"}}

	o.emit(u, events.TypeProgress, nil)
	o.emit(u, events.TypeTextChunk, nil)
	o.emit(u, events.TypeProgress, nil) // dropped
	o.emit(u, events.TypeCompleted, nil)
	o.emit(u, events.TypeTextChunk, nil) // dropped
	o.emit(u, events.TypeError, nil)     // dropped

	var got []events.Type
	for len(sub.Outbound()) > 0 {
		got = append(got, (<-sub.Outbound()).Type)
	}
	assert.Equal(t, []events.Type{events.TypeProgress, events.TypeTextChunk, events.TypeCompleted}, got)
}
