package orchestrator

import (
	"sync"
	"time"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/store"
)

// ItemRequest asks for one quiz item.
type ItemRequest struct {
	ObjectiveID   string             `json:"objectiveId"`
	Kind          itemgen.Kind       `json:"kind"`
	Difficulty    itemgen.Difficulty `json:"difficulty,omitempty"`
	Context       []string           `json:"context,omitempty"`
	Customization string             `json:"customization,omitempty"`
}

// UnitStatus is the lifecycle state of a unit.
type UnitStatus string

const (
	UnitQueued    UnitStatus = "queued"
	UnitRunning   UnitStatus = "running"
	UnitStreaming UnitStatus = "streaming"
	UnitCompleted UnitStatus = "completed"
	UnitFailed    UnitStatus = "failed"
)

func (s UnitStatus) terminal() bool {
	return s == UnitCompleted || s == UnitFailed
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchCreated   BatchStatus = "created"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
)

// UnitInfo is a point-in-time view of a unit.
type UnitInfo struct {
	UnitID      string       `json:"unitId"`
	ObjectiveID string       `json:"objectiveId"`
	Kind        itemgen.Kind `json:"kind"`
	Status      UnitStatus   `json:"status"`
	Attempts    int          `json:"attempts"`
	ArtifactID  string       `json:"artifactId,omitempty"`
	Source      string       `json:"source,omitempty"`
	Reason      Reason       `json:"reason,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// BatchInfo is a point-in-time view of a batch.
type BatchInfo struct {
	BatchID        string      `json:"batchId"`
	SessionID      string      `json:"sessionId"`
	Status         BatchStatus `json:"status"`
	TotalQuestions int         `json:"totalQuestions"`
	TotalGenerated int         `json:"totalGenerated"`
	TotalFailed    int         `json:"totalFailed"`
	StartedAt      time.Time   `json:"startedAt"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	Units          []UnitInfo  `json:"units"`
}

// phase orders the event kinds a unit may emit.
type phase int

const (
	phaseNone phase = iota
	phaseProgress
	phaseText
	phaseTerminal
)

func phaseOf(t events.Type) phase {
	switch t {
	case events.TypeProgress:
		return phaseProgress
	case events.TypeTextChunk:
		return phaseText
	case events.TypeCompleted, events.TypeError:
		return phaseTerminal
	}
	return phaseNone
}

type unit struct {
	id        string
	batch     *batch
	req       ItemRequest
	objective store.ObjectiveRecord

	status     UnitStatus
	phase      phase
	attempts   int
	textAtt    int // attempt that last emitted text
	artifactID string
	item       *itemgen.Item
	reason     Reason
	errMsg     string
}

type batch struct {
	id        string
	sessionID string
	units     []*unit
	status    BatchStatus
	remaining int
	generated int
	failed    int
	startedAt time.Time
	doneAt    time.Time

	// prior holds stems per objective, seeded from the store and extended
	// as units complete.
	prior map[string][]string

	// finishMu serializes terminal transitions so the batch-complete event
	// follows every unit's terminal event.
	finishMu sync.Mutex
}

// snapshot must be called with the orchestrator lock held.
func (b *batch) snapshot() *BatchInfo {
	info := &BatchInfo{
		BatchID:        b.id,
		SessionID:      b.sessionID,
		Status:         b.status,
		TotalQuestions: len(b.units),
		TotalGenerated: b.generated,
		TotalFailed:    b.failed,
		StartedAt:      b.startedAt,
		Units:          make([]UnitInfo, len(b.units)),
	}
	if !b.doneAt.IsZero() {
		t := b.doneAt
		info.CompletedAt = &t
	}
	for i, u := range b.units {
		ui := UnitInfo{
			UnitID:      u.id,
			ObjectiveID: u.req.ObjectiveID,
			Kind:        u.req.Kind,
			Status:      u.status,
			Attempts:    u.attempts,
			ArtifactID:  u.artifactID,
			Reason:      u.reason,
			Error:       u.errMsg,
		}
		if u.item != nil {
			ui.Source = string(u.item.Source)
		}
		info.Units[i] = ui
	}
	return info
}
