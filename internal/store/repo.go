package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	UnitID       string
	Streamed     bool
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEventRecord is a stored LLM request event.
type LLMRequestEventRecord struct {
	LLMRequestEventData
	ID        int
	Sequence  int64
	Timestamp time.Time
}

// LLMUsage aggregates calls and tokens for one purpose.
type LLMUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates calls and tokens for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to the LLM request log.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEventRecord, error)

	// GetLLMEvent returns one event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEventRecord, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}

// QuizRecord is a quiz with its objectives.
type QuizRecord struct {
	ID         string
	Title      string
	Objectives []ObjectiveRecord
	CreatedAt  time.Time
}

// ObjectiveRecord is one learning objective; generation requests target it.
type ObjectiveRecord struct {
	ID     string
	QuizID string
	Text   string
}

// CatalogRepo manages quizzes and their objectives.
type CatalogRepo interface {
	// CreateQuiz stores a quiz and one objective per text.
	CreateQuiz(ctx context.Context, title string, objectives []string) (*QuizRecord, error)

	// GetQuiz returns the quiz with its objectives, or nil if unknown.
	GetQuiz(ctx context.Context, id string) (*QuizRecord, error)

	// Objectives resolves ids to objectives. Unknown ids are absent from
	// the result.
	Objectives(ctx context.Context, ids []string) (map[string]ObjectiveRecord, error)
}

// QuestionRecord is a persisted generated item.
type QuestionRecord struct {
	ID          string
	UnitID      string
	BatchID     string
	QuizID      string
	ObjectiveID string
	Kind        string
	Stem        string
	Choices     []string
	Answer      string
	AnswerType  string
	Explanation string
	Difficulty  string
	Source      string
	CreatedAt   time.Time
}

// QuestionRepo persists generated items, at most one per unit.
type QuestionRepo interface {
	// Save stores q and returns its id. Saving a unit that already has an
	// item returns the existing id without writing.
	Save(ctx context.Context, q QuestionRecord) (string, error)

	// ByUnit returns the item generated for a unit, or nil.
	ByUnit(ctx context.Context, unitID string) (*QuestionRecord, error)

	// ByBatch returns a batch's items in creation order.
	ByBatch(ctx context.Context, batchID string) ([]QuestionRecord, error)

	// RecentStems returns up to limit stems for an objective, newest first.
	RecentStems(ctx context.Context, objectiveID string, limit int) ([]string, error)

	Count(ctx context.Context) (int, error)
}

// MaterialRecord is a course document attached to a quiz.
type MaterialRecord struct {
	ID        string
	QuizID    string
	Title     string
	Content   string
	Indexed   bool
	IndexedAt *time.Time
}

// PassageRecord is one indexed chunk of a material.
type PassageRecord struct {
	MaterialID string
	QuizID     string
	Ordinal    int
	Text       string
}

// MaterialRepo manages materials and their passages.
type MaterialRepo interface {
	Create(ctx context.Context, quizID, title, content string) (*MaterialRecord, error)

	// Get returns the material, or nil if unknown.
	Get(ctx context.Context, id string) (*MaterialRecord, error)

	// IsIndexed reports whether the material has been indexed. Unknown
	// materials report false.
	IsIndexed(ctx context.Context, id string) (bool, error)

	// ReplacePassages swaps the material's passages for texts and marks it
	// indexed, atomically.
	ReplacePassages(ctx context.Context, materialID string, texts []string) error

	// Passages returns all passages of a quiz's indexed materials.
	Passages(ctx context.Context, quizID string) ([]PassageRecord, error)

	// Delete removes the material and its passages. Deleting an unknown
	// material is not an error.
	Delete(ctx context.Context, id string) error
}

// JobEntry is the journaled state of one work queue job.
type JobEntry struct {
	ID         string
	Kind       string
	Target     string
	BatchID    string
	Status     string
	RetryCount int
	MaxRetries int
	LastError  string
	UpdatedAt  time.Time
}

// JobJournal records work queue transitions.
type JobJournal interface {
	// RecordJob inserts or updates the entry with e.ID.
	RecordJob(ctx context.Context, e JobEntry) error

	// UnfinishedJobs returns entries left queued or running.
	UnfinishedJobs(ctx context.Context) ([]JobEntry, error)

	// JobCounts returns the number of entries per status.
	JobCounts(ctx context.Context) (map[string]int, error)
}
