package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/queue"
)

var (
	// ErrEmptyBatch is returned when a batch requests no items.
	ErrEmptyBatch = errors.New("batch has no items")
	// ErrUnknownTarget is wrapped by NotFoundError.
	ErrUnknownTarget = errors.New("unknown target")
)

// ValidationError rejects a malformed batch before any unit is queued.
type ValidationError struct {
	// Index is the offending item, or -1 for batch-level fields.
	Index   int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid items[%d].%s: %s", e.Index, e.Field, e.Message)
}

// NotFoundError lists targets referenced by a batch that do not exist.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknownTarget, strings.Join(e.IDs, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrUnknownTarget }

// PersistenceError means an item was generated but could not be saved.
type PersistenceError struct {
	UnitID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist unit %s: %v", e.UnitID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Reason is the machine-readable cause carried by a unit error event.
type Reason string

const (
	ReasonGenerationFailed  Reason = "generation_failed"
	ReasonPersistenceFailed Reason = "persistence_failed"
	ReasonCancelled         Reason = "cancelled"
	ReasonInternal          Reason = "internal"
)

// errGenerate tags failures that came from the unit generator.
var errGenerate = errors.New("generate")

func reasonFor(err error) Reason {
	var perr *PersistenceError
	var gerr *itemgen.GenerationError
	var verr *itemgen.ValidationError
	switch {
	case errors.Is(err, queue.ErrCancelled):
		return ReasonCancelled
	case errors.As(err, &perr):
		return ReasonPersistenceFailed
	case errors.Is(err, errGenerate), errors.As(err, &gerr), errors.As(err, &verr):
		return ReasonGenerationFailed
	default:
		return ReasonInternal
	}
}
