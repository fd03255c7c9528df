// Package queue runs tasks on a bounded worker pool with retries and
// exponential backoff.
package queue

import "errors"

// Task kinds as recorded in the journal and metrics.
const (
	KindUnit     = "unit"
	KindMaterial = "material"
)

// Task is a unit of queued work. The set of implementations is closed.
type Task interface {
	kind() string
	targets() []string
	// journalTarget is the primary id stored with the job record.
	journalTarget() string
}

// UnitTask generates one quiz item of a batch. Targets lists the ids the
// unit depends on (quiz, objective) so cancelling a target cancels the unit.
type UnitTask struct {
	BatchID string
	UnitID  string
	Targets []string
}

func (UnitTask) kind() string { return KindUnit }
func (t UnitTask) targets() []string { return append([]string{t.UnitID}, t.Targets...) }
func (t UnitTask) journalTarget() string { return t.UnitID }

// MaterialTask indexes one material.
type MaterialTask struct {
	MaterialID string
}

func (MaterialTask) kind() string { return KindMaterial }
func (t MaterialTask) targets() []string { return []string{t.MaterialID} }
func (t MaterialTask) journalTarget() string { return t.MaterialID }

// Kind returns the journal kind of t.
func Kind(t Task) string { return t.kind() }

var (
	// ErrCancelled is the terminal error of a job removed by CancelByTarget.
	ErrCancelled = errors.New("job cancelled")
	// ErrNotScheduled is returned for tasks that cannot be scheduled.
	ErrNotScheduled = errors.New("job not scheduled")
	// ErrStopped is returned by Enqueue after the queue has shut down.
	ErrStopped = errors.New("queue stopped")
)

func validate(t Task) error {
	switch t := t.(type) {
	case UnitTask:
		if t.UnitID == "" {
			return errors.Join(ErrNotScheduled, errors.New("unit task without unit id"))
		}
	case MaterialTask:
		if t.MaterialID == "" {
			return errors.Join(ErrNotScheduled, errors.New("material task without material id"))
		}
	case nil:
		return errors.Join(ErrNotScheduled, errors.New("nil task"))
	}
	return nil
}
