package queue

import (
	"context"
	"fmt"

	"github.com/abhisek/quizforge/internal/store"
)

const orphanedError = "orphaned by restart"

// RecoverResult summarizes a Recover pass.
type RecoverResult struct {
	Requeued int
	Orphaned int
}

// Recover reloads jobs a previous process left queued or running. Material
// jobs are re-enqueued with their retry count; unit jobs cannot resume
// because their batch lived in memory, so they are journaled as failed.
func (q *Queue) Recover(ctx context.Context) (RecoverResult, error) {
	var res RecoverResult
	if q.journal == nil {
		return res, nil
	}
	entries, err := q.journal.UnfinishedJobs(ctx)
	if err != nil {
		return res, fmt.Errorf("load unfinished jobs: %w", err)
	}

	for _, e := range entries {
		switch e.Kind {
		case KindMaterial:
			task := MaterialTask{MaterialID: e.Target}
			var j *job
			q.mu.Lock()
			_, live := q.liveForLocked(task)
			if !live {
				j, err = q.enqueueLocked(JobID(e.ID), task, e.RetryCount)
			}
			q.mu.Unlock()
			if err != nil {
				return res, err
			}
			if !live {
				q.writeJournal(j)
				res.Requeued++
			}
		default:
			e.Status = string(StatusFailed)
			e.LastError = orphanedError
			if err := q.journal.RecordJob(ctx, e); err != nil {
				return res, fmt.Errorf("mark job %s orphaned: %w", e.ID, err)
			}
			res.Orphaned++
		}
	}

	if res.Requeued > 0 {
		q.signal()
	}
	if res.Requeued > 0 || res.Orphaned > 0 {
		q.log.Info("recovered unfinished jobs", "requeued", res.Requeued, "orphaned", res.Orphaned)
	}
	return res, nil
}

var _ Journal = (store.JobJournal)(nil)
