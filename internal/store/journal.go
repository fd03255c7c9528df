package store

import (
	"context"
	"fmt"

	"github.com/abhisek/quizforge/ent"
	"github.com/abhisek/quizforge/ent/jobrecord"
)

type jobJournal struct {
	client *ent.Client
}

func (j *jobJournal) RecordJob(ctx context.Context, e JobEntry) error {
	err := j.client.JobRecord.UpdateOneID(e.ID).
		SetStatus(e.Status).
		SetRetryCount(e.RetryCount).
		SetMaxRetries(e.MaxRetries).
		SetLastError(e.LastError).
		Exec(ctx)
	if err == nil {
		return nil
	}
	if !ent.IsNotFound(err) {
		return fmt.Errorf("update job record: %w", err)
	}

	err = j.client.JobRecord.Create().
		SetID(e.ID).
		SetKind(e.Kind).
		SetTarget(e.Target).
		SetBatchID(e.BatchID).
		SetStatus(e.Status).
		SetRetryCount(e.RetryCount).
		SetMaxRetries(e.MaxRetries).
		SetLastError(e.LastError).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create job record: %w", err)
	}
	return nil
}

func (j *jobJournal) UnfinishedJobs(ctx context.Context) ([]JobEntry, error) {
	recs, err := j.client.JobRecord.Query().
		Where(jobrecord.StatusIn("queued", "running")).
		Order(ent.Asc(jobrecord.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query unfinished jobs: %w", err)
	}
	out := make([]JobEntry, len(recs))
	for i, r := range recs {
		out[i] = JobEntry{
			ID:         r.ID,
			Kind:       r.Kind,
			Target:     r.Target,
			BatchID:    r.BatchID,
			Status:     r.Status,
			RetryCount: r.RetryCount,
			MaxRetries: r.MaxRetries,
			LastError:  r.LastError,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return out, nil
}

func (j *jobJournal) JobCounts(ctx context.Context) (map[string]int, error) {
	recs, err := j.client.JobRecord.Query().
		Select(jobrecord.FieldStatus).
		Strings(ctx)
	if err != nil {
		return nil, fmt.Errorf("query job counts: %w", err)
	}
	counts := make(map[string]int)
	for _, s := range recs {
		counts[s]++
	}
	return counts, nil
}
