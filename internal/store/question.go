package store

import (
	"context"
	"fmt"

	"github.com/abhisek/quizforge/ent"
	"github.com/abhisek/quizforge/ent/question"
	"github.com/google/uuid"
)

type questionRepo struct {
	client *ent.Client
}

func (r *questionRepo) Save(ctx context.Context, q QuestionRecord) (string, error) {
	if existing, err := r.ByUnit(ctx, q.UnitID); err != nil {
		return "", err
	} else if existing != nil {
		return existing.ID, nil
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := r.client.Question.Create().
		SetID(q.ID).
		SetUnitID(q.UnitID).
		SetBatchID(q.BatchID).
		SetQuizID(q.QuizID).
		SetObjectiveID(q.ObjectiveID).
		SetKind(q.Kind).
		SetStem(q.Stem).
		SetChoices(q.Choices).
		SetAnswer(q.Answer).
		SetAnswerType(q.AnswerType).
		SetExplanation(q.Explanation).
		SetDifficulty(q.Difficulty).
		SetSource(q.Source).
		Save(ctx)
	if err != nil {
		// A concurrent save for the same unit won the unique index.
		if ent.IsConstraintError(err) {
			if existing, gerr := r.ByUnit(ctx, q.UnitID); gerr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", fmt.Errorf("save question: %w", err)
	}
	return q.ID, nil
}

func (r *questionRepo) ByUnit(ctx context.Context, unitID string) (*QuestionRecord, error) {
	q, err := r.client.Question.Query().
		Where(question.UnitID(unitID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query question by unit: %w", err)
	}
	rec := toQuestionRecord(q)
	return &rec, nil
}

func (r *questionRepo) ByBatch(ctx context.Context, batchID string) ([]QuestionRecord, error) {
	qs, err := r.client.Question.Query().
		Where(question.BatchID(batchID)).
		Order(ent.Asc(question.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query questions by batch: %w", err)
	}
	out := make([]QuestionRecord, len(qs))
	for i, q := range qs {
		out[i] = toQuestionRecord(q)
	}
	return out, nil
}

func (r *questionRepo) RecentStems(ctx context.Context, objectiveID string, limit int) ([]string, error) {
	query := r.client.Question.Query().
		Where(question.ObjectiveID(objectiveID)).
		Order(ent.Desc(question.FieldCreatedAt))
	if limit > 0 {
		query = query.Limit(limit)
	}
	stems, err := query.Select(question.FieldStem).Strings(ctx)
	if err != nil {
		return nil, fmt.Errorf("query stems: %w", err)
	}
	return stems, nil
}

func (r *questionRepo) Count(ctx context.Context) (int, error) {
	n, err := r.client.Question.Query().Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func toQuestionRecord(q *ent.Question) QuestionRecord {
	return QuestionRecord{
		ID:          q.ID,
		UnitID:      q.UnitID,
		BatchID:     q.BatchID,
		QuizID:      q.QuizID,
		ObjectiveID: q.ObjectiveID,
		Kind:        q.Kind,
		Stem:        q.Stem,
		Choices:     q.Choices,
		Answer:      q.Answer,
		AnswerType:  q.AnswerType,
		Explanation: q.Explanation,
		Difficulty:  q.Difficulty,
		Source:      q.Source,
		CreatedAt:   q.CreatedAt,
	}
}
