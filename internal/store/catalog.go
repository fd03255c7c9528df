package store

import (
	"context"
	"fmt"

	"github.com/abhisek/quizforge/ent"
	"github.com/abhisek/quizforge/ent/objective"
	"github.com/google/uuid"
)

type catalogRepo struct {
	client *ent.Client
}

func (r *catalogRepo) CreateQuiz(ctx context.Context, title string, objectives []string) (*QuizRecord, error) {
	rec := &QuizRecord{ID: uuid.NewString(), Title: title}

	err := withTx(ctx, r.client, func(tx *ent.Tx) error {
		q, err := tx.Quiz.Create().
			SetID(rec.ID).
			SetTitle(title).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("save quiz: %w", err)
		}
		rec.CreatedAt = q.CreatedAt

		builders := make([]*ent.ObjectiveCreate, len(objectives))
		for i, text := range objectives {
			o := ObjectiveRecord{ID: uuid.NewString(), QuizID: rec.ID, Text: text}
			rec.Objectives = append(rec.Objectives, o)
			builders[i] = tx.Objective.Create().
				SetID(o.ID).
				SetQuizID(o.QuizID).
				SetText(o.Text)
		}
		if len(builders) > 0 {
			if _, err := tx.Objective.CreateBulk(builders...).Save(ctx); err != nil {
				return fmt.Errorf("save objectives: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *catalogRepo) GetQuiz(ctx context.Context, id string) (*QuizRecord, error) {
	q, err := r.client.Quiz.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	objs, err := r.client.Objective.Query().
		Where(objective.QuizID(id)).
		Order(ent.Asc(objective.FieldCreatedAt), ent.Asc(objective.FieldID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query objectives: %w", err)
	}

	rec := &QuizRecord{ID: q.ID, Title: q.Title, CreatedAt: q.CreatedAt}
	for _, o := range objs {
		rec.Objectives = append(rec.Objectives, toObjectiveRecord(o))
	}
	return rec, nil
}

func (r *catalogRepo) Objectives(ctx context.Context, ids []string) (map[string]ObjectiveRecord, error) {
	out := make(map[string]ObjectiveRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	objs, err := r.client.Objective.Query().
		Where(objective.IDIn(ids...)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query objectives: %w", err)
	}
	for _, o := range objs {
		out[o.ID] = toObjectiveRecord(o)
	}
	return out, nil
}

func toObjectiveRecord(o *ent.Objective) ObjectiveRecord {
	return ObjectiveRecord{ID: o.ID, QuizID: o.QuizID, Text: o.Text}
}
