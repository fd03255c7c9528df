package store

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/quizforge/ent"
	"github.com/abhisek/quizforge/ent/material"
	"github.com/abhisek/quizforge/ent/passage"
	"github.com/google/uuid"
)

type materialRepo struct {
	client *ent.Client
}

func (r *materialRepo) Create(ctx context.Context, quizID, title, content string) (*MaterialRecord, error) {
	m, err := r.client.Material.Create().
		SetID(uuid.NewString()).
		SetQuizID(quizID).
		SetTitle(title).
		SetContent(content).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("save material: %w", err)
	}
	rec := toMaterialRecord(m)
	return &rec, nil
}

func (r *materialRepo) Get(ctx context.Context, id string) (*MaterialRecord, error) {
	m, err := r.client.Material.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get material: %w", err)
	}
	rec := toMaterialRecord(m)
	return &rec, nil
}

func (r *materialRepo) IsIndexed(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.Material.Query().
		Where(material.ID(id), material.StatusEQ(material.StatusIndexed)).
		Exist(ctx)
	if err != nil {
		return false, fmt.Errorf("query material status: %w", err)
	}
	return ok, nil
}

func (r *materialRepo) ReplacePassages(ctx context.Context, materialID string, texts []string) error {
	return withTx(ctx, r.client, func(tx *ent.Tx) error {
		m, err := tx.Material.Get(ctx, materialID)
		if err != nil {
			return fmt.Errorf("get material: %w", err)
		}
		if _, err := tx.Passage.Delete().Where(passage.MaterialID(materialID)).Exec(ctx); err != nil {
			return fmt.Errorf("delete passages: %w", err)
		}

		builders := make([]*ent.PassageCreate, len(texts))
		for i, text := range texts {
			builders[i] = tx.Passage.Create().
				SetMaterialID(materialID).
				SetQuizID(m.QuizID).
				SetOrdinal(i).
				SetText(text)
		}
		if len(builders) > 0 {
			if _, err := tx.Passage.CreateBulk(builders...).Save(ctx); err != nil {
				return fmt.Errorf("save passages: %w", err)
			}
		}

		err = tx.Material.UpdateOneID(materialID).
			SetStatus(material.StatusIndexed).
			SetIndexedAt(time.Now().UTC()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark material indexed: %w", err)
		}
		return nil
	})
}

func (r *materialRepo) Passages(ctx context.Context, quizID string) ([]PassageRecord, error) {
	ps, err := r.client.Passage.Query().
		Where(passage.QuizID(quizID)).
		Order(ent.Asc(passage.FieldMaterialID), ent.Asc(passage.FieldOrdinal)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	out := make([]PassageRecord, len(ps))
	for i, p := range ps {
		out[i] = PassageRecord{
			MaterialID: p.MaterialID,
			QuizID:     p.QuizID,
			Ordinal:    p.Ordinal,
			Text:       p.Text,
		}
	}
	return out, nil
}

func (r *materialRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.client, func(tx *ent.Tx) error {
		if _, err := tx.Passage.Delete().Where(passage.MaterialID(id)).Exec(ctx); err != nil {
			return fmt.Errorf("delete passages: %w", err)
		}
		if _, err := tx.Material.Delete().Where(material.ID(id)).Exec(ctx); err != nil {
			return fmt.Errorf("delete material: %w", err)
		}
		return nil
	})
}

func toMaterialRecord(m *ent.Material) MaterialRecord {
	return MaterialRecord{
		ID:        m.ID,
		QuizID:    m.QuizID,
		Title:     m.Title,
		Content:   m.Content,
		Indexed:   m.Status == material.StatusIndexed,
		IndexedAt: m.IndexedAt,
	}
}
