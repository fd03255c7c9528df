package orchestrator

import (
	"context"

	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/store"
)

// Artifact is a generated item with the identity of the unit that made it.
type Artifact struct {
	UnitID      string
	BatchID     string
	QuizID      string
	ObjectiveID string
	Item        itemgen.Item
}

// Gateway durably stores artifacts.
type Gateway interface {
	// Save stores a and returns its id. Saving the same unit twice returns
	// the first id.
	Save(ctx context.Context, a Artifact) (string, error)
	// Exists reports whether targetID already has a persisted result: a
	// question for a unit id, or an indexed material for a material id.
	Exists(ctx context.Context, targetID string) (bool, error)
}

// StoreGateway is the Gateway over the sqlite store.
type StoreGateway struct {
	questions store.QuestionRepo
	materials store.MaterialRepo
}

func NewStoreGateway(questions store.QuestionRepo, materials store.MaterialRepo) *StoreGateway {
	return &StoreGateway{questions: questions, materials: materials}
}

func (g *StoreGateway) Save(ctx context.Context, a Artifact) (string, error) {
	return g.questions.Save(ctx, store.QuestionRecord{
		UnitID:      a.UnitID,
		BatchID:     a.BatchID,
		QuizID:      a.QuizID,
		ObjectiveID: a.ObjectiveID,
		Kind:        string(a.Item.Kind),
		Stem:        a.Item.Stem,
		Choices:     a.Item.Choices,
		Answer:      a.Item.Answer,
		AnswerType:  string(a.Item.AnswerType),
		Explanation: a.Item.Explanation,
		Difficulty:  string(a.Item.Difficulty),
		Source:      string(a.Item.Source),
	})
}

func (g *StoreGateway) Exists(ctx context.Context, targetID string) (bool, error) {
	q, err := g.questions.ByUnit(ctx, targetID)
	if err != nil {
		return false, err
	}
	if q != nil {
		return true, nil
	}
	return g.materials.IsIndexed(ctx, targetID)
}
