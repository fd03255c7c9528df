package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Question is a generated quiz item, persisted once per generation unit.
type Question struct {
	ent.Schema
}

func (Question) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("unit_id").
			Unique().
			Immutable().
			Comment("Generation unit that produced this item; at most one item per unit"),
		field.String("batch_id"),
		field.String("quiz_id"),
		field.String("objective_id"),
		field.String("kind").
			Comment("multiple_choice, true_false, short_answer, fill_blank"),
		field.Text("stem"),
		field.JSON("choices", []string{}).
			Optional(),
		field.String("answer"),
		field.String("answer_type").
			Default(""),
		field.Text("explanation").
			Default(""),
		field.String("difficulty"),
		field.String("source").
			Comment("llm or template"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

func (Question) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("batch_id"),
		index.Fields("objective_id"),
		index.Fields("quiz_id"),
	}
}
