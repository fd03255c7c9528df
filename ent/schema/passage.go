package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Passage is one indexed chunk of a material.
type Passage struct {
	ent.Schema
}

func (Passage) Fields() []ent.Field {
	return []ent.Field{
		field.String("material_id"),
		field.String("quiz_id"),
		field.Int("ordinal"),
		field.Text("text"),
	}
}

func (Passage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("material_id", "ordinal").
			Unique(),
		index.Fields("quiz_id"),
	}
}
