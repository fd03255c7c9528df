package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Material is a course document attached to a quiz. Indexing splits it
// into passages used as generation context.
type Material struct {
	ent.Schema
}

func (Material) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("quiz_id").
			Immutable(),
		field.String("title"),
		field.Text("content"),
		field.Enum("status").
			Values("pending", "indexed").
			Default("pending"),
		field.Time("indexed_at").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

func (Material) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("quiz_id"),
	}
}
