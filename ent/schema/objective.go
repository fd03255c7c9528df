package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Objective is a learning objective of a quiz. Generation requests target
// objectives by id.
type Objective struct {
	ent.Schema
}

func (Objective) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("quiz_id").
			Immutable(),
		field.Text("text").
			NotEmpty(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

func (Objective) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("quiz_id"),
	}
}
