package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// JobRecord journals work queue jobs so their history survives restarts.
type JobRecord struct {
	ent.Schema
}

func (JobRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("kind").
			Immutable().
			Comment("unit or material"),
		field.String("target").
			Immutable().
			Comment("Unit id or material id"),
		field.String("batch_id").
			Default("").
			Immutable(),
		field.String("status").
			Comment("queued, running, completed, failed"),
		field.Int("retry_count").
			Default(0),
		field.Int("max_retries").
			Default(0),
		field.Text("last_error").
			Default(""),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

func (JobRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("kind", "target"),
	}
}
